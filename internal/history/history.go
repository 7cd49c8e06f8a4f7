// Package history implements snapshot based undo and redo for a timeline.
package history

import (
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// DefaultCapacity is the number of entries each stack keeps.
const DefaultCapacity = 50

// Manager keeps two bounded stacks of timeline snapshots. When a stack is
// full the oldest entry is dropped.
type Manager struct {
	capacity int
	undo     []timeline.Snapshot
	redo     []timeline.Snapshot
}

// New returns a manager with the given capacity (DefaultCapacity when <= 0).
func New(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{capacity: capacity}
}

// Attach creates a manager and registers it as tl's recorder, so every
// successful mutation of tl is undoable.
func Attach(tl *timeline.Timeline, capacity int) *Manager {
	m := New(capacity)
	tl.SetRecorder(m)
	return m
}

// RecordBeforeMutation pushes the current state onto the undo stack and
// drops any redo entries.
func (m *Manager) RecordBeforeMutation(tl *timeline.Timeline) {
	m.undo = m.push(m.undo, tl.Snapshot())
	m.redo = nil
}

// Undo restores the state before the last mutation. It reports false and
// does nothing when there is nothing to undo.
func (m *Manager) Undo(tl *timeline.Timeline) bool {
	if len(m.undo) == 0 {
		return false
	}
	m.redo = m.push(m.redo, tl.Snapshot())
	var s timeline.Snapshot
	m.undo, s = pop(m.undo)
	tl.Restore(s)
	return true
}

// Redo reapplies the last undone mutation.
func (m *Manager) Redo(tl *timeline.Timeline) bool {
	if len(m.redo) == 0 {
		return false
	}
	m.undo = m.push(m.undo, tl.Snapshot())
	var s timeline.Snapshot
	m.redo, s = pop(m.redo)
	tl.Restore(s)
	return true
}

func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// Len returns the depth of the undo and redo stacks.
func (m *Manager) Len() (undo, redo int) {
	return len(m.undo), len(m.redo)
}

// Reset drops both stacks, e.g. after loading a project.
func (m *Manager) Reset() {
	m.undo = nil
	m.redo = nil
}

func (m *Manager) push(stack []timeline.Snapshot, s timeline.Snapshot) []timeline.Snapshot {
	stack = append(stack, s)
	if over := len(stack) - m.capacity; over > 0 {
		clear(stack[:over])
		stack = stack[over:]
	}
	return stack
}

func pop(stack []timeline.Snapshot) ([]timeline.Snapshot, timeline.Snapshot) {
	last := len(stack) - 1
	s := stack[last]
	stack[last] = timeline.Snapshot{}
	return stack[:last], s
}
