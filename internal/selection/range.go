// Package selection tracks the in and out marks placed on a loaded source
// before it is cut into a segment.
package selection

import (
	"math"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// State is a read-only view of the range.
type State struct {
	ClipDuration float64 `json:"clip_duration"`
	In           float64 `json:"in"`
	Out          float64 `json:"out"`
}

func (s State) Length() float64 {
	return s.Out - s.In
}

// Range keeps 0 <= in <= out <= clip duration. Moving one mark past the
// other drags the other mark along; a mark never moves itself to make room.
type Range struct {
	clip float64
	in   float64
	out  float64
}

// Load resets the marks to cover a source of the given duration.
func (r *Range) Load(duration float64) {
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}
	r.clip = duration
	r.in = 0
	r.out = duration
}

// SetIn moves the in mark. If it passes the out mark, out follows.
func (r *Range) SetIn(position float64) {
	r.in = r.clamp(position)
	if r.in > r.out {
		r.out = r.in
	}
}

// SetOut moves the out mark. If it passes the in mark, in follows.
func (r *Range) SetOut(position float64) {
	r.out = r.clamp(position)
	if r.out < r.in {
		r.in = r.out
	}
}

// Commit returns the marked range for segment creation.
func (r *Range) Commit() (in, out, length float64, err error) {
	if r.in >= r.out {
		return 0, 0, 0, editerr.Validation("in point %.3f must be before out point %.3f", r.in, r.out)
	}
	return r.in, r.out, r.out - r.in, nil
}

func (r *Range) State() State {
	return State{ClipDuration: r.clip, In: r.in, Out: r.out}
}

func (r *Range) clamp(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > r.clip:
		return r.clip
	}
	return p
}
