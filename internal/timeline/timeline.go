// Package timeline holds the edit model: an ordered list of segments cut from
// source files, timed text overlays and the current selection.
//
// Every mutating method validates its arguments first, then notifies the
// Recorder, then mutates. A rejected call leaves the timeline untouched and
// records nothing.
package timeline

import (
	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// DurationSource reports the length in seconds of a known source file.
type DurationSource interface {
	Duration(path string) (float64, bool)
}

// DurationFunc adapts a function to DurationSource.
type DurationFunc func(path string) (float64, bool)

func (f DurationFunc) Duration(path string) (float64, bool) { return f(path) }

// Recorder is told about every successful mutation before it happens.
type Recorder interface {
	RecordBeforeMutation(tl *Timeline)
}

// Snapshot is a fully owned copy of the timeline content. It never shares
// storage with a Timeline.
type Snapshot struct {
	Segments []Segment
	Overlays []Overlay
}

// TotalDuration is the declared output length: the sum of every segment's
// playback duration.
func (s Snapshot) TotalDuration() float64 {
	return totalDuration(s.Segments)
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{Segments: cloneSegments(s.Segments), Overlays: cloneOverlays(s.Overlays)}
}

type Timeline struct {
	segments  []Segment
	overlays  []Overlay
	selected  int
	durations DurationSource
	recorder  Recorder
}

// New returns an empty timeline. durations is consulted when segments are
// appended and may be nil, in which case every append is rejected.
func New(durations DurationSource) *Timeline {
	return &Timeline{selected: -1, durations: durations}
}

func (t *Timeline) SetRecorder(r Recorder) {
	t.recorder = r
}

func (t *Timeline) record() {
	if t.recorder != nil {
		t.recorder.RecordBeforeMutation(t)
	}
}

// AppendSegment adds [start, end) of path at the end of the timeline with
// neutral volume, speed and no effects.
func (t *Timeline) AppendSegment(path string, start, end float64) error {
	if !finite(start) || !finite(end) {
		return editerr.Validation("segment bounds must be finite numbers")
	}
	if start < 0 {
		return editerr.Validation("segment start %.3f must be >= 0", start)
	}
	if start >= end {
		return editerr.Validation("segment start %.3f must be before end %.3f", start, end)
	}
	var (
		length float64
		ok     bool
	)
	if t.durations != nil {
		length, ok = t.durations.Duration(path)
	}
	if !ok {
		return editerr.Validation("no known duration for source %q", path)
	}
	if end > length {
		return editerr.Validation("segment end %.3f exceeds source duration %.3f", end, length)
	}

	t.record()
	t.segments = append(t.segments, Segment{
		SourcePath: path,
		StartTime:  start,
		EndTime:    end,
		Volume:     1.0,
		Speed:      1.0,
	})
	return nil
}

// MoveUp swaps segment i with its predecessor. It does nothing for the
// first segment or an index out of range.
func (t *Timeline) MoveUp(i int) error {
	if i <= 0 || i >= len(t.segments) {
		return nil
	}
	t.record()
	t.swap(i, i-1)
	return nil
}

// MoveDown swaps segment i with its successor. It does nothing for the last
// segment or an index out of range.
func (t *Timeline) MoveDown(i int) error {
	if i < 0 || i >= len(t.segments)-1 {
		return nil
	}
	t.record()
	t.swap(i, i+1)
	return nil
}

func (t *Timeline) swap(i, j int) {
	t.segments[i], t.segments[j] = t.segments[j], t.segments[i]
	switch t.selected {
	case i:
		t.selected = j
	case j:
		t.selected = i
	}
}

func (t *Timeline) RemoveSegment(i int) error {
	if err := t.checkSegment(i); err != nil {
		return err
	}
	t.record()
	t.segments = append(t.segments[:i:i], t.segments[i+1:]...)
	t.selected = -1
	return nil
}

// Clear removes every segment. Overlays are kept.
func (t *Timeline) Clear() error {
	if len(t.segments) == 0 {
		return nil
	}
	t.record()
	t.segments = nil
	t.selected = -1
	return nil
}

// ReplaceEffects sets the full effect list and the speed of segment i.
// Calling it twice with the same arguments yields the same state.
func (t *Timeline) ReplaceEffects(i int, effects []Effect, speed float64) error {
	if err := t.checkSegment(i); err != nil {
		return err
	}
	if !positive(speed) {
		return editerr.Validation("speed must be positive, got %v", speed)
	}
	for n, e := range effects {
		if err := ValidateEffect(e); err != nil {
			return editerr.Validation("effect %d: %s", n, err.Error())
		}
	}
	t.record()
	t.segments[i].Effects = cloneEffects(effects)
	t.segments[i].Speed = speed
	return nil
}

// SetVolume sets the gain of segment i. Zero mutes the segment.
func (t *Timeline) SetVolume(i int, volume float64) error {
	if err := t.checkSegment(i); err != nil {
		return err
	}
	if !finite(volume) || volume < 0 {
		return editerr.Validation("volume must be >= 0, got %v", volume)
	}
	t.record()
	t.segments[i].Volume = volume
	return nil
}

func (t *Timeline) AddOverlay(o Overlay) error {
	if err := o.Validate(); err != nil {
		return err
	}
	t.record()
	t.overlays = append(t.overlays, o)
	return nil
}

func (t *Timeline) RemoveOverlay(i int) error {
	if i < 0 || i >= len(t.overlays) {
		return editerr.Validation("overlay index %d out of range (%d overlays)", i, len(t.overlays))
	}
	t.record()
	t.overlays = append(t.overlays[:i:i], t.overlays[i+1:]...)
	return nil
}

// Select marks segment i as selected; -1 clears the selection. Selection is
// not part of the undo history.
func (t *Timeline) Select(i int) error {
	if i == -1 {
		t.selected = -1
		return nil
	}
	if err := t.checkSegment(i); err != nil {
		return err
	}
	t.selected = i
	return nil
}

func (t *Timeline) Selected() int {
	return t.selected
}

func (t *Timeline) Len() int {
	return len(t.segments)
}

// Segment returns a copy of segment i.
func (t *Timeline) Segment(i int) (Segment, bool) {
	if i < 0 || i >= len(t.segments) {
		return Segment{}, false
	}
	return t.segments[i].clone(), true
}

func (t *Timeline) Segments() []Segment {
	return cloneSegments(t.segments)
}

func (t *Timeline) Overlays() []Overlay {
	return cloneOverlays(t.overlays)
}

func (t *Timeline) TotalDuration() float64 {
	return totalDuration(t.segments)
}

func (t *Timeline) Snapshot() Snapshot {
	return Snapshot{Segments: cloneSegments(t.segments), Overlays: cloneOverlays(t.overlays)}
}

// Restore replaces all content with a copy of s and clears the selection.
// It bypasses the Recorder; undo and redo call it directly.
func (t *Timeline) Restore(s Snapshot) {
	t.segments = cloneSegments(s.Segments)
	t.overlays = cloneOverlays(s.Overlays)
	t.selected = -1
}

func (t *Timeline) checkSegment(i int) error {
	if i < 0 || i >= len(t.segments) {
		return editerr.Validation("segment index %d out of range (%d segments)", i, len(t.segments))
	}
	return nil
}

func totalDuration(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.PlaybackDuration()
	}
	return total
}

func cloneSegments(in []Segment) []Segment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Segment, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

func cloneOverlays(in []Overlay) []Overlay {
	if len(in) == 0 {
		return nil
	}
	out := make([]Overlay, len(in))
	copy(out, in)
	return out
}
