package timeline

import (
	"errors"
	"reflect"
	"testing"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

type countingRecorder struct {
	calls int
}

func (r *countingRecorder) RecordBeforeMutation(*Timeline) { r.calls++ }

func knownSources(durations map[string]float64) DurationSource {
	return DurationFunc(func(path string) (float64, bool) {
		d, ok := durations[path]
		return d, ok
	})
}

func newTestTimeline(t *testing.T) (*Timeline, *countingRecorder) {
	t.Helper()
	tl := New(knownSources(map[string]float64{"a.mp4": 10, "b.mp4": 6, "c.mp4": 3}))
	rec := &countingRecorder{}
	tl.SetRecorder(rec)
	return tl, rec
}

func mustAppend(t *testing.T, tl *Timeline, path string, start, end float64) {
	t.Helper()
	if err := tl.AppendSegment(path, start, end); err != nil {
		t.Fatalf("AppendSegment(%q, %v, %v) error = %v", path, start, end, err)
	}
}

func paths(tl *Timeline) []string {
	var out []string
	for _, s := range tl.Segments() {
		out = append(out, s.SourcePath)
	}
	return out
}

func checkInvariants(t *testing.T, tl *Timeline) {
	t.Helper()
	for i, s := range tl.Segments() {
		if s.StartTime < 0 || s.StartTime >= s.EndTime {
			t.Errorf("segment %d has invalid bounds [%v, %v)", i, s.StartTime, s.EndTime)
		}
		if s.Duration() != s.EndTime-s.StartTime {
			t.Errorf("segment %d duration drifted", i)
		}
	}
	if sel := tl.Selected(); sel < -1 || sel >= tl.Len() {
		t.Errorf("selected index %d invalid for %d segments", sel, tl.Len())
	}
}

func TestAppendSegment(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		start   float64
		end     float64
		wantErr bool
	}{
		{"whole clip", "a.mp4", 0, 10, false},
		{"inner range", "b.mp4", 1.5, 4, false},
		{"start equals end", "a.mp4", 3, 3, true},
		{"start after end", "a.mp4", 5, 2, true},
		{"negative start", "a.mp4", -1, 2, true},
		{"unknown source", "missing.mp4", 0, 1, true},
		{"end past source", "c.mp4", 0, 3.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, rec := newTestTimeline(t)
			err := tl.AppendSegment(tt.path, tt.start, tt.end)
			if tt.wantErr {
				if !errors.Is(err, editerr.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if tl.Len() != 0 || rec.calls != 0 {
					t.Errorf("rejected append changed state: len=%d records=%d", tl.Len(), rec.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			seg, _ := tl.Segment(0)
			if seg.Volume != 1 || seg.Speed != 1 || len(seg.Effects) != 0 {
				t.Errorf("new segment defaults = %+v", seg)
			}
			if rec.calls != 1 {
				t.Errorf("records = %d, want 1", rec.calls)
			}
			checkInvariants(t, tl)
		})
	}
}

func TestAppendWithoutDurationSource(t *testing.T) {
	tl := New(nil)
	if err := tl.AppendSegment("a.mp4", 0, 1); !errors.Is(err, editerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMoveBoundariesAreNoOps(t *testing.T) {
	tl, rec := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 1)
	mustAppend(t, tl, "b.mp4", 0, 1)
	mustAppend(t, tl, "c.mp4", 0, 1)
	before := tl.Snapshot()
	records := rec.calls

	for _, op := range []func() error{
		func() error { return tl.MoveUp(0) },
		func() error { return tl.MoveDown(2) },
		func() error { return tl.MoveUp(7) },
		func() error { return tl.MoveDown(-1) },
	} {
		if err := op(); err != nil {
			t.Fatalf("no-op move returned error: %v", err)
		}
	}

	if !reflect.DeepEqual(before, tl.Snapshot()) {
		t.Error("boundary moves changed the timeline")
	}
	if rec.calls != records {
		t.Errorf("boundary moves recorded history: %d -> %d", records, rec.calls)
	}
}

func TestMoveSwapsAndSelectionFollows(t *testing.T) {
	tl, rec := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 1)
	mustAppend(t, tl, "b.mp4", 0, 1)
	mustAppend(t, tl, "c.mp4", 0, 1)
	if err := tl.Select(2); err != nil {
		t.Fatal(err)
	}

	if err := tl.MoveUp(2); err != nil {
		t.Fatal(err)
	}
	if got, want := paths(tl), []string{"a.mp4", "c.mp4", "b.mp4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after MoveUp = %v, want %v", got, want)
	}
	if tl.Selected() != 1 {
		t.Errorf("selected = %d, want 1", tl.Selected())
	}

	if err := tl.MoveDown(0); err != nil {
		t.Fatal(err)
	}
	if got, want := paths(tl), []string{"c.mp4", "a.mp4", "b.mp4"}; !reflect.DeepEqual(got, want) {
		t.Errorf("after MoveDown = %v, want %v", got, want)
	}
	if tl.Selected() != 0 {
		t.Errorf("selected = %d, want 0", tl.Selected())
	}
	if rec.calls != 5 {
		t.Errorf("records = %d, want 5", rec.calls)
	}
}

func TestRemoveSegment(t *testing.T) {
	tl, _ := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 1)
	mustAppend(t, tl, "b.mp4", 0, 1)
	_ = tl.Select(1)

	if err := tl.RemoveSegment(5); !errors.Is(err, editerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if tl.Selected() != 1 {
		t.Error("failed remove should not touch selection")
	}

	if err := tl.RemoveSegment(0); err != nil {
		t.Fatal(err)
	}
	if got := paths(tl); !reflect.DeepEqual(got, []string{"b.mp4"}) {
		t.Errorf("segments = %v", got)
	}
	if tl.Selected() != -1 {
		t.Errorf("selected = %d, want -1", tl.Selected())
	}
	checkInvariants(t, tl)
}

func TestClearKeepsOverlays(t *testing.T) {
	tl, rec := newTestTimeline(t)
	if err := tl.Clear(); err != nil || rec.calls != 0 {
		t.Fatalf("clearing empty timeline: err=%v records=%d", err, rec.calls)
	}

	mustAppend(t, tl, "a.mp4", 0, 1)
	if err := tl.AddOverlay(testOverlay("hello")); err != nil {
		t.Fatal(err)
	}
	if err := tl.Clear(); err != nil {
		t.Fatal(err)
	}
	if tl.Len() != 0 {
		t.Errorf("len = %d after clear", tl.Len())
	}
	if len(tl.Overlays()) != 1 {
		t.Errorf("overlays = %d, want 1", len(tl.Overlays()))
	}
}

func TestReplaceEffectsIsIdempotent(t *testing.T) {
	tl, _ := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)
	effects := []Effect{Brightness{Factor: 1.2}, Grayscale{}}

	for i := 0; i < 2; i++ {
		if err := tl.ReplaceEffects(0, effects, 1.0); err != nil {
			t.Fatal(err)
		}
	}

	seg, _ := tl.Segment(0)
	if !reflect.DeepEqual(seg.Effects, effects) {
		t.Errorf("effects = %v, want %v", seg.Effects, effects)
	}

	effects[0] = Rotate{Degrees: 90}
	seg, _ = tl.Segment(0)
	if seg.Effects[0] != (Brightness{Factor: 1.2}) {
		t.Error("timeline aliases caller's effect slice")
	}
}

func TestReplaceEffectsValidation(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		effects []Effect
		speed   float64
	}{
		{"bad index", 3, nil, 1},
		{"zero speed", 0, nil, 0},
		{"negative speed", 0, nil, -2},
		{"zero brightness", 0, []Effect{Brightness{}}, 1},
		{"negative contrast", 0, []Effect{Contrast{Factor: -1}}, 1},
		{"nil effect", 0, []Effect{nil}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, rec := newTestTimeline(t)
			mustAppend(t, tl, "a.mp4", 0, 5)
			before := tl.Snapshot()
			records := rec.calls

			err := tl.ReplaceEffects(tt.index, tt.effects, tt.speed)
			if !errors.Is(err, editerr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !reflect.DeepEqual(before, tl.Snapshot()) || rec.calls != records {
				t.Error("rejected replace changed state")
			}
		})
	}
}

func TestSetVolume(t *testing.T) {
	tl, _ := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)

	if err := tl.SetVolume(0, -0.1); !errors.Is(err, editerr.ErrValidation) {
		t.Errorf("negative volume: %v", err)
	}
	if err := tl.SetVolume(1, 1); !errors.Is(err, editerr.ErrValidation) {
		t.Errorf("bad index: %v", err)
	}
	if err := tl.SetVolume(0, 0); err != nil {
		t.Fatalf("mute: %v", err)
	}
	seg, _ := tl.Segment(0)
	if seg.Volume != 0 {
		t.Errorf("volume = %v", seg.Volume)
	}
}

func TestTotalDuration(t *testing.T) {
	tl, _ := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)
	mustAppend(t, tl, "c.mp4", 0, 3)
	if err := tl.ReplaceEffects(1, nil, 2); err != nil {
		t.Fatal(err)
	}

	if got := tl.TotalDuration(); got != 6.5 {
		t.Errorf("TotalDuration() = %v, want 6.5", got)
	}
	if got := tl.Snapshot().TotalDuration(); got != 6.5 {
		t.Errorf("Snapshot().TotalDuration() = %v, want 6.5", got)
	}
}

func testOverlay(text string) Overlay {
	return Overlay{
		Text:     text,
		Duration: DefaultDuration,
		Position: PositionBottom,
		FontSize: DefaultFontSize,
		Color:    DefaultColor,
		Font:     DefaultFont,
	}
}

func TestOverlays(t *testing.T) {
	tl, rec := newTestTimeline(t)

	bad := []Overlay{
		{Text: "  ", Duration: 1, Position: PositionTop, FontSize: 10, Color: "white", Font: FontArial},
		{Text: "x", Duration: 0, Position: PositionTop, FontSize: 10, Color: "white", Font: FontArial},
		{Text: "x", StartTime: -1, Duration: 1, Position: PositionTop, FontSize: 10, Color: "white", Font: FontArial},
		{Text: "x", Duration: 1, Position: "middle", FontSize: 10, Color: "white", Font: FontArial},
		{Text: "x", Duration: 1, Position: PositionTop, FontSize: 0, Color: "white", Font: FontArial},
		{Text: "x", Duration: 1, Position: PositionTop, FontSize: 10, Color: "#12345", Font: FontArial},
		{Text: "x", Duration: 1, Position: PositionTop, FontSize: 10, Color: "white", Font: "Wingdings"},
	}
	for i, o := range bad {
		if err := tl.AddOverlay(o); !errors.Is(err, editerr.ErrValidation) {
			t.Errorf("bad overlay %d accepted: %v", i, err)
		}
	}
	if rec.calls != 0 {
		t.Fatalf("rejected overlays recorded history")
	}

	good := testOverlay("title")
	good.Color = "#ff8800"
	if err := tl.AddOverlay(good); err != nil {
		t.Fatal(err)
	}
	if err := tl.AddOverlay(testOverlay("credits")); err != nil {
		t.Fatal(err)
	}
	if err := tl.RemoveOverlay(2); !errors.Is(err, editerr.ErrValidation) {
		t.Errorf("RemoveOverlay(2) = %v", err)
	}
	if err := tl.RemoveOverlay(0); err != nil {
		t.Fatal(err)
	}
	if got := tl.Overlays(); len(got) != 1 || got[0].Text != "credits" {
		t.Errorf("overlays = %+v", got)
	}
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	tl, _ := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)
	_ = tl.ReplaceEffects(0, []Effect{MirrorHorizontal{}}, 1)
	snap := tl.Snapshot()

	_ = tl.ReplaceEffects(0, []Effect{MirrorVertical{}, Rotate{Degrees: -90}}, 3)
	_ = tl.SetVolume(0, 0.5)

	if snap.Segments[0].Speed != 1 || snap.Segments[0].Effects[0] != (MirrorHorizontal{}) {
		t.Errorf("snapshot changed with live timeline: %+v", snap.Segments[0])
	}

	snap.Segments[0].Effects[0] = Grayscale{}
	seg, _ := tl.Segment(0)
	if seg.Effects[0] != (MirrorVertical{}) {
		t.Error("editing snapshot changed live timeline")
	}
}

func TestRestoreResetsSelection(t *testing.T) {
	tl, rec := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)
	snap := tl.Snapshot()
	mustAppend(t, tl, "b.mp4", 0, 5)
	_ = tl.Select(1)
	records := rec.calls

	tl.Restore(snap)

	if tl.Len() != 1 || tl.Selected() != -1 {
		t.Errorf("after restore len=%d selected=%d", tl.Len(), tl.Selected())
	}
	if rec.calls != records {
		t.Error("restore should not record history")
	}
}

func TestSelect(t *testing.T) {
	tl, rec := newTestTimeline(t)
	mustAppend(t, tl, "a.mp4", 0, 5)

	if err := tl.Select(1); !errors.Is(err, editerr.ErrValidation) {
		t.Errorf("Select(1) = %v", err)
	}
	if err := tl.Select(0); err != nil || tl.Selected() != 0 {
		t.Errorf("Select(0) err=%v selected=%d", err, tl.Selected())
	}
	if err := tl.Select(-1); err != nil || tl.Selected() != -1 {
		t.Errorf("Select(-1) err=%v selected=%d", err, tl.Selected())
	}
	if rec.calls != 1 {
		t.Errorf("selection recorded history: %d", rec.calls)
	}
}

func TestPositionAnchors(t *testing.T) {
	for _, p := range []Position{PositionCenter, PositionTop, PositionBottom, PositionLeft, PositionRight} {
		h, v := p.Anchor()
		back, ok := PositionFromAnchor(h, v)
		if !ok || back != p {
			t.Errorf("PositionFromAnchor(%s, %s) = %s, %v; want %s", h, v, back, ok, p)
		}
	}
	if _, ok := PositionFromAnchor("left", "top"); ok {
		t.Error("left/top is not a supported anchor")
	}
}
