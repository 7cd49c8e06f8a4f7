package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/engine/enginetest"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

type fakeRecorder struct {
	mu       sync.Mutex
	created  []*catalog.ExportJob
	statuses []string
	progress []int
}

func (r *fakeRecorder) CreateJob(ctx context.Context, j *catalog.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, j)
	return nil
}

func (r *fakeRecorder) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status+":"+errorMsg)
	return nil
}

func (r *fakeRecorder) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress)
	return nil
}

func testSnapshot() timeline.Snapshot {
	return timeline.Snapshot{
		Segments: []timeline.Segment{
			{SourcePath: "/m/a.mp4", StartTime: 0, EndTime: 2, Volume: 1, Speed: 1},
			{SourcePath: "/m/b.mp4", StartTime: 1, EndTime: 4, Volume: 0.5, Speed: 2,
				Effects: []timeline.Effect{timeline.Grayscale{}}},
		},
		Overlays: []timeline.Overlay{
			{Text: "Hi", StartTime: 0, Duration: 2, Position: timeline.PositionTop,
				FontSize: 30, Color: "white", Font: timeline.FontArial},
		},
	}
}

func defaultSettings(t *testing.T) engine.OutputSettings {
	t.Helper()
	s, err := engine.NewOutputSettings("", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", events)
		}
	}
}

func checkEventOrder(t *testing.T, events []Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := -1
	for i, ev := range events {
		if ev.Terminal() != (i == len(events)-1) {
			t.Fatalf("terminal event must be last and unique: %v", events)
		}
		if !ev.Terminal() {
			if ev.Progress <= last {
				t.Fatalf("progress not strictly increasing at %d: %v", i, events)
			}
			last = ev.Progress
		}
	}
}

func TestOrchestrator_Success(t *testing.T) {
	dir := t.TempDir()
	eng := &enginetest.Engine{EncodeSteps: 4}
	rec := &fakeRecorder{}
	o := NewOrchestrator(eng, rec, nil)
	out := filepath.Join(dir, "movie.mp4")

	job, err := o.Start(testSnapshot(), out, defaultSettings(t))
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events := collect(t, job.Events())
	checkEventOrder(t, events)

	if events[0].Progress != 0 {
		t.Errorf("first progress = %d, want 0", events[0].Progress)
	}
	final := events[len(events)-1]
	if final.Type != EventSucceeded || final.OutputPath != out || final.Progress != 100 {
		t.Errorf("terminal event = %+v", final)
	}

	wantProgress := []int{0, 25, 50, 55, 60, 70, 80, 90, 100}
	var got []int
	for _, ev := range events[:len(events)-1] {
		got = append(got, ev.Progress)
	}
	if !equalInts(got, wantProgress) {
		t.Errorf("progress = %v, want %v", got, wantProgress)
	}

	data, err := os.ReadFile(out)
	if err != nil || string(data) != "rendered" {
		t.Errorf("output = %q, %v", data, err)
	}
	if _, err := os.Stat(out + PartialSuffix); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}

	wantCalls := []string{
		"new ",
		"extract /m/a.mp4 0 2",
		"extract /m/b.mp4 1 4",
		"apply speed x2",
		"apply effect grayscale",
		"apply volume x0.5",
		"concat 2",
		"overlay 1",
		"encode libx264",
	}
	if calls := eng.Calls(); strings.Join(calls, "|") != strings.Join(wantCalls, "|") {
		t.Errorf("calls = %q\nwant %q", calls, wantCalls)
	}
	if eng.Opened() != 1 || eng.Closed() != 1 {
		t.Errorf("opened/closed = %d/%d", eng.Opened(), eng.Closed())
	}

	st := job.Status()
	if st.State != StateSucceeded || st.SegmentCount != 2 || st.Duration != 3.5 {
		t.Errorf("status = %+v", st)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.created) != 1 || rec.created[0].ID != job.ID() || rec.created[0].Status != catalog.JobStatusIdle {
		t.Errorf("created = %+v", rec.created)
	}
	if strings.Join(rec.statuses, ",") != "running:,succeeded:" {
		t.Errorf("statuses = %v", rec.statuses)
	}
	if !equalInts(rec.progress, wantProgress) {
		t.Errorf("recorded progress = %v", rec.progress)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOrchestrator_EmptyTimelineNeverTouchesEngine(t *testing.T) {
	eng := &enginetest.Engine{}
	o := NewOrchestrator(eng, nil, nil)

	_, err := o.Start(timeline.Snapshot{}, filepath.Join(t.TempDir(), "x.mp4"), defaultSettings(t))
	if !errors.Is(err, editerr.ErrValidation) {
		t.Fatalf("Start() error = %v, want validation", err)
	}
	if calls := eng.Calls(); len(calls) != 0 {
		t.Errorf("engine was called: %v", calls)
	}
	if o.Current() != nil {
		t.Error("no job should exist")
	}
}

func TestOrchestrator_StartValidation(t *testing.T) {
	dir := t.TempDir()
	bad := defaultSettings(t)
	bad.Bitrate = "fast"

	tests := []struct {
		name     string
		out      string
		settings engine.OutputSettings
		wantErr  error
	}{
		{"bad bitrate", filepath.Join(dir, "a.mp4"), bad, editerr.ErrValidation},
		{"no output", "", defaultSettings(t), editerr.ErrValidation},
		{"missing dir", filepath.Join(dir, "nope", "a.mp4"), defaultSettings(t), editerr.ErrIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Engine{}
			_, err := NewOrchestrator(eng, nil, nil).Start(testSnapshot(), tt.out, tt.settings)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Start() error = %v, want %v", err, tt.wantErr)
			}
			if len(eng.Calls()) != 0 {
				t.Errorf("engine was called: %v", eng.Calls())
			}
		})
	}
}

func TestOrchestrator_AppendsExtension(t *testing.T) {
	settings, err := engine.NewOutputSettings("WebM", "2M", 30)
	if err != nil {
		t.Fatal(err)
	}
	o := NewOrchestrator(&enginetest.Engine{}, nil, nil)
	job, err := o.Start(testSnapshot(), filepath.Join(t.TempDir(), "clip"), settings)
	if err != nil {
		t.Fatal(err)
	}
	st := job.Wait()
	if filepath.Ext(st.OutputPath) != ".webm" {
		t.Errorf("output path = %s", st.OutputPath)
	}
	if _, err := os.Stat(st.OutputPath); err != nil {
		t.Error(err)
	}
}

func TestOrchestrator_RejectsConcurrentStart(t *testing.T) {
	dir := t.TempDir()
	gate := make(chan struct{})
	o := NewOrchestrator(&enginetest.Engine{Gate: gate}, nil, nil)

	first, err := o.Start(testSnapshot(), filepath.Join(dir, "1.mp4"), defaultSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Start(testSnapshot(), filepath.Join(dir, "2.mp4"), defaultSettings(t)); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("second Start() error = %v, want ErrJobRunning", err)
	}

	close(gate)
	if st := first.Wait(); st.State != StateSucceeded {
		t.Fatalf("first job = %+v", st)
	}

	third, err := o.Start(testSnapshot(), filepath.Join(dir, "3.mp4"), defaultSettings(t))
	if err != nil {
		t.Fatalf("Start() after completion error = %v", err)
	}
	third.Wait()
	if j, ok := o.Job(first.ID()); !ok || j != first {
		t.Error("first job should still be retrievable")
	}
}

func TestOrchestrator_StageFailure(t *testing.T) {
	stages := []string{
		enginetest.StageNew,
		enginetest.StageExtract,
		enginetest.StageApply,
		enginetest.StageConcat,
		enginetest.StageOverlay,
		enginetest.StageEncode,
	}
	for _, stage := range stages {
		t.Run(stage, func(t *testing.T) {
			dir := t.TempDir()
			out := filepath.Join(dir, "out.mp4")
			engineMsg := "Error initializing filter 'drawtext': Invalid argument"
			eng := &enginetest.Engine{FailAt: stage, FailErr: errors.New(engineMsg)}
			rec := &fakeRecorder{}
			o := NewOrchestrator(eng, rec, nil)

			job, err := o.Start(testSnapshot(), out, defaultSettings(t))
			if err != nil {
				t.Fatal(err)
			}
			events := collect(t, job.Events())
			checkEventOrder(t, events)

			final := events[len(events)-1]
			if final.Type != EventFailed || final.Error != engineMsg {
				t.Errorf("terminal event = %+v", final)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("output must not exist after failure")
			}
			if _, err := os.Stat(out + PartialSuffix); !os.IsNotExist(err) {
				t.Error("partial output must be removed")
			}
			if eng.Opened() != eng.Closed() {
				t.Errorf("render leaked: opened %d closed %d", eng.Opened(), eng.Closed())
			}

			rec.mu.Lock()
			defer rec.mu.Unlock()
			if last := rec.statuses[len(rec.statuses)-1]; last != "failed:"+engineMsg {
				t.Errorf("recorded status = %q", last)
			}
		})
	}
}

func TestOrchestrator_Cancel(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	eng := &enginetest.Engine{Gate: make(chan struct{})}
	o := NewOrchestrator(eng, nil, nil)

	job, err := o.Start(testSnapshot(), out, defaultSettings(t))
	if err != nil {
		t.Fatal(err)
	}

	// Wait for encode to start; the fake blocks on Gate there.
	sub, stop := job.Subscribe()
	defer stop()
	for ev := range sub {
		if ev.Progress >= overlayEnd {
			break
		}
	}
	job.Cancel()

	st := job.Wait()
	if st.State != StateFailed || st.Error != CancelledMessage {
		t.Errorf("status = %+v", st)
	}
	if _, err := os.Stat(out + PartialSuffix); !os.IsNotExist(err) {
		t.Error("partial output must be removed after cancel")
	}
	if eng.Closed() != 1 {
		t.Errorf("closed = %d, want 1", eng.Closed())
	}

	// Cancelling a finished job is a no-op.
	job.Cancel()
	if job.Status().Error != CancelledMessage {
		t.Error("terminal state changed")
	}
}

func TestOrchestrator_Shutdown(t *testing.T) {
	o := NewOrchestrator(&enginetest.Engine{Gate: make(chan struct{})}, nil, nil)
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	job, err := o.Start(testSnapshot(), filepath.Join(t.TempDir(), "o.mp4"), defaultSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if job.Status().State != StateFailed {
		t.Errorf("state = %s", job.Status().State)
	}
}

func TestJob_SubscribeAfterFinish(t *testing.T) {
	o := NewOrchestrator(&enginetest.Engine{}, nil, nil)
	job, err := o.Start(testSnapshot(), filepath.Join(t.TempDir(), "o.mp4"), defaultSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	job.Wait()

	sub, stop := job.Subscribe()
	defer stop()
	events := collect(t, sub)
	if len(events) != 2 || events[0].Progress != 100 || events[1].Type != EventSucceeded {
		t.Errorf("late subscriber events = %+v", events)
	}
}

func TestOrchestrator_SnapshotIsolation(t *testing.T) {
	gate := make(chan struct{})
	eng := &enginetest.Engine{Gate: gate}
	o := NewOrchestrator(eng, nil, nil)
	snap := testSnapshot()

	job, err := o.Start(snap, filepath.Join(t.TempDir(), "o.mp4"), defaultSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	snap.Segments[0].SourcePath = "/m/changed.mp4"
	close(gate)
	job.Wait()

	for _, c := range eng.Calls() {
		if strings.Contains(c, "changed") {
			t.Fatalf("export saw a mutation made after start: %v", eng.Calls())
		}
	}
}

func TestOrchestrator_ReleasesJobContext(t *testing.T) {
	tests := []struct {
		name      string
		failAt    string
		wantState State
	}{
		{"succeeded", "", StateSucceeded},
		{"failed", enginetest.StageEncode, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &enginetest.Engine{FailAt: tt.failAt}
			o := NewOrchestrator(eng, &fakeRecorder{}, nil)

			job, err := o.Start(testSnapshot(), filepath.Join(t.TempDir(), "out.mp4"), defaultSettings(t))
			if err != nil {
				t.Fatal(err)
			}
			if st := job.Wait(); st.State != tt.wantState {
				t.Fatalf("state = %s, want %s", st.State, tt.wantState)
			}
			ctx := eng.RenderContext()
			if ctx == nil {
				t.Fatal("engine never received a render context")
			}
			if !errors.Is(ctx.Err(), context.Canceled) {
				t.Errorf("job context still live after finish: %v", ctx.Err())
			}
		})
	}
}
