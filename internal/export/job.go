package export

import (
	"sync"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/engine"
)

type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

type EventType string

const (
	EventProgress  EventType = "progress"
	EventSucceeded EventType = "succeeded"
	EventFailed    EventType = "failed"
)

// Event is one progress report or the terminal outcome of a job.
type Event struct {
	JobID      string    `json:"job_id"`
	Type       EventType `json:"type"`
	Progress   int       `json:"progress"`
	OutputPath string    `json:"output_path,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (e Event) Terminal() bool {
	return e.Type != EventProgress
}

// eventBuffer holds every distinct progress value plus the terminal event,
// so sends never block.
const eventBuffer = 102

// Status is a point in time view of a job.
type Status struct {
	ID           string                `json:"id"`
	State        State                 `json:"state"`
	Progress     int                   `json:"progress"`
	OutputPath   string                `json:"output_path"`
	Settings     engine.OutputSettings `json:"settings"`
	SegmentCount int                   `json:"segment_count"`
	Duration     float64               `json:"duration"`
	Error        string                `json:"error,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// Job is one export. Progress never decreases and the terminal event is
// always the last event delivered, after which every event channel closes.
type Job struct {
	id           string
	outputPath   string
	settings     engine.OutputSettings
	segmentCount int
	duration     float64
	createdAt    time.Time

	cancel func()
	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	state     State
	progress  int
	reported  bool
	errMsg    string
	cancelled bool
	subs      map[chan Event]struct{}
}

func newJob(id, outputPath string, settings engine.OutputSettings, segments int, duration float64, cancel func()) *Job {
	return &Job{
		id:           id,
		outputPath:   outputPath,
		settings:     settings,
		segmentCount: segments,
		duration:     duration,
		createdAt:    time.Now(),
		cancel:       cancel,
		events:       make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		state:        StateIdle,
		subs:         make(map[chan Event]struct{}),
	}
}

func (j *Job) ID() string         { return j.id }
func (j *Job) OutputPath() string { return j.outputPath }

// Events is the job's primary event stream, created before the job runs.
func (j *Job) Events() <-chan Event { return j.events }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel asks the job to stop. It is checked between stages and passed to
// the engine through the job context; a cancelled job fails with
// "export cancelled".
func (j *Job) Cancel() {
	j.mu.Lock()
	if j.state.Terminal() {
		j.mu.Unlock()
		return
	}
	j.cancelled = true
	j.mu.Unlock()
	j.cancel()
}

func (j *Job) wasCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// Wait blocks until the job is terminal and returns its final status.
func (j *Job) Wait() Status {
	<-j.done
	return j.Status()
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{
		ID:           j.id,
		State:        j.state,
		Progress:     j.progress,
		OutputPath:   j.outputPath,
		Settings:     j.settings,
		SegmentCount: j.segmentCount,
		Duration:     j.duration,
		Error:        j.errMsg,
		CreatedAt:    j.createdAt,
	}
}

// Subscribe returns a stream that starts with the current progress and, if
// the job already finished, its terminal event. The returned func detaches
// the stream early.
func (j *Job) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer+1)

	j.mu.Lock()
	defer j.mu.Unlock()
	ch <- j.progressEvent()
	if j.state.Terminal() {
		ch <- j.terminalEvent()
		close(ch)
		return ch, func() {}
	}
	j.subs[ch] = struct{}{}
	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()
}

// report publishes p if it advances the job. It returns whether anything
// was published.
func (j *Job) report(p int) bool {
	p = min(max(p, 0), 100)

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() || (j.reported && p <= j.progress) {
		return false
	}
	j.progress = p
	j.reported = true
	j.publish(j.progressEvent())
	return true
}

func (j *Job) finish(state State, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return
	}
	j.state = state
	j.errMsg = errMsg
	j.publish(j.terminalEvent())

	close(j.events)
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
	close(j.done)
}

// publish must be called with mu held.
func (j *Job) publish(ev Event) {
	j.events <- ev
	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (j *Job) progressEvent() Event {
	return Event{JobID: j.id, Type: EventProgress, Progress: j.progress}
}

func (j *Job) terminalEvent() Event {
	ev := Event{JobID: j.id, Progress: j.progress}
	if j.state == StateSucceeded {
		ev.Type = EventSucceeded
		ev.OutputPath = j.outputPath
	} else {
		ev.Type = EventFailed
		ev.Error = j.errMsg
	}
	return ev
}
