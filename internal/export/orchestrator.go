// Package export renders a timeline snapshot to a media file in the
// background and writes edit decision lists.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/logging"
	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// ErrJobRunning rejects a start while another export is running.
var ErrJobRunning = errors.New("an export is already running")

// CancelledMessage is the failure message of a cancelled job.
const CancelledMessage = "export cancelled"

// PartialSuffix is appended to the output path while encoding.
const PartialSuffix = ".partial"

// Progress ranges of the render stages.
const (
	segmentsEnd = 50
	concatEnd   = 55
	overlayEnd  = 60
	encodeSpan  = 100 - overlayEnd
)

// Recorder persists job records. catalog.SQLiteRepository implements it.
type Recorder interface {
	CreateJob(ctx context.Context, job *catalog.ExportJob) error
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error
}

// Orchestrator runs at most one export at a time.
type Orchestrator struct {
	engine   engine.Engine
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	current *Job
	jobs    map[string]*Job
}

// NewOrchestrator returns an orchestrator over eng. recorder may be nil.
func NewOrchestrator(eng engine.Engine, recorder Recorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		engine:   eng,
		recorder: recorder,
		logger:   logging.WithComponent(logger, "export"),
		jobs:     make(map[string]*Job),
	}
}

// Start validates the export and runs it in the background. The snapshot is
// owned by the job from here on; nothing the caller does to the timeline
// afterwards affects the output.
func (o *Orchestrator) Start(snapshot timeline.Snapshot, outputPath string, settings engine.OutputSettings) (*Job, error) {
	graph, err := render.Build(snapshot.Clone())
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if outputPath == "" {
		return nil, editerr.Validation("output path is required")
	}
	absPath, err := filepath.Abs(settings.WithExtension(outputPath))
	if err != nil {
		return nil, editerr.IO("invalid output path "+outputPath, err)
	}
	if err := ValidateOutputDir(filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && !o.current.Status().State.Terminal() {
		return nil, ErrJobRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := newJob(catalog.NewID(), absPath, settings, len(graph.Segments), graph.TotalDuration, cancel)
	o.current = job
	o.jobs[job.id] = job

	o.record(func(ctx context.Context) error {
		return o.recorder.CreateJob(ctx, &catalog.ExportJob{
			ID:           job.id,
			Status:       catalog.JobStatusIdle,
			OutputPath:   absPath,
			Format:       settings.Format,
			SegmentCount: job.segmentCount,
			Duration:     job.duration,
			CreatedAt:    job.createdAt,
			UpdatedAt:    job.createdAt,
		})
	})

	go o.run(ctx, job, graph)
	return job, nil
}

// Current returns the most recently started job, or nil.
func (o *Orchestrator) Current() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Job returns a job started by this process.
func (o *Orchestrator) Job(id string) (*Job, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	return j, ok
}

// Shutdown cancels the running job and waits for it to finish or for ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	job := o.Current()
	if job == nil {
		return nil
	}
	job.Cancel()
	select {
	case <-job.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, job *Job, graph *render.Graph) {
	logger := logging.WithJobID(o.logger, job.id)
	start := time.Now()

	job.setRunning()
	o.record(func(ctx context.Context) error {
		return o.recorder.UpdateJobStatus(ctx, job.id, catalog.JobStatusRunning, "")
	})
	logger.Info("export started", "output", logging.SanitizePath(job.outputPath),
		"segments", len(graph.Segments), "duration", graph.TotalDuration, "format", job.settings.Format)

	progress := func(p int) {
		if job.report(p) {
			o.record(func(ctx context.Context) error {
				return o.recorder.UpdateJobProgress(ctx, job.id, p)
			})
		}
	}
	progress(0)

	partial := job.outputPath + PartialSuffix
	err := o.execute(ctx, job, graph, partial, progress)
	// The engine is done with the job context either way.
	job.cancel()
	if err == nil {
		if rerr := os.Rename(partial, job.outputPath); rerr != nil {
			err = editerr.IO("cannot move finished export to "+job.outputPath, rerr)
		}
	}

	if err != nil {
		if rmErr := os.Remove(partial); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("failed to remove partial output", "path", partial, "error", rmErr)
		}
		msg := err.Error()
		if job.wasCancelled() {
			msg = CancelledMessage
		}
		// The record is written before waiters are released.
		o.record(func(ctx context.Context) error {
			return o.recorder.UpdateJobStatus(ctx, job.id, catalog.JobStatusFailed, msg)
		})
		job.finish(StateFailed, msg)
		logger.Error("export failed", "error", msg, "elapsed", time.Since(start))
		return
	}

	progress(100)
	o.record(func(ctx context.Context) error {
		return o.recorder.UpdateJobStatus(ctx, job.id, catalog.JobStatusSucceeded, "")
	})
	job.finish(StateSucceeded, "")
	logger.Info("export finished", "output", logging.SanitizePath(job.outputPath), "elapsed", time.Since(start))
}

// execute walks the graph through one engine render. Engine failures are
// returned with the engine's text as the message.
func (o *Orchestrator) execute(ctx context.Context, job *Job, graph *render.Graph, partial string, progress func(int)) error {
	r, err := o.engine.NewRender(ctx)
	if err != nil {
		return engineErr(err)
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			o.logger.Warn("failed to release render", "job_id", job.id, "error", cerr)
		}
	}()

	n := len(graph.Segments)
	clips := make([]engine.Clip, 0, n)
	for i, seg := range graph.Segments {
		var clip engine.Clip
		for _, op := range seg.Ops {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch op := op.(type) {
			case render.Extract:
				clip, err = r.Extract(ctx, op.Source, op.Start, op.End)
			default:
				if clip == nil {
					return fmt.Errorf("segment %d: %s before extract", seg.Index, op.Describe())
				}
				clip, err = r.Apply(ctx, clip, op)
			}
			if err != nil {
				return engineErr(err)
			}
		}
		clips = append(clips, clip)
		progress(segmentsEnd * (i + 1) / n)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	joined, err := r.Concat(ctx, clips)
	if err != nil {
		return engineErr(err)
	}
	progress(concatEnd)

	if len(graph.Overlays) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if joined, err = r.Overlay(ctx, joined, graph.Overlays); err != nil {
			return engineErr(err)
		}
	}
	progress(overlayEnd)

	if err := ctx.Err(); err != nil {
		return err
	}
	err = r.Encode(ctx, joined, partial, job.settings, func(f float64) {
		progress(overlayEnd + int(f*encodeSpan))
	})
	if err != nil {
		return engineErr(err)
	}
	return nil
}

func engineErr(err error) error {
	if editerr.Kind(err) != nil {
		return err
	}
	return editerr.Encode(err)
}

// record runs a recorder call without letting storage problems affect the
// export.
func (o *Orchestrator) record(fn func(ctx context.Context) error) {
	if o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		o.logger.Warn("failed to record export job", "error", err)
	}
}
