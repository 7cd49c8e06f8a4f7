// Package enginetest provides an in-memory engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// Stage names used in Calls and FailAt.
const (
	StageNew     = "new"
	StageExtract = "extract"
	StageApply   = "apply"
	StageConcat  = "concat"
	StageOverlay = "overlay"
	StageEncode  = "encode"
)

// Engine records every call. Setting FailAt makes the first call of that
// stage fail with FailErr. Encode writes a small file and, when Gate is
// set, blocks until Gate is closed or the context is cancelled.
type Engine struct {
	FailAt      string
	FailErr     error
	EncodeSteps int
	Gate        chan struct{}
	NoAudio     bool

	mu     sync.Mutex
	calls  []string
	ctx    context.Context
	opened atomic.Int32
	closed atomic.Int32
}

type clip struct {
	duration float64
	audio    bool
}

func (c *clip) Duration() float64 { return c.duration }
func (c *clip) HasAudio() bool    { return c.audio }

func (e *Engine) record(stage, detail string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, stage+" "+detail)
	if e.FailAt == stage {
		e.FailAt = ""
		if e.FailErr != nil {
			return e.FailErr
		}
		return errors.New(stage + " failed")
	}
	return nil
}

// Calls returns the recorded calls in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// RenderContext returns the context the last render session was opened
// with, or nil.
func (e *Engine) RenderContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// Opened and Closed count render sessions.
func (e *Engine) Opened() int { return int(e.opened.Load()) }
func (e *Engine) Closed() int { return int(e.closed.Load()) }

func (e *Engine) NewRender(ctx context.Context) (engine.Render, error) {
	if err := e.record(StageNew, ""); err != nil {
		return nil, err
	}
	e.opened.Add(1)
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	return &renderSession{e: e}, nil
}

type renderSession struct {
	e      *Engine
	closed atomic.Bool
}

func (r *renderSession) Extract(ctx context.Context, source string, start, end float64) (engine.Clip, error) {
	if err := r.e.record(StageExtract, fmt.Sprintf("%s %g %g", source, start, end)); err != nil {
		return nil, err
	}
	return &clip{duration: end - start, audio: !r.e.NoAudio}, nil
}

func (r *renderSession) Apply(ctx context.Context, c engine.Clip, op render.Op) (engine.Clip, error) {
	if err := r.e.record(StageApply, op.Describe()); err != nil {
		return nil, err
	}
	out := *c.(*clip)
	if s, ok := op.(render.ScaleSpeed); ok {
		out.duration /= s.Factor
	}
	return &out, nil
}

func (r *renderSession) Concat(ctx context.Context, clips []engine.Clip) (engine.Clip, error) {
	if err := r.e.record(StageConcat, fmt.Sprint(len(clips))); err != nil {
		return nil, err
	}
	out := &clip{}
	for _, c := range clips {
		out.duration += c.Duration()
		out.audio = out.audio || c.HasAudio()
	}
	return out, nil
}

func (r *renderSession) Overlay(ctx context.Context, c engine.Clip, overlays []timeline.Overlay) (engine.Clip, error) {
	if err := r.e.record(StageOverlay, fmt.Sprint(len(overlays))); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *renderSession) Encode(ctx context.Context, c engine.Clip, outputPath string, settings engine.OutputSettings, progress func(float64)) error {
	if err := os.WriteFile(outputPath, []byte("partial"), 0o644); err != nil {
		return err
	}
	if err := r.e.record(StageEncode, settings.VideoCodec); err != nil {
		return err
	}
	if r.e.Gate != nil {
		select {
		case <-r.e.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	steps := r.e.EncodeSteps
	if steps <= 0 {
		steps = 4
	}
	for i := 1; i <= steps; i++ {
		progress(float64(i) / float64(steps))
	}
	return os.WriteFile(outputPath, []byte("rendered"), 0o644)
}

func (r *renderSession) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.e.closed.Add(1)
	}
	return nil
}
