// Package engine defines the contract between the export orchestrator and a
// media processing backend, plus the output settings an export is encoded
// with.
package engine

import (
	"context"

	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// Clip is an opaque handle to intermediate media owned by a Render.
type Clip interface {
	Duration() float64
	HasAudio() bool
}

// Engine starts independent render sessions.
type Engine interface {
	NewRender(ctx context.Context) (Render, error)
}

// Render executes one render graph. Clips from one Render must not be passed
// to another. Close releases everything the render holds and is safe to call
// more than once.
type Render interface {
	// Extract cuts [start, end) out of source.
	Extract(ctx context.Context, source string, start, end float64) (Clip, error)
	// Apply runs a ScaleSpeed, ApplyEffect or ScaleVolume op on clip.
	Apply(ctx context.Context, clip Clip, op render.Op) (Clip, error)
	// Concat joins clips in order, reconciling frame sizes.
	Concat(ctx context.Context, clips []Clip) (Clip, error)
	// Overlay composites text over clip at global times.
	Overlay(ctx context.Context, clip Clip, overlays []timeline.Overlay) (Clip, error)
	// Encode writes clip to outputPath. progress receives values in [0, 1].
	Encode(ctx context.Context, clip Clip, outputPath string, settings OutputSettings, progress func(float64)) error
	Close() error
}
