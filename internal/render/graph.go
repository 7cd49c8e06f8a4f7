// Package render turns a timeline snapshot into a render graph: the ordered,
// fully resolved list of operations an engine has to run to produce the
// output. Building a graph has no side effects.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// Op is one step of a segment chain: Extract, ScaleSpeed, ApplyEffect or
// ScaleVolume.
type Op interface {
	Describe() string
	op()
}

// Extract cuts [Start, End) out of Source.
type Extract struct {
	Source string
	Start  float64
	End    float64
}

// ScaleSpeed changes playback speed; the clip lasts duration/Factor.
type ScaleSpeed struct{ Factor float64 }

type ApplyEffect struct{ Effect timeline.Effect }

// ScaleVolume multiplies the audio gain. Engines skip it for clips without
// an audio track.
type ScaleVolume struct{ Factor float64 }

func (Extract) op()     {}
func (ScaleSpeed) op()  {}
func (ApplyEffect) op() {}
func (ScaleVolume) op() {}

func (o Extract) Describe() string {
	return fmt.Sprintf("extract %s [%.3f, %.3f)", o.Source, o.Start, o.End)
}

func (o ScaleSpeed) Describe() string  { return fmt.Sprintf("speed x%g", o.Factor) }
func (o ApplyEffect) Describe() string { return "effect " + DescribeEffect(o.Effect) }
func (o ScaleVolume) Describe() string { return fmt.Sprintf("volume x%g", o.Factor) }

// SegmentPlan is the operation chain of one timeline segment.
type SegmentPlan struct {
	Index    int
	Source   string
	Ops      []Op
	Duration float64
}

// Graph is the complete render plan. Segment chains are concatenated in
// order; the engine reconciles frame sizes. Overlays are composited over the
// concatenated result at their own global times.
type Graph struct {
	Segments      []SegmentPlan
	Overlays      []timeline.Overlay
	TotalDuration float64
}

// Build creates the render graph for s. An empty segment list is a
// validation error: there is nothing to render.
func Build(s timeline.Snapshot) (*Graph, error) {
	if len(s.Segments) == 0 {
		return nil, editerr.Validation("timeline has no segments to render")
	}

	g := &Graph{
		Segments: make([]SegmentPlan, 0, len(s.Segments)),
		Overlays: s.Clone().Overlays,
	}
	for i, seg := range s.Segments {
		if seg.StartTime < 0 || seg.StartTime >= seg.EndTime {
			return nil, editerr.Validation("segment %d has invalid range [%.3f, %.3f)", i, seg.StartTime, seg.EndTime)
		}
		if seg.Speed <= 0 {
			return nil, editerr.Validation("segment %d has non-positive speed %v", i, seg.Speed)
		}

		plan := SegmentPlan{
			Index:    i,
			Source:   seg.SourcePath,
			Duration: seg.PlaybackDuration(),
			Ops:      []Op{Extract{Source: seg.SourcePath, Start: seg.StartTime, End: seg.EndTime}},
		}
		if seg.Speed != 1 {
			plan.Ops = append(plan.Ops, ScaleSpeed{Factor: seg.Speed})
		}
		for n, e := range seg.Effects {
			if err := timeline.ValidateEffect(e); err != nil {
				return nil, editerr.Validation("segment %d effect %d: %s", i, n, err.Error())
			}
			plan.Ops = append(plan.Ops, ApplyEffect{Effect: e})
		}
		if seg.Volume != 1 {
			plan.Ops = append(plan.Ops, ScaleVolume{Factor: seg.Volume})
		}

		g.Segments = append(g.Segments, plan)
		g.TotalDuration += plan.Duration
	}
	return g, nil
}

// DescribeEffect renders an effect for plans and logs.
func DescribeEffect(e timeline.Effect) string {
	var d describer
	e.Accept(&d)
	return d.text
}

type describer struct{ text string }

func (d *describer) VisitBrightness(e timeline.Brightness) {
	d.text = fmt.Sprintf("brightness x%g", e.Factor)
}

func (d *describer) VisitContrast(e timeline.Contrast) {
	d.text = fmt.Sprintf("contrast x%g", e.Factor)
}

func (d *describer) VisitRotate(e timeline.Rotate) {
	d.text = fmt.Sprintf("rotate %d°", e.Degrees)
}

func (d *describer) VisitMirrorHorizontal(timeline.MirrorHorizontal) { d.text = "mirror horizontal" }
func (d *describer) VisitMirrorVertical(timeline.MirrorVertical)     { d.text = "mirror vertical" }
func (d *describer) VisitGrayscale(timeline.Grayscale)               { d.text = "grayscale" }

// Describe renders the graph as an indented, human readable plan.
func (g *Graph) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d segment(s), total %.3fs\n", len(g.Segments), g.TotalDuration)
	for _, seg := range g.Segments {
		fmt.Fprintf(&b, "  #%d %.3fs\n", seg.Index, seg.Duration)
		for _, op := range seg.Ops {
			fmt.Fprintf(&b, "    %s\n", op.Describe())
		}
	}
	if len(g.Overlays) > 0 {
		b.WriteString("  overlays\n")
		for _, o := range g.Overlays {
			fmt.Fprintf(&b, "    %q %s [%.3f, %.3f) %s %dpt %s\n",
				o.Text, o.Position, o.StartTime, o.EndTime(), o.Font, o.FontSize, o.Color)
		}
	}
	return b.String()
}

type segmentPlanJSON struct {
	Index    int      `json:"index"`
	Source   string   `json:"source"`
	Duration float64  `json:"duration"`
	Ops      []string `json:"ops"`
}

type overlayJSON struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Position string  `json:"position"`
	FontSize int     `json:"font_size"`
	Color    string  `json:"color"`
	Font     string  `json:"font"`
}

type graphJSON struct {
	TotalDuration float64           `json:"total_duration"`
	Segments      []segmentPlanJSON `json:"segments"`
	Overlays      []overlayJSON     `json:"overlays"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	out := graphJSON{
		TotalDuration: g.TotalDuration,
		Segments:      make([]segmentPlanJSON, 0, len(g.Segments)),
		Overlays:      make([]overlayJSON, 0, len(g.Overlays)),
	}
	for _, seg := range g.Segments {
		p := segmentPlanJSON{Index: seg.Index, Source: seg.Source, Duration: seg.Duration}
		for _, op := range seg.Ops {
			p.Ops = append(p.Ops, op.Describe())
		}
		out.Segments = append(out.Segments, p)
	}
	for _, o := range g.Overlays {
		out.Overlays = append(out.Overlays, overlayJSON{
			Text: o.Text, Start: o.StartTime, End: o.EndTime(), Position: string(o.Position),
			FontSize: o.FontSize, Color: o.Color, Font: string(o.Font),
		})
	}
	return json.Marshal(out)
}
