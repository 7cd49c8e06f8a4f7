package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// SourceProber reports stream information of a source file.
type SourceProber interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// Engine builds one filter_complex graph per render and runs it with a
// single ffmpeg invocation at encode time. Extract, Apply, Concat and
// Overlay only extend the graph.
type Engine struct {
	cfg    Config
	bin    string
	prober SourceProber
	logger *slog.Logger
}

var _ engine.Engine = (*Engine)(nil)

// NewEngine resolves the ffmpeg binary. prober is used to learn frame sizes
// and audio presence of sources.
func NewEngine(cfg Config, prober SourceProber) (*Engine, error) {
	cfg = cfg.withDefaults()
	bin, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, bin: bin, prober: prober, logger: cfg.Logger}, nil
}

func (e *Engine) NewRender(ctx context.Context) (engine.Render, error) {
	if e.cfg.WorkDir != "" {
		if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(e.cfg.WorkDir, "render-")
	if err != nil {
		return nil, fmt.Errorf("cannot create render dir: %w", err)
	}
	return &session{e: e, dir: dir, probes: make(map[string]*ProbeResult)}, nil
}

type clip struct {
	s             *session
	v, a          string // filter pad labels, a is "" without audio
	duration      float64
	width, height int
}

func (c *clip) Duration() float64 { return c.duration }
func (c *clip) HasAudio() bool    { return c.a != "" }

type session struct {
	e       *Engine
	dir     string
	inputs  []string
	nInputs int
	filters []string
	labels  int
	texts   int
	fps     float64
	probes  map[string]*ProbeResult
	closed  bool
}

func (s *session) label() string {
	s.labels++
	return "[s" + strconv.Itoa(s.labels) + "]"
}

// chain appends "in filter out" to the graph and returns the new label.
func (s *session) chain(in, filter string) string {
	out := s.label()
	s.filters = append(s.filters, in+filter+out)
	return out
}

func (s *session) own(c engine.Clip) (*clip, error) {
	if s.closed {
		return nil, errors.New("render is closed")
	}
	cl, ok := c.(*clip)
	if !ok || cl.s != s {
		return nil, errors.New("clip does not belong to this render")
	}
	return cl, nil
}

func (s *session) probe(ctx context.Context, path string) (*ProbeResult, error) {
	if p, ok := s.probes[path]; ok {
		return p, nil
	}
	p, err := s.e.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	s.probes[path] = p
	return p, nil
}

func (s *session) Extract(ctx context.Context, source string, start, end float64) (engine.Clip, error) {
	if s.closed {
		return nil, errors.New("render is closed")
	}
	p, err := s.probe(ctx, source)
	if err != nil {
		return nil, err
	}
	if !p.HasVideo {
		return nil, fmt.Errorf("%s has no video stream", filepath.Base(source))
	}
	if s.fps == 0 {
		s.fps = p.FPS
	}

	idx := s.nInputs
	s.nInputs++
	s.inputs = append(s.inputs, "-ss", num(start), "-t", num(end-start), "-i", source)

	c := &clip{s: s, duration: end - start, width: p.Width, height: p.Height}
	c.v = s.chain(fmt.Sprintf("[%d:v:0]", idx), "setpts=PTS-STARTPTS")
	if p.HasAudio {
		c.a = s.chain(fmt.Sprintf("[%d:a:0]", idx), "asetpts=PTS-STARTPTS")
	}
	return c, nil
}

func (s *session) Apply(ctx context.Context, in engine.Clip, op render.Op) (engine.Clip, error) {
	c, err := s.own(in)
	if err != nil {
		return nil, err
	}
	out := *c
	switch op := op.(type) {
	case render.ScaleSpeed:
		out.v = s.chain(c.v, "setpts=PTS/"+num(op.Factor))
		if c.a != "" {
			out.a = s.chain(c.a, atempoChain(op.Factor))
		}
		out.duration = c.duration / op.Factor
	case render.ApplyEffect:
		var filter string
		filter, out.width, out.height = videoEffect(op.Effect, c.width, c.height)
		out.v = s.chain(c.v, filter)
	case render.ScaleVolume:
		if c.a != "" {
			out.a = s.chain(c.a, "volume="+num(op.Factor))
		}
	default:
		return nil, fmt.Errorf("unsupported operation %q", op.Describe())
	}
	return &out, nil
}

func (s *session) Concat(ctx context.Context, clips []engine.Clip) (engine.Clip, error) {
	if len(clips) == 0 {
		return nil, errors.New("nothing to concatenate")
	}
	owned := make([]*clip, len(clips))
	var width, height int
	withAudio := false
	for i, in := range clips {
		c, err := s.own(in)
		if err != nil {
			return nil, err
		}
		owned[i] = c
		width, height = max(width, c.width), max(height, c.height)
		withAudio = withAudio || c.a != ""
	}
	width, height = even(width), even(height)

	normalize := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1,format=yuv420p",
		width, height, width, height)
	if s.fps > 0 {
		normalize += ",fps=" + strconv.FormatFloat(math.Round(s.fps*1000)/1000, 'f', -1, 64)
	}
	aformat := fmt.Sprintf("aformat=sample_rates=%d:channel_layouts=%s", audioRate, audioLayout)

	out := &clip{s: s, width: width, height: height}
	var pads strings.Builder
	for _, c := range owned {
		pads.WriteString(s.chain(c.v, normalize))
		if withAudio {
			if c.a != "" {
				pads.WriteString(s.chain(c.a, aformat))
			} else {
				pads.WriteString(s.chain("", fmt.Sprintf("anullsrc=r=%d:cl=%s,atrim=duration=%s",
					audioRate, audioLayout, num(c.duration))))
			}
		}
		out.duration += c.duration
	}

	audioStreams := 0
	out.v = s.label()
	outs := out.v
	if withAudio {
		audioStreams = 1
		out.a = s.label()
		outs += out.a
	}
	s.filters = append(s.filters, fmt.Sprintf("%sconcat=n=%d:v=1:a=%d%s", pads.String(), len(owned), audioStreams, outs))
	return out, nil
}

func (s *session) Overlay(ctx context.Context, in engine.Clip, overlays []timeline.Overlay) (engine.Clip, error) {
	c, err := s.own(in)
	if err != nil {
		return nil, err
	}
	out := *c
	for _, o := range overlays {
		s.texts++
		textFile := filepath.Join(s.dir, fmt.Sprintf("overlay-%d.txt", s.texts))
		if err := os.WriteFile(textFile, []byte(o.Text), 0o644); err != nil {
			return nil, fmt.Errorf("cannot write overlay text: %w", err)
		}
		out.v = s.chain(out.v, drawtext(o, textFile))
	}
	return &out, nil
}

// script returns the filter graph built so far, one chain per line.
func (s *session) script() string {
	return strings.Join(s.filters, ";\n")
}

func (s *session) encodeArgs(c *clip, scriptPath, outputPath string, settings engine.OutputSettings) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}
	args = append(args, s.inputs...)
	args = append(args, "-filter_complex_script", scriptPath, "-map", c.v)
	if c.a != "" {
		args = append(args, "-map", c.a, "-c:a", settings.AudioCodec)
	}
	args = append(args, "-c:v", settings.VideoCodec, "-b:v", settings.Bitrate)
	if settings.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(settings.FPS))
	}
	if settings.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(settings.Threads))
	}
	if m := settings.Muxer(); m != "" {
		args = append(args, "-f", m)
	}
	return append(args, "-progress", "pipe:1", "-nostats", outputPath)
}

func (s *session) Encode(ctx context.Context, in engine.Clip, outputPath string, settings engine.OutputSettings, progress func(float64)) error {
	c, err := s.own(in)
	if err != nil {
		return err
	}
	scriptPath := filepath.Join(s.dir, "filter_complex.txt")
	if err := os.WriteFile(scriptPath, []byte(s.script()), 0o644); err != nil {
		return fmt.Errorf("cannot write filter script: %w", err)
	}

	pw := &progressWriter{total: c.duration, report: progress}
	_, err = run(ctx, s.e.logger, s.e.bin, s.encodeArgs(c, scriptPath, outputPath, settings), pw)
	if err != nil {
		return err
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

// Close removes the render's scratch directory.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.dir)
}
