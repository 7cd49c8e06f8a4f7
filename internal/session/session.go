// Package session composes the editor: one timeline with its undo history,
// the range marks on the loaded source, the source catalog and the export
// orchestrator. Every command runs under one mutex, so callers such as HTTP
// handlers may be concurrent.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/history"
	"github.com/lamoeditor/lamoeditor/internal/logging"
	"github.com/lamoeditor/lamoeditor/internal/project"
	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/selection"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// Sources loads media files and reports their durations.
type Sources interface {
	Load(ctx context.Context, path string) (*catalog.Source, error)
	Duration(path string) (float64, bool)
	Warm(ctx context.Context, paths []string) int
}

// Exporter starts background exports.
type Exporter interface {
	Start(snapshot timeline.Snapshot, outputPath string, settings engine.OutputSettings) (*export.Job, error)
}

// ExportDefaults fill in what an export request leaves out.
type ExportDefaults struct {
	Format  string
	Bitrate string
	Threads int
}

type Options struct {
	HistoryLimit int
	Export       ExportDefaults
	Logger       *slog.Logger
}

type Session struct {
	sources  Sources
	exporter Exporter
	defaults ExportDefaults
	logger   *slog.Logger

	mu          sync.Mutex
	tl          *timeline.Timeline
	history     *history.Manager
	rng         selection.Range
	source      *catalog.Source
	projectPath string
}

func New(sources Sources, exporter Exporter, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	tl := timeline.New(sources)
	return &Session{
		sources:  sources,
		exporter: exporter,
		defaults: opts.Export,
		logger:   logging.WithComponent(logger, "session"),
		tl:       tl,
		history:  history.Attach(tl, opts.HistoryLimit),
	}
}

// View is the state shown to the user.
type View struct {
	Segments      []timeline.Segment `json:"segments"`
	Overlays      []timeline.Overlay `json:"overlays"`
	Selected      int                `json:"selected"`
	TotalDuration float64            `json:"total_duration"`
	CanUndo       bool               `json:"can_undo"`
	CanRedo       bool               `json:"can_redo"`
	ProjectPath   string             `json:"project_path,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Segments:      s.tl.Segments(),
		Overlays:      s.tl.Overlays(),
		Selected:      s.tl.Selected(),
		TotalDuration: s.tl.TotalDuration(),
		CanUndo:       s.history.CanUndo(),
		CanRedo:       s.history.CanRedo(),
		ProjectPath:   s.projectPath,
	}
}

// Snapshot copies the current timeline content.
func (s *Session) Snapshot() timeline.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.Snapshot()
}

// RangeView is the loaded source with its marks.
type RangeView struct {
	Source *catalog.Source `json:"source"`
	selection.State
	Length float64 `json:"length"`
}

// LoadSource probes path and resets the marks to cover all of it.
func (s *Session) LoadSource(ctx context.Context, path string) (RangeView, error) {
	src, err := s.sources.Load(ctx, path)
	if err != nil {
		return RangeView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.rng.Load(src.Duration)
	return s.rangeView(), nil
}

func (s *Session) Range() RangeView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangeView()
}

func (s *Session) rangeView() RangeView {
	st := s.rng.State()
	return RangeView{Source: s.source, State: st, Length: st.Length()}
}

func (s *Session) SetIn(position float64) (RangeView, error) {
	return s.mark(func() { s.rng.SetIn(position) })
}

func (s *Session) SetOut(position float64) (RangeView, error) {
	return s.mark(func() { s.rng.SetOut(position) })
}

func (s *Session) mark(fn func()) (RangeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return RangeView{}, editerr.Validation("no source loaded")
	}
	fn()
	return s.rangeView(), nil
}

// AddSelection appends the marked range of the loaded source.
func (s *Session) AddSelection() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		return editerr.Validation("no source loaded")
	}
	in, out, _, err := s.rng.Commit()
	if err != nil {
		return err
	}
	return s.tl.AppendSegment(s.source.Path, in, out)
}

// AppendSegment appends [start, end) of path, loading path first if needed.
func (s *Session) AppendSegment(ctx context.Context, path string, start, end float64) error {
	src, err := s.sources.Load(ctx, path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.AppendSegment(src.Path, start, end)
}

func (s *Session) MoveUp(i int) error   { return s.do(func() error { return s.tl.MoveUp(i) }) }
func (s *Session) MoveDown(i int) error { return s.do(func() error { return s.tl.MoveDown(i) }) }
func (s *Session) Remove(i int) error   { return s.do(func() error { return s.tl.RemoveSegment(i) }) }
func (s *Session) Clear() error         { return s.do(s.tl.Clear) }
func (s *Session) Select(i int) error   { return s.do(func() error { return s.tl.Select(i) }) }

func (s *Session) ReplaceEffects(i int, effects []timeline.Effect, speed float64) error {
	return s.do(func() error { return s.tl.ReplaceEffects(i, effects, speed) })
}

func (s *Session) SetVolume(i int, volume float64) error {
	return s.do(func() error { return s.tl.SetVolume(i, volume) })
}

func (s *Session) RemoveOverlay(i int) error {
	return s.do(func() error { return s.tl.RemoveOverlay(i) })
}

func (s *Session) do(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// OverlayInput is an overlay request. Nil or zero fields take the editor
// defaults; a missing start time means the in mark of the loaded source.
type OverlayInput struct {
	Text      string            `json:"text"`
	StartTime *float64          `json:"start_time,omitempty"`
	Duration  float64           `json:"duration,omitempty"`
	Position  timeline.Position `json:"position,omitempty"`
	FontSize  int               `json:"font_size,omitempty"`
	Color     string            `json:"color,omitempty"`
	Font      timeline.Font     `json:"font,omitempty"`
}

func (s *Session) AddOverlay(in OverlayInput) (timeline.Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := timeline.Overlay{
		Text:     in.Text,
		Duration: in.Duration,
		Position: in.Position,
		FontSize: in.FontSize,
		Color:    in.Color,
		Font:     in.Font,
	}
	if in.StartTime != nil {
		o.StartTime = *in.StartTime
	} else {
		o.StartTime = s.rng.State().In
	}
	if o.Duration == 0 {
		o.Duration = timeline.DefaultDuration
	}
	if o.Position == "" {
		o.Position = timeline.PositionCenter
	}
	if o.FontSize == 0 {
		o.FontSize = timeline.DefaultFontSize
	}
	if o.Color == "" {
		o.Color = timeline.DefaultColor
	}
	if o.Font == "" {
		o.Font = timeline.DefaultFont
	}
	if err := s.tl.AddOverlay(o); err != nil {
		return timeline.Overlay{}, err
	}
	return o, nil
}

// Undo reports whether there was anything to undo.
func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Undo(s.tl)
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Redo(s.tl)
}

// Plan builds the render graph of the current timeline.
func (s *Session) Plan() (*render.Graph, error) {
	return render.Build(s.Snapshot())
}

func (s *Session) SaveProject(path string) error {
	if path == "" {
		return editerr.Validation("project path is required")
	}
	snap := s.Snapshot()
	if err := project.SaveFile(path, snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.projectPath = path
	s.mu.Unlock()
	s.logger.Info("project saved", "path", logging.SanitizePath(path), "segments", len(snap.Segments))
	return nil
}

// LoadProject replaces the timeline with the project at path and clears the
// undo history. A project that fails to load leaves the session unchanged.
func (s *Session) LoadProject(ctx context.Context, path string) error {
	if path == "" {
		return editerr.Validation("project path is required")
	}
	snap, err := project.LoadFile(path)
	if err != nil {
		return err
	}

	// Missing sources do not block the load; their segments still export
	// once the files are back.
	paths := sourcePaths(snap)
	if loaded := s.sources.Warm(ctx, paths); loaded < len(paths) {
		s.logger.Warn("project references unavailable sources", "path", logging.SanitizePath(path),
			"available", loaded, "total", len(paths))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tl.Restore(snap)
	s.history.Reset()
	s.projectPath = path
	s.logger.Info("project loaded", "path", logging.SanitizePath(path), "segments", len(snap.Segments))
	return nil
}

func sourcePaths(snap timeline.Snapshot) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, seg := range snap.Segments {
		if !seen[seg.SourcePath] {
			seen[seg.SourcePath] = true
			paths = append(paths, seg.SourcePath)
		}
	}
	return paths
}

// ExportRequest selects the output of an export. Empty fields use the
// session defaults.
type ExportRequest struct {
	OutputPath string `json:"output_path"`
	Format     string `json:"format,omitempty"`
	Bitrate    string `json:"bitrate,omitempty"`
	FPS        int    `json:"fps,omitempty"`
}

// Export starts a background export of the current timeline.
func (s *Session) Export(req ExportRequest) (*export.Job, error) {
	format := req.Format
	if format == "" {
		format = s.defaults.Format
	}
	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = s.defaults.Bitrate
	}
	settings, err := engine.NewOutputSettings(format, bitrate, req.FPS)
	if err != nil {
		return nil, err
	}
	if s.defaults.Threads > 0 {
		settings.Threads = s.defaults.Threads
	}
	return s.exporter.Start(s.Snapshot(), req.OutputPath, settings)
}

// WriteEDL writes the current timeline as an edit decision list into dir.
func (s *Session) WriteEDL(dir, projectName string, frameRate float64) (string, error) {
	return export.WriteEDL(dir, projectName, s.Snapshot(), frameRate)
}
