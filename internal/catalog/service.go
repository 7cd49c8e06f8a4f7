package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
)

// SourceProber reads stream information from a media file.
type SourceProber interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Service loads sources for editing. A probe is reused while the file's size
// and modification time are unchanged. Loaded durations are kept in memory
// so the timeline can check segment bounds without touching the database.
type Service struct {
	repo   Repository
	prober SourceProber
	logger *slog.Logger

	mu        sync.RWMutex
	durations map[string]float64
}

func NewService(repo Repository, prober SourceProber, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		prober:    prober,
		logger:    logger,
		durations: make(map[string]float64),
	}
}

// Load makes path available for editing and returns its probe.
func (s *Service) Load(ctx context.Context, path string) (*Source, error) {
	if path == "" {
		return nil, editerr.Validation("source path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, editerr.IO(fmt.Sprintf("invalid source path %s", path), err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, editerr.IO(fmt.Sprintf("cannot open source %s", absPath), err)
	}
	if info.IsDir() {
		return nil, editerr.Validation("source %s is a directory", absPath)
	}
	if !IsVideoFile(absPath) {
		return nil, editerr.Validation("unsupported source type %q", filepath.Ext(absPath))
	}

	cached, err := s.repo.GetSource(ctx, absPath)
	if err != nil {
		return nil, fmt.Errorf("lookup source: %w", err)
	}
	if cached != nil && cached.Size == info.Size() && cached.Mtime.Equal(info.ModTime().UTC()) {
		s.remember(cached)
		return cached, nil
	}

	probe, err := s.prober.Probe(ctx, absPath)
	if err != nil {
		return nil, editerr.IO(fmt.Sprintf("cannot read source %s", absPath), err)
	}
	if !probe.HasVideo {
		return nil, editerr.Validation("source %s has no video stream", absPath)
	}
	if probe.Duration <= 0 {
		return nil, editerr.Validation("source %s has no usable duration", absPath)
	}

	src := &Source{
		Path:       absPath,
		Duration:   probe.Duration,
		Width:      probe.Width,
		Height:     probe.Height,
		FPS:        probe.FPS,
		VideoCodec: probe.VideoCodec,
		HasAudio:   probe.HasAudio,
		Size:       info.Size(),
		Mtime:      info.ModTime().UTC(),
		ProbedAt:   time.Now().UTC(),
	}
	if err := s.repo.UpsertSource(ctx, src); err != nil {
		// The probe is still good for this session.
		if s.logger != nil {
			s.logger.Warn("failed to cache source probe", "path", absPath, "error", err)
		}
	}
	s.remember(src)

	if s.logger != nil {
		s.logger.Info("source loaded", "path", absPath, "duration", src.Duration, "has_audio", src.HasAudio)
	}
	return src, nil
}

// Warm loads each path, logging instead of failing, so segments restored
// from a project can be extended without reloading their sources by hand.
func (s *Service) Warm(ctx context.Context, paths []string) int {
	loaded := 0
	for _, p := range paths {
		if _, ok := s.Duration(p); ok {
			loaded++
			continue
		}
		if _, err := s.Load(ctx, p); err != nil {
			if s.logger != nil {
				s.logger.Warn("source unavailable", "path", p, "error", err)
			}
			continue
		}
		loaded++
	}
	return loaded
}

func (s *Service) remember(src *Source) {
	s.mu.Lock()
	s.durations[src.Path] = src.Duration
	s.mu.Unlock()
}

// Duration reports the length of a loaded source.
func (s *Service) Duration(path string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.durations[path]
	return d, ok
}

func (s *Service) GetSources(ctx context.Context) ([]*Source, error) {
	return s.repo.ListSources(ctx)
}

// Forget drops the cached probe of path.
func (s *Service) Forget(ctx context.Context, path string) error {
	s.mu.Lock()
	delete(s.durations, path)
	s.mu.Unlock()
	return s.repo.DeleteSource(ctx, path)
}
