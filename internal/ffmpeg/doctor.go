package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/engine"
)

const defaultCacheTTL = 5 * time.Minute

// Capabilities describes the installed ffmpeg.
type Capabilities struct {
	Version  string    `json:"version"`
	Encoders []string  `json:"encoders"`
	Missing  []string  `json:"missing_encoders"`
	ProbedAt time.Time `json:"probed_at"`
}

func (c *Capabilities) HasEncoder(name string) bool {
	i := sort.SearchStrings(c.Encoders, name)
	return i < len(c.Encoders) && c.Encoders[i] == name
}

// Supports reports whether every codec of the preset is available.
func (c *Capabilities) Supports(p engine.Preset) bool {
	return c.HasEncoder(p.VideoCodec) && c.HasEncoder(p.AudioCodec)
}

// Doctor probes the ffmpeg installation.
type Doctor interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// RunDoctor runs `ffmpeg -version` and `ffmpeg -encoders`.
func (e *Engine) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.DoctorTimeout)
	defer cancel()

	ver, err := run(ctx, e.logger, e.bin, []string{"-hide_banner", "-version"}, nil)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -version: %w", err)
	}
	enc, err := run(ctx, e.logger, e.bin, []string{"-hide_banner", "-encoders"}, nil)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w", err)
	}

	caps := &Capabilities{
		Version:  parseVersion(ver.Stdout),
		Encoders: parseEncoders(enc.Stdout),
		ProbedAt: time.Now(),
	}
	caps.Missing = missingEncoders(caps)

	e.logger.Info("ffmpeg doctor probe complete",
		"version", caps.Version,
		"encoders", len(caps.Encoders),
		"missing", caps.Missing,
	)
	return caps, nil
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out []byte) string {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	fields := strings.Fields(string(line))
	if len(fields) >= 3 && fields[1] == "version" {
		return fields[2]
	}
	return strings.TrimSpace(string(line))
}

// parseEncoders reads the table printed by `ffmpeg -encoders`:
//
//	V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
//
// Rows before the " ------" separator are the legend.
func parseEncoders(out []byte) []string {
	var names []string
	started := false
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !started {
			started = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		names = append(names, fields[1])
	}
	sort.Strings(names)
	return names
}

func missingEncoders(c *Capabilities) []string {
	seen := map[string]bool{}
	var missing []string
	for _, p := range engine.Presets {
		for _, codec := range []string{p.VideoCodec, p.AudioCodec} {
			if !seen[codec] && !c.HasEncoder(codec) {
				missing = append(missing, codec)
			}
			seen[codec] = true
		}
	}
	return missing
}

// CachedDoctor caches doctor results for a TTL. When a refresh fails the
// stale result is returned if there is one.
type CachedDoctor struct {
	doctor Doctor
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func NewCachedDoctor(doctor Doctor, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{doctor: doctor, ttl: defaultCacheTTL, logger: logger}
}

// WithTTL sets how long a result stays fresh. Non-positive values keep the
// default.
func (d *CachedDoctor) WithTTL(ttl time.Duration) *CachedDoctor {
	if ttl > 0 {
		d.ttl = ttl
	}
	return d
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.doctor.RunDoctor(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("ffmpeg doctor probe failed", "error", err)
		}
		if d.cached != nil {
			return d.cached, nil
		}
		return nil, err
	}
	d.cached = caps
	return caps, nil
}

func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
