package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamoeditor/lamoeditor/internal/db"
	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
)

func setupTestDB(t *testing.T) (*db.DB, *SQLiteRepository) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database, NewRepository(database.Conn())
}

type fakeProber struct {
	result *ffmpeg.ProbeResult
	err    error
	calls  atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

func videoProbe(duration float64) *fakeProber {
	return &fakeProber{result: &ffmpeg.ProbeResult{
		Duration: duration, Width: 1920, Height: 1080, FPS: 30,
		VideoCodec: "h264", HasVideo: true, HasAudio: true,
	}}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestService_Load(t *testing.T) {
	_, repo := setupTestDB(t)
	prober := videoProbe(12.5)
	svc := NewService(repo, prober, nil)
	path := writeFile(t, t.TempDir(), "clip.mp4", "data")

	src, err := svc.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if src.Duration != 12.5 || src.Width != 1920 || !src.HasAudio {
		t.Errorf("Load() = %+v", src)
	}
	if d, ok := svc.Duration(path); !ok || d != 12.5 {
		t.Errorf("Duration() = %v, %v", d, ok)
	}

	stored, err := repo.GetSource(context.Background(), path)
	if err != nil || stored == nil {
		t.Fatalf("GetSource() = %v, %v", stored, err)
	}
	if stored.VideoCodec != "h264" || stored.Size != 4 {
		t.Errorf("stored source = %+v", stored)
	}
}

func TestService_LoadUsesCacheUntilFileChanges(t *testing.T) {
	_, repo := setupTestDB(t)
	prober := videoProbe(8)
	path := writeFile(t, t.TempDir(), "clip.mov", "data")

	svc := NewService(repo, prober, nil)
	if _, err := svc.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	// A fresh service shares only the database.
	svc2 := NewService(repo, prober, nil)
	if _, err := svc2.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := prober.calls.Load(); got != 1 {
		t.Errorf("probe calls = %d, want 1 (cache hit)", got)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := svc2.Load(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if got := prober.calls.Load(); got != 2 {
		t.Errorf("probe calls = %d, want 2 after modification", got)
	}
}

func TestService_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	clip := writeFile(t, dir, "clip.mp4", "data")
	text := writeFile(t, dir, "notes.txt", "hello")

	tests := []struct {
		name    string
		path    string
		prober  *fakeProber
		wantErr error
	}{
		{"empty path", "", videoProbe(1), editerr.ErrValidation},
		{"missing file", filepath.Join(dir, "missing.mp4"), videoProbe(1), editerr.ErrIO},
		{"directory", dir, videoProbe(1), editerr.ErrValidation},
		{"not a video", text, videoProbe(1), editerr.ErrValidation},
		{"probe failure", clip, &fakeProber{err: errors.New("ffprobe exited 1")}, editerr.ErrIO},
		{"audio only", clip, &fakeProber{result: &ffmpeg.ProbeResult{Duration: 3, HasAudio: true}}, editerr.ErrValidation},
		{"zero duration", clip, &fakeProber{result: &ffmpeg.ProbeResult{HasVideo: true}}, editerr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, repo := setupTestDB(t)
			svc := NewService(repo, tt.prober, nil)
			_, err := svc.Load(context.Background(), tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
			if _, ok := svc.Duration(tt.path); ok {
				t.Error("failed load must not register a duration")
			}
		})
	}
}

func TestService_WarmSkipsUnavailable(t *testing.T) {
	_, repo := setupTestDB(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.mp4", "a")
	b := writeFile(t, dir, "b.mkv", "b")
	svc := NewService(repo, videoProbe(4), nil)

	n := svc.Warm(context.Background(), []string{a, filepath.Join(dir, "gone.mp4"), b, a})
	if n != 3 {
		t.Errorf("Warm() = %d, want 3", n)
	}
	if _, ok := svc.Duration(b); !ok {
		t.Error("b should be loaded")
	}
}

func TestService_Forget(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, videoProbe(4), nil)
	path := writeFile(t, t.TempDir(), "a.webm", "a")
	ctx := context.Background()

	if _, err := svc.Load(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := svc.Forget(ctx, path); err != nil {
		t.Fatal(err)
	}
	if _, ok := svc.Duration(path); ok {
		t.Error("duration still known after Forget")
	}
	sources, err := svc.GetSources(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 0 {
		t.Errorf("sources = %d, want 0", len(sources))
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"clip.mp4", true},
		{"CLIP.MOV", true},
		{"a.b.webm", true},
		{"movie.flv", true},
		{"notes.txt", false},
		{"noext", false},
		{".mp4/dir", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.name); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
