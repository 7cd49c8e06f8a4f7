// Package catalog remembers the sources the editor has probed and the export
// jobs it has run. Both live in SQLite so a restart keeps the probe cache and
// the job history.
package catalog

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is the cached probe of one media file. Size and Mtime identify the
// file version the probe belongs to.
type Source struct {
	Path       string    `json:"path"`
	Duration   float64   `json:"duration"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	FPS        float64   `json:"fps"`
	VideoCodec string    `json:"video_codec,omitempty"`
	HasAudio   bool      `json:"has_audio"`
	Size       int64     `json:"size"`
	Mtime      time.Time `json:"mtime"`
	ProbedAt   time.Time `json:"probed_at"`
}

const (
	JobStatusIdle      = "idle"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// ExportJob is the persisted record of one export.
type ExportJob struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	OutputPath   string    `json:"output_path"`
	Format       string    `json:"format"`
	SegmentCount int       `json:"segment_count"`
	Duration     float64   `json:"duration"`
	Progress     int       `json:"progress"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Terminal reports whether the job can no longer change.
func (j *ExportJob) Terminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// VideoExtensions lists the containers the source picker accepts.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".flv":  true,
}

// NewID returns a time ordered unique id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func IsVideoFile(filename string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(filename))]
}
