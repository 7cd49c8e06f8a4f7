package engine

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// Preset maps a user facing format label to codecs and a file extension.
type Preset struct {
	Label      string `json:"label"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	Extension  string `json:"extension"`
	Muxer      string `json:"muxer"`
}

// Presets lists the export formats in menu order. The first is the default.
var Presets = []Preset{
	{Label: "MP4 (H.264)", VideoCodec: "libx264", AudioCodec: "aac", Extension: ".mp4", Muxer: "mp4"},
	{Label: "MP4 (H.265)", VideoCodec: "libx265", AudioCodec: "aac", Extension: ".mp4", Muxer: "mp4"},
	{Label: "AVI", VideoCodec: "png", AudioCodec: "aac", Extension: ".avi", Muxer: "avi"},
	{Label: "MOV", VideoCodec: "libx264", AudioCodec: "aac", Extension: ".mov", Muxer: "mov"},
	{Label: "WebM", VideoCodec: "libvpx", AudioCodec: "libopus", Extension: ".webm", Muxer: "webm"},
}

// Bitrates are the suggested bitrates, lowest first.
var Bitrates = []string{"2000k", "5000k", "8000k", "15000k"}

const (
	DefaultFormat  = "MP4 (H.264)"
	DefaultBitrate = "5000k"
	DefaultThreads = 4
	MaxFPS         = 240
)

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]*[kKM]$`)

// LookupPreset finds a preset by label, ignoring case.
func LookupPreset(label string) (Preset, bool) {
	for _, p := range Presets {
		if strings.EqualFold(p.Label, strings.TrimSpace(label)) {
			return p, true
		}
	}
	return Preset{}, false
}

// OutputSettings describes the final encode. FPS zero keeps the source rate.
type OutputSettings struct {
	Format     string `json:"format"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	Bitrate    string `json:"bitrate"`
	FPS        int    `json:"fps,omitempty"`
	Threads    int    `json:"threads"`
}

// NewOutputSettings resolves a format label and validates the rest.
// Empty format and bitrate fall back to the defaults.
func NewOutputSettings(format, bitrate string, fps int) (OutputSettings, error) {
	if format == "" {
		format = DefaultFormat
	}
	if bitrate == "" {
		bitrate = DefaultBitrate
	}
	p, ok := LookupPreset(format)
	if !ok {
		return OutputSettings{}, editerr.Validation("unknown export format %q", format)
	}
	s := OutputSettings{
		Format:     p.Label,
		VideoCodec: p.VideoCodec,
		AudioCodec: p.AudioCodec,
		Bitrate:    bitrate,
		FPS:        fps,
		Threads:    DefaultThreads,
	}
	return s, s.Validate()
}

func (s OutputSettings) Validate() error {
	switch {
	case s.VideoCodec == "":
		return editerr.Validation("video codec must be set")
	case !bitratePattern.MatchString(s.Bitrate):
		return editerr.Validation("invalid bitrate %q, expected e.g. 5000k", s.Bitrate)
	case s.FPS < 0 || s.FPS > MaxFPS:
		return editerr.Validation("fps must be between 1 and %d, got %d", MaxFPS, s.FPS)
	case s.Threads < 0:
		return editerr.Validation("threads must not be negative")
	}
	return nil
}

// Extension returns the file extension of the settings' format, or "".
func (s OutputSettings) Extension() string {
	if p, ok := LookupPreset(s.Format); ok {
		return p.Extension
	}
	return ""
}

// Muxer returns the container muxer name of the settings' format, or "".
func (s OutputSettings) Muxer() string {
	if p, ok := LookupPreset(s.Format); ok {
		return p.Muxer
	}
	return ""
}

// WithExtension appends the format's extension to path when it has none.
func (s OutputSettings) WithExtension(path string) string {
	if filepath.Ext(path) == "" {
		return path + s.Extension()
	}
	return path
}
