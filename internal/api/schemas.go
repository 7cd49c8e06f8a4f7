package api

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lamoeditor/lamoeditor/internal/catalog"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
	"github.com/lamoeditor/lamoeditor/internal/project"
	"github.com/lamoeditor/lamoeditor/internal/session"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	UptimeS int64                `json:"uptime_s"`
	FFmpeg  *ffmpeg.Capabilities `json:"ffmpeg,omitempty"`
}

type StatusResponse struct {
	State        string               `json:"state"`
	LastError    string               `json:"last_error,omitempty"`
	SourcesCount int                  `json:"sources_count"`
	Segments     int                  `json:"segments"`
	ActiveJob    *JobResponse         `json:"active_job,omitempty"`
	FFmpeg       *ffmpeg.Capabilities `json:"ffmpeg,omitempty"`
}

type SegmentResponse struct {
	Index            int                  `json:"index"`
	Path             string               `json:"path"`
	StartTime        float64              `json:"start_time"`
	EndTime          float64              `json:"end_time"`
	Duration         float64              `json:"duration"`
	PlaybackDuration float64              `json:"playback_duration"`
	Effects          []project.EffectJSON `json:"effects"`
	Volume           float64              `json:"volume"`
	Speed            float64              `json:"speed"`
}

type OverlayResponse struct {
	Index     int     `json:"index"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	EndTime   float64 `json:"end_time"`
	Position  string  `json:"position"`
	FontSize  int     `json:"font_size"`
	Color     string  `json:"color"`
	Font      string  `json:"font"`
}

type TimelineResponse struct {
	Segments      []SegmentResponse `json:"segments"`
	Overlays      []OverlayResponse `json:"overlays"`
	Selected      int               `json:"selected"`
	TotalDuration float64           `json:"total_duration"`
	CanUndo       bool              `json:"can_undo"`
	CanRedo       bool              `json:"can_redo"`
	ProjectPath   string            `json:"project_path,omitempty"`
}

type HistoryResponse struct {
	Applied  bool             `json:"applied"`
	Timeline TimelineResponse `json:"timeline"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type PositionRequest struct {
	Position *float64 `json:"position"`
}

// AppendSegmentRequest appends an explicit span when Path is set, otherwise
// the marked range of the loaded source.
type AppendSegmentRequest struct {
	Path      string   `json:"path,omitempty"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}

type EffectsRequest struct {
	Effects []project.EffectJSON `json:"effects"`
	Speed   *float64             `json:"speed"`
}

type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

type SelectRequest struct {
	Index *int `json:"index"`
}

type EDLRequest struct {
	OutputDir   string  `json:"output_dir"`
	ProjectName string  `json:"project_name"`
	FrameRate   float64 `json:"frame_rate,omitempty"`
}

type EDLResponse struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path"`
	EventCount int    `json:"event_count"`
}

type JobResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	OutputPath   string  `json:"output_path"`
	Format       string  `json:"format"`
	SegmentCount int     `json:"segment_count"`
	Duration     float64 `json:"duration"`
	Error        string  `json:"error,omitempty"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type SourceResponse struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	VideoCodec string  `json:"video_codec,omitempty"`
	HasAudio   bool    `json:"has_audio"`
	Size       int64   `json:"size"`
	SizeHuman  string  `json:"size_human"`
	ProbedAt   string  `json:"probed_at"`
}

type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

type FormatResponse struct {
	engine.Preset
	Available *bool `json:"available,omitempty"`
}

type FormatsResponse struct {
	Formats        []FormatResponse `json:"formats"`
	Bitrates       []string         `json:"bitrates"`
	DefaultFormat  string           `json:"default_format"`
	DefaultBitrate string           `json:"default_bitrate"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func TimelineToResponse(v session.View) TimelineResponse {
	resp := TimelineResponse{
		Segments:      make([]SegmentResponse, 0, len(v.Segments)),
		Overlays:      make([]OverlayResponse, 0, len(v.Overlays)),
		Selected:      v.Selected,
		TotalDuration: v.TotalDuration,
		CanUndo:       v.CanUndo,
		CanRedo:       v.CanRedo,
		ProjectPath:   v.ProjectPath,
	}
	for i, s := range v.Segments {
		resp.Segments = append(resp.Segments, SegmentToResponse(i, s))
	}
	for i, o := range v.Overlays {
		resp.Overlays = append(resp.Overlays, OverlayResponse{
			Index:     i,
			Text:      o.Text,
			StartTime: o.StartTime,
			Duration:  o.Duration,
			EndTime:   o.EndTime(),
			Position:  string(o.Position),
			FontSize:  o.FontSize,
			Color:     o.Color,
			Font:      string(o.Font),
		})
	}
	return resp
}

func SegmentToResponse(i int, s timeline.Segment) SegmentResponse {
	effects := make([]project.EffectJSON, 0, len(s.Effects))
	for _, e := range s.Effects {
		effects = append(effects, project.EffectToJSON(e))
	}
	return SegmentResponse{
		Index:            i,
		Path:             s.SourcePath,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Duration:         s.Duration(),
		PlaybackDuration: s.PlaybackDuration(),
		Effects:          effects,
		Volume:           s.Volume,
		Speed:            s.Speed,
	}
}

func JobStatusToResponse(s export.Status) JobResponse {
	return JobResponse{
		ID:           s.ID,
		Status:       string(s.State),
		Progress:     s.Progress,
		OutputPath:   s.OutputPath,
		Format:       s.Settings.Format,
		SegmentCount: s.SegmentCount,
		Duration:     s.Duration,
		Error:        s.Error,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

func JobRecordToResponse(j *catalog.ExportJob) JobResponse {
	return JobResponse{
		ID:           j.ID,
		Status:       j.Status,
		Progress:     j.Progress,
		OutputPath:   j.OutputPath,
		Format:       j.Format,
		SegmentCount: j.SegmentCount,
		Duration:     j.Duration,
		Error:        j.Error,
		CreatedAt:    j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    j.UpdatedAt.Format(time.RFC3339),
	}
}

func SourceToResponse(s *catalog.Source) SourceResponse {
	return SourceResponse{
		Path:       s.Path,
		Duration:   s.Duration,
		Width:      s.Width,
		Height:     s.Height,
		FPS:        s.FPS,
		VideoCodec: s.VideoCodec,
		HasAudio:   s.HasAudio,
		Size:       s.Size,
		SizeHuman:  humanize.Bytes(uint64(max(s.Size, 0))),
		ProbedAt:   s.ProbedAt.Format(time.RFC3339),
	}
}
