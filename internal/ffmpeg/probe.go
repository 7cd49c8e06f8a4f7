package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ProbeResult is the subset of ffprobe output the editor needs.
type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	VideoCodec string  `json:"video_codec"`
	HasVideo   bool    `json:"has_video"`
	HasAudio   bool    `json:"has_audio"`
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Prober runs ffprobe.
type Prober struct {
	bin    string
	cfg    Config
	logger *slog.Logger
}

func NewProber(cfg Config) (*Prober, error) {
	cfg = cfg.withDefaults()
	bin, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	return &Prober{bin: bin, cfg: cfg, logger: cfg.Logger}, nil
}

// Probe reads container and stream information of path.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	res, err := run(ctx, p.logger, p.bin, []string{
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseProbe(res.Stdout)
}

func parseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe output: %w", err)
	}

	r := &ProbeResult{}
	r.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if r.HasVideo {
				continue
			}
			r.HasVideo = true
			r.Width, r.Height = s.Width, s.Height
			r.VideoCodec = s.CodecName
			r.FPS = parseRate(s.AvgFrameRate)
			if r.FPS == 0 {
				r.FPS = parseRate(s.RFrameRate)
			}
			if r.Duration == 0 {
				r.Duration, _ = strconv.ParseFloat(s.Duration, 64)
			}
		case "audio":
			r.HasAudio = true
		}
	}
	if r.Duration <= 0 {
		return nil, fmt.Errorf("ffprobe reported no duration")
	}
	return r, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
