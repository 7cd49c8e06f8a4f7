package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// DefaultEDLName names the EDL when the project has no usable name.
const DefaultEDLName = "lamoeditor_export"

// EDLEvent is one timeline segment as a CMX 3600 event. Times are source
// milliseconds; Speed stretches the record side.
type EDLEvent struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
	Speed     float64
}

func (e EDLEvent) recordMs() int {
	speed := e.Speed
	if speed <= 0 {
		speed = 1
	}
	return int(math.Round(float64(e.EndMs-e.StartMs) / speed))
}

// EventsFromSnapshot lists the segments of s in timeline order. Effects,
// volume and overlays have no CMX 3600 form and are left out.
func EventsFromSnapshot(s timeline.Snapshot) []EDLEvent {
	events := make([]EDLEvent, 0, len(s.Segments))
	for _, seg := range s.Segments {
		name := SanitizeName(strings.TrimSuffix(filepath.Base(seg.SourcePath), filepath.Ext(seg.SourcePath)), 160)
		if name == "" {
			name = "clip"
		}
		events = append(events, EDLEvent{
			ClipName:  name,
			MediaPath: seg.SourcePath,
			StartMs:   int(math.Round(seg.StartTime * 1000)),
			EndMs:     int(math.Round(seg.EndTime * 1000)),
			Speed:     seg.Speed,
		})
	}
	return events
}

func GenerateEDL(events []EDLEvent, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, ev := range events {
		srcIn := msToTimecode(ev.StartMs, fps)
		srcOut := msToTimecode(ev.EndMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		durationMs := ev.recordMs()
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
		)
		if ev.Speed > 0 && ev.Speed != 1 {
			// Motion effect: reel, playback rate in frames per second, source in.
			lines = append(lines, fmt.Sprintf("M2   %-8s %05.1f                %s", "AX", float64(fps)*ev.Speed, srcIn))
		}
		lines = append(lines,
			fmt.Sprintf("* FROM CLIP NAME:  %s", ev.ClipName),
			fmt.Sprintf("* MEDIA PATH:  %s", ev.MediaPath),
		)

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// WriteEDL writes the EDL of s into dir and returns the file path.
func WriteEDL(dir, projectName string, s timeline.Snapshot, frameRate float64) (string, error) {
	if len(s.Segments) == 0 {
		return "", editerr.Validation("timeline has no segments to export")
	}
	if err := ValidateOutputDir(dir); err != nil {
		return "", err
	}

	name := SanitizeName(projectName, 120)
	if name == "" {
		name = DefaultEDLName
	}
	if frameRate <= 0 {
		frameRate = 30
	}

	path := filepath.Join(dir, name+".edl")
	edl := GenerateEDL(EventsFromSnapshot(s), name, frameRate)
	if err := os.WriteFile(path, []byte(edl), 0o644); err != nil {
		return "", editerr.IO("failed to write "+path, err)
	}
	return path, nil
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
