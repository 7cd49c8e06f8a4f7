package export

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

func TestGenerateEDL_SingleEvent(t *testing.T) {
	events := []EDLEvent{{ClipName: "Intro", MediaPath: "/media/intro.mp4", StartMs: 0, EndMs: 2000, Speed: 1}}

	edl := GenerateEDL(events, "Project One", 30.0)

	for _, want := range []string{
		"TITLE: Project One",
		"FCM: NON-DROP FRAME",
		"001  AX       V     C        00:00:00:00 00:00:02:00 00:00:00:00 00:00:02:00",
		"* FROM CLIP NAME:  Intro",
		"* MEDIA PATH:  /media/intro.mp4",
	} {
		if !strings.Contains(edl, want) {
			t.Fatalf("EDL missing %q:\n%s", want, edl)
		}
	}
	if strings.Contains(edl, "M2 ") {
		t.Fatalf("unexpected motion effect at normal speed:\n%s", edl)
	}
}

func TestGenerateEDL_RecordOffsetFollowsSpeed(t *testing.T) {
	events := []EDLEvent{
		{ClipName: "A", MediaPath: "/a.mp4", StartMs: 0, EndMs: 1000, Speed: 1},
		{ClipName: "B", MediaPath: "/b.mp4", StartMs: 1000, EndMs: 3000, Speed: 2},
		{ClipName: "C", MediaPath: "/c.mp4", StartMs: 0, EndMs: 500, Speed: 1},
	}

	edl := GenerateEDL(events, "Multi", 30.0)

	for _, want := range []string{
		"001  AX       V     C        00:00:00:00 00:00:01:00 00:00:00:00 00:00:01:00",
		"002  AX       V     C        00:00:01:00 00:00:03:00 00:00:01:00 00:00:02:00",
		"M2   AX       060.0                00:00:01:00",
		"003  AX       V     C        00:00:00:00 00:00:00:15 00:00:02:00 00:00:02:15",
	} {
		if !strings.Contains(edl, want) {
			t.Fatalf("EDL missing %q:\n%s", want, edl)
		}
	}
}

func TestGenerateEDL_DropFrame(t *testing.T) {
	edl := GenerateEDL([]EDLEvent{{ClipName: "Clip", MediaPath: "/x.mp4", EndMs: 1000}}, "Drop", 29.97)
	if !strings.Contains(edl, "FCM: DROP FRAME") {
		t.Fatalf("expected drop frame FCM, got: %q", edl)
	}
}

func TestMsToTimecode(t *testing.T) {
	tests := []struct {
		name string
		ms   int
		fps  int
		want string
	}{
		{name: "zero", ms: 0, fps: 30, want: "00:00:00:00"},
		{name: "one second", ms: 1000, fps: 30, want: "00:00:01:00"},
		{name: "fractional second", ms: 500, fps: 30, want: "00:00:00:15"},
		{name: "one minute", ms: 60000, fps: 30, want: "00:01:00:00"},
		{name: "one hour", ms: 3600000, fps: 30, want: "01:00:00:00"},
		{name: "pal", ms: 1520, fps: 25, want: "00:00:01:13"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := msToTimecode(tc.ms, tc.fps)
			if got != tc.want {
				t.Fatalf("msToTimecode(%d, %d) = %q, want %q", tc.ms, tc.fps, got, tc.want)
			}
		})
	}
}

func TestEventsFromSnapshot(t *testing.T) {
	snap := timeline.Snapshot{Segments: []timeline.Segment{
		{SourcePath: "/media/Beach Day.mp4", StartTime: 1.5, EndTime: 4.25, Volume: 1, Speed: 1.5},
		{SourcePath: "/media/<odd>.mov", StartTime: 0, EndTime: 1, Volume: 1, Speed: 1},
	}}
	events := EventsFromSnapshot(snap)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	want := EDLEvent{ClipName: "Beach Day", MediaPath: "/media/Beach Day.mp4", StartMs: 1500, EndMs: 4250, Speed: 1.5}
	if events[0] != want {
		t.Errorf("events[0] = %+v, want %+v", events[0], want)
	}
	if events[1].ClipName != "_odd_" {
		t.Errorf("events[1].ClipName = %q", events[1].ClipName)
	}
}

func TestWriteEDL(t *testing.T) {
	dir := t.TempDir()
	snap := timeline.Snapshot{Segments: []timeline.Segment{
		{SourcePath: "/media/a.mp4", StartTime: 0, EndTime: 2, Volume: 1, Speed: 1},
	}}

	path, err := WriteEDL(dir, "My/Project", snap, 25)
	if err != nil {
		t.Fatalf("WriteEDL() error = %v", err)
	}
	if path != filepath.Join(dir, "My_Project.edl") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "TITLE: My_Project\n") {
		t.Errorf("unexpected EDL:\n%s", data)
	}

	path, err = WriteEDL(dir, "", snap, 0)
	if err != nil || filepath.Base(path) != DefaultEDLName+".edl" {
		t.Errorf("default name: path = %s, err = %v", path, err)
	}

	if _, err := WriteEDL(dir, "x", timeline.Snapshot{}, 30); !errors.Is(err, editerr.ErrValidation) {
		t.Errorf("empty timeline error = %v", err)
	}
	if _, err := WriteEDL(filepath.Join(dir, "missing"), "x", snap, 30); !errors.Is(err, editerr.ErrIO) {
		t.Errorf("missing dir error = %v", err)
	}
}
