package timeline

import (
	"regexp"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// Segment is a trimmed reference into a source file. Duration is always
// derived from the trim bounds.
type Segment struct {
	SourcePath string
	StartTime  float64
	EndTime    float64
	Effects    []Effect
	Volume     float64
	Speed      float64
}

func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// PlaybackDuration is the time the segment occupies in the output.
func (s Segment) PlaybackDuration() float64 {
	return s.Duration() / s.Speed
}

func (s Segment) clone() Segment {
	s.Effects = cloneEffects(s.Effects)
	return s
}

// Position names where an overlay is anchored on the frame.
type Position string

const (
	PositionCenter Position = "center"
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
	PositionLeft   Position = "left"
	PositionRight  Position = "right"
)

var positions = []Position{PositionCenter, PositionTop, PositionBottom, PositionLeft, PositionRight}

// Anchor resolves the position into a horizontal and vertical anchor.
func (p Position) Anchor() (horizontal, vertical string) {
	switch p {
	case PositionTop:
		return "center", "top"
	case PositionBottom:
		return "center", "bottom"
	case PositionLeft:
		return "left", "center"
	case PositionRight:
		return "right", "center"
	default:
		return "center", "center"
	}
}

func (p Position) Valid() bool {
	for _, v := range positions {
		if p == v {
			return true
		}
	}
	return false
}

// PositionFromAnchor is the inverse of Anchor.
func PositionFromAnchor(horizontal, vertical string) (Position, bool) {
	for _, p := range positions {
		h, v := p.Anchor()
		if h == horizontal && v == vertical {
			return p, true
		}
	}
	return "", false
}

// Font is one of the fonts the renderer ships with.
type Font string

const (
	FontArial         Font = "Arial"
	FontTimesNewRoman Font = "Times-New-Roman"
	FontCourier       Font = "Courier"
	FontHelvetica     Font = "Helvetica"
	FontComicSans     Font = "Comic-Sans-MS"
)

// Fonts lists the supported fonts in menu order.
var Fonts = []Font{FontArial, FontTimesNewRoman, FontCourier, FontHelvetica, FontComicSans}

func (f Font) Valid() bool {
	for _, v := range Fonts {
		if f == v {
			return true
		}
	}
	return false
}

const (
	DefaultFont     = FontArial
	DefaultColor    = "white"
	DefaultFontSize = 50
	DefaultDuration = 5.0
)

var namedColors = map[string]bool{
	"white": true, "black": true, "red": true, "green": true, "blue": true,
	"yellow": true, "cyan": true, "magenta": true, "gray": true, "orange": true,
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// ValidColor accepts a palette name or a #rgb / #rrggbb literal.
func ValidColor(c string) bool {
	return namedColors[strings.ToLower(c)] || hexColor.MatchString(c)
}

// Overlay is a piece of text shown over the output at a global time.
type Overlay struct {
	Text      string
	StartTime float64
	Duration  float64
	Position  Position
	FontSize  int
	Color     string
	Font      Font
}

func (o Overlay) EndTime() float64 {
	return o.StartTime + o.Duration
}

// Validate checks every field of the overlay.
func (o Overlay) Validate() error {
	switch {
	case strings.TrimSpace(o.Text) == "":
		return editerr.Validation("overlay text must not be empty")
	case !finite(o.StartTime) || o.StartTime < 0:
		return editerr.Validation("overlay start time must be >= 0, got %v", o.StartTime)
	case !positive(o.Duration):
		return editerr.Validation("overlay duration must be positive, got %v", o.Duration)
	case !o.Position.Valid():
		return editerr.Validation("unknown overlay position %q", o.Position)
	case o.FontSize <= 0:
		return editerr.Validation("font size must be positive, got %d", o.FontSize)
	case !ValidColor(o.Color):
		return editerr.Validation("unknown colour %q", o.Color)
	case !o.Font.Valid():
		return editerr.Validation("unsupported font %q", o.Font)
	}
	return nil
}
