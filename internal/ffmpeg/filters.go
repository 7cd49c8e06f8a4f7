package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// Fixed audio format every clip is normalised to before concatenation.
const (
	audioRate   = 44100
	audioLayout = "stereo"
)

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// effectFilter maps an effect to one video filter and tracks the frame size
// it produces.
type effectFilter struct {
	width, height int
	filter        string
}

func videoEffect(e timeline.Effect, width, height int) (filter string, w, h int) {
	f := &effectFilter{width: width, height: height}
	e.Accept(f)
	return f.filter, f.width, f.height
}

func (f *effectFilter) VisitBrightness(e timeline.Brightness) {
	v := num(e.Factor)
	f.filter = fmt.Sprintf("colorchannelmixer=rr=%s:gg=%s:bb=%s", v, v, v)
}

func (f *effectFilter) VisitContrast(e timeline.Contrast) {
	f.filter = "eq=contrast=" + num(e.Factor)
}

// Positive degrees turn counter-clockwise; the canvas grows to fit the
// rotated frame.
func (f *effectFilter) VisitRotate(e timeline.Rotate) {
	rad := -float64(e.Degrees) * math.Pi / 180
	a := strconv.FormatFloat(rad, 'f', 6, 64)
	f.filter = fmt.Sprintf("rotate=a=%s:ow=rotw(%s):oh=roth(%s):c=black", a, a, a)

	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	w, h := float64(f.width), float64(f.height)
	f.width = int(math.Round(w*cos + h*sin))
	f.height = int(math.Round(w*sin + h*cos))
}

func (f *effectFilter) VisitMirrorHorizontal(timeline.MirrorHorizontal) { f.filter = "hflip" }
func (f *effectFilter) VisitMirrorVertical(timeline.MirrorVertical)     { f.filter = "vflip" }
func (f *effectFilter) VisitGrayscale(timeline.Grayscale)               { f.filter = "hue=s=0" }

// atempoChain splits a speed factor into atempo steps within [0.5, 2].
func atempoChain(factor float64) string {
	var steps []string
	for factor > 2 {
		steps = append(steps, "atempo=2")
		factor /= 2
	}
	for factor < 0.5 {
		steps = append(steps, "atempo=0.5")
		factor /= 0.5
	}
	if factor != 1 || len(steps) == 0 {
		steps = append(steps, "atempo="+num(factor))
	}
	return strings.Join(steps, ",")
}

// fontFamily turns a font name into the fontconfig family.
func fontFamily(f timeline.Font) string {
	return strings.ReplaceAll(string(f), "-", " ")
}

// ffmpegColor expands #rgb so every colour is accepted by av_parse_color.
func ffmpegColor(c string) string {
	if len(c) == 4 && c[0] == '#' {
		return string([]byte{'#', c[1], c[1], c[2], c[2], c[3], c[3]})
	}
	return strings.ToLower(c)
}

func anchorExpr(horizontal, vertical string) (x, y string) {
	switch horizontal {
	case "left":
		x = "0"
	case "right":
		x = "w-text_w"
	default:
		x = "(w-text_w)/2"
	}
	switch vertical {
	case "top":
		y = "0"
	case "bottom":
		y = "h-text_h"
	default:
		y = "(h-text_h)/2"
	}
	return x, y
}

// drawtext renders one overlay. The text itself is read from textFile so it
// never needs filtergraph escaping, and expansion is off so '%' is literal.
func drawtext(o timeline.Overlay, textFile string) string {
	x, y := anchorExpr(o.Position.Anchor())
	return fmt.Sprintf("drawtext=font='%s':textfile='%s':expansion=none:fontsize=%d:fontcolor=%s:x=%s:y=%s:enable='between(t,%s,%s)'",
		quote(fontFamily(o.Font)), quote(textFile), o.FontSize, ffmpegColor(o.Color),
		x, y, num(o.StartTime), num(o.EndTime()))
}

// quote escapes a value placed inside single quotes in a filtergraph.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `/`)
	return strings.ReplaceAll(s, `'`, `'\''`)
}

// even rounds n up to the next even number; most encoders need even sizes.
func even(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}
