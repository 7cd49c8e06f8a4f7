// Package project reads and writes timeline projects as JSON documents.
//
// A document has two lists, "segments" and "text_overlays". Reading builds a
// complete snapshot before returning, so a malformed file never reaches the
// live timeline.
package project

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

type segmentDoc struct {
	Path      string       `json:"path"`
	StartTime float64      `json:"start_time"`
	EndTime   float64      `json:"end_time"`
	Duration  float64      `json:"duration"`
	Effects   []EffectJSON `json:"effects"`
	Volume    float64      `json:"volume"`
	Speed     float64      `json:"speed"`
}

type overlayDoc struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	Position  any     `json:"position"`
	FontSize  int     `json:"font_size"`
	Color     string  `json:"color"`
	Font      string  `json:"font"`
}

type document struct {
	Segments     []segmentDoc `json:"segments"`
	TextOverlays []overlayDoc `json:"text_overlays"`
}

// Encode writes s as an indented project document.
func Encode(w io.Writer, s timeline.Snapshot) error {
	doc := document{
		Segments:     make([]segmentDoc, 0, len(s.Segments)),
		TextOverlays: make([]overlayDoc, 0, len(s.Overlays)),
	}
	for _, seg := range s.Segments {
		d := segmentDoc{
			Path:      seg.SourcePath,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Duration:  seg.Duration(),
			Effects:   make([]EffectJSON, 0, len(seg.Effects)),
			Volume:    seg.Volume,
			Speed:     seg.Speed,
		}
		for _, e := range seg.Effects {
			d.Effects = append(d.Effects, EffectToJSON(e))
		}
		doc.Segments = append(doc.Segments, d)
	}
	for _, o := range s.Overlays {
		doc.TextOverlays = append(doc.TextOverlays, overlayDoc{
			Text:      o.Text,
			StartTime: o.StartTime,
			Duration:  o.Duration,
			Position:  encodePosition(o.Position),
			FontSize:  o.FontSize,
			Color:     o.Color,
			Font:      string(o.Font),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Center is written as a bare string, every other position as its anchor
// pair.
func encodePosition(p timeline.Position) any {
	if p == timeline.PositionCenter {
		return string(p)
	}
	h, v := p.Anchor()
	return []string{h, v}
}

// Decode parses a project document. Any problem is reported as a project
// format error naming the offending field.
func Decode(r io.Reader) (timeline.Snapshot, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return timeline.Snapshot{}, editerr.ProjectFormat("invalid JSON: %v", err)
	}
	if raw == nil {
		return timeline.Snapshot{}, editerr.ProjectFormat("project must be a JSON object")
	}

	var s timeline.Snapshot
	segments, err := list(raw, "segments")
	if err != nil {
		return timeline.Snapshot{}, err
	}
	for i, item := range segments {
		seg, err := decodeSegment(object{path: fmt.Sprintf("segments[%d]", i)}, item)
		if err != nil {
			return timeline.Snapshot{}, err
		}
		s.Segments = append(s.Segments, seg)
	}

	overlays, err := list(raw, "text_overlays")
	if err != nil {
		return timeline.Snapshot{}, err
	}
	for i, item := range overlays {
		o, err := decodeOverlay(object{path: fmt.Sprintf("text_overlays[%d]", i)}, item)
		if err != nil {
			return timeline.Snapshot{}, err
		}
		s.Overlays = append(s.Overlays, o)
	}
	return s, nil
}

func list(raw map[string]any, key string) ([]any, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, editerr.ProjectFormat("%s must be a list", key)
	}
	return items, nil
}

// object reads typed fields from one decoded JSON object.
type object struct {
	path   string
	fields map[string]any
}

func (o object) errorf(key, format string, args ...any) error {
	return editerr.ProjectFormat("%s.%s: %s", o.path, key, fmt.Sprintf(format, args...))
}

func (o object) has(key string) bool {
	v, ok := o.fields[key]
	return ok && v != nil
}

func (o object) number(key string, required bool, def float64) (float64, error) {
	if !o.has(key) {
		if required {
			return 0, o.errorf(key, "missing")
		}
		return def, nil
	}
	v, err := cast.ToFloat64E(o.fields[key])
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, o.errorf(key, "not a number: %v", o.fields[key])
	}
	return v, nil
}

func (o object) integer(key string, required bool, def int) (int, error) {
	f, err := o.number(key, required, float64(def))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, o.errorf(key, "not an integer: %v", f)
	}
	return int(f), nil
}

func (o object) text(key string, required bool, def string) (string, error) {
	if !o.has(key) {
		if required {
			return "", o.errorf(key, "missing")
		}
		return def, nil
	}
	s, ok := o.fields[key].(string)
	if !ok {
		return "", o.errorf(key, "not a string: %v", o.fields[key])
	}
	return s, nil
}

func asObject(o object, item any) (object, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return o, editerr.ProjectFormat("%s: not an object", o.path)
	}
	o.fields = m
	return o, nil
}

func decodeSegment(o object, item any) (timeline.Segment, error) {
	o, err := asObject(o, item)
	if err != nil {
		return timeline.Segment{}, err
	}

	var seg timeline.Segment
	if seg.SourcePath, err = o.text("path", true, ""); err != nil {
		return seg, err
	}
	if seg.SourcePath == "" {
		return seg, o.errorf("path", "empty")
	}
	if seg.StartTime, err = o.number("start_time", true, 0); err != nil {
		return seg, err
	}
	if seg.EndTime, err = o.number("end_time", true, 0); err != nil {
		return seg, err
	}
	if seg.Volume, err = o.number("volume", false, 1); err != nil {
		return seg, err
	}
	if seg.Speed, err = o.number("speed", false, 1); err != nil {
		return seg, err
	}

	switch {
	case seg.StartTime < 0:
		return seg, o.errorf("start_time", "must be >= 0")
	case seg.StartTime >= seg.EndTime:
		return seg, o.errorf("end_time", "must be after start_time")
	case seg.Volume < 0:
		return seg, o.errorf("volume", "must be >= 0")
	case seg.Speed <= 0:
		return seg, o.errorf("speed", "must be positive")
	}

	if o.has("effects") {
		effects, ok := o.fields["effects"].([]any)
		if !ok {
			return seg, o.errorf("effects", "must be a list")
		}
		for i, item := range effects {
			e, err := decodeEffect(object{path: fmt.Sprintf("%s.effects[%d]", o.path, i)}, item)
			if err != nil {
				return seg, err
			}
			seg.Effects = append(seg.Effects, e)
		}
	}
	return seg, nil
}

func decodeEffect(o object, item any) (timeline.Effect, error) {
	o, err := asObject(o, item)
	if err != nil {
		return nil, err
	}
	kind, err := o.text("type", true, "")
	if err != nil {
		return nil, err
	}
	var value *float64
	if o.has("value") {
		v, err := o.number("value", false, 0)
		if err != nil {
			return nil, err
		}
		value = &v
	}
	e, err := ParseEffect(kind, value)
	if err != nil {
		return nil, editerr.ProjectFormat("%s: %s", o.path, err.Error())
	}
	return e, nil
}

func decodeOverlay(o object, item any) (timeline.Overlay, error) {
	o, err := asObject(o, item)
	if err != nil {
		return timeline.Overlay{}, err
	}

	var ov timeline.Overlay
	if ov.Text, err = o.text("text", true, ""); err != nil {
		return ov, err
	}
	if ov.StartTime, err = o.number("start_time", true, 0); err != nil {
		return ov, err
	}
	if ov.Duration, err = o.number("duration", true, 0); err != nil {
		return ov, err
	}
	if ov.FontSize, err = o.integer("font_size", true, 0); err != nil {
		return ov, err
	}
	if ov.Color, err = o.text("color", false, timeline.DefaultColor); err != nil {
		return ov, err
	}
	font, err := o.text("font", false, string(timeline.DefaultFont))
	if err != nil {
		return ov, err
	}
	ov.Font = timeline.Font(font)
	if !o.has("position") {
		return ov, o.errorf("position", "missing")
	}
	if ov.Position, err = decodePosition(o.fields["position"]); err != nil {
		return ov, o.errorf("position", "%s", err.Error())
	}

	if err := ov.Validate(); err != nil {
		return ov, editerr.ProjectFormat("%s: %s", o.path, err.Error())
	}
	return ov, nil
}

// decodePosition accepts a position name or an anchor pair.
func decodePosition(v any) (timeline.Position, error) {
	switch v := v.(type) {
	case string:
		p := timeline.Position(strings.ToLower(v))
		if !p.Valid() {
			return "", fmt.Errorf("unknown position %q", v)
		}
		return p, nil
	case []any:
		if len(v) != 2 {
			return "", fmt.Errorf("anchor pair must have 2 elements, got %d", len(v))
		}
		h, ok1 := v[0].(string)
		vert, ok2 := v[1].(string)
		if !ok1 || !ok2 {
			return "", fmt.Errorf("anchor pair must hold strings")
		}
		p, ok := timeline.PositionFromAnchor(strings.ToLower(h), strings.ToLower(vert))
		if !ok {
			return "", fmt.Errorf("unsupported anchor pair [%s, %s]", h, vert)
		}
		return p, nil
	}
	return "", fmt.Errorf("must be a string or an anchor pair")
}
