package project

import (
	"math"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
	"github.com/lamoeditor/lamoeditor/internal/timeline"
)

// EffectJSON is the wire form of an effect. Value is the factor of
// brightness and contrast and the angle of rotate; other kinds carry none.
type EffectJSON struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value,omitempty"`
}

// EffectToJSON converts an effect to its wire form.
func EffectToJSON(e timeline.Effect) EffectJSON {
	var w effectWriter
	e.Accept(&w)
	return w.out
}

type effectWriter struct{ out EffectJSON }

func (w *effectWriter) set(kind timeline.EffectKind, value *float64) {
	w.out = EffectJSON{Type: string(kind), Value: value}
}

func (w *effectWriter) VisitBrightness(e timeline.Brightness) { w.set(e.Kind(), &e.Factor) }
func (w *effectWriter) VisitContrast(e timeline.Contrast)     { w.set(e.Kind(), &e.Factor) }

func (w *effectWriter) VisitRotate(e timeline.Rotate) {
	deg := float64(e.Degrees)
	w.set(e.Kind(), &deg)
}

func (w *effectWriter) VisitMirrorHorizontal(e timeline.MirrorHorizontal) { w.set(e.Kind(), nil) }
func (w *effectWriter) VisitMirrorVertical(e timeline.MirrorVertical)     { w.set(e.Kind(), nil) }
func (w *effectWriter) VisitGrayscale(e timeline.Grayscale)               { w.set(e.Kind(), nil) }

// ToEffect converts the wire form back to an effect.
func (j EffectJSON) ToEffect() (timeline.Effect, error) {
	return ParseEffect(j.Type, j.Value)
}

// ParseEffect builds an effect from its kind name and optional value.
// A missing value means no change: factor 1 or 0 degrees.
func ParseEffect(kind string, value *float64) (timeline.Effect, error) {
	v := func(def float64) float64 {
		if value == nil {
			return def
		}
		return *value
	}

	var e timeline.Effect
	switch timeline.EffectKind(kind) {
	case timeline.KindBrightness:
		e = timeline.Brightness{Factor: v(1)}
	case timeline.KindContrast:
		e = timeline.Contrast{Factor: v(1)}
	case timeline.KindRotate:
		deg := v(0)
		if deg != math.Trunc(deg) || math.Abs(deg) > math.MaxInt32 {
			return nil, editerr.Validation("rotate value must be a whole number of degrees, got %v", deg)
		}
		e = timeline.Rotate{Degrees: int(deg)}
	case timeline.KindMirrorHorizontal:
		e = timeline.MirrorHorizontal{}
	case timeline.KindMirrorVertical:
		e = timeline.MirrorVertical{}
	case timeline.KindGrayscale:
		e = timeline.Grayscale{}
	default:
		return nil, editerr.Validation("unknown effect type %q", kind)
	}
	if err := timeline.ValidateEffect(e); err != nil {
		return nil, err
	}
	return e, nil
}
