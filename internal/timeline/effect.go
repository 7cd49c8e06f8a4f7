package timeline

import (
	"math"

	"github.com/lamoeditor/lamoeditor/internal/editerr"
)

// EffectKind is the stable name of an effect, also used in project files.
type EffectKind string

const (
	KindBrightness       EffectKind = "brightness"
	KindContrast         EffectKind = "contrast"
	KindRotate           EffectKind = "rotate"
	KindMirrorHorizontal EffectKind = "mirror_x"
	KindMirrorVertical   EffectKind = "mirror_y"
	KindGrayscale        EffectKind = "blackwhite"
)

// Effect is one of the concrete effect types below. The set is closed:
// code that must handle every kind implements EffectVisitor, so a new kind
// does not compile until each visitor handles it.
type Effect interface {
	Kind() EffectKind
	Accept(v EffectVisitor)
	effect()
}

type EffectVisitor interface {
	VisitBrightness(Brightness)
	VisitContrast(Contrast)
	VisitRotate(Rotate)
	VisitMirrorHorizontal(MirrorHorizontal)
	VisitMirrorVertical(MirrorVertical)
	VisitGrayscale(Grayscale)
}

// Brightness multiplies every colour channel by Factor.
type Brightness struct{ Factor float64 }

// Contrast scales contrast around mid grey by Factor.
type Contrast struct{ Factor float64 }

// Rotate turns the frame counter-clockwise by Degrees.
type Rotate struct{ Degrees int }

type MirrorHorizontal struct{}

type MirrorVertical struct{}

type Grayscale struct{}

func (Brightness) Kind() EffectKind       { return KindBrightness }
func (Contrast) Kind() EffectKind         { return KindContrast }
func (Rotate) Kind() EffectKind           { return KindRotate }
func (MirrorHorizontal) Kind() EffectKind { return KindMirrorHorizontal }
func (MirrorVertical) Kind() EffectKind   { return KindMirrorVertical }
func (Grayscale) Kind() EffectKind        { return KindGrayscale }

func (e Brightness) Accept(v EffectVisitor)       { v.VisitBrightness(e) }
func (e Contrast) Accept(v EffectVisitor)         { v.VisitContrast(e) }
func (e Rotate) Accept(v EffectVisitor)           { v.VisitRotate(e) }
func (e MirrorHorizontal) Accept(v EffectVisitor) { v.VisitMirrorHorizontal(e) }
func (e MirrorVertical) Accept(v EffectVisitor)   { v.VisitMirrorVertical(e) }
func (e Grayscale) Accept(v EffectVisitor)        { v.VisitGrayscale(e) }

func (Brightness) effect()       {}
func (Contrast) effect()         {}
func (Rotate) effect()           {}
func (MirrorHorizontal) effect() {}
func (MirrorVertical) effect()   {}
func (Grayscale) effect()        {}

// ValidateEffect checks the parameters of a single effect.
func ValidateEffect(e Effect) error {
	switch e := e.(type) {
	case nil:
		return editerr.Validation("effect must not be empty")
	case Brightness:
		if !positive(e.Factor) {
			return editerr.Validation("brightness factor must be positive, got %v", e.Factor)
		}
	case Contrast:
		if !positive(e.Factor) {
			return editerr.Validation("contrast factor must be positive, got %v", e.Factor)
		}
	}
	return nil
}

func cloneEffects(effects []Effect) []Effect {
	if len(effects) == 0 {
		return nil
	}
	out := make([]Effect, len(effects))
	copy(out, effects)
	return out
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
