package types

import (
	"fmt"
	"math"
)

// TransitionKind selects the blend performed by the fragment stage. The numeric value is
// what gets written into the transition uniform.
type TransitionKind string

const (
	TransitionCrossfade TransitionKind = "crossfade"
	TransitionSweep     TransitionKind = "sweep"
)

func (k TransitionKind) Uint32() uint32 {
	switch k {
	case TransitionSweep:
		return 1
	default:
		return 0
	}
}

func (k *TransitionKind) UnmarshalText(text []byte) error {
	switch TransitionKind(text) {
	case TransitionCrossfade, TransitionSweep:
		*k = TransitionKind(text)
		return nil
	}
	return fmt.Errorf("unknown transition type %q", text)
}

type Direction string

const (
	DirectionLeftToRight          Direction = "left-to-right"
	DirectionRightToLeft          Direction = "right-to-left"
	DirectionTopToBottom          Direction = "top-to-bottom"
	DirectionBottomToTop          Direction = "bottom-to-top"
	DirectionTopLeftToBottomRight Direction = "top-left-to-bottom-right"
	DirectionTopRightToBottomLeft Direction = "top-right-to-bottom-left"
	DirectionBottomLeftToTopRight Direction = "bottom-left-to-top-right"
	DirectionBottomRightToTopLeft Direction = "bottom-right-to-top-left"
)

var directionVectors = map[Direction][2]float32{
	DirectionLeftToRight:          {1, 0},
	DirectionRightToLeft:          {-1, 0},
	DirectionTopToBottom:          {0, 1},
	DirectionBottomToTop:          {0, -1},
	DirectionTopLeftToBottomRight: {1, 1},
	DirectionTopRightToBottomLeft: {-1, 1},
	DirectionBottomLeftToTopRight: {1, -1},
	DirectionBottomRightToTopLeft: {-1, -1},
}

// Vec2 returns the sweep direction as written to the uniform buffer. Unknown values
// fall back to left-to-right.
func (d Direction) Vec2() [2]float32 {
	if v, ok := directionVectors[d]; ok {
		return v
	}
	return directionVectors[DirectionLeftToRight]
}

func (d *Direction) UnmarshalText(text []byte) error {
	if _, ok := directionVectors[Direction(text)]; !ok {
		return fmt.Errorf("unknown sweep direction %q", text)
	}
	*d = Direction(text)
	return nil
}

type EasingMode string

const (
	EasingLinear    EasingMode = "linear"
	EasingEaseIn    EasingMode = "ease-in"
	EasingEaseOut   EasingMode = "ease-out"
	EasingEaseInOut EasingMode = "ease-in-out"
)

func (m *EasingMode) UnmarshalText(text []byte) error {
	switch EasingMode(text) {
	case EasingLinear, EasingEaseIn, EasingEaseOut, EasingEaseInOut:
		*m = EasingMode(text)
		return nil
	}
	return fmt.Errorf("unknown easing %q", text)
}

// Apply maps linear progress t in [0, 1] onto the easing curve. The input is clamped,
// unknown modes use the cubic ease-in-out curve.
func (m EasingMode) Apply(t float32) float32 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}

	switch m {
	case EasingLinear:
		return t
	case EasingEaseIn:
		return t * t * t
	case EasingEaseOut:
		u := 1 - t
		return 1 - u*u*u
	default:
		if t < 0.5 {
			return 4 * t * t * t
		}
		return 1 - float32(math.Pow(float64(-2*t+2), 3))/2
	}
}
