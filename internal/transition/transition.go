// Package transition tracks the progress of one wallpaper transition on one output.
package transition

import (
	"time"

	"github.com/matjam/wayper/internal/types"
)

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// State is pending until Start is called on the first frame, then running until the
// elapsed time reaches the duration.
type State struct {
	Kind      types.TransitionKind
	Direction types.Direction
	Easing    types.EasingMode

	duration  time.Duration
	fps       int
	now       Clock
	start     time.Time
	started   bool
	lastFrame time.Time
	rendered  bool
}

// New returns a pending transition. A zero fps disables throttling; a nil clock uses
// time.Now.
func New(kind types.TransitionKind, durationMS int, fps int, direction types.Direction, easing types.EasingMode, clock Clock) *State {
	if clock == nil {
		clock = time.Now
	}
	if durationMS < 0 {
		durationMS = 0
	}

	return &State{
		Kind:      kind,
		Direction: direction,
		Easing:    easing,
		duration:  time.Duration(durationMS) * time.Millisecond,
		fps:       fps,
		now:       clock,
	}
}

// Start latches the start time. Calls after the first have no effect.
func (s *State) Start() {
	if s.started {
		return
	}
	s.start = s.now()
	s.started = true
}

func (s *State) Started() bool {
	return s.started
}

func (s *State) Duration() time.Duration {
	return s.duration
}

func (s *State) Elapsed() time.Duration {
	if !s.started {
		return 0
	}
	d := s.now().Sub(s.start)
	if d < 0 {
		return 0
	}
	return d
}

// Progress is the linear progress in [0, 1].
func (s *State) Progress() float32 {
	if !s.started {
		return 0
	}
	if s.duration <= 0 {
		return 1
	}

	p := float64(s.Elapsed()) / float64(s.duration)
	if p > 1 {
		return 1
	}
	return float32(p)
}

// Eased is Progress remapped by the easing curve.
func (s *State) Eased() float32 {
	return s.Easing.Apply(s.Progress())
}

func (s *State) IsComplete() bool {
	return s.started && s.Elapsed() >= s.duration
}

// ShouldRenderFrame reports whether enough time passed since the last rendered frame
// for the target frame rate. A true result records now as the last frame.
func (s *State) ShouldRenderFrame() bool {
	now := s.now()

	if s.rendered && s.fps > 0 {
		interval := time.Second / time.Duration(s.fps)
		if now.Sub(s.lastFrame) < interval {
			return false
		}
	}

	s.lastFrame = now
	s.rendered = true
	return true
}

// Vec2 is the sweep direction written to the uniform block.
func (s *State) Vec2() [2]float32 {
	return s.Direction.Vec2()
}
