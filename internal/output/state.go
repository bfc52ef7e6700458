// Package output holds the per-display state: the image schedule, the switch timer, the
// running transition and the lookup map the event loop uses to find outputs.
package output

import (
	"time"

	"github.com/matjam/wayper/internal/config"
	"github.com/matjam/wayper/internal/transition"
)

type State struct {
	Name      string
	OutputID  uint32
	SurfaceID uint32

	Config config.Resolved

	Width  int
	Height int
	Scale  int

	Visible bool
	// ShouldNext is set by the timer or a ping and consumed by the next frame.
	ShouldNext bool
	// FirstConfigure stays set until the first image switch completes. While set,
	// Next and PeekNext yield the first image and there is no previous image.
	FirstConfigure bool

	index  int
	images []string

	LastRender time.Time
	FrameCount uint64
	CreatedAt  time.Time

	Transition *transition.State
	Timer      *Timer
}

func NewState(name string, outputID uint32, cfg config.Resolved, images []string) *State {
	return &State{
		Name:           name,
		OutputID:       outputID,
		Config:         cfg,
		Scale:          1,
		Visible:        true,
		FirstConfigure: true,
		images:         images,
		CreatedAt:      time.Now(),
	}
}

func (s *State) nextIndex() int {
	if s.FirstConfigure || s.index >= len(s.images)-1 {
		return 0
	}
	return s.index + 1
}

// Next advances the index circularly and returns the image now current.
func (s *State) Next() (string, bool) {
	if len(s.images) == 0 {
		return "", false
	}
	s.index = s.nextIndex()
	return s.images[s.index], true
}

// PeekNext returns what Next would return without advancing.
func (s *State) PeekNext() (string, bool) {
	if len(s.images) == 0 {
		return "", false
	}
	return s.images[s.nextIndex()], true
}

func (s *State) Current() (string, bool) {
	if len(s.images) == 0 {
		return "", false
	}
	if s.FirstConfigure {
		return s.images[0], true
	}
	return s.images[s.index], true
}

// Previous is the image before the current one, wrapping at the start of the list.
// There is none until the first switch completes.
func (s *State) Previous() (string, bool) {
	if len(s.images) == 0 || s.FirstConfigure {
		return "", false
	}
	if s.index == 0 {
		return s.images[len(s.images)-1], true
	}
	return s.images[s.index-1], true
}

func (s *State) Index() int {
	return s.index
}

func (s *State) Images() []string {
	return s.images
}

// SetImages replaces the image list and restarts the schedule from its first entry.
func (s *State) SetImages(images []string) {
	s.images = images
	s.index = 0
	s.Transition = nil
}

// ToggleVisible flips visibility and returns the new value.
func (s *State) ToggleVisible() bool {
	s.Visible = !s.Visible
	return s.Visible
}

type ConfigChange struct {
	Path     bool
	Duration bool
}

// UpdateConfig swaps in a newly resolved config and reports what the caller has to
// rebuild.
func (s *State) UpdateConfig(cfg config.Resolved) ConfigChange {
	change := ConfigChange{
		Path:     cfg.Path != s.Config.Path,
		Duration: cfg.Duration != s.Config.Duration,
	}
	s.Config = cfg
	return change
}

// PixelSize is the surface size in buffer pixels.
func (s *State) PixelSize() (int, int) {
	scale := s.Scale
	if scale < 1 {
		scale = 1
	}
	return s.Width * scale, s.Height * scale
}
