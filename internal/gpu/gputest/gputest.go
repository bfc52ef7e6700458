// Package gputest provides an in-memory gpu.Device that records what the renderer asks
// of it.
package gputest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/matjam/wayper/internal/gpu"
)

// Format is the surface format reported by configured surfaces.
const Format gpu.Format = 42

var ErrInjected = errors.New("injected failure")

type Draw struct {
	Surface  string
	Previous string
	Current  string
	Uniform  []byte
}

// Device is safe for concurrent use so tests can inspect it from any goroutine.
type Device struct {
	mu sync.Mutex

	// Fail* make the matching call return ErrInjected.
	FailSurface  bool
	FailPipeline bool
	FailTexture  bool
	FailDraw     bool

	surfaces   map[string]*Surface
	textures   []*Texture
	bindGroups []*BindGroup
	pipelines  int
	uniform    []byte
	draws      []Draw
	released   bool
}

var _ gpu.Device = (*Device)(nil)

func New() *Device {
	return &Device{surfaces: make(map[string]*Surface)}
}

func (d *Device) CreateSurface(label string, _ gpu.SurfaceTarget) (gpu.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailSurface {
		return nil, ErrInjected
	}
	s := &Surface{dev: d, Label: label}
	d.surfaces[label] = s
	return s, nil
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailPipeline {
		return nil, ErrInjected
	}
	if desc.Format != Format {
		return nil, fmt.Errorf("pipeline format %d does not match surface format %d", desc.Format, Format)
	}
	d.pipelines++
	return &Pipeline{dev: d, Desc: desc}, nil
}

func (d *Device) CreateTexture(label string, width, height int, rgba []byte) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.FailTexture {
		return nil, ErrInjected
	}
	if len(rgba) != width*height*4 {
		return nil, fmt.Errorf("texture %s: bad pixel buffer", label)
	}
	t := &Texture{Label: label, Width: width, Height: height, Pixels: append([]byte(nil), rgba...)}
	d.textures = append(d.textures, t)
	return t, nil
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

// Uploads is the number of textures created.
func (d *Device) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}

// Textures returns every texture ever created, including released ones.
func (d *Device) Textures() []*Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// LiveTextures counts textures that have not been released.
func (d *Device) LiveTextures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.textures {
		if !t.Released {
			n++
		}
	}
	return n
}

func (d *Device) BindGroups() []*BindGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*BindGroup(nil), d.bindGroups...)
}

func (d *Device) Pipelines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines
}

func (d *Device) Draws() []Draw {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Draw(nil), d.draws...)
}

func (d *Device) LastDraw() (Draw, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.draws) == 0 {
		return Draw{}, false
	}
	return d.draws[len(d.draws)-1], true
}

func (d *Device) Surface(label string) *Surface {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.surfaces[label]
}

func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

type Surface struct {
	dev      *Device
	Label    string
	Width    int
	Height   int
	Released bool
}

func (s *Surface) Configure(width, height int) (gpu.Format, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()

	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("invalid size %dx%d", width, height)
	}
	s.Width, s.Height = width, height
	return Format, nil
}

func (s *Surface) Release() {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	s.Released = true
}

type Texture struct {
	Label    string
	Width    int
	Height   int
	Pixels   []byte
	Released bool
}

func (t *Texture) Size() (int, int) {
	return t.Width, t.Height
}

func (t *Texture) Release() {
	t.Released = true
}

type BindGroup struct {
	Label    string
	Previous *Texture
	Current  *Texture
	Released bool
}

func (b *BindGroup) Release() {
	b.Released = true
}

type Pipeline struct {
	dev      *Device
	Desc     gpu.PipelineDesc
	Released bool
}

func (p *Pipeline) CreateBindGroup(label string, previous, current gpu.Texture) (gpu.BindGroup, error) {
	prev, ok := previous.(*Texture)
	if !ok || prev == nil {
		return nil, errors.New("previous texture is not a gputest texture")
	}
	curr, ok := current.(*Texture)
	if !ok || curr == nil {
		return nil, errors.New("current texture is not a gputest texture")
	}
	if prev.Released || curr.Released {
		return nil, gpu.ErrReleased
	}

	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	bg := &BindGroup{Label: label, Previous: prev, Current: curr}
	p.dev.bindGroups = append(p.dev.bindGroups, bg)
	return bg, nil
}

func (p *Pipeline) WriteUniform(data []byte) error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.dev.uniform = append(p.dev.uniform[:0], data...)
	return nil
}

func (p *Pipeline) Draw(surface gpu.Surface, group gpu.BindGroup) error {
	s, ok := surface.(*Surface)
	if !ok {
		return errors.New("surface is not a gputest surface")
	}
	bg, ok := group.(*BindGroup)
	if !ok {
		return errors.New("bind group is not a gputest bind group")
	}

	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()

	if p.dev.FailDraw {
		return ErrInjected
	}
	if s.Width == 0 {
		return gpu.ErrNotConfigured
	}
	if bg.Released || bg.Previous.Released || bg.Current.Released {
		return gpu.ErrReleased
	}

	p.dev.draws = append(p.dev.draws, Draw{
		Surface:  s.Label,
		Previous: bg.Previous.Label,
		Current:  bg.Current.Label,
		Uniform:  append([]byte(nil), p.dev.uniform...),
	})
	return nil
}

func (p *Pipeline) Release() {
	p.Released = true
}
