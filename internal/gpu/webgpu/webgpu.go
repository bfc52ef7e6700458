// Package webgpu implements the gpu interfaces on top of wgpu-native.
package webgpu

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/matjam/wayper/internal/gpu"
)

// Device owns the instance and, once the first surface exists, the adapter, device and
// queue shared by every output. All methods must be called from the render thread.
type Device struct {
	instance    *wgpu.Instance
	adapter     *wgpu.Adapter
	device      *wgpu.Device
	queue       *wgpu.Queue
	presentMode gpu.PresentMode
}

var _ gpu.Device = (*Device)(nil)

func New(presentMode gpu.PresentMode) *Device {
	return &Device{
		instance:    wgpu.CreateInstance(nil),
		presentMode: presentMode,
	}
}

func (d *Device) CreateSurface(label string, target gpu.SurfaceTarget) (gpu.Surface, error) {
	if target.Display == nil || target.Surface == nil {
		return nil, fmt.Errorf("surface %s: missing native handles", label)
	}

	s := d.instance.CreateSurface(&wgpu.SurfaceDescriptor{
		WaylandSurface: &wgpu.SurfaceDescriptorFromWaylandSurface{
			Display: target.Display,
			Surface: target.Surface,
		},
	})
	if s == nil {
		return nil, fmt.Errorf("surface %s: creation failed", label)
	}

	if d.device == nil {
		if err := d.bind(s); err != nil {
			s.Release()
			return nil, err
		}
	}

	return &Surface{dev: d, surface: s, label: label}, nil
}

func (d *Device) bind(s *wgpu.Surface) error {
	adapter, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: s,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", gpu.ErrNoAdapter, err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "wayper device",
	})
	if err != nil {
		adapter.Release()
		return fmt.Errorf("request device: %w", err)
	}

	d.adapter = adapter
	d.device = device
	d.queue = device.GetQueue()
	log.Infof("GPU device ready")
	return nil
}

func (d *Device) CreateTexture(label string, width, height int, rgba []byte) (gpu.Texture, error) {
	if d.device == nil {
		return nil, gpu.ErrNoDevice
	}
	if width <= 0 || height <= 0 || len(rgba) != width*height*4 {
		return nil, fmt.Errorf("texture %s: %d bytes do not make a %dx%d RGBA image", label, len(rgba), width, height)
	}

	size := wgpu.Extent3D{
		Width:              uint32(width),
		Height:             uint32(height),
		DepthOrArrayLayers: 1,
	}

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        wgpu.TextureFormatRGBA8UnormSrgb,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", label, err)
	}

	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		rgba,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(width) * 4,
			RowsPerImage: uint32(height),
		},
		&size,
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create texture view %s: %w", label, err)
	}

	return &Texture{tex: tex, view: view, width: width, height: height}, nil
}

func (d *Device) Release() {
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

type Surface struct {
	dev        *Device
	surface    *wgpu.Surface
	label      string
	configured bool
}

func (s *Surface) Configure(width, height int) (gpu.Format, error) {
	if s.dev.device == nil {
		return 0, gpu.ErrNoDevice
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("surface %s: invalid size %dx%d", s.label, width, height)
	}

	caps := s.surface.GetCapabilities(s.dev.adapter)
	if len(caps.Formats) == 0 || len(caps.AlphaModes) == 0 {
		return 0, fmt.Errorf("surface %s: adapter reports no usable formats", s.label)
	}

	format := caps.Formats[0]
	for _, f := range caps.Formats {
		if f == wgpu.TextureFormatBGRA8UnormSrgb || f == wgpu.TextureFormatRGBA8UnormSrgb {
			format = f
			break
		}
	}

	s.surface.Configure(s.dev.adapter, s.dev.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: pickPresentMode(s.dev.presentMode, caps.PresentModes),
		AlphaMode:   caps.AlphaModes[0],
	})
	s.configured = true

	log.Debug("configured surface", "surface", s.label, "width", width, "height", height, "format", format)
	return gpu.Format(format), nil
}

func (s *Surface) Release() {
	if s.surface != nil {
		s.surface.Release()
		s.surface = nil
	}
	s.configured = false
}

func pickPresentMode(want gpu.PresentMode, supported []wgpu.PresentMode) wgpu.PresentMode {
	mode := wgpu.PresentModeMailbox
	switch want {
	case gpu.PresentModeFifo:
		mode = wgpu.PresentModeFifo
	case gpu.PresentModeImmediate:
		mode = wgpu.PresentModeImmediate
	}

	for _, m := range supported {
		if m == mode {
			return m
		}
	}
	if mode != wgpu.PresentModeFifo {
		log.Warnf("present mode %s is not supported, falling back to fifo", want)
	}
	return wgpu.PresentModeFifo
}

type Texture struct {
	tex    *wgpu.Texture
	view   *wgpu.TextureView
	width  int
	height int
}

func (t *Texture) Size() (int, int) {
	return t.width, t.height
}

func (t *Texture) Release() {
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}
