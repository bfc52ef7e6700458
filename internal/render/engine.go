package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/imagedecode"
	"github.com/matjam/wayper/internal/metrics"
	"github.com/matjam/wayper/internal/types"
)

const DefaultLoadTimeout = 30 * time.Second

type Options struct {
	// TextureBudget caps the bytes of resident textures. 0 is unbounded.
	TextureBudget int64
	// LoadTimeout bounds a synchronous decode on a cache miss.
	LoadTimeout time.Duration
}

type outputSurface struct {
	name       string
	surface    gpu.Surface
	width      int
	height     int
	format     gpu.Format
	configured bool

	// texture keys of the last frame drawn
	previous string
	current  string
}

// Engine owns the device, the shared pipeline, one surface per output and the caches.
// It is not safe for concurrent use: every method runs on the event loop.
type Engine struct {
	device   gpu.Device
	loader   Loader
	pipeline gpu.Pipeline
	format   gpu.Format
	opts     Options

	outputs    map[string]*outputSurface
	textures   *textureCache
	bindGroups *bindGroupCache
	metrics    *metrics.GPU
}

func NewEngine(device gpu.Device, loader Loader, opts Options) *Engine {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}

	m := &metrics.GPU{}
	e := &Engine{
		device:     device,
		loader:     loader,
		opts:       opts,
		outputs:    make(map[string]*outputSurface),
		textures:   newTextureCache(device, loader, opts.TextureBudget, m),
		bindGroups: newBindGroupCache(m),
		metrics:    m,
	}
	e.textures.onRemove = e.bindGroups.dropTexture
	return e
}

// AddOutput creates the GPU surface for an output. The first output also binds the
// adapter and device.
func (e *Engine) AddOutput(name string, target gpu.SurfaceTarget) error {
	if old, ok := e.outputs[name]; ok {
		log.Warnf("replacing surface for output %s", name)
		old.surface.Release()
		delete(e.outputs, name)
	}

	surface, err := e.device.CreateSurface(name, target)
	if err != nil {
		return fmt.Errorf("create surface for %s: %w", name, err)
	}

	e.outputs[name] = &outputSurface{name: name, surface: surface}
	return nil
}

func (e *Engine) RemoveOutput(name string) {
	out, ok := e.outputs[name]
	if !ok {
		return
	}
	out.surface.Release()
	delete(e.outputs, name)
	e.protectInUse()
}

func (e *Engine) HasOutput(name string) bool {
	_, ok := e.outputs[name]
	return ok
}

// ConfigureSurface sizes the output's swapchain. It is called on the first configure
// event and on every resize.
func (e *Engine) ConfigureSurface(name string, width, height int) (gpu.Format, error) {
	out, ok := e.outputs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
	}

	format, err := out.surface.Configure(width, height)
	if err != nil {
		return 0, fmt.Errorf("configure surface %s: %w", name, err)
	}

	out.width, out.height = width, height
	out.format = format
	out.configured = true
	return format, nil
}

// InitPipeline creates the shared pipeline for the given surface format. Later calls
// are no-ops.
func (e *Engine) InitPipeline(format gpu.Format) error {
	if e.pipeline != nil {
		if format != e.format {
			log.Warnf("surface format %d differs from pipeline format %d", format, e.format)
		}
		return nil
	}

	p, err := e.device.CreatePipeline(gpu.PipelineDesc{
		Label:        "wallpaper",
		Format:       format,
		Shader:       shaderSource,
		VertexEntry:  "vs_main",
		FragEntry:    "fs_main",
		Vertices:     vertexBytes(),
		VertexStride: vertexStride,
		Indices:      indexBytes(),
		IndexCount:   uint32(len(quadIndices)),
		UniformSize:  uniformSize,
	})
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	e.pipeline = p
	e.format = format
	log.Infof("render pipeline initialized")
	return nil
}

func (e *Engine) target(name string) (*outputSurface, error) {
	out, ok := e.outputs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
	}
	if e.pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline not initialized", ErrNotReady)
	}
	if !out.configured {
		return nil, fmt.Errorf("%w: surface %s not configured", ErrNotReady, name)
	}
	return out, nil
}

// RenderFrame draws one frame blending previous into current at progress. A nil
// previous blends from black.
func (e *Engine) RenderFrame(name string, previous *string, current string, progress float32, kind types.TransitionKind, direction [2]float32) error {
	out, err := e.target(name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.LoadTimeout)
	defer cancel()

	currKey, _, err := e.textures.getOrLoad(ctx, current, out.width, out.height)
	if err != nil {
		return err
	}
	// keep the current image resident while the previous one is loaded
	e.protectInUse(currKey)

	var prevKey string
	if previous != nil {
		prevKey, _, err = e.textures.getOrLoad(ctx, *previous, out.width, out.height)
	} else {
		prevKey, _, err = e.textures.getOrCreateDummy(out.width, out.height)
	}
	if err != nil {
		return err
	}
	e.protectInUse(currKey, prevKey)

	bg, err := e.bindGroups.getOrCreate(e.pipeline, e.textures, prevKey, currKey)
	if err != nil {
		return err
	}

	params := TransitionParams{Progress: progress, Kind: kind, Direction: direction}
	if err := e.pipeline.WriteUniform(params.Bytes()); err != nil {
		return fmt.Errorf("write uniform: %w", err)
	}
	if err := e.pipeline.Draw(out.surface, bg); err != nil {
		return fmt.Errorf("draw %s: %w", name, err)
	}

	out.previous, out.current = prevKey, currKey
	e.protectInUse()
	e.metrics.FramesRendered.Add(1)
	return nil
}

// RenderToOutput draws path statically.
func (e *Engine) RenderToOutput(name, path string) error {
	return e.RenderFrame(name, nil, path, 1.0, types.TransitionCrossfade, types.DirectionLeftToRight.Vec2())
}

// RenderBlack clears the output to black, used for hidden outputs.
func (e *Engine) RenderBlack(name string) error {
	out, err := e.target(name)
	if err != nil {
		return err
	}

	key, _, err := e.textures.getOrCreateDummy(out.width, out.height)
	if err != nil {
		return err
	}
	e.protectInUse(key)

	bg, err := e.bindGroups.getOrCreate(e.pipeline, e.textures, key, key)
	if err != nil {
		return err
	}
	if err := e.pipeline.WriteUniform(TransitionParams{Progress: 1}.Bytes()); err != nil {
		return fmt.Errorf("write uniform: %w", err)
	}
	if err := e.pipeline.Draw(out.surface, bg); err != nil {
		return fmt.Errorf("draw %s: %w", name, err)
	}

	out.previous, out.current = key, key
	e.protectInUse()
	e.metrics.FramesRendered.Add(1)
	return nil
}

// RequestTextureLoad queues a background decode of path at the output's size. It
// returns false when the texture is already resident or the request was not queued.
func (e *Engine) RequestTextureLoad(name, path string) bool {
	out, ok := e.outputs[name]
	if !ok || !out.configured {
		return false
	}

	key := imagedecode.Key{Path: path, Width: out.width, Height: out.height}
	if e.textures.contains(key.String()) {
		return false
	}
	return e.loader.Request(key)
}

// ProcessLoadedTextures uploads every finished background decode without blocking.
// Results already resident, or sized for no current output, are dropped.
func (e *Engine) ProcessLoadedTextures() int {
	n := 0
	for {
		select {
		case res, ok := <-e.loader.Results():
			if !ok {
				return n
			}
			if !e.wanted(res) {
				log.Debug("dropping stale decode", "key", res.Key)
				continue
			}
			if _, err := e.textures.insert(res); err != nil {
				log.Errorf("failed to upload %s: %v", res.Key, err)
				continue
			}
			n++
		default:
			return n
		}
	}
}

func (e *Engine) wanted(res *imagedecode.Result) bool {
	if e.textures.contains(res.Key.String()) {
		return false
	}
	for _, out := range e.outputs {
		if out.configured && out.width == res.Width && out.height == res.Height {
			return true
		}
	}
	return false
}

// protectInUse pins the textures on screen on every output plus extra.
func (e *Engine) protectInUse(extra ...string) {
	keys := append([]string(nil), extra...)
	for _, out := range e.outputs {
		if out.previous != "" {
			keys = append(keys, out.previous)
		}
		if out.current != "" {
			keys = append(keys, out.current)
		}
	}
	e.textures.protect(keys...)
}

// OutputSize returns the configured pixel size of an output.
func (e *Engine) OutputSize(name string) (int, int, bool) {
	out, ok := e.outputs[name]
	if !ok || !out.configured {
		return 0, 0, false
	}
	return out.width, out.height, true
}

func (e *Engine) Metrics() metrics.Snapshot {
	return e.metrics.Snapshot(e.textures.len(), e.bindGroups.len(), e.textures.bytes())
}

func (e *Engine) LogMetrics() {
	e.Metrics().Log()
}

// IsNotReady reports whether err only means the frame should be retried later.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

func (e *Engine) Close() {
	e.bindGroups.purge()
	e.textures.purge()

	if e.pipeline != nil {
		e.pipeline.Release()
		e.pipeline = nil
	}
	for name, out := range e.outputs {
		out.surface.Release()
		delete(e.outputs, name)
	}
	e.device.Release()
}
