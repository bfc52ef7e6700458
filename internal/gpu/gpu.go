// Package gpu is the narrow interface the renderer needs from a GPU API. Backends live
// in sub-packages; gputest provides a recording fake.
package gpu

import (
	"errors"
	"unsafe"
)

var (
	ErrNoAdapter     = errors.New("no compatible GPU adapter")
	ErrNoDevice      = errors.New("GPU device has not been created")
	ErrReleased      = errors.New("GPU resource was released")
	ErrNotConfigured = errors.New("surface is not configured")
)

// Format is a backend specific surface texture format.
type Format uint32

type PresentMode string

const (
	PresentModeMailbox   PresentMode = "mailbox"
	PresentModeFifo      PresentMode = "fifo"
	PresentModeImmediate PresentMode = "immediate"
)

// SurfaceTarget carries the native compositor handles a surface is created from. The
// caller keeps both alive until the Surface made from them is released.
type SurfaceTarget struct {
	Display unsafe.Pointer
	Surface unsafe.Pointer
}

type Device interface {
	// CreateSurface wraps a native surface. The first surface also selects the adapter
	// and creates the device every later resource is made on.
	CreateSurface(label string, target SurfaceTarget) (Surface, error)
	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	// CreateTexture uploads tightly packed RGBA8 pixels.
	CreateTexture(label string, width, height int, rgba []byte) (Texture, error)
	Release()
}

type Surface interface {
	// Configure sizes the swapchain and returns the surface format the pipeline must
	// render to.
	Configure(width, height int) (Format, error)
	Release()
}

type Texture interface {
	Size() (width, height int)
	Release()
}

type BindGroup interface {
	Release()
}

// Pipeline draws a textured quad blending two textures with a uniform block.
type Pipeline interface {
	CreateBindGroup(label string, previous, current Texture) (BindGroup, error)
	WriteUniform(data []byte) error
	// Draw clears the next surface texture to black, draws the quad and presents it.
	Draw(surface Surface, group BindGroup) error
	Release()
}

type PipelineDesc struct {
	Label        string
	Format       Format
	Shader       string
	VertexEntry  string
	FragEntry    string
	Vertices     []byte
	VertexStride uint64
	Indices      []byte
	IndexCount   uint32
	UniformSize  uint64
}
