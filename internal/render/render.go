// Package render draws wallpapers and transitions onto output surfaces, keeping the GPU
// textures and bind groups it needs cached between frames.
package render

import (
	"context"
	_ "embed"
	"encoding/binary"
	"errors"
	"math"

	"github.com/matjam/wayper/internal/imagedecode"
	"github.com/matjam/wayper/internal/types"
)

var (
	// ErrNotReady means the device, pipeline or surface configuration is missing. The
	// frame should be skipped and tried again on the next callback.
	ErrNotReady = errors.New("renderer is not ready")
	// ErrMissingTexture means a bind group was requested for a texture that is not
	// resident, which is a caller ordering bug.
	ErrMissingTexture = errors.New("texture is not in the cache")
	ErrUnknownOutput  = errors.New("unknown output")
)

//go:embed shader.wgsl
var shaderSource string

// Loader produces decoded images for the texture cache. Request queues a background
// decode, Load decodes synchronously and Results carries finished background decodes.
type Loader interface {
	Request(key imagedecode.Key) bool
	Load(ctx context.Context, key imagedecode.Key) (*imagedecode.Result, error)
	Results() <-chan *imagedecode.Result
}

// TransitionParams is the uniform block read by the fragment stage.
type TransitionParams struct {
	Progress  float32
	Kind      types.TransitionKind
	Direction [2]float32
}

const uniformSize = 16

// Bytes encodes the block in the layout of the shader struct.
func (p TransitionParams) Bytes() []byte {
	b := make([]byte, uniformSize)
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(p.Progress))
	binary.LittleEndian.PutUint32(b[4:], p.Kind.Uint32())
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(p.Direction[0]))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(p.Direction[1]))
	return b
}

// Full screen quad: clip space position followed by texture coordinates.
var quadVertices = [4][4]float32{
	{-1, -1, 0, 1},
	{1, -1, 1, 1},
	{1, 1, 1, 0},
	{-1, 1, 0, 0},
}

var quadIndices = [6]uint16{0, 1, 2, 0, 2, 3}

const vertexStride = 16

func vertexBytes() []byte {
	b := make([]byte, 0, len(quadVertices)*vertexStride)
	for _, v := range quadVertices {
		for _, f := range v {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	return b
}

func indexBytes() []byte {
	b := make([]byte, 0, len(quadIndices)*2)
	for _, i := range quadIndices {
		b = binary.LittleEndian.AppendUint16(b, i)
	}
	return b
}
