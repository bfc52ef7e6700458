// Package imagedecode turns image files into RGBA pixel buffers of an exact size, off the
// render thread.
package imagedecode

import (
	"fmt"
	"image"
	"os"

	"github.com/charmbracelet/log"
)

// Key identifies a decoded image: the same file at two output sizes is two keys.
type Key struct {
	Path   string
	Width  int
	Height int
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%dx%d", k.Path, k.Width, k.Height)
}

type Result struct {
	Key    Key
	Pixels []byte
	Width  int
	Height int
}

func (r *Result) Clone() *Result {
	c := *r
	c.Pixels = append([]byte(nil), r.Pixels...)
	return &c
}

// Decode loads path and scales it to fill width×height. Decoders are registered by the
// binary through blank imports.
func Decode(path string, width, height int) (*Result, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decode %s: invalid target size %dx%d", path, width, height)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	b := img.Bounds()
	log.Debug("decoded image", "path", path, "format", format, "source", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()), "target", fmt.Sprintf("%dx%d", width, height))

	scaled := ScaleFill(img, width, height)

	return &Result{
		Key:    Key{Path: path, Width: width, Height: height},
		Pixels: scaled.Pix,
		Width:  width,
		Height: height,
	}, nil
}
