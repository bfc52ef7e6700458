package imagedecode

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyString(t *testing.T) {
	k := Key{Path: "/walls/a.png", Width: 1920, Height: 1080}
	if got := k.String(); got != "/walls/a.png@1920x1080" {
		t.Fatalf("String() = %q", got)
	}
}

func TestFillRect(t *testing.T) {
	tests := []struct {
		name                   string
		srcW, srcH, dstW, dstH int
		want                   image.Rectangle
	}{
		{"same aspect", 200, 100, 100, 50, image.Rect(0, 0, 200, 100)},
		{"wider source", 400, 100, 100, 100, image.Rect(150, 0, 250, 100)},
		{"taller source", 100, 400, 100, 100, image.Rect(0, 150, 100, 250)},
		{"upscale", 10, 10, 100, 50, image.Rect(0, 2, 10, 7)},
		{"empty", 0, 10, 100, 50, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FillRect(tt.srcW, tt.srcH, tt.dstW, tt.dstH); got != tt.want {
				t.Fatalf("FillRect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScaleFillSize(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for i := range src.Pix {
		src.Pix[i] = 200
	}

	for _, size := range [][2]int{{32, 32}, {128, 16}, {64, 32}, {7, 3}} {
		dst := ScaleFill(src, size[0], size[1])
		if dst.Bounds().Dx() != size[0] || dst.Bounds().Dy() != size[1] {
			t.Fatalf("ScaleFill to %v gave %v", size, dst.Bounds())
		}
		if len(dst.Pix) != size[0]*size[1]*4 {
			t.Fatalf("unexpected pixel buffer length %d", len(dst.Pix))
		}
	}
}

func TestScaleFillCrops(t *testing.T) {
	// left half red, right half blue; a square target keeps only the middle
	src := image.NewRGBA(image.Rect(0, 0, 40, 10))
	for x := 0; x < 40; x++ {
		for y := 0; y < 10; y++ {
			c := color.RGBA{R: 255, A: 255}
			if x >= 20 {
				c = color.RGBA{B: 255, A: 255}
			}
			src.SetRGBA(x, y, c)
		}
	}

	dst := ScaleFill(src, 10, 10)
	if c := dst.RGBAAt(0, 5); c.R != 255 || c.B != 0 {
		t.Fatalf("left edge = %v, want red", c)
	}
	if c := dst.RGBAAt(9, 5); c.B != 255 || c.R != 0 {
		t.Fatalf("right edge = %v, want blue", c)
	}
}

func TestLanczosKernel(t *testing.T) {
	if lanczos3(0) != 1 {
		t.Fatal("kernel must be 1 at the origin")
	}
	for _, x := range []float64{1, 2, -1, -2, 3, 4} {
		if v := lanczos3(x); v > 1e-12 || v < -1e-12 {
			t.Fatalf("lanczos3(%v) = %v, want 0", x, v)
		}
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestDecode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.png")
	writePNG(t, path, 30, 20)

	res, err := Decode(path, 16, 9)
	if err != nil {
		t.Fatal(err)
	}
	if res.Width != 16 || res.Height != 9 || len(res.Pixels) != 16*9*4 {
		t.Fatalf("unexpected result %dx%d with %d bytes", res.Width, res.Height, len(res.Pixels))
	}
	if res.Key != (Key{Path: path, Width: 16, Height: 9}) {
		t.Fatalf("unexpected key %v", res.Key)
	}

	c := res.Clone()
	c.Pixels[0] = 0
	if res.Pixels[0] == 0 {
		t.Fatal("Clone shares the pixel buffer")
	}
}

func TestDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Decode(filepath.Join(dir, "missing.png"), 10, 10); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := Decode(garbage, 10, 10); err == nil {
		t.Error("expected an error for an undecodable file")
	}
	if _, err := Decode(garbage, 0, 10); err == nil {
		t.Error("expected an error for a zero size")
	}
}

func fakeDecode(calls *atomic.Int64, release <-chan struct{}) DecodeFunc {
	return func(path string, w, h int) (*Result, error) {
		calls.Add(1)
		if release != nil {
			<-release
		}
		if path == "bad" {
			return nil, errors.New("corrupt")
		}
		return &Result{
			Key:    Key{Path: path, Width: w, Height: h},
			Pixels: make([]byte, w*h*4),
			Width:  w,
			Height: h,
		}, nil
	}
}

func TestPoolRequest(t *testing.T) {
	var calls atomic.Int64
	p := NewPoolWith(2, 4, fakeDecode(&calls, nil))
	p.Start(context.Background())
	defer p.Close()

	key := Key{Path: "a", Width: 4, Height: 2}
	if !p.Request(key) {
		t.Fatal("first request should be queued")
	}

	select {
	case res := <-p.Results():
		if res.Key != key || len(res.Pixels) != 32 {
			t.Fatalf("unexpected result %+v", res.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
	}

	if p.Decoded() != 1 {
		t.Fatalf("Decoded() = %d, want 1", p.Decoded())
	}
}

func TestPoolRequestDeduplicates(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	p := NewPoolWith(1, 4, fakeDecode(&calls, release))
	p.Start(context.Background())
	defer p.Close()

	key := Key{Path: "a", Width: 1, Height: 1}
	if !p.Request(key) {
		t.Fatal("first request should be queued")
	}
	if p.Request(key) {
		t.Fatal("duplicate request should be rejected while pending")
	}
	if !p.Pending(key) {
		t.Fatal("key should be pending")
	}

	close(release)
	<-p.Results()

	if calls.Load() != 1 {
		t.Fatalf("decode ran %d times, want 1", calls.Load())
	}
}

func TestPoolDropsFailures(t *testing.T) {
	var calls atomic.Int64
	p := NewPoolWith(1, 4, fakeDecode(&calls, nil))
	p.Start(context.Background())
	defer p.Close()

	p.Request(Key{Path: "bad", Width: 1, Height: 1})
	p.Request(Key{Path: "good", Width: 1, Height: 1})

	select {
	case res := <-p.Results():
		if res.Key.Path != "good" {
			t.Fatalf("got result for %s, failures must be dropped", res.Key.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestPoolQueueFull(t *testing.T) {
	var calls atomic.Int64
	p := NewPoolWith(1, 1, fakeDecode(&calls, nil))
	// not started: nothing drains the queue

	if !p.Request(Key{Path: "a", Width: 1, Height: 1}) {
		t.Fatal("first request should fit")
	}
	if p.Request(Key{Path: "b", Width: 1, Height: 1}) {
		t.Fatal("second request should not fit")
	}
}

func TestLoadAtMostOneInFlight(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	p := NewPoolWith(1, 4, fakeDecode(&calls, release))

	const n = 8
	key := Key{Path: "a", Width: 2, Height: 2}

	var started, done sync.WaitGroup
	results := make([]*Result, n)
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			started.Done()
			res, err := p.Load(context.Background(), key)
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = res
		}()
	}

	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	if calls.Load() != 1 {
		t.Fatalf("decode ran %d times, want 1", calls.Load())
	}
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("caller %d got a different result", i)
		}
	}
}

func TestLoadCancelled(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	defer close(release)
	p := NewPoolWith(1, 1, fakeDecode(&calls, release))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Load(ctx, Key{Path: "a", Width: 1, Height: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestClosedPool(t *testing.T) {
	var calls atomic.Int64
	p := NewPoolWith(1, 1, fakeDecode(&calls, nil))
	p.Start(context.Background())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}

	if p.Request(Key{Path: "a", Width: 1, Height: 1}) {
		t.Fatal("closed pool must reject requests")
	}
	if _, err := p.Load(context.Background(), Key{Path: "a", Width: 1, Height: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}
