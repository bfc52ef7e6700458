package render

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/gpu/gputest"
	"github.com/matjam/wayper/internal/imagedecode"
	"github.com/matjam/wayper/internal/types"
)

// fakeLoader decodes instantly into solid pixels. Request publishes the result at once.
type fakeLoader struct {
	mu      sync.Mutex
	loads   map[imagedecode.Key]int
	fail    map[string]bool
	results chan *imagedecode.Result
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		loads:   make(map[imagedecode.Key]int),
		fail:    make(map[string]bool),
		results: make(chan *imagedecode.Result, 16),
	}
}

func (l *fakeLoader) decode(key imagedecode.Key) (*imagedecode.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fail[key.Path] {
		return nil, errors.New("corrupt image")
	}
	l.loads[key]++
	px := make([]byte, key.Width*key.Height*4)
	for i := range px {
		px[i] = 0xff
	}
	return &imagedecode.Result{Key: key, Pixels: px, Width: key.Width, Height: key.Height}, nil
}

func (l *fakeLoader) Request(key imagedecode.Key) bool {
	res, err := l.decode(key)
	if err != nil {
		return false
	}
	l.results <- res
	return true
}

func (l *fakeLoader) Load(_ context.Context, key imagedecode.Key) (*imagedecode.Result, error) {
	return l.decode(key)
}

func (l *fakeLoader) Results() <-chan *imagedecode.Result {
	return l.results
}

func (l *fakeLoader) count(key imagedecode.Key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[key]
}

func newTestEngine(t *testing.T, budget int64) (*Engine, *gputest.Device, *fakeLoader) {
	t.Helper()

	dev := gputest.New()
	loader := newFakeLoader()
	e := NewEngine(dev, loader, Options{TextureBudget: budget})

	if err := e.AddOutput("eDP-1", gpu.SurfaceTarget{}); err != nil {
		t.Fatal(err)
	}
	format, err := e.ConfigureSurface("eDP-1", 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.InitPipeline(format); err != nil {
		t.Fatal(err)
	}
	return e, dev, loader
}

func decodeUniform(t *testing.T, b []byte) TransitionParams {
	t.Helper()
	if len(b) != uniformSize {
		t.Fatalf("uniform is %d bytes, want %d", len(b), uniformSize)
	}
	kind := types.TransitionCrossfade
	if binary.LittleEndian.Uint32(b[4:]) == 1 {
		kind = types.TransitionSweep
	}
	return TransitionParams{
		Progress: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Kind:     kind,
		Direction: [2]float32{
			math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
			math.Float32frombits(binary.LittleEndian.Uint32(b[12:])),
		},
	}
}

func TestTransitionParamsBytes(t *testing.T) {
	b := TransitionParams{Progress: 0.25, Kind: types.TransitionSweep, Direction: [2]float32{-1, 1}}.Bytes()
	got := decodeUniform(t, b)
	if got.Progress != 0.25 || got.Kind != types.TransitionSweep || got.Direction != [2]float32{-1, 1} {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestQuadGeometry(t *testing.T) {
	v := vertexBytes()
	if len(v) != 4*vertexStride {
		t.Fatalf("vertex buffer is %d bytes", len(v))
	}
	// second vertex: (1, -1) with uv (1, 1)
	x := math.Float32frombits(binary.LittleEndian.Uint32(v[16:]))
	u := math.Float32frombits(binary.LittleEndian.Uint32(v[24:]))
	if x != 1 || u != 1 {
		t.Fatalf("vertex 1 = x %v u %v", x, u)
	}

	idx := indexBytes()
	want := []uint16{0, 1, 2, 0, 2, 3}
	for i, w := range want {
		if got := binary.LittleEndian.Uint16(idx[i*2:]); got != w {
			t.Fatalf("index %d = %d, want %d", i, got, w)
		}
	}
}

func TestNotReady(t *testing.T) {
	dev := gputest.New()
	e := NewEngine(dev, newFakeLoader(), Options{})

	if err := e.RenderToOutput("eDP-1", "a.png"); !errors.Is(err, ErrUnknownOutput) {
		t.Fatalf("unknown output: err = %v", err)
	}

	if err := e.AddOutput("eDP-1", gpu.SurfaceTarget{}); err != nil {
		t.Fatal(err)
	}
	if err := e.RenderToOutput("eDP-1", "a.png"); !IsNotReady(err) {
		t.Fatalf("no pipeline: err = %v", err)
	}

	format, err := e.ConfigureSurface("eDP-1", 4, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.InitPipeline(format); err != nil {
		t.Fatal(err)
	}
	if err := e.InitPipeline(format); err != nil {
		t.Fatal(err)
	}
	if dev.Pipelines() != 1 {
		t.Fatalf("InitPipeline created %d pipelines, want 1", dev.Pipelines())
	}

	if err := e.AddOutput("HDMI-A-1", gpu.SurfaceTarget{}); err != nil {
		t.Fatal(err)
	}
	if err := e.RenderToOutput("HDMI-A-1", "a.png"); !IsNotReady(err) {
		t.Fatalf("unconfigured surface: err = %v", err)
	}
}

func TestStaticRender(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)

	if m := e.Metrics(); m.TotalFramesRendered != 0 || m.TotalTexturesLoaded != 0 {
		t.Fatalf("metrics before render = %+v", m)
	}

	if err := e.RenderToOutput("eDP-1", "/walls/a.png"); err != nil {
		t.Fatal(err)
	}

	d, ok := dev.LastDraw()
	if !ok {
		t.Fatal("nothing was drawn")
	}
	if d.Surface != "eDP-1" || d.Current != "/walls/a.png@4x2" || d.Previous != "__dummy_black__@4x2" {
		t.Fatalf("draw = %+v", d)
	}
	if p := decodeUniform(t, d.Uniform); p.Progress != 1 || p.Kind != types.TransitionCrossfade {
		t.Fatalf("static render uniform = %+v", p)
	}

	m := e.Metrics()
	if m.TotalFramesRendered != 1 || m.TotalTexturesLoaded < 1 {
		t.Fatalf("metrics after render = %+v", m)
	}
}

func TestTextureCacheIdempotence(t *testing.T) {
	e, dev, loader := newTestEngine(t, 0)

	a := "/walls/a.png"
	for i := 0; i < 3; i++ {
		if err := e.RenderToOutput("eDP-1", a); err != nil {
			t.Fatal(err)
		}
	}

	m := e.Metrics()
	// a and the dummy miss once each, then hit twice each
	if m.TextureCacheMisses != 2 || m.TextureCacheHits != 4 {
		t.Fatalf("texture hits/misses = %d/%d", m.TextureCacheHits, m.TextureCacheMisses)
	}
	if dev.Uploads() != 2 || m.TextureCacheSize != 2 {
		t.Fatalf("uploads = %d, cache size = %d", dev.Uploads(), m.TextureCacheSize)
	}
	if n := loader.count(imagedecode.Key{Path: a, Width: 4, Height: 2}); n != 1 {
		t.Fatalf("decoded %d times, want 1", n)
	}
	if m.BindGroupCacheMisses != 1 || m.BindGroupCacheHits != 2 || m.BindGroupCacheSize != 1 {
		t.Fatalf("bind group metrics = %+v", m)
	}
}

func TestDistinctSizesAreDistinctTextures(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)

	if err := e.AddOutput("HDMI-A-1", gpu.SurfaceTarget{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.ConfigureSurface("HDMI-A-1", 8, 4); err != nil {
		t.Fatal(err)
	}

	for _, out := range []string{"eDP-1", "HDMI-A-1"} {
		if err := e.RenderToOutput(out, "/walls/a.png"); err != nil {
			t.Fatal(err)
		}
	}

	// two images and two dummies
	if dev.Uploads() != 4 {
		t.Fatalf("uploads = %d, want 4", dev.Uploads())
	}
}

func TestTransitionFrame(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)

	prev := "/walls/a.png"
	dir := types.DirectionTopToBottom.Vec2()
	if err := e.RenderFrame("eDP-1", &prev, "/walls/b.png", 0.5, types.TransitionSweep, dir); err != nil {
		t.Fatal(err)
	}

	d, _ := dev.LastDraw()
	if d.Previous != "/walls/a.png@4x2" || d.Current != "/walls/b.png@4x2" {
		t.Fatalf("draw = %+v", d)
	}
	p := decodeUniform(t, d.Uniform)
	if p.Progress != 0.5 || p.Kind != types.TransitionSweep || p.Direction != dir {
		t.Fatalf("uniform = %+v", p)
	}

	// the reverse pair is a different bind group
	curr := "/walls/b.png"
	if err := e.RenderFrame("eDP-1", &curr, prev, 0.5, types.TransitionCrossfade, dir); err != nil {
		t.Fatal(err)
	}
	if n := len(dev.BindGroups()); n != 2 {
		t.Fatalf("bind groups = %d, want 2", n)
	}
}

func TestMissingTextureIsAnError(t *testing.T) {
	e, _, _ := newTestEngine(t, 0)

	_, err := e.bindGroups.getOrCreate(e.pipeline, e.textures, "nope@1x1", "other@1x1")
	if !errors.Is(err, ErrMissingTexture) {
		t.Fatalf("err = %v, want ErrMissingTexture", err)
	}
}

func TestDecodeFailureIsReported(t *testing.T) {
	e, dev, loader := newTestEngine(t, 0)
	loader.fail["/walls/bad.png"] = true

	if err := e.RenderToOutput("eDP-1", "/walls/bad.png"); err == nil || !strings.Contains(err.Error(), "corrupt") {
		t.Fatalf("err = %v", err)
	}
	if len(dev.Draws()) != 0 {
		t.Fatal("a failed load must not draw")
	}
}

func TestDrawFailureKeepsLastFrame(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)
	if err := e.RenderToOutput("eDP-1", "/walls/a.png"); err != nil {
		t.Fatal(err)
	}

	dev.FailDraw = true
	if err := e.RenderToOutput("eDP-1", "/walls/b.png"); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("err = %v", err)
	}
	if e.Metrics().TotalFramesRendered != 1 {
		t.Fatal("failed frame must not be counted")
	}
}

func TestPreloadAndProcess(t *testing.T) {
	e, dev, loader := newTestEngine(t, 0)

	if !e.RequestTextureLoad("eDP-1", "/walls/next.png") {
		t.Fatal("request should be queued")
	}
	if n := e.ProcessLoadedTextures(); n != 1 {
		t.Fatalf("ProcessLoadedTextures() = %d, want 1", n)
	}
	if e.RequestTextureLoad("eDP-1", "/walls/next.png") {
		t.Fatal("resident texture should short-circuit the request")
	}
	if e.RequestTextureLoad("DP-9", "/walls/next.png") {
		t.Fatal("unknown output should not queue a load")
	}

	if err := e.RenderToOutput("eDP-1", "/walls/next.png"); err != nil {
		t.Fatal(err)
	}
	if n := loader.count(imagedecode.Key{Path: "/walls/next.png", Width: 4, Height: 2}); n != 1 {
		t.Fatalf("decoded %d times, want 1", n)
	}
	if e.Metrics().TextureCacheHits != 1 {
		t.Fatalf("preloaded texture should hit, metrics = %+v", e.Metrics())
	}
	if dev.Uploads() != 2 {
		t.Fatalf("uploads = %d, want 2", dev.Uploads())
	}
}

func TestStaleResultsDropped(t *testing.T) {
	e, dev, loader := newTestEngine(t, 0)

	// resident already
	if err := e.RenderToOutput("eDP-1", "/walls/a.png"); err != nil {
		t.Fatal(err)
	}
	loader.Request(imagedecode.Key{Path: "/walls/a.png", Width: 4, Height: 2})
	// no output has this size any more
	loader.Request(imagedecode.Key{Path: "/walls/b.png", Width: 100, Height: 100})

	if n := e.ProcessLoadedTextures(); n != 0 {
		t.Fatalf("ProcessLoadedTextures() = %d, want 0", n)
	}
	if dev.Uploads() != 2 {
		t.Fatalf("uploads = %d, want 2", dev.Uploads())
	}
}

func TestBudgetEvictsOffscreenTextures(t *testing.T) {
	// each 4x2 texture is 32 bytes; room for on-screen pair plus one
	e, dev, _ := newTestEngine(t, 96)

	for _, p := range []string{"/w/a.png", "/w/b.png", "/w/c.png", "/w/d.png"} {
		if err := e.RenderToOutput("eDP-1", p); err != nil {
			t.Fatal(err)
		}
	}

	m := e.Metrics()
	if m.TextureCacheBytes > 96 {
		t.Fatalf("cache holds %d bytes, budget 96", m.TextureCacheBytes)
	}
	if m.TextureCacheEvictions == 0 {
		t.Fatal("expected evictions")
	}
	if !e.textures.contains("/w/d.png@4x2") || !e.textures.contains(dummyKey(4, 2)) {
		t.Fatal("on-screen textures must stay resident")
	}

	// bind groups of evicted textures are gone and released
	for _, bg := range dev.BindGroups() {
		if bg.Current.Released && !bg.Released {
			t.Fatalf("bind group %s outlived its texture", bg.Label)
		}
	}
	if m.BindGroupCacheSize >= 4 {
		t.Fatalf("bind group cache size = %d", m.BindGroupCacheSize)
	}
}

func TestRenderBlack(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)

	if err := e.RenderBlack("eDP-1"); err != nil {
		t.Fatal(err)
	}
	d, _ := dev.LastDraw()
	if d.Current != dummyKey(4, 2) || d.Previous != dummyKey(4, 2) {
		t.Fatalf("draw = %+v", d)
	}
}

func TestRemoveOutputAndClose(t *testing.T) {
	e, dev, _ := newTestEngine(t, 0)
	if err := e.RenderToOutput("eDP-1", "/walls/a.png"); err != nil {
		t.Fatal(err)
	}

	e.RemoveOutput("eDP-1")
	if e.HasOutput("eDP-1") || !dev.Surface("eDP-1").Released {
		t.Fatal("surface should be released on removal")
	}

	e.Close()
	if dev.LiveTextures() != 0 || !dev.Released() {
		t.Fatalf("Close left %d live textures", dev.LiveTextures())
	}
}
