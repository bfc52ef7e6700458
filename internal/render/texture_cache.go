package render

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matjam/wayper/internal/cache"
	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/imagedecode"
	"github.com/matjam/wayper/internal/metrics"
)

const dummyPath = "__dummy_black__"

func dummyKey(width, height int) string {
	return imagedecode.Key{Path: dummyPath, Width: width, Height: height}.String()
}

// textureCache maps path@WxH to an uploaded texture. Each key is uploaded once for as
// long as it stays resident.
type textureCache struct {
	device  gpu.Device
	loader  Loader
	lru     *cache.LRU[string, gpu.Texture]
	metrics *metrics.GPU

	// called with the key of every texture leaving the cache
	onRemove func(key string)
}

func newTextureCache(device gpu.Device, loader Loader, budget int64, m *metrics.GPU) *textureCache {
	c := &textureCache{
		device:  device,
		loader:  loader,
		lru:     cache.New[string, gpu.Texture](budget),
		metrics: m,
	}
	c.lru.OnEvict = func(key string, tex gpu.Texture) {
		if c.onRemove != nil {
			c.onRemove(key)
		}
		tex.Release()
		log.Debug("released texture", "key", key)
	}
	return c
}

// getOrLoad returns the texture for path at width×height, decoding and uploading it on
// a miss. Decodes already running in the background are joined rather than repeated.
func (c *textureCache) getOrLoad(ctx context.Context, path string, width, height int) (string, gpu.Texture, error) {
	key := imagedecode.Key{Path: path, Width: width, Height: height}
	name := key.String()

	if tex, ok := c.lru.Get(name); ok {
		c.metrics.TextureHits.Add(1)
		return name, tex, nil
	}
	c.metrics.TextureMisses.Add(1)

	res, err := c.loader.Load(ctx, key)
	if err != nil {
		return "", nil, fmt.Errorf("load %s: %w", path, err)
	}

	tex, err := c.insert(res)
	if err != nil {
		return "", nil, err
	}
	return name, tex, nil
}

func (c *textureCache) getOrCreateDummy(width, height int) (string, gpu.Texture, error) {
	name := dummyKey(width, height)

	if tex, ok := c.lru.Get(name); ok {
		c.metrics.TextureHits.Add(1)
		return name, tex, nil
	}
	c.metrics.TextureMisses.Add(1)

	tex, err := c.insert(&imagedecode.Result{
		Key:    imagedecode.Key{Path: dummyPath, Width: width, Height: height},
		Pixels: make([]byte, width*height*4),
		Width:  width,
		Height: height,
	})
	if err != nil {
		return "", nil, err
	}
	return name, tex, nil
}

// insert uploads a decoded image unless its key is already resident.
func (c *textureCache) insert(res *imagedecode.Result) (gpu.Texture, error) {
	name := res.Key.String()
	if tex, ok := c.lru.Peek(name); ok {
		return tex, nil
	}

	tex, err := c.device.CreateTexture(name, res.Width, res.Height, res.Pixels)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", name, err)
	}

	c.lru.Add(name, tex, int64(len(res.Pixels)))
	c.metrics.TexturesLoaded.Add(1)
	c.metrics.TextureEvictions.Store(c.lru.Stats().Evictions)

	log.Debug("uploaded texture", "key", name, "cached", c.lru.Len(), "bytes", c.lru.Bytes())
	return tex, nil
}

func (c *textureCache) peek(key string) (gpu.Texture, bool) {
	return c.lru.Peek(key)
}

func (c *textureCache) contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *textureCache) protect(keys ...string) {
	c.lru.Protect(keys...)
}

func (c *textureCache) len() int {
	return c.lru.Len()
}

func (c *textureCache) bytes() int64 {
	return c.lru.Bytes()
}

func (c *textureCache) purge() {
	c.lru.Purge()
}
