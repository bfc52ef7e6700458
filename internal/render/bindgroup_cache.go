package render

import (
	"fmt"

	"github.com/matjam/wayper/internal/cache"
	"github.com/matjam/wayper/internal/gpu"
	"github.com/matjam/wayper/internal/metrics"
)

// bindGroupKey is ordered: previous then current.
type bindGroupKey struct {
	previous string
	current  string
}

func (k bindGroupKey) String() string {
	return k.previous + "+" + k.current
}

type bindGroupCache struct {
	lru     *cache.LRU[bindGroupKey, gpu.BindGroup]
	metrics *metrics.GPU
}

func newBindGroupCache(m *metrics.GPU) *bindGroupCache {
	c := &bindGroupCache{
		lru:     cache.New[bindGroupKey, gpu.BindGroup](0),
		metrics: m,
	}
	c.lru.OnEvict = func(_ bindGroupKey, bg gpu.BindGroup) {
		bg.Release()
	}
	return c
}

// getOrCreate returns the bind group combining the two named textures. Both textures
// must already be resident.
func (c *bindGroupCache) getOrCreate(pipeline gpu.Pipeline, textures *textureCache, previous, current string) (gpu.BindGroup, error) {
	key := bindGroupKey{previous: previous, current: current}

	if bg, ok := c.lru.Get(key); ok {
		c.metrics.BindGroupHits.Add(1)
		return bg, nil
	}
	c.metrics.BindGroupMisses.Add(1)

	prev, ok := textures.peek(previous)
	if !ok {
		return nil, fmt.Errorf("%w: previous %s", ErrMissingTexture, previous)
	}
	curr, ok := textures.peek(current)
	if !ok {
		return nil, fmt.Errorf("%w: current %s", ErrMissingTexture, current)
	}

	bg, err := pipeline.CreateBindGroup(key.String(), prev, curr)
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	c.lru.Add(key, bg, 1)
	return bg, nil
}

// dropTexture releases every bind group that references the texture.
func (c *bindGroupCache) dropTexture(texture string) {
	n := c.lru.RemoveFunc(func(k bindGroupKey, _ gpu.BindGroup) bool {
		return k.previous == texture || k.current == texture
	})
	if n > 0 {
		c.metrics.BindGroupEvictions.Add(uint64(n))
	}
}

func (c *bindGroupCache) len() int {
	return c.lru.Len()
}

func (c *bindGroupCache) purge() {
	c.lru.Purge()
}
