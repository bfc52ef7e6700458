// Package metrics holds the GPU cache and render counters reported over the control
// socket and the HTTP API.
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// GPU counters are written from the render thread and read from anywhere.
type GPU struct {
	TextureHits      atomic.Uint64
	TextureMisses    atomic.Uint64
	TextureEvictions atomic.Uint64

	BindGroupHits      atomic.Uint64
	BindGroupMisses    atomic.Uint64
	BindGroupEvictions atomic.Uint64

	TexturesLoaded atomic.Uint64
	FramesRendered atomic.Uint64
}

// Snapshot field names are part of the socket protocol.
type Snapshot struct {
	TextureCacheSize      int    `json:"texture_cache_size"`
	TextureCacheHits      uint64 `json:"texture_cache_hits"`
	TextureCacheMisses    uint64 `json:"texture_cache_misses"`
	BindGroupCacheSize    int    `json:"bind_group_cache_size"`
	BindGroupCacheHits    uint64 `json:"bind_group_cache_hits"`
	BindGroupCacheMisses  uint64 `json:"bind_group_cache_misses"`
	TotalTexturesLoaded   uint64 `json:"total_textures_loaded"`
	TotalFramesRendered   uint64 `json:"total_frames_rendered"`
	TextureCacheEvictions uint64 `json:"texture_cache_evictions,omitempty"`
	BindGroupEvictions    uint64 `json:"bind_group_cache_evictions,omitempty"`
	TextureCacheBytes     int64  `json:"texture_cache_bytes,omitempty"`
}

func (g *GPU) Snapshot(textureCacheSize, bindGroupCacheSize int, textureBytes int64) Snapshot {
	return Snapshot{
		TextureCacheSize:      textureCacheSize,
		TextureCacheHits:      g.TextureHits.Load(),
		TextureCacheMisses:    g.TextureMisses.Load(),
		BindGroupCacheSize:    bindGroupCacheSize,
		BindGroupCacheHits:    g.BindGroupHits.Load(),
		BindGroupCacheMisses:  g.BindGroupMisses.Load(),
		TotalTexturesLoaded:   g.TexturesLoaded.Load(),
		TotalFramesRendered:   g.FramesRendered.Load(),
		TextureCacheEvictions: g.TextureEvictions.Load(),
		BindGroupEvictions:    g.BindGroupEvictions.Load(),
		TextureCacheBytes:     textureBytes,
	}
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// HitRates returns the texture and bind group cache hit rates in percent.
func (s Snapshot) HitRates() (texture, bindGroup float64) {
	return hitRate(s.TextureCacheHits, s.TextureCacheMisses),
		hitRate(s.BindGroupCacheHits, s.BindGroupCacheMisses)
}

func (s Snapshot) String() string {
	tex, bg := s.HitRates()

	var b strings.Builder
	b.WriteString("GPU Performance Metrics:\n")
	b.WriteString("  Texture Cache:\n")
	fmt.Fprintf(&b, "    Size: %d textures\n", s.TextureCacheSize)
	fmt.Fprintf(&b, "    Hits: %d | Misses: %d | Hit Rate: %.1f%%\n", s.TextureCacheHits, s.TextureCacheMisses, tex)
	b.WriteString("  Bind Group Cache:\n")
	fmt.Fprintf(&b, "    Size: %d bind groups\n", s.BindGroupCacheSize)
	fmt.Fprintf(&b, "    Hits: %d | Misses: %d | Hit Rate: %.1f%%\n", s.BindGroupCacheHits, s.BindGroupCacheMisses, bg)
	fmt.Fprintf(&b, "  Total Textures Loaded: %d\n", s.TotalTexturesLoaded)
	fmt.Fprintf(&b, "  Total Frames Rendered: %d", s.TotalFramesRendered)
	return b.String()
}

func (s Snapshot) Log() {
	tex, bg := s.HitRates()
	log.Info("gpu metrics",
		"textures", s.TextureCacheSize,
		"texture_hit_rate", fmt.Sprintf("%.1f%%", tex),
		"texture_evictions", s.TextureCacheEvictions,
		"bind_groups", s.BindGroupCacheSize,
		"bind_group_hit_rate", fmt.Sprintf("%.1f%%", bg),
		"textures_loaded", s.TotalTexturesLoaded,
		"frames", s.TotalFramesRendered,
	)
}
