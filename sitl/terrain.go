// sitl/terrain.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sitl

import (
	"log/slog"
	gomath "math"
	"sync"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/log"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type TerrainConfig struct {
	TileSize float64 `yaml:"tile_size_cm"`
	// Heights are Base plus Slope (cm/cm, north then east) times the
	// offset from the origin.
	Base  float64    `yaml:"base_cm"`
	Slope [2]float64 `yaml:"slope"`
	// Missing lists the (north, east) indices of tiles with no data.
	Missing   [][2]int      `yaml:"missing_tiles"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

const tileSamples = 9

type tileKey struct {
	N, E int
}

// terrainTile holds a grid of height samples covering one tile, including
// both edges.
type terrainTile struct {
	heights [tileSamples][tileSamples]float64
}

// Terrain serves terrain heights from square tiles that are loaded on
// demand and cached for a while.
type Terrain struct {
	mu      sync.Mutex
	cfg     TerrainConfig
	missing map[tileKey]bool
	loads   int

	cache *expirable.LRU[tileKey, *terrainTile]
	lg    *log.Logger
}

func NewTerrain(cfg TerrainConfig, lg *log.Logger) *Terrain {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 10000
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}

	t := &Terrain{
		cfg:     cfg,
		missing: make(map[tileKey]bool),
		cache:   expirable.NewLRU[tileKey, *terrainTile](cfg.CacheSize, nil, cfg.CacheTTL),
		lg:      lg,
	}
	for _, m := range cfg.Missing {
		t.missing[tileKey{N: m[0], E: m[1]}] = true
	}
	return t
}

func (t *Terrain) key(n, e float64) tileKey {
	return tileKey{N: int(gomath.Floor(n / t.cfg.TileSize)), E: int(gomath.Floor(e / t.cfg.TileSize))}
}

// SetMissing marks the tile containing the given point as having no data
// (or restores it).
func (t *Terrain) SetMissing(n, e float64, missing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := t.key(n, e)
	if missing {
		t.missing[k] = true
		t.cache.Remove(k)
	} else {
		delete(t.missing, k)
	}
}

// Loads returns the number of tiles loaded so far.
func (t *Terrain) Loads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loads
}

func (t *Terrain) heightModel(n, e float64) float64 {
	return t.cfg.Base + t.cfg.Slope[0]*n + t.cfg.Slope[1]*e
}

func (t *Terrain) load(k tileKey) *terrainTile {
	var tile terrainTile
	step := t.cfg.TileSize / (tileSamples - 1)
	n0, e0 := float64(k.N)*t.cfg.TileSize, float64(k.E)*t.cfg.TileSize
	for i := range tileSamples {
		for j := range tileSamples {
			tile.heights[i][j] = t.heightModel(n0+float64(i)*step, e0+float64(j)*step)
		}
	}
	t.loads++
	t.lg.Debug("terrain tile loaded", slog.Int("n", k.N), slog.Int("e", k.E))
	return &tile
}

// HeightAt returns the terrain height above the origin at the given
// point, interpolated from the tile's samples. It returns false if the
// tile has no data.
func (t *Terrain) HeightAt(n, e float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := t.key(n, e)
	if t.missing[k] {
		return 0, false
	}
	tile, ok := t.cache.Get(k)
	if !ok {
		tile = t.load(k)
		t.cache.Add(k, tile)
	}

	step := t.cfg.TileSize / (tileSamples - 1)
	u := (n - float64(k.N)*t.cfg.TileSize) / step
	v := (e - float64(k.E)*t.cfg.TileSize) / step
	i := min(int(u), tileSamples-2)
	j := min(int(v), tileSamples-2)
	fu, fv := u-float64(i), v-float64(j)

	h := tile.heights
	return (1-fu)*(1-fv)*h[i][j] + fu*(1-fv)*h[i+1][j] + (1-fu)*fv*h[i][j+1] + fu*fv*h[i+1][j+1], true
}

///////////////////////////////////////////////////////////////////////////
// Rangefinder

type RangefinderConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MaxDistance float64 `yaml:"max_distance_cm"`
	// UseForTerrain makes the waypoint navigator take terrain heights
	// from the rangefinder when it's healthy.
	UseForTerrain bool `yaml:"use_for_terrain"`
}

// Rangefinder measures the height above the terrain directly below the
// vehicle.
type Rangefinder struct {
	cfg     RangefinderConfig
	v       *Vehicle
	terrain *Terrain
}

var _ guided.Rangefinder = (*Rangefinder)(nil)

func (r *Rangefinder) MaxDistance() float64 { return r.cfg.MaxDistance }

func (r *Rangefinder) measure() (float64, bool) {
	pos := r.v.Position()
	h, ok := r.terrain.HeightAt(pos.X, pos.Y)
	return pos.Z - h, ok
}

// Healthy reports whether the rangefinder is enabled and the ground is
// within range.
func (r *Rangefinder) Healthy() bool {
	if !r.cfg.Enabled {
		return false
	}
	d, ok := r.measure()
	return ok && d <= r.cfg.MaxDistance
}

func (r *Rangefinder) Altitude() float64 {
	d, _ := r.measure()
	return d
}
