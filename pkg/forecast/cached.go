package forecast

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/HatiCode/rainfall/pkg/series"
)

type cacheKey struct {
	history     uint64
	monthsAhead int
}

// CachedRunner memoizes Engine runs by (history contents, horizon).
// Runs are deterministic for a fixed predictor, so a hit is exactly the
// sequence a fresh run would produce. Errors are never cached.
//
// A CachedRunner must be discarded when its engine's predictor is retrained.
type CachedRunner struct {
	engine *Engine
	cache  *lru.Cache[cacheKey, []Point]
}

// NewCachedRunner wraps engine with an LRU of at most size entries.
func NewCachedRunner(engine *Engine, size int) (*CachedRunner, error) {
	cache, err := lru.New[cacheKey, []Point](size)
	if err != nil {
		return nil, err
	}
	return &CachedRunner{engine: engine, cache: cache}, nil
}

// Engine returns the wrapped engine.
func (c *CachedRunner) Engine() *Engine {
	return c.engine
}

// Run behaves like Engine.Run.
func (c *CachedRunner) Run(ctx context.Context, history series.History, monthsAhead int) (Sequence, error) {
	key := cacheKey{history: Fingerprint(history), monthsAhead: monthsAhead}
	if points, ok := c.cache.Get(key); ok {
		return Sequence{Points: clonePoints(points)}, nil
	}

	seq, err := c.engine.Run(ctx, history, monthsAhead)
	if err != nil {
		return Sequence{}, err
	}

	c.cache.Add(key, clonePoints(seq.Points))
	return seq, nil
}

// Len returns the number of cached sequences.
func (c *CachedRunner) Len() int {
	return c.cache.Len()
}

// Fingerprint hashes every date and value of h with FNV-1a.
func Fingerprint(h series.History) uint64 {
	hash := fnv.New64a()
	var buf [16]byte
	for _, o := range h {
		binary.LittleEndian.PutUint64(buf[:8], uint64(o.Date.Unix()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(o.Value))
		hash.Write(buf[:])
	}
	return hash.Sum64()
}

func clonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}
