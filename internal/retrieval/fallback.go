package retrieval

import (
	"math/rand/v2"
	"sync"
)

// RandomFallback picks a fallback asset uniformly from a seeded source.
type RandomFallback struct {
	mu     sync.Mutex
	assets []string
	rng    *rand.Rand
}

// NewRandomFallback creates a picker; equal seeds give equal pick sequences.
func NewRandomFallback(assets []string, seed uint64) *RandomFallback {
	return &RandomFallback{
		assets: assets,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Pick returns one asset, or "" when none are configured.
func (f *RandomFallback) Pick() string {
	if len(f.assets) == 0 {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assets[f.rng.IntN(len(f.assets))]
}

// StaticFallback always returns the same asset.
type StaticFallback string

func (s StaticFallback) Pick() string { return string(s) }
