package embedding

import (
	"context"
	"sync"
)

// Cache stores vectors keyed by model version plus content hash. The Redis
// implementation lives in storage; this package ships an in-memory one for
// tests and single-node deployments without Redis.
type Cache interface {
	Get(ctx context.Context, modelVersion, contentHash string) ([]float64, bool, error)
	Set(ctx context.Context, modelVersion, contentHash string, vector []float64) error
}

// MemoryCache is a process-local Cache with no eviction. Suitable for tests
// and small deployments only.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float64
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float64)}
}

func (c *MemoryCache) key(modelVersion, contentHash string) string {
	return modelVersion + ":" + contentHash
}

func (c *MemoryCache) Get(_ context.Context, modelVersion, contentHash string) ([]float64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vector, ok := c.vectors[c.key(modelVersion, contentHash)]
	return vector, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, modelVersion, contentHash string, vector []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[c.key(modelVersion, contentHash)] = vector
	return nil
}
