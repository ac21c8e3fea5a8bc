package refcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"greentoken/internal/domain"
)

type memoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	ttl     time.Duration
	data    map[string]time.Time
	maxKeys int
}

type MemoryCacheConfig struct {
	Now     func() time.Time
	TTL     time.Duration
	MaxKeys int
}

func NewMemoryCache(cfg MemoryCacheConfig) domain.ReferenceCache {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 100000
	}
	return &memoryCache{
		now:     cfg.Now,
		ttl:     cfg.TTL,
		data:    make(map[string]time.Time),
		maxKeys: cfg.MaxKeys,
	}
}

func (m *memoryCache) IsConsumed(_ context.Context, reference string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.data[reference]
	if !ok {
		return false, nil
	}
	if now.After(expires) {
		delete(m.data, reference)
		return false, nil
	}
	return true, nil
}

// Mark drops expired entries when full. If the cache is still full the
// reference is not cached; the database remains authoritative.
func (m *memoryCache) Mark(_ context.Context, reference string) error {
	if reference == "" {
		return errors.New("reference is required")
	}
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[reference]; !ok && len(m.data) >= m.maxKeys {
		m.gc(now)
		if len(m.data) >= m.maxKeys {
			return errors.New("reference cache capacity exceeded")
		}
	}
	m.data[reference] = now.Add(m.ttl)
	return nil
}

func (m *memoryCache) gc(now time.Time) {
	for key, expires := range m.data {
		if now.After(expires) {
			delete(m.data, key)
		}
	}
}
