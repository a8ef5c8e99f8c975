package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tonlite/litegate/pkg/lite"
	"github.com/tonlite/litegate/pkg/types"
)

// Memory is an in-process Backend, useful for a single-instance deployment
// or tests. Expired entries are reaped lazily on Get.
type Memory struct {
	mu      sync.Mutex
	entries map[string]types.CacheEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]types.CacheEntry)}
}

func (m *Memory) Get(ctx context.Context, key string) (lite.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(time.Now()) {
		delete(m.entries, key)
		return nil, false
	}
	res, ok := e.Value.(lite.Result)
	return res, ok
}

func (m *Memory) Set(ctx context.Context, key string, value lite.Result, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = types.CacheEntry{Key: key, Value: value, Timestamp: time.Now(), TTL: ttl}
}
