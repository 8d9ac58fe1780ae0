package cache

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
)

// DefaultMemorySize bounds the in-memory cache when no size is configured.
const DefaultMemorySize = 256

// Memory is a bounded in-process cache with first-in first-out eviction.
type Memory struct {
	mu      sync.Mutex
	max     int
	entries map[string][]byte
	order   []string
}

// NewMemory creates a cache holding at most size entries.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{max: size, entries: make(map[string][]byte, size)}
}

// Get returns a copy of the stored result.
func (m *Memory) Get(ctx context.Context, key string) (*nutrition.Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.Lock()
	data, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	var res nutrition.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

// Set stores res if it is a successful result.
func (m *Memory) Set(ctx context.Context, key string, res *nutrition.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cacheable(res) {
		return nil
	}
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		for len(m.order) >= m.max {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = data
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
