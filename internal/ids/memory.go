package ids

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// MemorySource keeps counters in process memory. Counters start at 0.
type MemorySource struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// NewMemorySource creates a source with every counter at 0.
func NewMemorySource() *MemorySource {
	return &MemorySource{counters: make(map[string]*atomic.Int64)}
}

// Lease implements Source.
func (m *MemorySource) Lease(ctx context.Context, space string, n int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("lease size must be positive, got %d", n)
	}
	return m.counter(space).Add(n) - n, nil
}

// Current returns the next unleased counter in space.
func (m *MemorySource) Current(space string) int64 {
	return m.counter(space).Load()
}

func (m *MemorySource) counter(space string) *atomic.Int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[space]
	if !ok {
		c = &atomic.Int64{}
		m.counters[space] = c
	}
	return c
}
