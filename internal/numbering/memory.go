package numbering

import (
	"context"
	"sync"
)

// MemoryAllocator keeps counters in process memory. It suits a single
// process and tests; the PostgreSQL store is the shared implementation.
type MemoryAllocator struct {
	mu       sync.Mutex
	counters map[memoryKey]int64
}

type memoryKey struct {
	scope string
	year  int
}

func NewMemoryAllocator() *MemoryAllocator {
	return &MemoryAllocator{counters: make(map[memoryKey]int64)}
}

func (m *MemoryAllocator) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey{scope: scope, year: year}
	m.counters[k]++
	return m.counters[k], nil
}

// Issued reports how many values were handed out for scope and year.
func (m *MemoryAllocator) Issued(scope string, year int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[memoryKey{scope: scope, year: year}]
}
