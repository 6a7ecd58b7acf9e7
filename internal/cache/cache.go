package cache

import (
	"context"
	"time"

	"moneybook/internal/log"
)

// Cache is a read-through cache in which a fill loses to any invalidation
// of the same key that happened while the value was being loaded.
//
// Callers take Generation before reading the source of truth and pass it to
// Fill afterwards; writers call Invalidate after committing. A reader that
// raced a writer therefore never stores what it read.
type Cache[T any] interface {
	Get(key string) (T, bool)

	// Generation snapshots key's generation ahead of a load.
	Generation(key string) uint64

	// Fill stores data unless key was invalidated after gen was taken, and
	// reports whether it stored.
	Fill(key string, data T, gen uint64) bool

	// Invalidate drops key and fails every fill whose generation predates it.
	Invalidate(key string)

	Size() int
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically evicts expired entries from registered caches
type Manager struct {
	caches []Cleaner
	logger *log.Logger
}

// NewManager creates a new cache manager
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		caches: make([]Cleaner, 0),
		logger: logger.WithComponent(log.ComponentCache),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// CleanOnce sweeps every registered cache and returns the number of evicted entries
func (m *Manager) CleanOnce() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps registered caches every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanOnce(); n > 0 {
				m.logger.Debug("Evicted expired cache entries", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
