package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker implements Locker with process-local state. Suitable for
// single-node deployments; locks do not survive restarts and are not
// shared with other instances.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

// NewMemoryLocker creates a new in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]time.Time),
	}
}

// Acquire attempts to acquire the lock.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if expiresAt, ok := m.locks[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	m.locks[key] = now.Add(ttl)
	return true, nil
}

// Release releases the lock.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.locks[key]
	delete(m.locks, key)
	return ok && time.Now().Before(expiresAt), nil
}

// Ensure MemoryLocker implements Locker.
var _ Locker = (*MemoryLocker)(nil)
