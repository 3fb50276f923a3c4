// Package lock provides short-lived named locks used to serialize
// conflicting writes, such as two operators beginning visits for the same
// doctor at once.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Locker acquires and releases named locks. Lock reports false when the
// key is already held; otherwise it returns the owner token that Unlock
// needs. Unlock with a stale token is a no-op.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Unlock(ctx context.Context, key, token string) error
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLock is an in-process Locker for single-replica deployments and tests.
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]memoryEntry
	now  func() time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryLock) Lock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryLock) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.held[key]; ok && e.token == token {
		delete(m.held, key)
	}
	return nil
}
