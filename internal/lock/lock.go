// Package lock keeps two jobs for the same file name from running at once.
// Both jobs would share the same scratch paths and race on them.
package lock

import (
	"context"
	"sync"
)

// Locker hands out exclusive, non-blocking leases keyed by name.
type Locker interface {
	// TryLock takes the lease for key. ok is false when another holder
	// has it. release must be called exactly once when ok is true.
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(_ context.Context, key string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.held[key]; busy {
		return nil, false, nil
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, true, nil
}

// Len reports how many keys are held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.held)
}
