package workerlock

import (
	"context"
	"errors"
	"sync"
)

// memoryCoordinator backs single-instance deployments where every sub-process
// runs inside one binary.
type memoryCoordinator struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewMemoryCoordinator(names ...string) Coordinator {
	counts := make(map[string]int64, len(names))
	for _, n := range names {
		counts[n] = 0
	}
	return &memoryCoordinator{counts: counts}
}

func (m *memoryCoordinator) Acquire(_ context.Context, process string, exclusive ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counts[process]; !ok {
		return false, coordinationError("failed to enter worker lock", process, errors.New("unknown process"))
	}
	for _, ex := range exclusive {
		if m.counts[ex] > 0 {
			return false, nil
		}
	}
	m.counts[process]++
	return true, nil
}

func (m *memoryCoordinator) Release(_ context.Context, process string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts[process] <= 0 {
		return coordinationError("failed to exit worker lock", process, errors.New("worker count already zero"))
	}
	m.counts[process]--
	return nil
}
