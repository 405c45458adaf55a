package checkpoint

import (
	"context"
	"sync"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// MemoryStore is an in-process, mutex-guarded-map checkpoint backend.
// Suitable for tests and
// single-process deployments; state does not survive a process restart.
type MemoryStore struct {
	mu     sync.RWMutex
	stacks map[string][]string
	snaps  map[string]*memory.Snapshot
	active map[string]bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stacks: make(map[string][]string),
		snaps:  make(map[string]*memory.Snapshot),
		active: make(map[string]bool),
	}
}

func (s *MemoryStore) SaveStack(ctx context.Context, threadExecID string, stack []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(stack))
	copy(cp, stack)
	s.stacks[threadExecID] = cp
	s.active[threadExecID] = true
	return nil
}

func (s *MemoryStore) LoadStack(ctx context.Context, threadExecID string, def *domain.ThreadDefinition) ([]string, error) {
	s.mu.RLock()
	stack, ok := s.stacks[threadExecID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.NewStateError(threadExecID, "no checkpointed stack found", nil)
	}
	if err := validateStackAgainstDefinition(threadExecID, stack, def); err != nil {
		return nil, err
	}
	out := make([]string, len(stack))
	copy(out, stack)
	return out, nil
}

func (s *MemoryStore) SaveMemory(ctx context.Context, threadExecID string, snap *memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[threadExecID] = snap
	return nil
}

func (s *MemoryStore) LoadMemory(ctx context.Context, threadExecID string) (*memory.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[threadExecID]
	if !ok {
		return nil, domain.NewStateError(threadExecID, "no checkpointed memory found", nil)
	}
	return snap, nil
}

func (s *MemoryStore) MarkInactive(ctx context.Context, threadExecID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[threadExecID] = false
	return nil
}

// IsActive reports whether threadExecID has a live checkpoint (test/inspection helper).
func (s *MemoryStore) IsActive(threadExecID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[threadExecID]
}
