// Package storage holds the persistence collaborators the engine is
// agnostic to: the definition loader and thread-execution persistence
// contracts, each with a mutex-guarded in-memory store alongside a
// Postgres/bun store of the same shape.
package storage

import (
	"context"
	"sync"

	"github.com/procthread/engine/internal/domain"
)

// MemoryDefinitionStore is an in-memory domain.ThreadDefinition registry,
// keyed by version id, implementing orchestrator.DefinitionLoader. Useful
// for tests, demos, and embedding the engine without a database.
type MemoryDefinitionStore struct {
	mu    sync.RWMutex
	byVer map[int64]*domain.ThreadDefinition
}

// NewMemoryDefinitionStore creates an empty store.
func NewMemoryDefinitionStore() *MemoryDefinitionStore {
	return &MemoryDefinitionStore{byVer: make(map[int64]*domain.ThreadDefinition)}
}

// SaveDefinition registers def under its own VersionID, overwriting any
// prior definition at that version.
func (s *MemoryDefinitionStore) SaveDefinition(ctx context.Context, def *domain.ThreadDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byVer[def.VersionID] = def
	return nil
}

// LoadProcessThread implements orchestrator.DefinitionLoader.
func (s *MemoryDefinitionStore) LoadProcessThread(ctx context.Context, versionID int64) (*domain.ThreadDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.byVer[versionID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "thread definition version not found", nil)
	}
	return def, nil
}

// MemoryExecutionStore is an in-memory domain.ExecutionRecord registry,
// keyed by thread-execution id, implementing orchestrator.ExecutionPersister
// plus the listing operations the REST monitor surface needs.
type MemoryExecutionStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ExecutionRecord
	order   []string // insertion order, for stable listing
}

// NewMemoryExecutionStore creates an empty store.
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{records: make(map[string]*domain.ExecutionRecord)}
}

// Create inserts a new execution record. Intended for the moment a thread
// execution begins, before the orchestrator loop has a terminal status to
// report (so a concurrent "monitor" call observes a Running row).
func (s *MemoryExecutionStore) Create(ctx context.Context, record *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ThreadExecID]; !exists {
		s.order = append(s.order, record.ThreadExecID)
	}
	s.records[record.ThreadExecID] = record
	return nil
}

// GetByProcessExecution implements orchestrator.ExecutionPersister.
func (s *MemoryExecutionStore) GetByProcessExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[threadExecID]
	if !ok {
		return nil, domain.NewStateError(threadExecID, "no execution record found", nil)
	}
	return record, nil
}

// Update implements orchestrator.ExecutionPersister.
func (s *MemoryExecutionStore) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ThreadExecID]; !exists {
		s.order = append(s.order, record.ThreadExecID)
	}
	s.records[record.ThreadExecID] = record
	return nil
}

// List returns every known execution record in creation order, newest last
// (the REST "GET /executions" monitor endpoint).
func (s *MemoryExecutionStore) List(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ExecutionRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}
