// Package tracing is an in-memory ring of per-execution traces (node,
// variable, and error records), indexed by thread-execution id, with a
// soft cap and FIFO-by-completion-time purge.
package tracing

import (
	"sort"
	"sync"
	"time"

	"github.com/procthread/engine/internal/domain"
)

// defaultSoftCap bounds how many live traces are retained.
const defaultSoftCap = 1000

// Service is the in-memory tracing backend.
type Service struct {
	mu      sync.Mutex
	traces  map[string]*ExecutionTrace
	softCap int
}

// New creates a Service. softCap <= 0 uses the default of 1000.
func New(softCap int) *Service {
	if softCap <= 0 {
		softCap = defaultSoftCap
	}
	return &Service{traces: make(map[string]*ExecutionTrace), softCap: softCap}
}

// Create starts a new trace for a thread execution.
func (s *Service) Create(threadExecID, threadID string) *ExecutionTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := newExecutionTrace(threadExecID, threadID)
	s.traces[threadExecID] = t
	return t
}

// RecordNode appends a node execution record to threadExecID's trace. No-op
// if the trace doesn't exist (e.g. already purged).
func (s *Service) RecordNode(threadExecID string, n *NodeExecutionTrace) {
	if t := s.get(threadExecID); t != nil {
		t.addNode(n)
	}
}

// RecordVariable appends a variable-state snapshot to threadExecID's trace.
func (s *Service) RecordVariable(threadExecID string, v *VariableStateTrace) {
	if t := s.get(threadExecID); t != nil {
		t.addVariable(v)
	}
}

// RecordError appends an error record to threadExecID's trace.
func (s *Service) RecordError(threadExecID string, e *ErrorTrace) {
	if t := s.get(threadExecID); t != nil {
		t.addError(e)
	}
}

// Complete marks threadExecID's trace as finished with the given status,
// and triggers a purge pass if the soft cap is exceeded.
func (s *Service) Complete(threadExecID string, statusID domain.ExecutionStatusID) {
	if t := s.get(threadExecID); t != nil {
		t.complete(statusID)
	}
	s.purgeIfOverCap()
}

// GetByID returns the full trace for threadExecID.
func (s *Service) GetByID(threadExecID string) (*ExecutionTrace, bool) {
	t := s.get(threadExecID)
	return t, t != nil
}

// GetByExecution returns up to limit of threadExecID's most recent node
// traces (limit <= 0 means unbounded).
func (s *Service) GetByExecution(threadExecID string, limit int) []*NodeExecutionTrace {
	t := s.get(threadExecID)
	if t == nil {
		return nil
	}
	return t.nodeTracesCopy(limit)
}

// DeleteByID removes threadExecID's trace entirely.
func (s *Service) DeleteByID(threadExecID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, threadExecID)
}

// DeleteOlderThan removes every completed trace whose CompletedAt is before
// cutoff.
func (s *Service) DeleteOlderThan(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.traces {
		if t.isCompleted() && t.completedAt().Before(cutoff) {
			delete(s.traces, id)
		}
	}
}

func (s *Service) get(threadExecID string) *ExecutionTrace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traces[threadExecID]
}

// purgeIfOverCap evicts the oldest-completed traces, FIFO by completion
// time, until the live trace count is back at or under the soft cap.
// Traces still in flight (not yet completed) are never evicted.
func (s *Service) purgeIfOverCap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.traces) <= s.softCap {
		return
	}

	type entry struct {
		id          string
		completedAt time.Time
	}
	var completed []entry
	for id, t := range s.traces {
		if t.isCompleted() {
			completed = append(completed, entry{id: id, completedAt: t.completedAt()})
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].completedAt.Before(completed[j].completedAt)
	})

	excess := len(s.traces) - s.softCap
	for i := 0; i < excess && i < len(completed); i++ {
		delete(s.traces, completed[i].id)
	}
}
