package tracing

import (
	"sync"
	"time"

	"github.com/procthread/engine/internal/domain"
)

// ExecutionTrace is the complete trace for one thread execution: its node,
// variable, and error records, indexed by execution id.
type ExecutionTrace struct {
	mu sync.Mutex

	ThreadExecID   string
	ThreadID       string
	CreatedAt      time.Time
	CompletedAt    time.Time
	StatusID       domain.ExecutionStatusID
	NodeTraces     []*NodeExecutionTrace
	VariableTraces []*VariableStateTrace
	ErrorTraces    []*ErrorTrace
}

func newExecutionTrace(threadExecID, threadID string) *ExecutionTrace {
	return &ExecutionTrace{
		ThreadExecID: threadExecID,
		ThreadID:     threadID,
		CreatedAt:    time.Now(),
	}
}

func (t *ExecutionTrace) addNode(n *NodeExecutionTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.OutputSnapshot = truncateSnapshot(n.OutputSnapshot)
	t.NodeTraces = append(t.NodeTraces, n)
}

func (t *ExecutionTrace) addVariable(v *VariableStateTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.VariableTraces = append(t.VariableTraces, v)
}

func (t *ExecutionTrace) addError(e *ErrorTrace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ErrorTraces = append(t.ErrorTraces, e)
}

func (t *ExecutionTrace) complete(statusID domain.ExecutionStatusID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StatusID = statusID
	t.CompletedAt = time.Now()
}

// nodeTracesCopy returns a shallow copy of the node traces in recording
// order; limit > 0 bounds the slice to the last `limit` entries.
func (t *ExecutionTrace) nodeTracesCopy(limit int) []*NodeExecutionTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.NodeTraces
	if limit > 0 && len(src) > limit {
		src = src[len(src)-limit:]
	}
	out := make([]*NodeExecutionTrace, len(src))
	copy(out, src)
	return out
}

func (t *ExecutionTrace) isCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.CompletedAt.IsZero()
}

func (t *ExecutionTrace) completedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.CompletedAt
}
