// Package checkpoint persists a paused thread execution's pending-element
// stack and execution memory so that a later Resume call can reconstruct
// an equivalent orchestrator state. It rejects a resume whose persisted
// stack references an element no longer present in the current thread
// definition.
package checkpoint

import (
	"context"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// Store is the checkpoint backend. Two implementations are provided:
// MemoryStore for tests and single-process deployments, and BunStore for a
// durable Postgres-backed deployment.
type Store interface {
	SaveStack(ctx context.Context, threadExecID string, stack []string) error
	LoadStack(ctx context.Context, threadExecID string, def *domain.ThreadDefinition) ([]string, error)
	SaveMemory(ctx context.Context, threadExecID string, snap *memory.Snapshot) error
	LoadMemory(ctx context.Context, threadExecID string) (*memory.Snapshot, error)
	MarkInactive(ctx context.Context, threadExecID string) error
}

// validateStackAgainstDefinition rejects a resume whose persisted stack
// names an element key that no longer exists in def: a definition change
// between pause and resume must fail the resume, not silently skip the
// missing element.
func validateStackAgainstDefinition(threadExecID string, stack []string, def *domain.ThreadDefinition) error {
	if def == nil {
		return domain.NewStateError(threadExecID, "thread definition is required to validate a resumed stack", nil)
	}
	for _, key := range stack {
		if _, ok := def.ElementByKey(key); !ok {
			return domain.NewStateError(threadExecID, "persisted stack references unknown element \""+key+"\"", nil)
		}
	}
	return nil
}
