package orchestrator

import (
	"context"

	"github.com/procthread/engine/internal/domain"
)

// DefinitionLoader resolves a thread version id to its graph shape. The engine
// is agnostic to the backing store (database, file, cache) that resolves a
// thread version id to its graph shape.
type DefinitionLoader interface {
	LoadProcessThread(ctx context.Context, versionID int64) (*domain.ThreadDefinition, error)
}

// ExecutionPersister is the thread-execution persistence collaborator:
// pause/resume/cancel bookkeeping for the externally-visible execution
// record.
type ExecutionPersister interface {
	GetByProcessExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error)
	Update(ctx context.Context, record *domain.ExecutionRecord) error
}
