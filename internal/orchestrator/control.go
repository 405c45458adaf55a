package orchestrator

import (
	"context"
	"fmt"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// PauseExecution requests that threadExecID pause at its next loop-iteration
// boundary; the pause flag is the only cooperative signal and is observed
// between node pops, never mid-node. Returns an error if the execution is not
// currently active on this engine.
func (e *Engine) PauseExecution(ctx context.Context, threadExecID string) error {
	if !e.tracking.requestPause(threadExecID) {
		return domain.NewStateError(threadExecID, "no active execution to pause", nil)
	}
	return nil
}

// CancelExecution requests that threadExecID stop at its next loop-iteration
// boundary, transitioning to Cancelled rather than Paused.
func (e *Engine) CancelExecution(ctx context.Context, threadExecID string) error {
	if !e.tracking.requestCancel(threadExecID) {
		return domain.NewStateError(threadExecID, "no active execution to cancel", nil)
	}
	return nil
}

// ResumeExecution reconstructs a paused execution's stack and memory from
// the checkpoint service and runs it to completion. The
// checkpoint store itself rejects a resume whose persisted stack names an
// element no longer present in the (possibly newer) thread definition.
func (e *Engine) ResumeExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error) {
	if e.persister == nil {
		return nil, domain.NewConfigurationError("orchestrator", "no execution persister configured")
	}
	if e.loader == nil {
		return nil, domain.NewConfigurationError("orchestrator", "no definition loader configured")
	}

	record, err := e.persister.GetByProcessExecution(ctx, threadExecID)
	if err != nil {
		return nil, err
	}

	def, err := e.loader.LoadProcessThread(ctx, record.ThreadVersionID)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeDefinitionLoad,
			fmt.Sprintf("failed to load thread version %d for resume", record.ThreadVersionID), err)
	}

	stack, err := e.checkpoints.LoadStack(ctx, threadExecID, def)
	if err != nil {
		return nil, err
	}
	snap, err := e.checkpoints.LoadMemory(ctx, threadExecID)
	if err != nil {
		return nil, err
	}
	mem := memory.Restore(snap)

	threadCtx := &domain.ThreadExecutionContext{
		ThreadExecID:    record.ThreadExecID,
		ThreadID:        record.ThreadID,
		ThreadVersionID: record.ThreadVersionID,
		Mode:            record.ModeID,
		Stack:           stack,
		StartedAt:       record.StartedAt,
	}

	return e.runThread(ctx, threadCtx, mem, def), nil
}
