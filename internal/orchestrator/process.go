package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// ExecuteRequest is the caller-facing input to ExecuteProcess.
type ExecuteRequest struct {
	ThreadID          int64
	VersionID         int64
	Input             map[string]any
	Mode              domain.ExecutionModeID
	TriggerElementKey string
}

// ExecuteProcess is the top-level entry point: it resolves the thread
// definition, mints a fresh root thread-execution id, seeds the traversal
// stack from the requested trigger (or every trigger element when none is
// named), and runs the orchestration loop to completion or to a
// Paused/Cancelled break.
func (e *Engine) ExecuteProcess(ctx context.Context, req ExecuteRequest) (*domain.ExecutionRecord, error) {
	if e.loader == nil {
		return nil, domain.NewConfigurationError("orchestrator", "no definition loader configured")
	}
	def, err := e.loader.LoadProcessThread(ctx, req.VersionID)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeDefinitionLoad,
			fmt.Sprintf("failed to load thread %d version %d", req.ThreadID, req.VersionID), err)
	}
	if !def.Enabled {
		return nil, domain.NewConfigurationError("orchestrator",
			fmt.Sprintf("thread %d version %d is disabled", req.ThreadID, req.VersionID))
	}

	threadCtx := &domain.ThreadExecutionContext{
		ThreadExecID:    newThreadExecID(),
		ThreadID:        fmt.Sprintf("%d", req.ThreadID),
		ThreadVersionID: req.VersionID,
		Mode:            req.Mode,
		StartedAt:       time.Now(),
	}

	entryKeys, err := e.resolveEntryKeys(def, req.TriggerElementKey)
	if err != nil {
		return nil, err
	}
	threadCtx.PushElementsReversed(entryKeys)

	mem := memory.New(req.Input)
	return e.runThread(ctx, threadCtx, mem, def), nil
}

// ExecuteProcessThread runs an already-constructed thread execution context
// to completion. It is the
// re-entry point both ResumeExecution and a sub-workflow invocation use,
// since neither wants ExecuteProcess's fresh-id-and-trigger-seeding
// behavior.
func (e *Engine) ExecuteProcessThread(ctx context.Context, threadCtx *domain.ThreadExecutionContext, mem *memory.ExecutionMemory, def *domain.ThreadDefinition) *domain.ExecutionRecord {
	return e.runThread(ctx, threadCtx, mem, def)
}

// resolveEntryKeys picks the trigger the request names, or every declared
// trigger element in definition order when none is named.
func (e *Engine) resolveEntryKeys(def *domain.ThreadDefinition, triggerElementKey string) ([]string, error) {
	if triggerElementKey != "" {
		elem, ok := def.ElementByKey(triggerElementKey)
		if !ok {
			return nil, domain.NewDomainError(domain.ErrCodeNotFound,
				fmt.Sprintf("trigger element %q not found in thread definition", triggerElementKey), nil)
		}
		return []string{elem.Key}, nil
	}

	triggers := def.TriggerElements()
	if len(triggers) == 0 {
		return nil, domain.NewConfigurationError("orchestrator", "thread definition declares no trigger elements")
	}
	keys := make([]string, len(triggers))
	for i, t := range triggers {
		keys[i] = t.Key
	}
	return keys, nil
}
