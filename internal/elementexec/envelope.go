// Package elementexec is the per-node execution envelope: resolve an
// executor, validate, run under a timeout budget, and dispatch failures
// to the executor's own error handler before falling back to a generic
// failed result.
package elementexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// Envelope wraps a registry lookup with the per-node execution contract:
// resolve, validate, timed execute, error-handler fallback, output copy.
type Envelope struct {
	registry *registry.Registry
}

// New creates an Envelope backed by reg.
func New(reg *registry.Registry) *Envelope {
	return &Envelope{registry: reg}
}

// Run executes one popped element. The second return value reports whether
// the failure (if any) was specifically a timeout, so the orchestration
// loop can apply the element's TimeoutBehavior instead of routing
// the generic error port. The third return value is the categorized cause
// of a failed result (nil on success), for the orchestrator's try/catch
// dispatch to match against a thread's catch stack. StartedAt is stamped
// only while unset, so a retry that reuses the context keeps the first
// attempt's start time.
func (e *Envelope) Run(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, bool, error) {
	if elemCtx.ExecCtx.StartedAt.IsZero() {
		elemCtx.ExecCtx.StartedAt = time.Now()
	}
	elemCtx.ExecCtx.Status = domain.ElementStatusRunning

	executor, err := e.registry.Get(elemCtx.Element.Type)
	if err != nil {
		cause := e.causeFor(elemCtx, err.Error(), err, false, "unknown_node_type")
		return e.fail(elemCtx, domain.ElementStatusFailed, err.Error()), false, cause
	}
	defer executor.Cleanup(ctx, elemCtx)

	defCtx := &registry.DefinitionContext{Element: elemCtx.Element}
	validation, verr := executor.Validate(ctx, defCtx)
	if verr != nil {
		cause := e.causeFor(elemCtx, verr.Error(), verr, false, "validation")
		return e.fail(elemCtx, domain.ElementStatusFailed, verr.Error()), false, cause
	}
	if validation != nil && !validation.Valid {
		cause := e.causeFor(elemCtx, validation.Message, nil, false, "validation")
		return e.fail(elemCtx, domain.ElementStatusFailed, validation.Message), false, cause
	}

	timeoutSeconds := elemCtx.Element.EffectiveTimeoutSeconds()
	budget := time.Duration(timeoutSeconds) * time.Second
	execCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result, runErr := executor.Execute(execCtx, elemCtx)
	if runErr == nil {
		return e.succeed(elemCtx, result), false, nil
	}

	if execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		msg := fmt.Sprintf("Element execution timed out after %d seconds", timeoutSeconds)
		cause := e.causeFor(elemCtx, msg, runErr, true, "timeout")
		return e.fail(elemCtx, domain.ElementStatusTimeout, msg), true, cause
	}

	handled, handleErr := executor.HandleError(ctx, elemCtx, runErr)
	if handleErr == nil && handled != nil {
		return e.succeed(elemCtx, handled), false, nil
	}

	cause := e.causeFor(elemCtx, runErr.Error(), runErr, true, "execution")
	return e.fail(elemCtx, domain.ElementStatusFailed, runErr.Error()), false, cause
}

// causeFor wraps a raw failure into the domain's ExecutionError shape so the
// orchestrator's try/catch dispatch and retry policy can classify it by
// category and ancestry without string-matching. An executor that already
// reports a categorized ExecutionError keeps its category and ancestry; the
// envelope's own classification applies only to uncategorized failures.
func (e *Envelope) causeFor(elemCtx *registry.ElementContext, message string, underlying error, retryable bool, category string) error {
	threadID, threadExecID := "", ""
	if elemCtx.ThreadExecCtx != nil {
		threadID = elemCtx.ThreadExecCtx.ThreadID
		threadExecID = elemCtx.ThreadExecCtx.ThreadExecID
	}
	var execErr *domain.ExecutionError
	if errors.As(underlying, &execErr) {
		return domain.NewExecutionError(threadID, threadExecID, elemCtx.Element.Key,
			message, underlying, execErr.Retryable, execErr.Category, execErr.CategoryParents...)
	}
	return domain.NewExecutionError(threadID, threadExecID, elemCtx.Element.Key, message, underlying, retryable, category, "execution")
}

func (e *Envelope) succeed(elemCtx *registry.ElementContext, result *registry.NodeResult) *registry.NodeResult {
	elemCtx.ExecCtx.Status = domain.ElementStatusSuccess
	elemCtx.ExecCtx.OutputData = result.OutputData
	elemCtx.ExecCtx.FinishedAt = time.Now()
	return result
}

func (e *Envelope) fail(elemCtx *registry.ElementContext, status domain.ElementStatus, message string) *registry.NodeResult {
	elemCtx.ExecCtx.Status = status
	elemCtx.ExecCtx.ErrorMessage = message
	elemCtx.ExecCtx.OutputData = map[string]any{}
	elemCtx.ExecCtx.FinishedAt = time.Now()
	return registry.Failure(message)
}
