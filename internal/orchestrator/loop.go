package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/errorhandler"
	"github.com/procthread/engine/internal/expression"
	"github.com/procthread/engine/internal/memory"
	"github.com/procthread/engine/internal/registry"
	"github.com/procthread/engine/internal/tracing"
)

// runThread drives the orchestration loop to completion (or to a
// Paused/Cancelled break) for one already-registered thread execution.
func (e *Engine) runThread(ctx context.Context, threadCtx *domain.ThreadExecutionContext, mem *memory.ExecutionMemory, def *domain.ThreadDefinition) *domain.ExecutionRecord {
	e.tracking.register(threadCtx, mem)
	defer e.tracking.unregister(threadCtx.ThreadExecID)

	totalNodes := len(def.Elements)
	completed := 0

	e.events.WorkflowStarting(threadCtx)
	e.tracer.Create(threadCtx.ThreadExecID, threadCtx.ThreadID)
	e.tracer.RecordVariable(threadCtx.ThreadExecID, &tracing.VariableStateTrace{
		Timestamp: time.Now(),
		Boundary:  "workflow_start",
		Snapshot:  mem.Variables(),
	})

	threadCtx.State = domain.StateRunning

	for len(threadCtx.Stack) > 0 {
		if ctx.Err() != nil || e.tracking.isCancelled(threadCtx.ThreadExecID) {
			threadCtx.State = domain.StateCancelled
			break
		}
		if e.tracking.consumePause(threadCtx.ThreadExecID) {
			e.persistCheckpoint(ctx, threadCtx, mem)
			threadCtx.State = domain.StatePaused
			break
		}

		key, ok := threadCtx.PopElement()
		if !ok {
			break
		}
		elem, ok := def.ElementByKey(key)
		if !ok {
			// A key on the stack no longer resolves against the current
			// definition. Only possible on a resumed stack, which is
			// validated up front by checkpoint.Store.LoadStack; treat a
			// live occurrence as a no-op skip rather than crash the loop.
			completed++
			continue
		}

		mem.ClearSignals()
		stop := e.step(ctx, threadCtx, def, mem, elem, &completed)
		if stop {
			break
		}
	}

	if threadCtx.State == domain.StateRunning {
		threadCtx.State = domain.StateCompleted
	}
	threadCtx.FinishedAt = time.Now()

	record := domain.NewExecutionRecord(threadCtx)
	record.TotalNodeCount = totalNodes
	record.CompletedNodeCount = completed
	if payload, err := json.Marshal(mem.InputData()); err == nil {
		record.InputJSON = string(payload)
	}
	if payload, err := json.Marshal(mem.NodeOutputs()); err == nil {
		record.OutputJSON = string(payload)
	}

	e.events.WorkflowCompleted(record, threadCtx)
	e.tracer.RecordVariable(threadCtx.ThreadExecID, &tracing.VariableStateTrace{
		Timestamp: time.Now(),
		Boundary:  "workflow_end",
		Snapshot:  mem.Variables(),
	})
	e.tracer.Complete(threadCtx.ThreadExecID, record.StatusID)

	if e.persister != nil {
		if err := e.persister.Update(ctx, record); err != nil {
			e.logger.Error("orchestrator: failed to persist execution record", "error", err)
		}
	}
	if threadCtx.State != domain.StatePaused {
		if err := e.checkpoints.MarkInactive(ctx, threadCtx.ThreadExecID); err != nil {
			e.logger.Error("orchestrator: failed to mark checkpoint inactive", "error", err)
		}
	}

	return record
}

// step executes one popped element end to end: run, route or dispatch a
// failure, and increment the completed-node counter. It
// returns true when the loop must stop (Cancelled, or a Failed
// unwind).
func (e *Engine) step(ctx context.Context, threadCtx *domain.ThreadExecutionContext, def *domain.ThreadDefinition, mem *memory.ExecutionMemory, elem *domain.Element, completed *int) bool {
	elemCtx := &registry.ElementContext{
		Element:       elem,
		ExecCtx:       &domain.ElementExecutionContext{ElementKey: elem.Key, ElementType: elem.Type, ThreadExecID: threadCtx.ThreadExecID},
		ThreadExecCtx: threadCtx,
		ThreadDef:     def,
		Memory:        mem,
		SubWorkflow:   e,
		LaneRunner:    e,
	}
	e.events.NodeExecuting(elemCtx.ExecCtx)

	result, timedOut, cause := e.envelope.Run(ctx, elemCtx)
	*completed++

	if cause == nil {
		e.events.NodeExecuted(result, elemCtx.ExecCtx)
		e.recordTrace(threadCtx, elemCtx, *completed, result, nil)
		if rethrow, ok := mem.ConsumePendingRethrow(elem.Key); ok {
			// elem was a finally running out an uncaught exception;
			// now that it has finished, the exception re-raises against
			// whatever try frame still encloses it, rather than elem's own
			// configured successors.
			mem.SetNodeOutput(elem.Key, result.OutputData)
			return e.onException(ctx, threadCtx, def, mem, elemCtx, rethrow, *completed)
		}
		e.onSuccess(ctx, threadCtx, def, mem, elem, result)
		return false
	}

	if timedOut {
		return e.onTimeout(ctx, threadCtx, def, mem, elemCtx, result, cause, *completed)
	}

	e.events.Error(elemCtx.ExecCtx, cause)
	e.recordTrace(threadCtx, elemCtx, *completed, result, cause)
	return e.onException(ctx, threadCtx, def, mem, elemCtx, cause, *completed)
}

// onSuccess handles a successful node result: record the node's output, honor loop
// break/continue signals, else route successors.
func (e *Engine) onSuccess(ctx context.Context, threadCtx *domain.ThreadExecutionContext, def *domain.ThreadDefinition, mem *memory.ExecutionMemory, elem *domain.Element, result *registry.NodeResult) {
	mem.SetNodeOutput(elem.Key, result.OutputData)

	if mem.IsBreak() || mem.IsContinue() {
		mem.ClearSignals()
		return
	}
	e.pushSuccessors(ctx, threadCtx, def, mem, elem, result.OutputPortKey)
}

// onTimeout applies the element's TimeoutBehavior. Returns true if the
// loop must stop (TimeoutBehaviorCancel).
func (e *Engine) onTimeout(ctx context.Context, threadCtx *domain.ThreadExecutionContext, def *domain.ThreadDefinition, mem *memory.ExecutionMemory, elemCtx *registry.ElementContext, result *registry.NodeResult, cause error, completed int) bool {
	elem := elemCtx.Element
	e.events.Error(elemCtx.ExecCtx, cause)
	e.recordTrace(threadCtx, elemCtx, completed, result, cause)

	switch elem.EffectiveTimeoutBehavior() {
	case domain.TimeoutBehaviorSkip:
		mem.SetNodeOutput(elem.Key, map[string]any{})
		e.pushSuccessors(ctx, threadCtx, def, mem, elem, domain.PortSuccess)
		return false

	case domain.TimeoutBehaviorCancel:
		threadCtx.State = domain.StateCancelled
		return true

	case domain.TimeoutBehaviorRetry:
		policy := e.policyFor(elem.MaxRetries)
		outcome := e.errHandler.HandleError(ctx, cause, policy, func(rctx context.Context, attempt int) error {
			elemCtx.ExecCtx.AttemptNumber = attempt
			r2, _, c2 := e.envelope.Run(rctx, elemCtx)
			result = r2
			return c2
		})
		if outcome.Outcome == errorhandler.OutcomeSuccessAfterRetry {
			e.onSuccess(ctx, threadCtx, def, mem, elem, result)
			return false
		}
		// Exhausted: the failure is thrown to the enclosing try, if any.
		return e.onException(ctx, threadCtx, def, mem, elemCtx, outcome.Err, completed)

	default: // TimeoutBehaviorError
		mem.SetNodeOutput(elem.Key, result.OutputData)
		e.pushSuccessors(ctx, threadCtx, def, mem, elem, domain.PortError)
		return false
	}
}

// onException dispatches a failed node: try/catch/finally routing, else a
// last-resort error-handler retry, else a fatal unwind to Failed. Returns true if the
// loop must stop (a fatal, uncaught failure).
func (e *Engine) onException(ctx context.Context, threadCtx *domain.ThreadExecutionContext, def *domain.ThreadDefinition, mem *memory.ExecutionMemory, elemCtx *registry.ElementContext, cause error, completed int) bool {
	elem := elemCtx.Element
	errType, ancestry := classify(cause)

	if tryFrame, ok := mem.CurrentTry(); ok {
		if catchKey, found := mem.FindCatchHandler(errType, ancestry...); found {
			mem.SetCurrentException(cause)
			if tryFrame.FinallyKey != "" {
				threadCtx.PushElement(tryFrame.FinallyKey)
			}
			threadCtx.PushElement(catchKey)
			return false
		}
		// No matching catch at this level: this frame cannot handle the
		// exception, so it is exited now and the exception unwinds to
		// whichever try frame encloses it, if any. Its
		// finally still runs first; once finally
		// completes, step() consumes the pending-rethrow marker and calls
		// onException again so the search continues outward, eventually
		// either finding an enclosing catch or falling through to the fatal
		// unwind below.
		mem.ExitTry()
		mem.SetCurrentException(cause)
		if tryFrame.FinallyKey != "" {
			threadCtx.PushElement(tryFrame.FinallyKey)
			mem.SetPendingRethrow(tryFrame.FinallyKey, cause)
			return false
		}
		return e.onException(ctx, threadCtx, def, mem, elemCtx, cause, completed)
	}

	policy := e.policyFor(elem.MaxRetries)
	var result *registry.NodeResult
	outcome := e.errHandler.HandleError(ctx, cause, policy, func(rctx context.Context, attempt int) error {
		elemCtx.ExecCtx.AttemptNumber = attempt
		r2, _, c2 := e.envelope.Run(rctx, elemCtx)
		result = r2
		return c2
	})

	if outcome.Outcome == errorhandler.OutcomeSuccessAfterRetry {
		e.onSuccess(ctx, threadCtx, def, mem, elem, result)
		return false
	}

	threadCtx.State = domain.StateFailed
	if outcome.Err != nil {
		threadCtx.ErrorMessage = outcome.Err.Error()
	} else {
		threadCtx.ErrorMessage = cause.Error()
	}
	return true
}

// pushSuccessors routes src's port through the Router and pushes the
// enabled targets onto the stack in reverse, so pop order matches
// definition order. Condition
// expressions on src's outgoing connections are evaluated under the tier
// src's own certificate grants: TierRelaxed only when src carries a
// currently-valid NodeCertificate, TierStrict otherwise.
func (e *Engine) pushSuccessors(ctx context.Context, threadCtx *domain.ThreadExecutionContext, def *domain.ThreadDefinition, mem *memory.ExecutionMemory, src *domain.Element, port string) {
	tier := expression.TierFor(src.Certificate, time.Now())
	conns := e.router.EnabledConnections(ctx, src, port, def, mem.Variables(), tier)
	keys := make([]string, 0, len(conns))
	for _, c := range conns {
		if target, ok := def.ElementByID(c.TargetElementID); ok {
			keys = append(keys, target.Key)
		}
	}
	threadCtx.PushElementsReversed(keys)
}

// classify derives the try/catch type discriminator and its ancestry from
// cause. Catch matching works against the string discriminator carried on
// the error value, not against Go types.
func classify(cause error) (string, []string) {
	if execErr, ok := cause.(*domain.ExecutionError); ok {
		return execErr.Category, execErr.CategoryParents
	}
	return "execution", nil
}

func (e *Engine) recordTrace(threadCtx *domain.ThreadExecutionContext, elemCtx *registry.ElementContext, sequence int, result *registry.NodeResult, cause error) {
	elem := elemCtx.Element
	trace := &tracing.NodeExecutionTrace{
		ElementKey:     elem.Key,
		ElementType:    elem.Type,
		Sequence:       sequence,
		StartedAt:      elemCtx.ExecCtx.StartedAt,
		CompletedAt:    elemCtx.ExecCtx.FinishedAt,
		DurationMillis: elemCtx.ExecCtx.Duration().Milliseconds(),
	}
	if result != nil {
		trace.Port = result.OutputPortKey
		if payload, err := json.Marshal(result.OutputData); err == nil {
			trace.OutputSnapshot = string(payload)
		}
		if result.Success {
			trace.Result = "Success"
		} else {
			trace.Result = "Failed"
			trace.ErrorMessage = result.ErrorMessage
		}
	}
	e.tracer.RecordNode(threadCtx.ThreadExecID, trace)
	if cause != nil {
		e.tracer.RecordError(threadCtx.ThreadExecID, &tracing.ErrorTrace{
			Timestamp: time.Now(),
			Type:      elem.Type,
			Message:   cause.Error(),
			Severity:  "error",
		})
	}
}

func (e *Engine) persistCheckpoint(ctx context.Context, threadCtx *domain.ThreadExecutionContext, mem *memory.ExecutionMemory) {
	if err := e.checkpoints.SaveStack(ctx, threadCtx.ThreadExecID, threadCtx.Stack); err != nil {
		e.logger.Error("orchestrator: failed to persist stack on pause", "error", err)
	}
	if err := e.checkpoints.SaveMemory(ctx, threadCtx.ThreadExecID, mem.Snapshot()); err != nil {
		e.logger.Error("orchestrator: failed to persist memory on pause", "error", err)
	}
}
