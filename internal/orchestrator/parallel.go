package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/expression"
	"github.com/procthread/engine/internal/memory"
	"github.com/procthread/engine/internal/registry"
)

// maxLaneChainSteps bounds how far a single lane's mini-loop will walk
// before it must reach an element flagged IsJoin, guarding against a malformed
// graph where a fork lane never joins.
const maxLaneChainSteps = 10000

// RunLanesForPort satisfies registry.LaneRunner: it dispatches every enabled
// downstream target of src's port as an independent goroutine, each with
// its own cloned memory, running that lane's chain of elements until it
// would next execute an element flagged IsJoin, so every lane node completes
// before the join node's successors are pushed. The
// fork element's own Execute call blocks on this, so the main orchestration
// loop's normal post-Execute routing (it pushes the shared join element
// onto the stack via the fork's success port) needs no special-casing.
func (e *Engine) RunLanesForPort(ctx context.Context, elemCtx *registry.ElementContext, port string) (map[string]map[string]any, error) {
	def := elemCtx.ThreadDef
	tier := expression.TierFor(elemCtx.Element.Certificate, time.Now())
	conns := e.router.EnabledConnections(ctx, elemCtx.Element, port, def, elemCtx.Memory.Variables(), tier)

	elemCtx.Memory.SetParallelActive(true)
	// ClearParallelState is the join node's own responsibility, once it has
	// read LaneOutputs() to aggregate.

	var wg sync.WaitGroup
	results := make(map[string]map[string]any, len(conns))
	var mu sync.Mutex

	for _, conn := range conns {
		target, ok := def.ElementByID(conn.TargetElementID)
		if !ok || target.Disabled {
			continue
		}
		laneEntry := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			output := e.runLane(ctx, elemCtx, laneEntry)
			mu.Lock()
			results[laneEntry.Key] = output
			elemCtx.Memory.SetLaneOutput(laneEntry.Key, output)
			elemCtx.Memory.SetLaneStatus(laneEntry.Key, true)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results, nil
}

// runLane drives one fork lane's chain of elements to completion against a
// memory clone, so lanes do not see each other's writes until the join
// re-merges them, stopping before it would execute the first element
// flagged IsJoin that it reaches. Only the first enabled connection out of
// each element's result port is followed; a lane that branches internally
// still resolves deterministically since EnabledConnections returns
// connections in definition order.
func (e *Engine) runLane(ctx context.Context, parent *registry.ElementContext, entry *domain.Element) map[string]any {
	laneMem := memory.Restore(parent.Memory.Snapshot())
	def := parent.ThreadDef

	current := entry
	for i := 0; i < maxLaneChainSteps; i++ {
		if current.IsJoin {
			return laneMem.Variables()
		}

		laneElemCtx := &registry.ElementContext{
			Element:       current,
			ExecCtx:       &domain.ElementExecutionContext{ElementKey: current.Key, ElementType: current.Type, ThreadExecID: parent.ThreadExecCtx.ThreadExecID},
			ThreadExecCtx: parent.ThreadExecCtx,
			ThreadDef:     def,
			Memory:        laneMem,
			SubWorkflow:   e,
			LaneRunner:    e,
		}

		result, _, cause := e.envelope.Run(ctx, laneElemCtx)
		if cause != nil {
			laneMem.SetNodeOutput(current.Key, map[string]any{"error": cause.Error()})
			return laneMem.Variables()
		}
		laneMem.SetNodeOutput(current.Key, result.OutputData)

		laneTier := expression.TierFor(current.Certificate, time.Now())
		conns := e.router.EnabledConnections(ctx, current, result.OutputPortKey, def, laneMem.Variables(), laneTier)
		if len(conns) == 0 {
			return laneMem.Variables()
		}
		next, ok := def.ElementByID(conns[0].TargetElementID)
		if !ok {
			return laneMem.Variables()
		}
		current = next
	}
	return laneMem.Variables()
}
