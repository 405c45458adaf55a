package builtin

import (
	"context"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// NodeTypeFork is the type name the parallel fork executor registers under.
const NodeTypeFork = "fork"

// NodeTypeJoin is the type name the parallel join executor registers under.
const NodeTypeJoin = "join"

// ForkExecutor dispatches every downstream target of its success port as an
// independent parallel lane via the engine's LaneRunner, then routes
// onward through its own success port the same way any other node does; the downstream graph edge from fork to join carries
// the traversal forward once every lane has recorded its output into
// memory.
type ForkExecutor struct{}

var _ registry.NodeExecutor = (*ForkExecutor)(nil)

func (ForkExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}

// Execute fans the fork's success-port targets out as lanes. The lane
// results are already folded into elemCtx.Memory (lane status/output) by
// RunLanesForPort; the join node reads them back out.
func (ForkExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	if elemCtx.LaneRunner == nil {
		return nil, domain.NewConfigurationError(NodeTypeFork, "fork element has no lane runner on its context")
	}
	if _, err := elemCtx.LaneRunner.RunLanesForPort(ctx, elemCtx, domain.PortSuccess); err != nil {
		return nil, err
	}
	return registry.Success(domain.PortSuccess, map[string]any{}), nil
}

func (ForkExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return registry.Failure(cause.Error()), nil
}

func (ForkExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// JoinExecutor aggregates every lane's final variables (recorded by
// RunLanesForPort under the lane's entry element key) into this node's own
// output, keyed "lane_<entry key>", then clears the fork's parallel state so
// a later fork later in the same thread starts from a clean slate. A join
// element must set domain.Element.IsJoin so a
// lane's internal mini-loop (internal/orchestrator parallel.runLane) knows
// to stop here rather than execute past it.
type JoinExecutor struct{}

var _ registry.NodeExecutor = (*JoinExecutor)(nil)

func (JoinExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	if !defCtx.Element.IsJoin {
		return registry.Invalid(NodeTypeJoin + ": element must set IsJoin"), nil
	}
	return registry.Valid(), nil
}

func (JoinExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	output := make(map[string]any, len(elemCtx.Memory.LaneOutputs()))
	for laneKey, vars := range elemCtx.Memory.LaneOutputs() {
		output["lane_"+laneKey] = vars
	}
	elemCtx.Memory.ClearParallelState()
	return registry.Success(domain.PortSuccess, output), nil
}

func (JoinExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return registry.Failure(cause.Error()), nil
}

func (JoinExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}
