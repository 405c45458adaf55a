package orchestrator

import (
	"context"
	"fmt"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
	"github.com/procthread/engine/internal/registry"
)

// InvokeSubWorkflow satisfies registry.SubWorkflowInvoker: it runs a child
// thread version to completion as a nested execution,
// enforcing the nesting-depth cap against the root execution's counter
// rather than the immediate parent's, so a deep chain of 1-deep
// invocations from distinct parents still gets capped.
func (e *Engine) InvokeSubWorkflow(ctx context.Context, parent *registry.ElementContext, childThreadID, childVersionID int64, input map[string]any) (*registry.SubWorkflowResult, error) {
	if e.loader == nil {
		return nil, domain.NewConfigurationError("orchestrator", "no definition loader configured for sub-workflow invocation")
	}

	rootID := parent.ThreadExecCtx.ThreadExecID
	if parent.ThreadExecCtx.RootThreadExecID != "" {
		rootID = parent.ThreadExecCtx.RootThreadExecID
	}
	depth, ok := e.tracking.enterNesting(rootID, e.maxNestingDepth)
	if !ok {
		return nil, domain.NewExecutionError(
			fmt.Sprintf("%d", childThreadID), "", parent.Element.Key,
			fmt.Sprintf("sub-workflow nesting depth %d exceeds max %d", depth+1, e.maxNestingDepth),
			nil, false, "nesting_limit_exceeded")
	}
	defer e.tracking.exitNesting(rootID)

	def, err := e.loader.LoadProcessThread(ctx, childVersionID)
	if err != nil {
		return nil, err
	}

	childMem := memory.New(childVariables(parent, input))
	childCtx := &domain.ThreadExecutionContext{
		ThreadExecID:       newThreadExecID(),
		ThreadID:           fmt.Sprintf("%d", childThreadID),
		ThreadVersionID:    childVersionID,
		Mode:               domain.ExecutionModeSubProcess,
		ParentThreadExecID: parent.ThreadExecCtx.ThreadExecID,
		RootThreadExecID:   rootID,
		NestingDepth:       parent.ThreadExecCtx.NestingDepth + 1,
	}

	var entryKeys []string
	for _, trigger := range def.TriggerElements() {
		entryKeys = append(entryKeys, trigger.Key)
	}
	if len(entryKeys) == 0 && len(def.Elements) > 0 {
		entryKeys = append(entryKeys, def.Elements[0].Key)
	}
	childCtx.PushElementsReversed(entryKeys)

	record := e.runThread(ctx, childCtx, childMem, def)

	result := &registry.SubWorkflowResult{
		Outputs:   childMem.NodeOutputs(),
		Variables: childMem.Variables(),
		Status:    record.State,
	}
	reflectIntoParent(parent, result)
	return result, nil
}

// reflectIntoParent exposes the child's outputs and variables to the parent
// execution under the `subworkflow` namespace,
// outputs winning over a variable of the same name.
func reflectIntoParent(parent *registry.ElementContext, result *registry.SubWorkflowResult) {
	sub := make(map[string]any, len(result.Outputs)+len(result.Variables))
	for k, v := range result.Variables {
		sub[k] = v
	}
	for k, v := range result.Outputs {
		sub[k] = v
	}
	_ = parent.Memory.Set("subworkflow", sub)
}

// childVariables seeds the nested execution's global scope with the
// parent's output and variable state under parent.output.<k> and
// parent.var.<k>, plus the caller-supplied input under its own keys.
func childVariables(parent *registry.ElementContext, input map[string]any) map[string]any {
	vars := make(map[string]any, len(input)+2)
	for k, v := range input {
		vars[k] = v
	}
	vars["parent"] = map[string]any{
		"output": parent.Memory.NodeOutputs(),
		"var":    parent.Memory.Variables(),
	}
	return vars
}
