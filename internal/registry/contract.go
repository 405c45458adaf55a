// Package registry implements the Executor Registry: a type-name
// keyed map from node type to a concrete executor instance, plus the node
// contract every executor must satisfy.
package registry

import (
	"context"
	"fmt"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// DefinitionContext is what Validate sees: the element's own definition plus
// the thread definition it belongs to, so an executor can check cross-node
// invariants (e.g. "my target port exists").
type DefinitionContext struct {
	Element  *domain.Element
	ThreadDef *domain.ThreadDefinition
}

// ElementContext is what Execute/HandleError/Cleanup see: everything about
// one live invocation of one element.
type ElementContext struct {
	Element       *domain.Element
	ExecCtx       *domain.ElementExecutionContext
	ThreadExecCtx *domain.ThreadExecutionContext
	ThreadDef     *domain.ThreadDefinition
	Memory        *memory.ExecutionMemory
	Input         map[string]any

	// SubWorkflow lets a sub-workflow-capable executor recurse into the
	// orchestrator for a nested thread execution.
	// Nil when the owning engine does not support nesting (e.g. a unit
	// test harness exercising an executor in isolation).
	SubWorkflow SubWorkflowInvoker

	// LaneRunner lets a fork-node executor dispatch its downstream lanes in
	// parallel and collect their outputs. Nil
	// outside a live engine-driven execution.
	LaneRunner LaneRunner
}

// LaneRunner dispatches the enabled downstream elements of src's port as
// independent parallel lanes, each running in an isolated memory clone
// until it reaches an element flagged IsJoin, and reports each lane's final
// output keyed by the lane's entry element key.
type LaneRunner interface {
	RunLanesForPort(ctx context.Context, elemCtx *ElementContext, port string) (map[string]map[string]any, error)
}

// SubWorkflowInvoker is the narrow surface of the orchestrator a
// sub-workflow-capable executor needs: run a child thread execution to
// completion and report its outputs/variables back to the caller. Defined
// here (rather than imported from the orchestrator) so this package has no
// dependency on it; the orchestrator implements this interface and sets it
// on ElementContext.SubWorkflow before invoking an executor.
type SubWorkflowInvoker interface {
	InvokeSubWorkflow(ctx context.Context, parent *ElementContext, childThreadID, childVersionID int64, input map[string]any) (*SubWorkflowResult, error)
}

// SubWorkflowResult is what a child thread execution reports back to the
// node that invoked it; the engine reflects these back into the parent
// memory under the subworkflow namespace.
type SubWorkflowResult struct {
	Outputs   map[string]any
	Variables map[string]any
	Status    domain.ThreadExecutionState
}

// ValidationResult is Validate's verdict.
type ValidationResult struct {
	Valid   bool
	Message string
}

// Valid is a convenience constructor for a passing ValidationResult.
func Valid() *ValidationResult {
	return &ValidationResult{Valid: true}
}

// Invalid is a convenience constructor for a failing ValidationResult.
func Invalid(message string) *ValidationResult {
	return &ValidationResult{Valid: false, Message: message}
}

// NodeResult is what Execute/HandleError return: the node's output data and
// which output port routing should follow.
type NodeResult struct {
	OutputData    map[string]any
	OutputPortKey string
	Success       bool
	ErrorMessage  string
}

// Success builds a successful NodeResult routed out of the given port.
func Success(port string, output map[string]any) *NodeResult {
	return &NodeResult{OutputData: output, OutputPortKey: port, Success: true}
}

// Failure builds a failed NodeResult routed out of the "error" port.
func Failure(message string) *NodeResult {
	return &NodeResult{
		OutputData:    map[string]any{},
		OutputPortKey: domain.PortError,
		Success:       false,
		ErrorMessage:  message,
	}
}

// ActivationResult is returned by a trigger executor's Listen.
type ActivationResult struct {
	Activated bool
	InputData map[string]any
}

// NodeExecutor is the contract every registered executor implements.
type NodeExecutor interface {
	Validate(ctx context.Context, defCtx *DefinitionContext) (*ValidationResult, error)
	Execute(ctx context.Context, elemCtx *ElementContext) (*NodeResult, error)
	HandleError(ctx context.Context, elemCtx *ElementContext, cause error) (*NodeResult, error)
	Cleanup(ctx context.Context, elemCtx *ElementContext)
}

// DecisionExecutor additionally exposes EvaluateCondition, for node types
// that choose an output port without further executor-specific work.
type DecisionExecutor interface {
	NodeExecutor
	EvaluateCondition(ctx context.Context, elemCtx *ElementContext) (string, error)
}

// IntegrationExecutor additionally exposes InvokeExternalService, for node
// types that call out to an external system.
type IntegrationExecutor interface {
	NodeExecutor
	InvokeExternalService(ctx context.Context, elemCtx *ElementContext) (map[string]any, error)
}

// TriggerExecutor additionally exposes Listen, for node types that seed a
// new thread execution from an external activation.
type TriggerExecutor interface {
	NodeExecutor
	Listen(ctx context.Context, elemCtx *ElementContext) (*ActivationResult, error)
}

// ErrUnknownNodeType is returned by Get when no factory is registered for a
// type name.
func ErrUnknownNodeType(typeName string) error {
	return domain.NewDomainError(domain.ErrCodeUnknownNodeType,
		fmt.Sprintf("no executor registered for node type %q", typeName), nil)
}
