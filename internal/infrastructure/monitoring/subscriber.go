package monitoring

import (
	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// EventSubscriber adapts a MetricsCollector into an events.Subscriber so
// workflow and node durations are recorded off the same lifecycle fan-out
// that drives tracing and persistence, rather than polled out-of-band.
type EventSubscriber struct {
	collector *MetricsCollector
}

// NewEventSubscriber wraps collector as an events.Subscriber.
func NewEventSubscriber(collector *MetricsCollector) *EventSubscriber {
	return &EventSubscriber{collector: collector}
}

func (s *EventSubscriber) OnWorkflowStarting(*domain.ThreadExecutionContext) {}

func (s *EventSubscriber) OnNodeExecuting(*domain.ElementExecutionContext) {}

// OnNodeExecuted records one node invocation's duration, outcome, and
// whether it was a retry attempt (AttemptNumber > 1).
func (s *EventSubscriber) OnNodeExecuted(result *registry.NodeResult, elemCtx *domain.ElementExecutionContext) {
	if elemCtx == nil {
		return
	}
	success := result != nil && result.Success
	s.collector.RecordElementExecution(elemCtx.ElementKey, elemCtx.ElementType, elemCtx.Duration(), success, elemCtx.AttemptNumber > 1)
}

func (s *EventSubscriber) OnError(*domain.ElementExecutionContext, error) {}

// OnWorkflowCompleted records the whole thread execution's duration and
// final success/failure.
func (s *EventSubscriber) OnWorkflowCompleted(record *domain.ExecutionRecord, threadCtx *domain.ThreadExecutionContext) {
	if record == nil {
		return
	}
	duration := record.FinishedAt.Sub(record.StartedAt)
	success := record.State == domain.StateCompleted || record.State == domain.StateCompletedWithWarnings
	s.collector.RecordThreadExecution(record.ThreadID, duration, success)
}
