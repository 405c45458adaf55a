package monitoring

import (
	"testing"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSubscriber_RecordsNodeExecution(t *testing.T) {
	collector := NewMetricsCollector()
	sub := NewEventSubscriber(collector)

	started := time.Now()
	elemCtx := &domain.ElementExecutionContext{
		ElementKey:    "node-a",
		ElementType:   "http",
		AttemptNumber: 1,
		StartedAt:     started,
		FinishedAt:    started.Add(50 * time.Millisecond),
	}
	sub.OnNodeExecuted(registry.Success("main", map[string]any{"x": 1}), elemCtx)

	m := collector.GetElementMetricsByKey("node-a")
	require.NotNil(t, m)
	assert.Equal(t, 1, m.ExecutionCount)
	assert.Equal(t, 1, m.SuccessCount)
	assert.Equal(t, 0, m.FailureCount)
	assert.Equal(t, 0, m.RetryCount)
}

func TestEventSubscriber_RecordsRetryAndFailure(t *testing.T) {
	collector := NewMetricsCollector()
	sub := NewEventSubscriber(collector)

	elemCtx := &domain.ElementExecutionContext{
		ElementKey:    "node-b",
		ElementType:   "flaky",
		AttemptNumber: 2,
		StartedAt:     time.Now(),
		FinishedAt:    time.Now().Add(10 * time.Millisecond),
	}
	sub.OnNodeExecuted(registry.Failure("boom"), elemCtx)

	m := collector.GetElementMetricsByKey("node-b")
	require.NotNil(t, m)
	assert.Equal(t, 1, m.FailureCount)
	assert.Equal(t, 1, m.RetryCount)
}

func TestEventSubscriber_RecordsWorkflowCompletion(t *testing.T) {
	collector := NewMetricsCollector()
	sub := NewEventSubscriber(collector)

	start := time.Now()
	record := &domain.ExecutionRecord{
		ThreadID:   "thread-1",
		State:      domain.StateCompleted,
		StartedAt:  start,
		FinishedAt: start.Add(100 * time.Millisecond),
	}
	sub.OnWorkflowCompleted(record, &domain.ThreadExecutionContext{})

	tm := collector.GetThreadMetrics("thread-1")
	require.NotNil(t, tm)
	assert.Equal(t, 1, tm.ExecutionCount)
	assert.Equal(t, 1, tm.SuccessCount)
}

func TestEventSubscriber_RecordsWorkflowFailure(t *testing.T) {
	collector := NewMetricsCollector()
	sub := NewEventSubscriber(collector)

	record := &domain.ExecutionRecord{
		ThreadID: "thread-2",
		State:    domain.StateFailed,
	}
	sub.OnWorkflowCompleted(record, &domain.ThreadExecutionContext{})

	tm := collector.GetThreadMetrics("thread-2")
	require.NotNil(t, tm)
	assert.Equal(t, 1, tm.FailureCount)
}
