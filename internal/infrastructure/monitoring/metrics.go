package monitoring

import (
	"sync"
	"time"
)

// MetricsCollector collects execution metrics for process threads and the
// elements within them. It tracks execution counts, durations,
// success/failure rates, and LLM API usage.
type MetricsCollector struct {
	// threadMetrics stores metrics per thread ID
	threadMetrics map[string]*ThreadMetrics
	// elementMetrics stores metrics per element key
	elementMetrics map[string]*ElementMetrics
	// aiMetrics stores LLM API usage metrics
	aiMetrics *AIMetrics
	// mu protects concurrent access
	mu sync.RWMutex
}

// ThreadMetrics represents metrics for a single process thread.
type ThreadMetrics struct {
	ThreadID        string        `json:"thread_id"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastExecutionAt time.Time     `json:"last_execution_at"`
}

// ElementMetrics represents metrics for a specific element instance.
type ElementMetrics struct {
	ElementKey      string        `json:"element_key"`
	ElementType     string        `json:"element_type"`
	ExecutionCount  int           `json:"execution_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	RetryCount      int           `json:"retry_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
}

// AIMetrics represents LLM API usage metrics accrued by integration
// elements such as the LLM completion node.
type AIMetrics struct {
	TotalRequests    int           `json:"total_requests"`
	TotalTokens      int           `json:"total_tokens"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	AverageLatency   time.Duration `json:"average_latency"`
	mu               sync.RWMutex
}

// NewMetricsCollector creates a new MetricsCollector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		threadMetrics:  make(map[string]*ThreadMetrics),
		elementMetrics: make(map[string]*ElementMetrics),
		aiMetrics:      &AIMetrics{},
	}
}

// RecordThreadExecution records metrics for one process thread execution.
func (mc *MetricsCollector) RecordThreadExecution(threadID string, duration time.Duration, success bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, ok := mc.threadMetrics[threadID]
	if !ok {
		metrics = &ThreadMetrics{
			ThreadID:    threadID,
			MinDuration: duration,
			MaxDuration: duration,
		}
		mc.threadMetrics[threadID] = metrics
	}

	metrics.ExecutionCount++
	if success {
		metrics.SuccessCount++
	} else {
		metrics.FailureCount++
	}

	metrics.TotalDuration += duration
	metrics.AverageDuration = metrics.TotalDuration / time.Duration(metrics.ExecutionCount)
	metrics.LastExecutionAt = time.Now()

	if duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
}

// RecordElementExecution records metrics for a single element execution.
func (mc *MetricsCollector) RecordElementExecution(elementKey, elementType string, duration time.Duration, success bool, isRetry bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	metrics, ok := mc.elementMetrics[elementKey]
	if !ok {
		metrics = &ElementMetrics{
			ElementKey:  elementKey,
			ElementType: elementType,
			MinDuration: duration,
			MaxDuration: duration,
		}
		mc.elementMetrics[elementKey] = metrics
	}

	metrics.ExecutionCount++
	if success {
		metrics.SuccessCount++
	} else {
		metrics.FailureCount++
	}
	if isRetry {
		metrics.RetryCount++
	}

	metrics.TotalDuration += duration
	metrics.AverageDuration = metrics.TotalDuration / time.Duration(metrics.ExecutionCount)

	if duration < metrics.MinDuration {
		metrics.MinDuration = duration
	}
	if duration > metrics.MaxDuration {
		metrics.MaxDuration = duration
	}
}

// RecordAIRequest records metrics for an LLM API request issued by an
// integration element.
func (mc *MetricsCollector) RecordAIRequest(promptTokens, completionTokens int, latency time.Duration) {
	mc.aiMetrics.mu.Lock()
	defer mc.aiMetrics.mu.Unlock()

	mc.aiMetrics.TotalRequests++
	mc.aiMetrics.PromptTokens += promptTokens
	mc.aiMetrics.CompletionTokens += completionTokens
	mc.aiMetrics.TotalTokens += promptTokens + completionTokens

	// Simple cost estimation (GPT-4 pricing as of 2024)
	// $0.03 per 1K prompt tokens, $0.06 per 1K completion tokens
	promptCost := float64(promptTokens) / 1000.0 * 0.03
	completionCost := float64(completionTokens) / 1000.0 * 0.06
	mc.aiMetrics.EstimatedCostUSD += promptCost + completionCost

	totalLatency := time.Duration(mc.aiMetrics.TotalRequests-1) * mc.aiMetrics.AverageLatency
	mc.aiMetrics.AverageLatency = (totalLatency + latency) / time.Duration(mc.aiMetrics.TotalRequests)
}

// GetThreadMetrics returns metrics for a specific thread.
func (mc *MetricsCollector) GetThreadMetrics(threadID string) *ThreadMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.threadMetrics[threadID]; ok {
		c := *metrics
		return &c
	}
	return nil
}

// GetAllThreadMetrics returns metrics for every thread.
func (mc *MetricsCollector) GetAllThreadMetrics() map[string]*ThreadMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*ThreadMetrics)
	for k, v := range mc.threadMetrics {
		c := *v
		result[k] = &c
	}
	return result
}

// GetElementMetricsByKey returns metrics for one specific element instance.
func (mc *MetricsCollector) GetElementMetricsByKey(elementKey string) *ElementMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.elementMetrics[elementKey]; ok {
		c := *metrics
		return &c
	}
	return nil
}

// GetElementMetricsByType returns metrics aggregated across every element
// instance of the given type.
func (mc *MetricsCollector) GetElementMetricsByType(elementType string) *ElementMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	aggregated := &ElementMetrics{
		ElementType: elementType,
	}

	found := false
	for _, m := range mc.elementMetrics {
		if m.ElementType == elementType {
			if !found {
				aggregated.MinDuration = m.MinDuration
				aggregated.MaxDuration = m.MaxDuration
				found = true
			}

			aggregated.ExecutionCount += m.ExecutionCount
			aggregated.SuccessCount += m.SuccessCount
			aggregated.FailureCount += m.FailureCount
			aggregated.RetryCount += m.RetryCount
			aggregated.TotalDuration += m.TotalDuration

			if m.MinDuration < aggregated.MinDuration {
				aggregated.MinDuration = m.MinDuration
			}
			if m.MaxDuration > aggregated.MaxDuration {
				aggregated.MaxDuration = m.MaxDuration
			}
		}
	}

	if !found {
		return nil
	}

	if aggregated.ExecutionCount > 0 {
		aggregated.AverageDuration = aggregated.TotalDuration / time.Duration(aggregated.ExecutionCount)
	}

	return aggregated
}

// GetAllElementMetrics returns metrics for every element instance.
func (mc *MetricsCollector) GetAllElementMetrics() map[string]*ElementMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	result := make(map[string]*ElementMetrics)
	for k, v := range mc.elementMetrics {
		c := *v
		result[k] = &c
	}
	return result
}

// GetAIMetrics returns LLM API usage metrics.
func (mc *MetricsCollector) GetAIMetrics() *AIMetrics {
	mc.aiMetrics.mu.RLock()
	defer mc.aiMetrics.mu.RUnlock()

	// Return a new struct with copied values (not copying the mutex)
	return &AIMetrics{
		TotalRequests:    mc.aiMetrics.TotalRequests,
		TotalTokens:      mc.aiMetrics.TotalTokens,
		PromptTokens:     mc.aiMetrics.PromptTokens,
		CompletionTokens: mc.aiMetrics.CompletionTokens,
		EstimatedCostUSD: mc.aiMetrics.EstimatedCostUSD,
		AverageLatency:   mc.aiMetrics.AverageLatency,
	}
}

// GetThreadSuccessRate returns the success rate for a thread.
func (mc *MetricsCollector) GetThreadSuccessRate(threadID string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.threadMetrics[threadID]; ok {
		if metrics.ExecutionCount == 0 {
			return 0.0
		}
		return float64(metrics.SuccessCount) / float64(metrics.ExecutionCount)
	}
	return 0.0
}

// GetElementSuccessRate returns the success rate for one element instance.
func (mc *MetricsCollector) GetElementSuccessRate(elementKey string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if metrics, ok := mc.elementMetrics[elementKey]; ok {
		if metrics.ExecutionCount == 0 {
			return 0.0
		}
		return float64(metrics.SuccessCount) / float64(metrics.ExecutionCount)
	}
	return 0.0
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.threadMetrics = make(map[string]*ThreadMetrics)
	mc.elementMetrics = make(map[string]*ElementMetrics)
	mc.aiMetrics = &AIMetrics{}
}

// MetricsSummary is a rollup of all collected metrics.
type MetricsSummary struct {
	TotalThreads          int     `json:"total_threads"`
	TotalExecutions       int     `json:"total_executions"`
	TotalSuccesses        int     `json:"total_successes"`
	TotalFailures         int     `json:"total_failures"`
	OverallSuccessRate    float64 `json:"overall_success_rate"`
	TotalElementExecutions int    `json:"total_element_executions"`
	TotalElementRetries   int     `json:"total_element_retries"`
	TotalAIRequests       int     `json:"total_ai_requests"`
	TotalAITokens         int     `json:"total_ai_tokens"`
	EstimatedAICostUSD    float64 `json:"estimated_ai_cost_usd"`
}

// GetSummary returns a summary of all metrics.
func (mc *MetricsCollector) GetSummary() *MetricsSummary {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := &MetricsSummary{
		TotalThreads: len(mc.threadMetrics),
	}

	for _, tm := range mc.threadMetrics {
		summary.TotalExecutions += tm.ExecutionCount
		summary.TotalSuccesses += tm.SuccessCount
		summary.TotalFailures += tm.FailureCount
	}

	if summary.TotalExecutions > 0 {
		summary.OverallSuccessRate = float64(summary.TotalSuccesses) / float64(summary.TotalExecutions)
	}

	for _, em := range mc.elementMetrics {
		summary.TotalElementExecutions += em.ExecutionCount
		summary.TotalElementRetries += em.RetryCount
	}

	mc.aiMetrics.mu.RLock()
	summary.TotalAIRequests = mc.aiMetrics.TotalRequests
	summary.TotalAITokens = mc.aiMetrics.TotalTokens
	summary.EstimatedAICostUSD = mc.aiMetrics.EstimatedCostUSD
	mc.aiMetrics.mu.RUnlock()

	return summary
}

// MetricsSnapshot is a complete point-in-time snapshot of all metrics, used
// for serialization over the REST metrics endpoint.
type MetricsSnapshot struct {
	Timestamp      time.Time                  `json:"timestamp"`
	ThreadMetrics  map[string]*ThreadMetrics  `json:"thread_metrics,omitempty"`
	ElementMetrics map[string]*ElementMetrics `json:"element_metrics,omitempty"`
	AIMetrics      *AIMetrics                 `json:"ai_metrics,omitempty"`
	Summary        *MetricsSummary            `json:"summary"`
}

// Snapshot creates a complete, thread-safe snapshot of all current metrics.
func (mc *MetricsCollector) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		Timestamp:      time.Now(),
		ThreadMetrics:  mc.GetAllThreadMetrics(),
		ElementMetrics: mc.GetAllElementMetrics(),
		AIMetrics:      mc.GetAIMetrics(),
		Summary:        mc.GetSummary(),
	}
}
