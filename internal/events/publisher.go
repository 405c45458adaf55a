// Package events is a cooperative fan-out of the five lifecycle event
// kinds to registered subscribers. Subscriber failures (panics) are caught
// and logged; they never abort orchestration.
package events

import (
	"log/slog"
	"sync"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// Subscriber receives the five lifecycle event kinds. Implementations
// should return quickly; slow subscribers block the orchestration loop
// since fan-out is a direct call loop.
type Subscriber interface {
	OnWorkflowStarting(threadCtx *domain.ThreadExecutionContext)
	OnNodeExecuting(elemCtx *domain.ElementExecutionContext)
	OnNodeExecuted(result *registry.NodeResult, elemCtx *domain.ElementExecutionContext)
	OnError(elemCtx *domain.ElementExecutionContext, err error)
	OnWorkflowCompleted(record *domain.ExecutionRecord, threadCtx *domain.ThreadExecutionContext)
}

// Publisher fans out events to every registered subscriber, in
// registration order.
type Publisher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
}

// New creates an empty Publisher.
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

// Subscribe registers a subscriber.
func (p *Publisher) Subscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, s)
}

// Unsubscribe removes a previously registered subscriber.
func (p *Publisher) Unsubscribe(s Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, sub := range p.subscribers {
		if sub == s {
			p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
			return
		}
	}
}

func (p *Publisher) snapshot() []Subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Subscriber, len(p.subscribers))
	copy(out, p.subscribers)
	return out
}

// guard recovers a panicking subscriber call and logs it, so one bad
// observer never disturbs the orchestration loop.
func (p *Publisher) guard(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("events: subscriber panicked", "event", event, "recovered", r)
		}
	}()
	fn()
}

// WorkflowStarting emits to every subscriber.
func (p *Publisher) WorkflowStarting(threadCtx *domain.ThreadExecutionContext) {
	for _, s := range p.snapshot() {
		sub := s
		p.guard("WorkflowStarting", func() { sub.OnWorkflowStarting(threadCtx) })
	}
}

// NodeExecuting emits to every subscriber.
func (p *Publisher) NodeExecuting(elemCtx *domain.ElementExecutionContext) {
	for _, s := range p.snapshot() {
		sub := s
		p.guard("NodeExecuting", func() { sub.OnNodeExecuting(elemCtx) })
	}
}

// NodeExecuted emits to every subscriber.
func (p *Publisher) NodeExecuted(result *registry.NodeResult, elemCtx *domain.ElementExecutionContext) {
	for _, s := range p.snapshot() {
		sub := s
		p.guard("NodeExecuted", func() { sub.OnNodeExecuted(result, elemCtx) })
	}
}

// Error emits to every subscriber.
func (p *Publisher) Error(elemCtx *domain.ElementExecutionContext, err error) {
	for _, s := range p.snapshot() {
		sub := s
		p.guard("Error", func() { sub.OnError(elemCtx, err) })
	}
}

// WorkflowCompleted emits to every subscriber.
func (p *Publisher) WorkflowCompleted(record *domain.ExecutionRecord, threadCtx *domain.ThreadExecutionContext) {
	for _, s := range p.snapshot() {
		sub := s
		p.guard("WorkflowCompleted", func() { sub.OnWorkflowCompleted(record, threadCtx) })
	}
}
