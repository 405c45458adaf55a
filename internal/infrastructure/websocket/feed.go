// Package websocket streams the engine's lifecycle events to connected
// monitoring clients. The Feed subscribes to the in-process event publisher
// directly and fans each event out to every session watching the event's
// thread execution; it is a thin transport over the engine's own event
// semantics, not a second event model.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// Feed event kinds, one per lifecycle callback.
const (
	KindWorkflowStarting  = "workflow_starting"
	KindNodeExecuting     = "node_executing"
	KindNodeExecuted      = "node_executed"
	KindNodeError         = "node_error"
	KindWorkflowCompleted = "workflow_completed"
)

// FeedEvent is the wire shape of one lifecycle event as a monitoring client
// sees it. Fields are populated per kind; a node-level event carries the
// element fields, a workflow-level event the status fields.
type FeedEvent struct {
	Kind         string    `json:"kind"`
	ThreadExecID string    `json:"thread_exec_id"`
	ThreadID     string    `json:"thread_id,omitempty"`
	ElementKey   string    `json:"element_key,omitempty"`
	ElementType  string    `json:"element_type,omitempty"`
	Port         string    `json:"port,omitempty"`
	Attempt      int       `json:"attempt,omitempty"`
	DurationMs   int64     `json:"duration_ms,omitempty"`
	StatusID     int       `json:"status_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	At           time.Time `json:"at"`
}

// Canceller is the narrow orchestrator surface a client's cancel command
// needs. *orchestrator.Engine satisfies it; keeping the interface here means
// this package never imports the orchestrator.
type Canceller interface {
	CancelExecution(ctx context.Context, threadExecID string) error
}

var errNoCanceller = errors.New("websocket: no canceller wired to feed")

// sessionBuffer bounds how many undelivered events a session may queue. A
// session that falls further behind starts losing events; the feed counts
// the drops rather than blocking the orchestration loop's fan-out.
const sessionBuffer = 64

// session is one connected client's view of the feed: an outbound queue
// (events and command acks share it, so the connection has a single
// writer) plus the set of thread-exec ids it watches. An empty watch set
// means watch everything.
type session struct {
	out chan any

	mu      sync.Mutex
	watch   map[string]bool
	dropped int
}

func newSession() *session {
	return &session{
		out:   make(chan any, sessionBuffer),
		watch: make(map[string]bool),
	}
}

// wants reports whether this session should receive an event for
// threadExecID.
func (s *session) wants(threadExecID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.watch) == 0 {
		return true
	}
	return s.watch[threadExecID]
}

func (s *session) setWatch(threadExecID string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.watch[threadExecID] = true
	} else {
		delete(s.watch, threadExecID)
	}
}

// deliver queues v without ever blocking; a full buffer counts a drop.
func (s *session) deliver(v any) {
	select {
	case s.out <- v:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Feed is the event fan-out hub. It implements events.Subscriber, so wiring
// it up is a single Publisher.Subscribe(feed) call.
type Feed struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}

	canceller Canceller
	logger    *slog.Logger
}

// NewFeed creates an empty Feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		sessions: make(map[*session]struct{}),
		logger:   logger,
	}
}

// SetCanceller wires the orchestrator's cancel operation into the feed so a
// connected client can cancel the execution it is watching.
func (f *Feed) SetCanceller(c Canceller) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceller = c
}

// CancelExecution forwards to the wired Canceller, if any.
func (f *Feed) CancelExecution(ctx context.Context, threadExecID string) error {
	f.mu.RLock()
	c := f.canceller
	f.mu.RUnlock()
	if c == nil {
		return errNoCanceller
	}
	return c.CancelExecution(ctx, threadExecID)
}

func (f *Feed) attach(s *session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s] = struct{}{}
}

func (f *Feed) detach(s *session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s]; !ok {
		return
	}
	delete(f.sessions, s)
	close(s.out)
	if s.dropped > 0 {
		f.logger.Warn("websocket: session closed with undelivered events", "dropped", s.dropped)
	}
}

// SessionCount reports how many sessions are currently attached.
func (f *Feed) SessionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sessions)
}

// publish fans ev out to every session watching its execution.
func (f *Feed) publish(ev FeedEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.sessions {
		if s.wants(ev.ThreadExecID) {
			s.deliver(ev)
		}
	}
}

// OnWorkflowStarting implements events.Subscriber.
func (f *Feed) OnWorkflowStarting(threadCtx *domain.ThreadExecutionContext) {
	f.publish(FeedEvent{
		Kind:         KindWorkflowStarting,
		ThreadExecID: threadCtx.ThreadExecID,
		ThreadID:     threadCtx.ThreadID,
		At:           time.Now(),
	})
}

// OnNodeExecuting implements events.Subscriber.
func (f *Feed) OnNodeExecuting(elemCtx *domain.ElementExecutionContext) {
	f.publish(FeedEvent{
		Kind:         KindNodeExecuting,
		ThreadExecID: elemCtx.ThreadExecID,
		ElementKey:   elemCtx.ElementKey,
		ElementType:  elemCtx.ElementType,
		Attempt:      elemCtx.AttemptNumber,
		At:           time.Now(),
	})
}

// OnNodeExecuted implements events.Subscriber.
func (f *Feed) OnNodeExecuted(result *registry.NodeResult, elemCtx *domain.ElementExecutionContext) {
	ev := FeedEvent{
		Kind:         KindNodeExecuted,
		ThreadExecID: elemCtx.ThreadExecID,
		ElementKey:   elemCtx.ElementKey,
		ElementType:  elemCtx.ElementType,
		DurationMs:   elemCtx.Duration().Milliseconds(),
		At:           time.Now(),
	}
	if result != nil {
		ev.Port = result.OutputPortKey
		ev.Error = result.ErrorMessage
	}
	f.publish(ev)
}

// OnError implements events.Subscriber.
func (f *Feed) OnError(elemCtx *domain.ElementExecutionContext, err error) {
	f.publish(FeedEvent{
		Kind:         KindNodeError,
		ThreadExecID: elemCtx.ThreadExecID,
		ElementKey:   elemCtx.ElementKey,
		ElementType:  elemCtx.ElementType,
		Attempt:      elemCtx.AttemptNumber,
		Error:        err.Error(),
		At:           time.Now(),
	})
}

// OnWorkflowCompleted implements events.Subscriber.
func (f *Feed) OnWorkflowCompleted(record *domain.ExecutionRecord, threadCtx *domain.ThreadExecutionContext) {
	f.publish(FeedEvent{
		Kind:         KindWorkflowCompleted,
		ThreadExecID: threadCtx.ThreadExecID,
		ThreadID:     threadCtx.ThreadID,
		StatusID:     int(record.StatusID),
		Error:        record.ErrorMessage,
		At:           time.Now(),
	})
}
