package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// LifecycleEvent is a durable record of one of the five lifecycle event
// kinds, the shape an audit/replay consumer reads back. This is a plain
// append-only log, not an event-sourced projection: the engine's
// recoverable state is the checkpoint (stack + memory snapshot), never a
// state rebuilt by replaying events.
type LifecycleEvent struct {
	ThreadExecID string
	Kind         string // "WorkflowStarting" | "NodeExecuting" | "NodeExecuted" | "Error" | "WorkflowCompleted"
	ElementKey   string
	OccurredAt   time.Time
	Detail       string // JSON-encoded payload, shape depends on Kind
}

// EventLog is the append-only sink the event publisher fans out to for
// durability. It implements events.Subscriber directly so it can be
// registered with a single Publisher.Subscribe call.
type EventLog interface {
	Append(ctx context.Context, ev LifecycleEvent) error
	ListByExecution(ctx context.Context, threadExecID string) ([]LifecycleEvent, error)
}

// EventLogSubscriber adapts an EventLog into an events.Subscriber,
// translating each of the five lifecycle callbacks into one LifecycleEvent.
// Persistence failures are reported via onFail rather than surfaced to
// orchestration; the enclosing Publisher.guard already isolates a
// subscriber's failures from the loop, so this is purely diagnostic.
type EventLogSubscriber struct {
	log    EventLog
	onFail func(kind string, err error)
}

// NewEventSubscriber wraps log as an events.Subscriber. onFail may be nil.
func NewEventSubscriber(log EventLog, onFail func(kind string, err error)) *EventLogSubscriber {
	return &EventLogSubscriber{log: log, onFail: onFail}
}

func (s *EventLogSubscriber) append(ev LifecycleEvent) {
	if err := s.log.Append(context.Background(), ev); err != nil && s.onFail != nil {
		s.onFail(ev.Kind, err)
	}
}

func (s *EventLogSubscriber) OnWorkflowStarting(threadCtx *domain.ThreadExecutionContext) {
	payload, _ := json.Marshal(map[string]any{"mode": threadCtx.Mode, "started_at": threadCtx.StartedAt})
	s.append(LifecycleEvent{ThreadExecID: threadCtx.ThreadExecID, Kind: "WorkflowStarting", OccurredAt: time.Now(), Detail: string(payload)})
}

func (s *EventLogSubscriber) OnNodeExecuting(elemCtx *domain.ElementExecutionContext) {
	s.append(LifecycleEvent{ThreadExecID: elemCtx.ThreadExecID, ElementKey: elemCtx.ElementKey, Kind: "NodeExecuting", OccurredAt: time.Now()})
}

func (s *EventLogSubscriber) OnNodeExecuted(result *registry.NodeResult, elemCtx *domain.ElementExecutionContext) {
	payload, _ := json.Marshal(map[string]any{"port": result.OutputPortKey, "success": result.Success})
	s.append(LifecycleEvent{ThreadExecID: elemCtx.ThreadExecID, ElementKey: elemCtx.ElementKey, Kind: "NodeExecuted", OccurredAt: time.Now(), Detail: string(payload)})
}

func (s *EventLogSubscriber) OnError(elemCtx *domain.ElementExecutionContext, err error) {
	s.append(LifecycleEvent{ThreadExecID: elemCtx.ThreadExecID, ElementKey: elemCtx.ElementKey, Kind: "Error", OccurredAt: time.Now(), Detail: err.Error()})
}

func (s *EventLogSubscriber) OnWorkflowCompleted(record *domain.ExecutionRecord, threadCtx *domain.ThreadExecutionContext) {
	payload, _ := json.Marshal(map[string]any{"status_id": record.StatusID, "error": record.ErrorMessage})
	s.append(LifecycleEvent{ThreadExecID: threadCtx.ThreadExecID, Kind: "WorkflowCompleted", OccurredAt: time.Now(), Detail: string(payload)})
}

// MemoryEventLog is an in-memory EventLog, for tests/demos/embedding.
type MemoryEventLog struct {
	mu     sync.RWMutex
	byExec map[string][]LifecycleEvent
}

func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{byExec: make(map[string][]LifecycleEvent)}
}

func (l *MemoryEventLog) Append(ctx context.Context, ev LifecycleEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byExec[ev.ThreadExecID] = append(l.byExec[ev.ThreadExecID], ev)
	return nil
}

func (l *MemoryEventLog) ListByExecution(ctx context.Context, threadExecID string) ([]LifecycleEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]LifecycleEvent, len(l.byExec[threadExecID]))
	copy(out, l.byExec[threadExecID])
	return out, nil
}

// LifecycleEventRow is the durable row for one LifecycleEvent.
type LifecycleEventRow struct {
	bun.BaseModel `bun:"table:lifecycle_events,alias:le"`

	ID           int64     `bun:"id,pk,autoincrement"`
	ThreadExecID string    `bun:"thread_exec_id"`
	ElementKey   string    `bun:"element_key"`
	Kind         string    `bun:"kind"`
	OccurredAt   time.Time `bun:"occurred_at"`
	Detail       string    `bun:"detail,type:jsonb,nullzero"`
}

// BunEventLog is a Postgres-backed EventLog sharing BunStore's connection.
type BunEventLog struct {
	db *bun.DB
}

// NewBunEventLog wraps an already-open bun.DB (typically the same one a
// BunStore uses) as an EventLog.
func NewBunEventLog(db *bun.DB) *BunEventLog {
	return &BunEventLog{db: db}
}

func (l *BunEventLog) InitSchema(ctx context.Context) error {
	_, err := l.db.NewCreateTable().Model((*LifecycleEventRow)(nil)).IfNotExists().Exec(ctx)
	return err
}

func (l *BunEventLog) Append(ctx context.Context, ev LifecycleEvent) error {
	row := &LifecycleEventRow{
		ThreadExecID: ev.ThreadExecID,
		ElementKey:   ev.ElementKey,
		Kind:         ev.Kind,
		OccurredAt:   ev.OccurredAt,
		Detail:       ev.Detail,
	}
	_, err := l.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (l *BunEventLog) ListByExecution(ctx context.Context, threadExecID string) ([]LifecycleEvent, error) {
	var rows []LifecycleEventRow
	err := l.db.NewSelect().Model(&rows).Where("thread_exec_id = ?", threadExecID).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]LifecycleEvent, len(rows))
	for i, r := range rows {
		out[i] = LifecycleEvent{ThreadExecID: r.ThreadExecID, ElementKey: r.ElementKey, Kind: r.Kind, OccurredAt: r.OccurredAt, Detail: r.Detail}
	}
	return out, nil
}
