package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunStore is a Postgres-backed checkpoint store. A checkpoint is durable
// across process restarts, which the in-memory store cannot offer.
type BunStore struct {
	db *bun.DB
}

// NewBunStore opens a bun.DB against dsn using pgdriver/pgdialect.
func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*CheckpointModel)(nil),
		(*ExecutionRecordModel)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CheckpointModel is the durable row for one paused thread execution's
// pending-element stack and execution memory snapshot.
type CheckpointModel struct {
	bun.BaseModel `bun:"table:checkpoints,alias:cp"`

	ThreadExecID string    `bun:"thread_exec_id,pk"`
	Stack        []string  `bun:"stack,type:jsonb"`
	MemorySnap   []byte    `bun:"memory_snapshot,type:jsonb"`
	Active       bool      `bun:"active"`
	UpdatedAt    time.Time `bun:"updated_at"`
}

func (s *BunStore) SaveStack(ctx context.Context, threadExecID string, stack []string) error {
	model := &CheckpointModel{
		ThreadExecID: threadExecID,
		Stack:        stack,
		Active:       true,
		UpdatedAt:    time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(model).
		Column("thread_exec_id", "stack", "active", "updated_at").
		On("CONFLICT (thread_exec_id) DO UPDATE").
		Set("stack = EXCLUDED.stack").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *BunStore) LoadStack(ctx context.Context, threadExecID string, def *domain.ThreadDefinition) ([]string, error) {
	model := new(CheckpointModel)
	err := s.db.NewSelect().Model(model).Where("thread_exec_id = ?", threadExecID).Scan(ctx)
	if err != nil {
		return nil, domain.NewStateError(threadExecID, "failed to load checkpointed stack", err)
	}
	if err := validateStackAgainstDefinition(threadExecID, model.Stack, def); err != nil {
		return nil, err
	}
	return model.Stack, nil
}

func (s *BunStore) SaveMemory(ctx context.Context, threadExecID string, snap *memory.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return domain.NewStateError(threadExecID, "failed to marshal memory snapshot", err)
	}
	model := &CheckpointModel{
		ThreadExecID: threadExecID,
		MemorySnap:   payload,
		Active:       true,
		UpdatedAt:    time.Now(),
	}
	_, err = s.db.NewInsert().
		Model(model).
		Column("thread_exec_id", "memory_snapshot", "active", "updated_at").
		On("CONFLICT (thread_exec_id) DO UPDATE").
		Set("memory_snapshot = EXCLUDED.memory_snapshot").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *BunStore) LoadMemory(ctx context.Context, threadExecID string) (*memory.Snapshot, error) {
	model := new(CheckpointModel)
	err := s.db.NewSelect().Model(model).Where("thread_exec_id = ?", threadExecID).Scan(ctx)
	if err != nil {
		return nil, domain.NewStateError(threadExecID, "failed to load checkpointed memory", err)
	}
	if len(model.MemorySnap) == 0 {
		return nil, domain.NewStateError(threadExecID, "no checkpointed memory found", nil)
	}
	snap := new(memory.Snapshot)
	if err := json.Unmarshal(model.MemorySnap, snap); err != nil {
		return nil, domain.NewStateError(threadExecID, "failed to unmarshal memory snapshot", err)
	}
	return snap, nil
}

func (s *BunStore) MarkInactive(ctx context.Context, threadExecID string) error {
	_, err := s.db.NewUpdate().
		Model((*CheckpointModel)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now()).
		Where("thread_exec_id = ?", threadExecID).
		Exec(ctx)
	return err
}

// ExecutionRecordModel persists domain.ExecutionRecord as a durable summary
// row, upserted by SaveExecutionRecord. The orchestrator does not call
// SaveExecutionRecord when a thread execution reaches a terminal state.
type ExecutionRecordModel struct {
	bun.BaseModel `bun:"table:execution_records,alias:er"`

	ThreadExecID       string    `bun:"thread_exec_id,pk"`
	ThreadID           string    `bun:"thread_id"`
	ThreadVersionID    int64     `bun:"thread_version_id"`
	StatusID           int       `bun:"status_id"`
	ModeID             int       `bun:"mode_id"`
	TotalNodeCount     int       `bun:"total_node_count"`
	CompletedNodeCount int       `bun:"completed_node_count"`
	ErrorMessage       string    `bun:"error_message"`
	StartedAt          time.Time `bun:"started_at"`
	FinishedAt         time.Time `bun:"finished_at"`
	DurationMs         int64     `bun:"duration_ms"`
	InputJSON          string    `bun:"input,type:jsonb,nullzero"`
	OutputJSON         string    `bun:"output,type:jsonb,nullzero"`
}

func NewExecutionRecordModel(r *domain.ExecutionRecord) *ExecutionRecordModel {
	return &ExecutionRecordModel{
		ThreadExecID:       r.ThreadExecID,
		ThreadID:           r.ThreadID,
		ThreadVersionID:    r.ThreadVersionID,
		StatusID:           int(r.StatusID),
		ModeID:             int(r.ModeID),
		TotalNodeCount:     r.TotalNodeCount,
		CompletedNodeCount: r.CompletedNodeCount,
		ErrorMessage:       r.ErrorMessage,
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		DurationMs:         r.DurationMs,
		InputJSON:          r.InputJSON,
		OutputJSON:         r.OutputJSON,
	}
}

func (s *BunStore) SaveExecutionRecord(ctx context.Context, r *domain.ExecutionRecord) error {
	model := NewExecutionRecordModel(r)
	_, err := s.db.NewInsert().Model(model).On("CONFLICT (thread_exec_id) DO UPDATE").Exec(ctx)
	return err
}

func (s *BunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *BunStore) Close() error {
	return s.db.Close()
}
