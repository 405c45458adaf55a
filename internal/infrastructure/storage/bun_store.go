package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/procthread/engine/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// BunStore is a Postgres-backed implementation of the DefinitionLoader
// and ExecutionPersister collaborators. A thread definition is stored as
// a single jsonb column: the engine treats a definition as one opaque
// graph blob, not a set of independently queried rows, so normalized
// element/connection tables would buy nothing.
type BunStore struct {
	db *bun.DB
}

// NewBunStore opens a bun.DB against dsn.
func NewBunStore(dsn string) *BunStore {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}
}

// InitSchema creates the tables this store owns if they don't already exist.
func (s *BunStore) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*ThreadDefinitionModel)(nil),
		(*ExecutionRecordRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ThreadDefinitionModel is the durable row for one versioned thread
// definition.
type ThreadDefinitionModel struct {
	bun.BaseModel `bun:"table:thread_definitions,alias:td"`

	VersionID   int64  `bun:"version_id,pk"`
	ThreadID    int64  `bun:"thread_id"`
	Name        string `bun:"name"`
	Enabled     bool   `bun:"enabled"`
	Elements    []byte `bun:"elements,type:jsonb"`
	Connections []byte `bun:"connections,type:jsonb"`
}

func newThreadDefinitionModel(def *domain.ThreadDefinition) (*ThreadDefinitionModel, error) {
	elements, err := json.Marshal(def.Elements)
	if err != nil {
		return nil, err
	}
	connections, err := json.Marshal(def.Connections)
	if err != nil {
		return nil, err
	}
	return &ThreadDefinitionModel{
		VersionID:   def.VersionID,
		ThreadID:    def.ID,
		Name:        def.Name,
		Enabled:     def.Enabled,
		Elements:    elements,
		Connections: connections,
	}, nil
}

func (m *ThreadDefinitionModel) toDomain() (*domain.ThreadDefinition, error) {
	def := &domain.ThreadDefinition{
		ID:        m.ThreadID,
		VersionID: m.VersionID,
		Name:      m.Name,
		Enabled:   m.Enabled,
	}
	if err := json.Unmarshal(m.Elements, &def.Elements); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(m.Connections, &def.Connections); err != nil {
		return nil, err
	}
	return def, nil
}

// SaveDefinition upserts def, keyed by its VersionID.
func (s *BunStore) SaveDefinition(ctx context.Context, def *domain.ThreadDefinition) error {
	model, err := newThreadDefinitionModel(def)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(model).
		On("CONFLICT (version_id) DO UPDATE").
		Set("thread_id = EXCLUDED.thread_id").
		Set("name = EXCLUDED.name").
		Set("enabled = EXCLUDED.enabled").
		Set("elements = EXCLUDED.elements").
		Set("connections = EXCLUDED.connections").
		Exec(ctx)
	return err
}

// LoadProcessThread implements orchestrator.DefinitionLoader.
func (s *BunStore) LoadProcessThread(ctx context.Context, versionID int64) (*domain.ThreadDefinition, error) {
	model := new(ThreadDefinitionModel)
	if err := s.db.NewSelect().Model(model).Where("version_id = ?", versionID).Scan(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeDefinitionLoad, "failed to load thread definition", err)
	}
	return model.toDomain()
}

// ExecutionRecordRow is the durable summary row for one thread execution
//. Distinct from checkpoint.ExecutionRecordModel, which only
// checkpoint.BunStore.SaveExecutionRecord writes and which the orchestrator
// does not write when a thread completes; this row is the one the
// ExecutionPersister contract reads and
// updates across a pause/resume/cancel lifecycle.
type ExecutionRecordRow struct {
	bun.BaseModel `bun:"table:executions,alias:ex"`

	ThreadExecID       string    `bun:"thread_exec_id,pk"`
	ThreadID           string    `bun:"thread_id"`
	ThreadVersionID    int64     `bun:"thread_version_id"`
	ModeID             int       `bun:"mode_id"`
	StatusID           int       `bun:"status_id"`
	State              string    `bun:"state"`
	StartedAt          time.Time `bun:"started_at"`
	FinishedAt         time.Time `bun:"finished_at"`
	DurationMs         int64     `bun:"duration_ms"`
	InputJSON          string    `bun:"input,type:jsonb,nullzero"`
	OutputJSON         string    `bun:"output,type:jsonb,nullzero"`
	TriggerElementKey  string    `bun:"trigger_element_key"`
	ErrorMessage       string    `bun:"error_message"`
	TotalNodeCount     int       `bun:"total_node_count"`
	CompletedNodeCount int       `bun:"completed_node_count"`
}

func newExecutionRecordRow(r *domain.ExecutionRecord) *ExecutionRecordRow {
	return &ExecutionRecordRow{
		ThreadExecID:       r.ThreadExecID,
		ThreadID:           r.ThreadID,
		ThreadVersionID:    r.ThreadVersionID,
		ModeID:             int(r.ModeID),
		StatusID:           int(r.StatusID),
		State:              string(r.State),
		StartedAt:          r.StartedAt,
		FinishedAt:         r.FinishedAt,
		DurationMs:         r.DurationMs,
		InputJSON:          r.InputJSON,
		OutputJSON:         r.OutputJSON,
		TriggerElementKey:  r.TriggerElementKey,
		ErrorMessage:       r.ErrorMessage,
		TotalNodeCount:     r.TotalNodeCount,
		CompletedNodeCount: r.CompletedNodeCount,
	}
}

func (m *ExecutionRecordRow) toDomain() *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ThreadExecID:       m.ThreadExecID,
		ThreadID:           m.ThreadID,
		ThreadVersionID:    m.ThreadVersionID,
		ModeID:             domain.ExecutionModeID(m.ModeID),
		StatusID:           domain.ExecutionStatusID(m.StatusID),
		State:              domain.ThreadExecutionState(m.State),
		StartedAt:          m.StartedAt,
		FinishedAt:         m.FinishedAt,
		DurationMs:         m.DurationMs,
		InputJSON:          m.InputJSON,
		OutputJSON:         m.OutputJSON,
		TriggerElementKey:  m.TriggerElementKey,
		ErrorMessage:       m.ErrorMessage,
		TotalNodeCount:     m.TotalNodeCount,
		CompletedNodeCount: m.CompletedNodeCount,
	}
}

// Create inserts a new execution record row.
func (s *BunStore) Create(ctx context.Context, record *domain.ExecutionRecord) error {
	_, err := s.db.NewInsert().Model(newExecutionRecordRow(record)).Exec(ctx)
	return err
}

// GetByProcessExecution implements orchestrator.ExecutionPersister.
func (s *BunStore) GetByProcessExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error) {
	model := new(ExecutionRecordRow)
	err := s.db.NewSelect().Model(model).Where("thread_exec_id = ?", threadExecID).Scan(ctx)
	if err != nil {
		return nil, domain.NewStateError(threadExecID, "failed to load execution record", err)
	}
	return model.toDomain(), nil
}

// Update implements orchestrator.ExecutionPersister: an upsert, since
// pause/resume/cancel bookkeeping may race a not-yet-flushed Create.
func (s *BunStore) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	model := newExecutionRecordRow(record)
	_, err := s.db.NewInsert().
		Model(model).
		On("CONFLICT (thread_exec_id) DO UPDATE").
		Set("status_id = EXCLUDED.status_id").
		Set("state = EXCLUDED.state").
		Set("finished_at = EXCLUDED.finished_at").
		Set("duration_ms = EXCLUDED.duration_ms").
		Set("output = EXCLUDED.output").
		Set("error_message = EXCLUDED.error_message").
		Set("total_node_count = EXCLUDED.total_node_count").
		Set("completed_node_count = EXCLUDED.completed_node_count").
		Exec(ctx)
	return err
}

// List returns every known execution record, most recently started first.
func (s *BunStore) List(ctx context.Context) ([]*domain.ExecutionRecord, error) {
	var models []ExecutionRecordRow
	if err := s.db.NewSelect().Model(&models).Order("started_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.ExecutionRecord, len(models))
	for i := range models {
		out[i] = models[i].toDomain()
	}
	return out, nil
}

// DB exposes the underlying bun.DB so a sibling store (e.g. BunEventLog)
// can share this store's connection rather than opening a second one.
func (s *BunStore) DB() *bun.DB {
	return s.db
}

// Ping verifies connectivity to the database.
func (s *BunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying database connection.
func (s *BunStore) Close() error {
	return s.db.Close()
}
