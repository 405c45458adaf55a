package storage

import (
	"time"

	"github.com/procthread/engine/internal/domain"
)

// ThreadDefinitionBuilder is a fluent constructor for
// domain.ThreadDefinition. Handy for seeding a MemoryDefinitionStore or a
// BunStore in tests and demos without hand-rolling struct literals.
type ThreadDefinitionBuilder struct {
	def domain.ThreadDefinition
}

// NewThreadDefinitionBuilder starts a builder with Enabled defaulted true.
func NewThreadDefinitionBuilder() *ThreadDefinitionBuilder {
	return &ThreadDefinitionBuilder{def: domain.ThreadDefinition{Enabled: true}}
}

func (b *ThreadDefinitionBuilder) ID(id int64) *ThreadDefinitionBuilder {
	b.def.ID = id
	return b
}

func (b *ThreadDefinitionBuilder) VersionID(v int64) *ThreadDefinitionBuilder {
	b.def.VersionID = v
	return b
}

func (b *ThreadDefinitionBuilder) Name(name string) *ThreadDefinitionBuilder {
	b.def.Name = name
	return b
}

func (b *ThreadDefinitionBuilder) Enabled(enabled bool) *ThreadDefinitionBuilder {
	b.def.Enabled = enabled
	return b
}

func (b *ThreadDefinitionBuilder) AddElement(e domain.Element) *ThreadDefinitionBuilder {
	b.def.Elements = append(b.def.Elements, e)
	return b
}

func (b *ThreadDefinitionBuilder) AddConnection(c domain.Connection) *ThreadDefinitionBuilder {
	b.def.Connections = append(b.def.Connections, c)
	return b
}

// Build returns the assembled definition.
func (b *ThreadDefinitionBuilder) Build() *domain.ThreadDefinition {
	return &b.def
}

// ExecutionRecordBuilder is a fluent constructor for
// domain.ExecutionRecord. Defaults StatusID to Running
// and StartedAt to now, matching "a fresh execution record is running until
// told otherwise".
type ExecutionRecordBuilder struct {
	rec domain.ExecutionRecord
}

func NewExecutionRecordBuilder() *ExecutionRecordBuilder {
	return &ExecutionRecordBuilder{rec: domain.ExecutionRecord{
		StatusID:  domain.ExecutionStatusRunning,
		State:     domain.StateRunning,
		StartedAt: time.Now(),
	}}
}

func (b *ExecutionRecordBuilder) ThreadExecID(id string) *ExecutionRecordBuilder {
	b.rec.ThreadExecID = id
	return b
}

func (b *ExecutionRecordBuilder) ThreadID(id string) *ExecutionRecordBuilder {
	b.rec.ThreadID = id
	return b
}

func (b *ExecutionRecordBuilder) ThreadVersionID(v int64) *ExecutionRecordBuilder {
	b.rec.ThreadVersionID = v
	return b
}

func (b *ExecutionRecordBuilder) Mode(m domain.ExecutionModeID) *ExecutionRecordBuilder {
	b.rec.ModeID = m
	return b
}

func (b *ExecutionRecordBuilder) Status(state domain.ThreadExecutionState) *ExecutionRecordBuilder {
	b.rec.State = state
	b.rec.StatusID = domain.StatusIDFor(state)
	return b
}

func (b *ExecutionRecordBuilder) TotalNodeCount(n int) *ExecutionRecordBuilder {
	b.rec.TotalNodeCount = n
	return b
}

// Build returns the assembled record.
func (b *ExecutionRecordBuilder) Build() *domain.ExecutionRecord {
	return &b.rec
}
