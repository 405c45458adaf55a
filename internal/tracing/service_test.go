package tracing

import (
	"strings"
	"testing"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_CreateRecordComplete(t *testing.T) {
	s := New(0)
	s.Create("exec-1", "thread-1")

	s.RecordNode("exec-1", &NodeExecutionTrace{ElementKey: "A", Sequence: 1, Result: "Success"})
	s.RecordVariable("exec-1", &VariableStateTrace{Boundary: "workflow_start"})
	s.RecordError("exec-1", &ErrorTrace{Type: "TimeoutError"})
	s.Complete("exec-1", domain.ExecutionStatusCompleted)

	trace, ok := s.GetByID("exec-1")
	require.True(t, ok)
	assert.Len(t, trace.NodeTraces, 1)
	assert.Len(t, trace.VariableTraces, 1)
	assert.Len(t, trace.ErrorTraces, 1)
	assert.Equal(t, domain.ExecutionStatusCompleted, trace.StatusID)
	assert.False(t, trace.CompletedAt.IsZero())
}

func TestService_OutputSnapshotTruncated(t *testing.T) {
	s := New(0)
	s.Create("exec-1", "thread-1")
	huge := strings.Repeat("x", 2000)
	s.RecordNode("exec-1", &NodeExecutionTrace{ElementKey: "A", OutputSnapshot: huge})

	nodes := s.GetByExecution("exec-1", 0)
	require.Len(t, nodes, 1)
	assert.Len(t, nodes[0].OutputSnapshot, outputSnapshotLimit)
}

func TestService_GetByExecutionLimit(t *testing.T) {
	s := New(0)
	s.Create("exec-1", "thread-1")
	for i := 0; i < 5; i++ {
		s.RecordNode("exec-1", &NodeExecutionTrace{Sequence: i})
	}
	nodes := s.GetByExecution("exec-1", 2)
	require.Len(t, nodes, 2)
	assert.Equal(t, 3, nodes[0].Sequence)
	assert.Equal(t, 4, nodes[1].Sequence)
}

func TestService_DeleteByID(t *testing.T) {
	s := New(0)
	s.Create("exec-1", "thread-1")
	s.DeleteByID("exec-1")
	_, ok := s.GetByID("exec-1")
	assert.False(t, ok)
}

func TestService_DeleteOlderThan(t *testing.T) {
	s := New(0)
	s.Create("exec-old", "thread-1")
	s.Complete("exec-old", domain.ExecutionStatusCompleted)

	s.Create("exec-new", "thread-1")

	future := time.Now().Add(time.Hour)
	s.DeleteOlderThan(future)

	_, oldExists := s.GetByID("exec-old")
	_, newExists := s.GetByID("exec-new")
	assert.False(t, oldExists, "completed trace older than cutoff should be purged")
	assert.True(t, newExists, "in-flight trace should never be purged by age")
}

func TestService_PurgeIfOverCap_EvictsOldestCompletedFirst(t *testing.T) {
	s := New(2)
	s.Create("a", "t")
	s.Create("b", "t")
	s.Complete("a", domain.ExecutionStatusCompleted)
	time.Sleep(time.Millisecond)
	s.Complete("b", domain.ExecutionStatusCompleted)

	s.Create("c", "t") // now 3 live traces, over the cap of 2
	s.Complete("c", domain.ExecutionStatusCompleted)

	_, aExists := s.GetByID("a")
	_, bExists := s.GetByID("b")
	_, cExists := s.GetByID("c")
	assert.False(t, aExists, "oldest completed trace should be evicted first")
	assert.True(t, bExists)
	assert.True(t, cExists)
}
