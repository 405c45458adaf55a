package memory

import (
	"testing"

	"github.com/procthread/engine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	m := New(map[string]any{"seed": 1})
	m.Enter("node-1", domain.ScopeNode)
	require.NoError(t, m.SetLocal("local", "value"))
	m.SetNodeOutput("A", map[string]any{"x": 1})
	m.SetCache("k", 42)
	m.EnterLoop("loop-1")
	m.Increment()
	m.EnterTry("try-1")
	m.AddCatch("catch-1", "TimeoutError")
	m.SetParallelActive(true)
	m.SetLaneOutput("lane-a", map[string]any{"r": 1})

	snap := m.Snapshot()
	restored := Restore(snap)

	v, ok := restored.Get("seed")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = restored.Get("local")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	out, ok := restored.NodeOutput("A")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"x": 1}, out)

	cacheVal, ok := restored.Cache("k")
	require.True(t, ok)
	assert.Equal(t, 42, cacheVal)

	loopFrame, ok := restored.CurrentLoop()
	require.True(t, ok)
	assert.Equal(t, "loop-1", loopFrame.Key)
	assert.Equal(t, 1, loopFrame.Iteration)

	tryFrame, ok := restored.CurrentTry()
	require.True(t, ok)
	assert.Equal(t, "try-1", tryFrame.TryKey)
	require.Len(t, tryFrame.Catches, 1)
	assert.Equal(t, "catch-1", tryFrame.Catches[0].CatchKey)

	assert.True(t, restored.IsParallelActive())
	assert.Equal(t, map[string]any{"r": 1}, restored.LaneOutputs()["lane-a"])
}

func TestSnapshot_IsADeepCopy(t *testing.T) {
	m := New(map[string]any{"seed": 1})
	snap := m.Snapshot()

	require.NoError(t, m.Set("seed", 2))
	assert.Equal(t, 1, snap.Scopes[0].Local["seed"], "mutating the live memory must not affect a prior snapshot")
}
