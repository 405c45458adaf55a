package memory

import "github.com/procthread/engine/internal/domain"

// ScopeSnapshot is one frame of a serialized scope chain, ordered from
// global outward to the innermost scope.
type ScopeSnapshot struct {
	ID    string
	Type  domain.ScopeType
	Local map[string]any
}

// Snapshot is a complete, round-trip-stable capture of an ExecutionMemory,
// used by the checkpoint service.
type Snapshot struct {
	Input       map[string]any
	Scopes      []ScopeSnapshot
	NodeOutputs map[string]any
	Cache       map[string]any
	LoopStack   []LoopFrame
	TryStack    []TryFrame

	ParallelActive bool
	LaneStatus     map[string]bool
	LaneOutputs    map[string]map[string]any
}

// Snapshot captures the full memory state for persistence.
func (m *ExecutionMemory) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var chain []*Scope
	for s := m.current; s != nil; s = s.Parent {
		chain = append(chain, s)
	}
	scopes := make([]ScopeSnapshot, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		s := chain[i]
		local := make(map[string]any, len(s.Local))
		for k, v := range s.Local {
			local[k] = v
		}
		scopes[len(chain)-1-i] = ScopeSnapshot{ID: s.ID, Type: s.Type, Local: local}
	}

	nodeOutputs := make(map[string]any, len(m.nodeOutputs))
	for k, v := range m.nodeOutputs {
		nodeOutputs[k] = v
	}
	cache := make(map[string]any, len(m.cache))
	for k, v := range m.cache {
		cache[k] = v
	}

	loopStack := make([]LoopFrame, len(m.loopStack))
	for i, f := range m.loopStack {
		loopStack[i] = *f
	}
	tryStack := make([]TryFrame, len(m.tryStack))
	for i, f := range m.tryStack {
		tryStack[i] = *f
	}

	laneStatus := make(map[string]bool, len(m.laneStatus))
	for k, v := range m.laneStatus {
		laneStatus[k] = v
	}
	laneOutputs := make(map[string]map[string]any, len(m.laneOutputs))
	for k, v := range m.laneOutputs {
		laneOutputs[k] = v
	}

	input := make(map[string]any, len(m.input))
	for k, v := range m.input {
		input[k] = v
	}

	return &Snapshot{
		Input:          input,
		Scopes:         scopes,
		NodeOutputs:    nodeOutputs,
		Cache:          cache,
		LoopStack:      loopStack,
		TryStack:       tryStack,
		ParallelActive: m.parallelActive,
		LaneStatus:     laneStatus,
		LaneOutputs:    laneOutputs,
	}
}

// Restore rebuilds an ExecutionMemory equivalent to the one that produced
// snap.
func Restore(snap *Snapshot) *ExecutionMemory {
	m := &ExecutionMemory{
		input:       make(map[string]any, len(snap.Input)),
		nodeOutputs: make(map[string]any),
		cache:       make(map[string]any),
		laneStatus:  make(map[string]bool),
		laneOutputs: make(map[string]map[string]any),
	}

	var parent *Scope
	for _, ss := range snap.Scopes {
		s := newScope(ss.ID, ss.Type, parent)
		for k, v := range ss.Local {
			s.Local[k] = v
		}
		parent = s
	}
	if parent == nil {
		parent = newScope("global", domain.ScopeGlobal, nil)
	}
	m.global = firstScope(parent)
	m.current = parent

	for k, v := range snap.Input {
		m.input[k] = v
	}
	for k, v := range snap.NodeOutputs {
		m.nodeOutputs[k] = v
	}
	for k, v := range snap.Cache {
		m.cache[k] = v
	}
	for i := range snap.LoopStack {
		frame := snap.LoopStack[i]
		m.loopStack = append(m.loopStack, &frame)
	}
	for i := range snap.TryStack {
		frame := snap.TryStack[i]
		m.tryStack = append(m.tryStack, &frame)
	}
	m.parallelActive = snap.ParallelActive
	for k, v := range snap.LaneStatus {
		m.laneStatus[k] = v
	}
	for k, v := range snap.LaneOutputs {
		m.laneOutputs[k] = v
	}

	return m
}

func firstScope(s *Scope) *Scope {
	for s.Parent != nil {
		s = s.Parent
	}
	return s
}
