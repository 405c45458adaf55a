package orchestrator

import (
	"sync"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
)

// activeExecution is what the active-executions table tracks for one live
// thread execution: its context and the memory it owns.
type activeExecution struct {
	threadCtx *domain.ThreadExecutionContext
	mem       *memory.ExecutionMemory
}

// tracker holds the cross-execution signal state (active executions,
// pause/cancel flags, nesting-depth counters) as mutex-guarded maps owned
// by one Engine value.
type tracker struct {
	mu sync.Mutex

	active  map[string]*activeExecution
	pause   map[string]bool
	cancel  map[string]bool
	nesting map[string]int // keyed by root thread-execution id
}

func newTracker() *tracker {
	return &tracker{
		active:  make(map[string]*activeExecution),
		pause:   make(map[string]bool),
		cancel:  make(map[string]bool),
		nesting: make(map[string]int),
	}
}

func (t *tracker) register(threadCtx *domain.ThreadExecutionContext, mem *memory.ExecutionMemory) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[threadCtx.ThreadExecID] = &activeExecution{threadCtx: threadCtx, mem: mem}
	t.pause[threadCtx.ThreadExecID] = false
	t.cancel[threadCtx.ThreadExecID] = false
}

func (t *tracker) unregister(threadExecID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, threadExecID)
	delete(t.pause, threadExecID)
	delete(t.cancel, threadExecID)
}

func (t *tracker) get(threadExecID string) (*activeExecution, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.active[threadExecID]
	return a, ok
}

// requestPause flips the pause signal for threadExecID. Returns false if the
// execution is not currently active.
func (t *tracker) requestPause(threadExecID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[threadExecID]; !ok {
		return false
	}
	t.pause[threadExecID] = true
	return true
}

// consumePause reports and clears the pause signal in one step, so the
// loop observes each pause request exactly once.
func (t *tracker) consumePause(threadExecID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.pause[threadExecID]
	t.pause[threadExecID] = false
	return set
}

func (t *tracker) requestCancel(threadExecID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[threadExecID]; !ok {
		return false
	}
	t.cancel[threadExecID] = true
	return true
}

func (t *tracker) isCancelled(threadExecID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel[threadExecID]
}

// enterNesting increments rootID's nesting-depth counter and reports
// whether the result still honors max. On failure the counter is not
// incremented (the caller never pairs it with a matching exit).
func (t *tracker) enterNesting(rootID string, max int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	depth := t.nesting[rootID] + 1
	if depth > max {
		return t.nesting[rootID], false
	}
	t.nesting[rootID] = depth
	return depth, true
}

func (t *tracker) exitNesting(rootID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nesting[rootID] > 0 {
		t.nesting[rootID]--
	}
}
