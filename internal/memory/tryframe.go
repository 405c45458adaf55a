package memory

import "time"

// CatchHandler is one registered catch clause within a try frame. An empty
// TypeName means catch-all.
type CatchHandler struct {
	CatchKey string
	TypeName string
}

// TryFrame is one entry in the exception-context stack. LastException
// is live-only; LastExceptionMsg is what survives a checkpoint round trip
// (error values don't unmarshal).
type TryFrame struct {
	TryKey            string
	EnteredAt         time.Time
	Catches           []CatchHandler
	FinallyKey        string
	FinallyExecuted   bool
	ExceptionOccurred bool
	LastException     error `json:"-"`
	LastExceptionMsg  string
}

// EnterTry pushes a new try frame for the given try-node key.
func (m *ExecutionMemory) EnterTry(key string) *TryFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame := &TryFrame{TryKey: key, EnteredAt: time.Now()}
	m.tryStack = append(m.tryStack, frame)
	return frame
}

// AddCatch appends a catch handler to the current (innermost) try frame, in
// registration order. No-op if no try frame is active.
func (m *ExecutionMemory) AddCatch(catchKey, typeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tryStack) == 0 {
		return
	}
	top := m.tryStack[len(m.tryStack)-1]
	top.Catches = append(top.Catches, CatchHandler{CatchKey: catchKey, TypeName: typeName})
}

// SetFinally sets the finally-key on the current try frame. No-op if no try
// frame is active.
func (m *ExecutionMemory) SetFinally(finallyKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tryStack) == 0 {
		return
	}
	m.tryStack[len(m.tryStack)-1].FinallyKey = finallyKey
}

// CurrentTry returns the innermost try frame, if any.
func (m *ExecutionMemory) CurrentTry() (*TryFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tryStack) == 0 {
		return nil, false
	}
	return m.tryStack[len(m.tryStack)-1], true
}

// ExitTry pops the innermost try frame.
func (m *ExecutionMemory) ExitTry() (*TryFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tryStack) == 0 {
		return nil, false
	}
	n := len(m.tryStack) - 1
	frame := m.tryStack[n]
	m.tryStack = m.tryStack[:n]
	return frame, true
}

// SetCurrentException records the exception now being handled, mirroring it
// onto the current try frame's LastException/ExceptionOccurred fields.
func (m *ExecutionMemory) SetCurrentException(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentException = err
	if len(m.tryStack) > 0 {
		top := m.tryStack[len(m.tryStack)-1]
		top.LastException = err
		if err != nil {
			top.LastExceptionMsg = err.Error()
		}
		top.ExceptionOccurred = true
	}
}

// CurrentException returns the exception currently being handled, if any.
func (m *ExecutionMemory) CurrentException() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentException
}

// SetPendingRethrow marks that elementKey, a finally element pushed while
// unwinding an exception with no matching catch at its own try level, must
// re-raise cause against the next enclosing try frame once it completes,
// instead of routing to its normal successors.
func (m *ExecutionMemory) SetPendingRethrow(elementKey string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rethrowKey = elementKey
	m.rethrowCause = cause
}

// ConsumePendingRethrow returns and clears the cause registered against
// elementKey via SetPendingRethrow, if any.
func (m *ExecutionMemory) ConsumePendingRethrow(elementKey string) (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rethrowKey == "" || m.rethrowKey != elementKey {
		return nil, false
	}
	cause := m.rethrowCause
	m.rethrowKey = ""
	m.rethrowCause = nil
	return cause, true
}

// ClearCurrentException clears the current-exception slot.
func (m *ExecutionMemory) ClearCurrentException() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentException = nil
}

// FindCatchHandler scans the current try frame's catch handlers in
// insertion order and returns the key of the first handler whose TypeName
// matches errorTypeName or any of baseTypes (the error's ancestry), or whose
// TypeName is empty (catch-all). Returns false if there is no active try
// frame or no handler matches.
func (m *ExecutionMemory) FindCatchHandler(errorTypeName string, baseTypes ...string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tryStack) == 0 {
		return "", false
	}
	top := m.tryStack[len(m.tryStack)-1]
	candidates := append([]string{errorTypeName}, baseTypes...)
	for _, h := range top.Catches {
		if h.TypeName == "" {
			return h.CatchKey, true
		}
		for _, c := range candidates {
			if matchesType(h.TypeName, c) {
				return h.CatchKey, true
			}
		}
	}
	return "", false
}

// matchesType compares a catch handler's declared type name against a
// candidate from the error's ancestry, accepting either a simple-name or
// fully-qualified match (the candidate may be a bare name like "TimeoutError"
// or a qualified one like "domain.TimeoutError").
func matchesType(declared, candidate string) bool {
	if declared == candidate {
		return true
	}
	return simpleName(declared) == simpleName(candidate)
}

func simpleName(typeName string) string {
	for i := len(typeName) - 1; i >= 0; i-- {
		if typeName[i] == '.' {
			return typeName[i+1:]
		}
	}
	return typeName
}
