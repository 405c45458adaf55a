package domain

import "time"

// ElementExecutionContext is the mutable per-invocation record for a single
// element execution inside a thread execution. A retried element keeps
// the same context across attempts: StartedAt is set once, on the first
// attempt, and AttemptNumber increments.
type ElementExecutionContext struct {
	ElementKey    string
	ElementType   string
	ThreadExecID  string // owning thread execution, for event/trace attribution
	Status        ElementStatus
	AttemptNumber int
	StartedAt     time.Time
	FinishedAt    time.Time
	InputData     map[string]any
	OutputData    map[string]any
	ErrorMessage  string
}

// Duration returns how long the element ran. Zero if it hasn't finished.
func (c *ElementExecutionContext) Duration() time.Duration {
	if c.FinishedAt.IsZero() || c.StartedAt.IsZero() {
		return 0
	}
	return c.FinishedAt.Sub(c.StartedAt)
}

// ThreadExecutionContext is the full runtime state of one thread execution:
// the traversal stack plus the execution memory it shares across elements
//. The orchestrator owns one of these per active execution;
// it is what gets snapshotted by the checkpoint service.
type ThreadExecutionContext struct {
	ThreadExecID       string
	ThreadID           string
	ThreadVersionID    int64
	State              ThreadExecutionState
	Mode               ExecutionModeID
	Stack              []string // element keys, LIFO traversal stack
	NestingDepth       int
	ParentThreadExecID string // empty for a root execution
	RootThreadExecID   string // empty for a root execution; the top ancestor otherwise
	StartedAt          time.Time
	FinishedAt         time.Time
	ErrorMessage       string
}

// IsRoot reports whether this execution is not a nested sub-workflow
// invocation.
func (c *ThreadExecutionContext) IsRoot() bool {
	return c.ParentThreadExecID == ""
}

// PushElement pushes an element key onto the traversal stack.
func (c *ThreadExecutionContext) PushElement(key string) {
	c.Stack = append(c.Stack, key)
}

// PopElement pops and returns the top of the traversal stack. The second
// return value is false when the stack is empty.
func (c *ThreadExecutionContext) PopElement() (string, bool) {
	if len(c.Stack) == 0 {
		return "", false
	}
	n := len(c.Stack) - 1
	key := c.Stack[n]
	c.Stack = c.Stack[:n]
	return key, true
}

// PushElementsReversed pushes a slice of element keys onto the stack in
// reverse order, so that the first key in the slice is the next one
// popped and downstream elements are visited in definition order.
func (c *ThreadExecutionContext) PushElementsReversed(keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		c.Stack = append(c.Stack, keys[i])
	}
}

// ExecutionRecord is the externally-visible summary of a thread execution,
// carrying both wire-stable id families side by side rather than overloading
// either.
type ExecutionRecord struct {
	ThreadExecID       string
	ThreadID           string
	ThreadVersionID    int64
	ModeID             ExecutionModeID
	StatusID           ExecutionStatusID
	State              ThreadExecutionState
	StartedAt          time.Time
	FinishedAt         time.Time
	DurationMs         int64
	InputJSON          string // serialized input seed
	OutputJSON         string // serialized node outputs at completion
	TriggerElementKey  string
	ErrorMessage       string
	TotalNodeCount     int // total elements in the thread definition
	CompletedNodeCount int // popped elements, incremented regardless of success
}

// NewExecutionRecord builds an ExecutionRecord from a ThreadExecutionContext,
// deriving StatusID from State via StatusIDFor so the two families never
// drift apart.
func NewExecutionRecord(ctx *ThreadExecutionContext) *ExecutionRecord {
	var durationMs int64
	if !ctx.FinishedAt.IsZero() && !ctx.StartedAt.IsZero() {
		durationMs = ctx.FinishedAt.Sub(ctx.StartedAt).Milliseconds()
	}
	return &ExecutionRecord{
		ThreadExecID:    ctx.ThreadExecID,
		ThreadID:        ctx.ThreadID,
		ThreadVersionID: ctx.ThreadVersionID,
		ModeID:          ctx.Mode,
		StatusID:        StatusIDFor(ctx.State),
		State:           ctx.State,
		StartedAt:       ctx.StartedAt,
		FinishedAt:      ctx.FinishedAt,
		DurationMs:      durationMs,
		ErrorMessage:    ctx.ErrorMessage,
	}
}

// CertificateType classifies how strongly a node's relaxed-evaluation
// privilege has been vetted.
type CertificateType string

const (
	CertificateTrusted   CertificateType = "trusted"
	CertificateVerified  CertificateType = "verified"
	CertificateCertified CertificateType = "certified"
)

// IsValid reports whether t is one of the three declared certificate types.
func (t CertificateType) IsValid() bool {
	switch t {
	case CertificateTrusted, CertificateVerified, CertificateCertified:
		return true
	default:
		return false
	}
}

// NodeCertificate gates a node's access to the relaxed expression-evaluation
// tier (30s ceiling, vs. the strict tier's 5s). A node without a
// valid, unexpired certificate is always evaluated under the strict tier.
type NodeCertificate struct {
	Issued    bool
	Issuer    string
	Type      CertificateType
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsValid reports whether the certificate actually grants relaxed
// evaluation at time `at`: it must be issued, carry a recognized type, and
// not be expired.
func (c *NodeCertificate) IsValid(at time.Time) bool {
	if c == nil || !c.Issued {
		return false
	}
	if !c.Type.IsValid() {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return at.Before(c.ExpiresAt)
}
