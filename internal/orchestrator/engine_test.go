package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procthread/engine/internal/checkpoint"
	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
	"github.com/procthread/engine/internal/retrypolicy"
)

// fastRetryPolicy keeps retry-exercising tests from sleeping through the
// default policy's 1s initial backoff.
func fastRetryPolicy() *retrypolicy.Policy {
	return &retrypolicy.Policy{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		RetryOnAny:   true,
	}
}

// passthroughExecutor copies its input straight to its success-port output.
type passthroughExecutor struct{}

func (passthroughExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (passthroughExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	return registry.Success(domain.PortSuccess, map[string]any{"ran": elemCtx.Element.Key}), nil
}
func (passthroughExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (passthroughExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// alwaysFailExecutor fails every invocation with a non-retryable cause.
type alwaysFailExecutor struct{}

func (alwaysFailExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (alwaysFailExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	return nil, assert.AnError
}
func (alwaysFailExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (alwaysFailExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// succeedOnSecondAttempt fails its first invocation then succeeds, so the
// error handler's retry action exercises its success path.
type succeedOnSecondAttempt struct{ attempts int }

func (e *succeedOnSecondAttempt) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *succeedOnSecondAttempt) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.attempts++
	if e.attempts < 2 {
		return nil, assert.AnError
	}
	return registry.Success(domain.PortSuccess, map[string]any{"attempts": e.attempts}), nil
}
func (e *succeedOnSecondAttempt) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *succeedOnSecondAttempt) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// ifExecutor is a minimal Decision-node executor: it reads a variable
// out of execution memory and routes true/false accordingly, the way a real
// "If" node type would evaluate its own configured condition.
type ifExecutor struct{ varName string }

func (e *ifExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *ifExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	v, _ := elemCtx.Memory.Get(e.varName)
	truthy, _ := v.(bool)
	port := domain.PortFalse
	if truthy {
		port = domain.PortTrue
	}
	return registry.Success(port, map[string]any{"condition_result": truthy}), nil
}
func (e *ifExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *ifExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// slowExecutor blocks until its context is cancelled, so the envelope's
// per-node timeout budget always fires first.
type slowExecutor struct{}

func (slowExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (slowExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (slowExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

func twoNodeDefinition() *domain.ThreadDefinition {
	return &domain.ThreadDefinition{
		ID:        1,
		VersionID: 1,
		Name:      "linear",
		Enabled:   true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "noop", IsTrigger: true},
			{ID: 2, Key: "end", Type: "noop"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: domain.PortSuccess, TargetElementID: 2},
		},
	}
}

func TestExecuteProcess_LinearTwoNodeSuccess(t *testing.T) {
	reg := registry.New()
	reg.Register("noop", func() registry.NodeExecutor { return passthroughExecutor{} })

	def := twoNodeDefinition()
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{
		ThreadID:  1,
		VersionID: 1,
		Input:     map[string]any{"seed": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
	assert.Equal(t, 2, record.TotalNodeCount)
	assert.Equal(t, 2, record.CompletedNodeCount)
	assert.Contains(t, record.InputJSON, `"seed":1`)
	assert.Contains(t, record.OutputJSON, `"end"`)
}

// countingFailExecutor fails every attempt with a retryable categorized
// error, counting how many times Execute was invoked.
type countingFailExecutor struct {
	mu       sync.Mutex
	attempts int
}

func (e *countingFailExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *countingFailExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.mu.Lock()
	e.attempts++
	e.mu.Unlock()
	return nil, domain.NewExecutionError(
		elemCtx.ThreadExecCtx.ThreadID, elemCtx.ThreadExecCtx.ThreadExecID, elemCtx.Element.Key,
		"connection refused", nil, true, "network",
	)
}
func (e *countingFailExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *countingFailExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// TestExecuteProcess_RetryExhaustionFailsExecution: a node
// that fails every attempt is retried MaxRetries times (4 invocations
// total), then the execution unwinds to Failed with the element named in
// the record's error message.
func TestExecuteProcess_RetryExhaustionFailsExecution(t *testing.T) {
	exec := &countingFailExecutor{}
	reg := registry.New()
	reg.Register("flaky", func() registry.NodeExecutor { return exec })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "Flaky", Type: "flaky", IsTrigger: true, MaxRetries: 3},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}), WithRetryPolicy(fastRetryPolicy()))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, record.State)
	assert.Equal(t, domain.ExecutionStatusFailed, record.StatusID)
	assert.Equal(t, 4, exec.attempts)
	assert.Contains(t, record.ErrorMessage, "Flaky")
}

func TestExecuteProcess_UncaughtFailureMarksThreadFailed(t *testing.T) {
	reg := registry.New()
	reg.Register("noop", func() registry.NodeExecutor { return passthroughExecutor{} })
	reg.Register("boom", func() registry.NodeExecutor { return alwaysFailExecutor{} })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "boom", IsTrigger: true, MaxRetries: 1},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}), WithRetryPolicy(fastRetryPolicy()))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateFailed, record.State)
	assert.NotEmpty(t, record.ErrorMessage)
}

func TestExecuteProcess_RetrySucceedsAfterTransientFailure(t *testing.T) {
	reg := registry.New()
	exec := &succeedOnSecondAttempt{}
	reg.Register("flaky", func() registry.NodeExecutor { return exec })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "flaky", IsTrigger: true, MaxRetries: 3},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}), WithRetryPolicy(fastRetryPolicy()))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
}

// TestExecuteProcess_IfConditionRouting: a trigger feeds a
// decision node whose true branch executes and whose false branch does not.
func TestExecuteProcess_IfConditionRouting(t *testing.T) {
	reg := registry.New()
	reg.Register("noop", func() registry.NodeExecutor { return passthroughExecutor{} })
	reg.Register("if", func() registry.NodeExecutor { return &ifExecutor{varName: "v"} })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "noop", IsTrigger: true},
			{ID: 2, Key: "decide", Type: "if"},
			{ID: 3, Key: "onTrue", Type: "noop"},
			{ID: 4, Key: "onFalse", Type: "noop"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: domain.PortSuccess, TargetElementID: 2},
			{SourceElementID: 2, SourcePort: domain.PortTrue, TargetElementID: 3},
			{SourceElementID: 2, SourcePort: domain.PortFalse, TargetElementID: 4},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{
		ThreadID: 1, VersionID: 1, Input: map[string]any{"v": true},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
	assert.Equal(t, 3, record.CompletedNodeCount)
}

// TestExecuteProcess_TimeoutBehaviorSkip: a node that never
// returns within its timeout, configured with behavior "skip", produces an
// empty output and its success-port successor still runs.
func TestExecuteProcess_TimeoutBehaviorSkip(t *testing.T) {
	reg := registry.New()
	reg.Register("noop", func() registry.NodeExecutor { return passthroughExecutor{} })
	reg.Register("slow", func() registry.NodeExecutor { return slowExecutor{} })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "noop", IsTrigger: true},
			{ID: 2, Key: "slow", Type: "slow", TimeoutSeconds: 1, TimeoutBehavior: domain.TimeoutBehaviorSkip},
			{ID: 3, Key: "end", Type: "noop"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: domain.PortSuccess, TargetElementID: 2},
			{SourceElementID: 2, SourcePort: domain.PortSuccess, TargetElementID: 3},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
	assert.Equal(t, 3, record.CompletedNodeCount)
}

func TestExecuteProcess_UnknownTriggerElementKeyErrors(t *testing.T) {
	reg := registry.New()
	def := twoNodeDefinition()
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}))

	_, err := e.ExecuteProcess(context.Background(), ExecuteRequest{
		ThreadID: 1, VersionID: 1, TriggerElementKey: "missing",
	})
	assert.Error(t, err)
}

func TestPauseExecution_UnknownExecutionErrors(t *testing.T) {
	e := NewEngine(registry.New())
	err := e.PauseExecution(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestCancelExecution_UnknownExecutionErrors(t *testing.T) {
	e := NewEngine(registry.New())
	err := e.CancelExecution(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

type stubLoader struct {
	def *domain.ThreadDefinition
}

func (s stubLoader) LoadProcessThread(ctx context.Context, versionID int64) (*domain.ThreadDefinition, error) {
	return s.def, nil
}

// orderRecorder is a concurrency-safe append-only log of element keys, used
// by the try/catch/finally scenario test to assert execution order.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) add(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, key)
}

func (r *orderRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// tryExecutor is a minimal Try-node executor: it opens a try frame,
// registers one catch clause and a finally key, then routes to its body.
type tryExecutor struct {
	rec        *orderRecorder
	catchKey   string
	catchType  string
	finallyKey string
}

func (e *tryExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *tryExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.rec.add(elemCtx.Element.Key)
	elemCtx.Memory.EnterTry(elemCtx.Element.Key)
	elemCtx.Memory.AddCatch(e.catchKey, e.catchType)
	elemCtx.Memory.SetFinally(e.finallyKey)
	return registry.Success(domain.PortSuccess, map[string]any{}), nil
}
func (e *tryExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *tryExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// throwingExecutor always fails with a categorized domain.ExecutionError, so
// onException's catch-type matching (classify/FindCatchHandler) has
// something concrete to match against.
type throwingExecutor struct {
	rec      *orderRecorder
	category string
}

func (e *throwingExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *throwingExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.rec.add(elemCtx.Element.Key)
	return nil, domain.NewExecutionError(
		elemCtx.ThreadExecCtx.ThreadID, elemCtx.ThreadExecCtx.ThreadExecID, elemCtx.Element.Key,
		"simulated timeout", nil, false, e.category,
	)
}
func (e *throwingExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *throwingExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// catchExecutor records the caught exception's category into the
// "__exception_type__" variable before routing onward.
type catchExecutor struct{ rec *orderRecorder }

func (e *catchExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *catchExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.rec.add(elemCtx.Element.Key)
	excType := ""
	if execErr, ok := elemCtx.Memory.CurrentException().(*domain.ExecutionError); ok {
		excType = execErr.Category
	}
	if err := elemCtx.Memory.Set("__exception_type__", excType); err != nil {
		return nil, err
	}
	return registry.Success(domain.PortSuccess, map[string]any{}), nil
}
func (e *catchExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *catchExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// recordingExecutor is a passthrough executor that additionally logs its own
// key, for order-of-execution assertions.
type recordingExecutor struct{ rec *orderRecorder }

func (e *recordingExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *recordingExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.rec.add(elemCtx.Element.Key)
	return registry.Success(domain.PortSuccess, map[string]any{}), nil
}
func (e *recordingExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *recordingExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// TestExecuteProcess_TryCatchFinallyRoutesCatchThenFinallyThenEnd:
// Try -> Body(throws) -> Catch(type="TimeoutException") ->
// Finally -> End. The thread completes (status 3) having executed every
// node in that exact order, and the catch records the exception's type.
func TestExecuteProcess_TryCatchFinallyRoutesCatchThenFinallyThenEnd(t *testing.T) {
	rec := &orderRecorder{}
	reg := registry.New()
	reg.Register("try", func() registry.NodeExecutor {
		return &tryExecutor{rec: rec, catchKey: "Catch", catchType: "TimeoutException", finallyKey: "Finally"}
	})
	reg.Register("throwing", func() registry.NodeExecutor { return &throwingExecutor{rec: rec, category: "TimeoutException"} })
	reg.Register("catch", func() registry.NodeExecutor { return &catchExecutor{rec: rec} })
	reg.Register("noop", func() registry.NodeExecutor { return &recordingExecutor{rec: rec} })

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "Try", Type: "try", IsTrigger: true},
			{ID: 2, Key: "Body", Type: "throwing"},
			{ID: 3, Key: "Catch", Type: "catch"},
			{ID: 4, Key: "Finally", Type: "noop"},
			{ID: 5, Key: "End", Type: "noop"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: domain.PortSuccess, TargetElementID: 2},
			{SourceElementID: 4, SourcePort: domain.PortSuccess, TargetElementID: 5},
		},
	}
	e := NewEngine(reg, WithDefinitionLoader(stubLoader{def: def}))

	record, err := e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, record.State)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.StatusID)
	assert.Equal(t, []string{"Try", "Body", "Catch", "Finally", "End"}, rec.snapshot())
	assert.Equal(t, 5, record.CompletedNodeCount)
}

// memoryPersister is a minimal ExecutionPersister backed by a map, enough to
// drive a PauseExecution -> ResumeExecution round trip in a test.
type memoryPersister struct {
	mu      sync.Mutex
	records map[string]*domain.ExecutionRecord
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{records: make(map[string]*domain.ExecutionRecord)}
}

func (p *memoryPersister) GetByProcessExecution(ctx context.Context, threadExecID string) (*domain.ExecutionRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.records[threadExecID]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeNotFound, "no execution record for "+threadExecID, nil)
	}
	return r, nil
}

func (p *memoryPersister) Update(ctx context.Context, record *domain.ExecutionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[record.ThreadExecID] = record
	return nil
}

// pauseSignalExecutor hands its live ThreadExecID back to the test over a
// channel and then blocks until the test tells it to proceed, so the test
// can call PauseExecution before the loop reaches its next iteration
// boundary without racing it.
type pauseSignalExecutor struct {
	rec      *orderRecorder
	execIDCh chan string
	proceed  chan struct{}
}

func (e *pauseSignalExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	return registry.Valid(), nil
}
func (e *pauseSignalExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	e.rec.add(elemCtx.Element.Key)
	e.execIDCh <- elemCtx.ThreadExecCtx.ThreadExecID
	<-e.proceed
	return registry.Success(domain.PortSuccess, map[string]any{}), nil
}
func (e *pauseSignalExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return nil, cause
}
func (e *pauseSignalExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// TestExecuteProcess_PauseThenResumeCompletesRemainingElements: pause lands
// the execution in state Paused with its remaining stack checkpointed, and Resume runs those remaining elements in their
// original order to a final Completed status. Across both halves, every
// element in the definition is recorded exactly once.
func TestExecuteProcess_PauseThenResumeCompletesRemainingElements(t *testing.T) {
	rec := &orderRecorder{}
	execIDCh := make(chan string, 1)
	proceed := make(chan struct{})

	reg := registry.New()
	reg.Register("noop", func() registry.NodeExecutor { return &recordingExecutor{rec: rec} })
	reg.Register("pauseSignal", func() registry.NodeExecutor {
		return &pauseSignalExecutor{rec: rec, execIDCh: execIDCh, proceed: proceed}
	})

	def := &domain.ThreadDefinition{
		ID: 1, VersionID: 1, Enabled: true,
		Elements: []domain.Element{
			{ID: 1, Key: "start", Type: "noop", IsTrigger: true},
			{ID: 2, Key: "signal", Type: "pauseSignal"},
			{ID: 3, Key: "middle", Type: "noop"},
			{ID: 4, Key: "end", Type: "noop"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: domain.PortSuccess, TargetElementID: 2},
			{SourceElementID: 2, SourcePort: domain.PortSuccess, TargetElementID: 3},
			{SourceElementID: 3, SourcePort: domain.PortSuccess, TargetElementID: 4},
		},
	}

	store := checkpoint.NewMemoryStore()
	persister := newMemoryPersister()
	e := NewEngine(reg,
		WithDefinitionLoader(stubLoader{def: def}),
		WithCheckpointStore(store),
		WithExecutionPersister(persister),
	)

	var pausedRecord *domain.ExecutionRecord
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		pausedRecord, runErr = e.ExecuteProcess(context.Background(), ExecuteRequest{ThreadID: 1, VersionID: 1})
	}()

	threadExecID := <-execIDCh
	require.NoError(t, e.PauseExecution(context.Background(), threadExecID))
	close(proceed)
	<-done

	require.NoError(t, runErr)
	assert.Equal(t, domain.StatePaused, pausedRecord.State)
	assert.Equal(t, domain.ExecutionStatusPaused, pausedRecord.StatusID)

	stack, err := store.LoadStack(context.Background(), threadExecID, def)
	require.NoError(t, err)
	assert.Equal(t, []string{"middle"}, stack)

	resumedRecord, err := e.ResumeExecution(context.Background(), threadExecID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, resumedRecord.State)
	assert.Equal(t, domain.ExecutionStatusCompleted, resumedRecord.StatusID)

	assert.Equal(t, len(def.Elements), pausedRecord.CompletedNodeCount+resumedRecord.CompletedNodeCount)
	assert.Equal(t, []string{"start", "signal", "middle", "end"}, rec.snapshot())
}
