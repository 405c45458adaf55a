// Package orchestrator is the heart of the engine: stack-based graph
// traversal, loop/try-catch/finally signal handling, pause/cancel polling,
// and sub-workflow depth tracking. It wires together every other internal
// package (registry, elementexec, router, retrypolicy, errorhandler,
// checkpoint, events, tracing) behind the entry points ExecuteProcess,
// ExecuteProcessThread, PauseExecution, ResumeExecution, CancelExecution.
//
// All cross-execution state (active executions, pause/cancel signals, the
// nesting-depth counters) lives on the Engine value, never in package-level
// variables.
package orchestrator

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/procthread/engine/internal/checkpoint"
	"github.com/procthread/engine/internal/elementexec"
	"github.com/procthread/engine/internal/errorhandler"
	"github.com/procthread/engine/internal/events"
	"github.com/procthread/engine/internal/expression"
	"github.com/procthread/engine/internal/registry"
	"github.com/procthread/engine/internal/retrypolicy"
	"github.com/procthread/engine/internal/router"
	"github.com/procthread/engine/internal/tracing"
)

// defaultMaxNestingDepth caps sub-workflow recursion per root execution.
const defaultMaxNestingDepth = 10

// Engine is the orchestrator. One Engine instance serves any number of
// concurrent thread executions; each owns its own stack and memory.
// Construct with NewEngine and the functional options below.
type Engine struct {
	registry   *registry.Registry
	envelope   *elementexec.Envelope
	router     *router.Router
	evaluator  *expression.Evaluator
	errHandler *errorhandler.Handler
	policy     *retrypolicy.Policy

	checkpoints checkpoint.Store
	persister   ExecutionPersister
	loader      DefinitionLoader
	events      *events.Publisher
	tracer      *tracing.Service
	logger      *slog.Logger

	maxNestingDepth int

	tracking *tracker
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's lifecycle logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithCheckpointStore supplies the State Checkpoint Service backend.
// Defaults to an in-memory store if never set.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(e *Engine) { e.checkpoints = store }
}

// WithExecutionPersister supplies the thread-execution persistence
// collaborator used for pause/resume/cancel bookkeeping.
func WithExecutionPersister(p ExecutionPersister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithDefinitionLoader supplies the definition-loader collaborator.
func WithDefinitionLoader(loader DefinitionLoader) Option {
	return func(e *Engine) { e.loader = loader }
}

// WithEventPublisher overrides the engine's event publisher. Defaults to a
// fresh, subscriber-less Publisher.
func WithEventPublisher(pub *events.Publisher) Option {
	return func(e *Engine) { e.events = pub }
}

// WithTracingService overrides the engine's tracing service.
func WithTracingService(svc *tracing.Service) Option {
	return func(e *Engine) { e.tracer = svc }
}

// WithRetryPolicy overrides the default retry policy applied when an
// element does not declare its own MaxRetries (0 means "use the engine
// default", not "never retry"; an element that genuinely wants no retries
// sets MaxRetries negative, per policyFor's handling).
func WithRetryPolicy(policy *retrypolicy.Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithFatalClassifier overrides which errors the error handler treats as
// unconditionally fatal, elevating specific categories past the retry
// policy's own decision.
func WithFatalClassifier(classifier errorhandler.FatalClassifier) Option {
	return func(e *Engine) {
		e.errHandler = errorhandler.New(classifier, e.logger)
	}
}

// WithMaxNestingDepth overrides the sub-workflow nesting cap (default 10).
func WithMaxNestingDepth(n int) Option {
	return func(e *Engine) { e.maxNestingDepth = n }
}

// NewEngine wires every collaborator package into a ready-to-use Engine.
func NewEngine(reg *registry.Registry, opts ...Option) *Engine {
	logger := slog.Default()
	evaluator := expression.New()

	e := &Engine{
		registry:        reg,
		envelope:        elementexec.New(reg),
		router:          router.New(evaluator, logger),
		evaluator:       evaluator,
		policy:          retrypolicy.Default(),
		checkpoints:     checkpoint.NewMemoryStore(),
		events:          events.New(logger),
		tracer:          tracing.New(0),
		logger:          logger,
		maxNestingDepth: defaultMaxNestingDepth,
		tracking:        newTracker(),
	}
	e.errHandler = errorhandler.New(nil, logger)

	for _, opt := range opts {
		opt(e)
	}

	// Options may have replaced the logger after the router was built
	// against the original one, so the router is rebuilt here. errHandler
	// keeps the logger it was built with: the default one, or the logger
	// in effect when WithFatalClassifier ran.
	e.router = router.New(e.evaluator, e.logger)
	return e
}

// newThreadExecID mints a fresh, globally unique thread-execution id.
func newThreadExecID() string {
	return uuid.NewString()
}

// policyFor resolves the retry policy an element uses: the engine default
// with MaxRetries overridden by the element's own declaration, unless the
// element leaves MaxRetries at its zero value, in which case the engine
// default's MaxRetries is left untouched. A negative MaxRetries disables
// retries.
func (e *Engine) policyFor(maxRetries int) *retrypolicy.Policy {
	p := *e.policy
	if maxRetries > 0 {
		p.MaxRetries = maxRetries
	} else if maxRetries < 0 {
		p.MaxRetries = 0
	}
	return &p
}
