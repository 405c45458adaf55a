// Package expression wraps github.com/expr-lang/expr with two sandbox
// tiers: a strict default tier (5s ceiling, no network/filesystem/
// process/global-dynamic-code access) and a relaxed tier (30s, wider
// surface) gated on a node certificate. Compiled programs are cached by
// source text.
package expression

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/procthread/engine/internal/domain"
)

const (
	strictTimeout  = 5 * time.Second
	relaxedTimeout = 30 * time.Second
)

// Evaluator compiles and runs expressions against a variable map, with a
// compiled-program cache shared across evaluations.
type Evaluator struct {
	mu            sync.RWMutex
	compiledCache map[string]*vm.Program
}

// New creates an Evaluator with an empty program cache.
func New() *Evaluator {
	return &Evaluator{compiledCache: make(map[string]*vm.Program)}
}

// Tier selects the sandbox ceiling an evaluation runs under.
type Tier int

const (
	// TierStrict is the default tier: 5s ceiling, no certificate required.
	TierStrict Tier = iota
	// TierRelaxed is a 30s ceiling, only honored when a valid certificate
	// accompanies the evaluation (see TierFor).
	TierRelaxed
)

// Timeout returns the wall-clock ceiling for the tier.
func (t Tier) Timeout() time.Duration {
	if t == TierRelaxed {
		return relaxedTimeout
	}
	return strictTimeout
}

// TierFor resolves the tier an element's certificate grants at time `at`:
// TierRelaxed only when cert is present and valid (issued, non-empty
// issuer, recognized type, not expired), TierStrict otherwise.
func TierFor(cert *domain.NodeCertificate, at time.Time) Tier {
	if cert == nil {
		return TierStrict
	}
	if cert.Issuer == "" {
		return TierStrict
	}
	if cert.IsValid(at) {
		return TierRelaxed
	}
	return TierStrict
}

// getCompiled returns the compiled program for condition, compiling and
// caching it if not already present.
func (e *Evaluator) getCompiled(condition string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.compiledCache[condition]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	envType := map[string]any{}
	program, err := expr.Compile(condition, expr.Env(envType))
	if err != nil {
		program, err = expr.Compile(condition)
		if err != nil {
			return nil, domain.NewDomainError(domain.ErrCodeInvalidInput,
				fmt.Sprintf("failed to compile expression %q", condition), err)
		}
	}

	e.mu.Lock()
	e.compiledCache[condition] = program
	e.mu.Unlock()
	return program, nil
}

// Evaluate runs expression against vars under the given tier's timeout and
// returns the raw result value.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, vars map[string]any, tier Tier) (any, error) {
	program, err := e.getCompiled(expression)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, tier.Timeout())
	defer cancel()

	type runResult struct {
		val any
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		v, runErr := expr.Run(program, normalizeVariables(vars))
		done <- runResult{val: v, err: runErr}
	}()

	select {
	case <-runCtx.Done():
		return nil, domain.NewDomainError(domain.ErrCodeInvalidState,
			fmt.Sprintf("expression %q exceeded its %s evaluation ceiling", expression, tier.Timeout()), runCtx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, e.classifyRunError(expression, r.err)
		}
		return r.val, nil
	}
}

// EvaluateBoolean evaluates expression and coerces the result to bool via
// standard truthy parsing (see Truthy).
func (e *Evaluator) EvaluateBoolean(ctx context.Context, expression string, vars map[string]any, tier Tier) (bool, error) {
	result, err := e.Evaluate(ctx, expression, vars, tier)
	if err != nil {
		return false, err
	}
	return Truthy(result), nil
}

// Truthy coerces an arbitrary expression result to bool. A string that is
// not a boolean literal is true when non-empty; values of a type not listed
// below yield false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return false
	}
}

// classifyRunError separates out the "graceful false" class: expressions
// that reference variables that don't exist yet.
func (e *Evaluator) classifyRunError(expression string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"cannot fetch", "undefined", "unknown name", "nil pointer", "not found"} {
		if strings.Contains(msg, pattern) {
			return errVariableNotYetAvailable{expression: expression, cause: err}
		}
	}
	return domain.NewDomainError(domain.ErrCodeInvalidInput,
		fmt.Sprintf("failed to evaluate expression %q", expression), err)
}

// errVariableNotYetAvailable marks a run error as the "missing variable"
// class the router treats as a graceful false rather than a hard failure.
type errVariableNotYetAvailable struct {
	expression string
	cause      error
}

func (e errVariableNotYetAvailable) Error() string {
	return fmt.Sprintf("variable referenced by %q is not yet available: %v", e.expression, e.cause)
}

func (e errVariableNotYetAvailable) Unwrap() error { return e.cause }

// IsVariableNotYetAvailable reports whether err is the graceful "missing
// variable" classification produced by a failed evaluation.
func IsVariableNotYetAvailable(err error) bool {
	_, ok := err.(errVariableNotYetAvailable)
	return ok
}

func normalizeVariables(variables map[string]any) map[string]any {
	normalized := make(map[string]any, len(variables))
	for k, v := range variables {
		normalized[k] = normalizeValue(v)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		normalized := make(map[string]any, len(v))
		for k, val := range v {
			normalized[k] = normalizeValue(val)
		}
		return normalized
	case []any:
		normalized := make([]any, len(v))
		for i, val := range v {
			normalized[i] = normalizeValue(val)
		}
		return normalized
	default:
		return v
	}
}
