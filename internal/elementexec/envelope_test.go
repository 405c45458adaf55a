package elementexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	validation  *registry.ValidationResult
	validateErr error
	execute     func(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error)
	handleError func(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error)
	cleanedUp   bool
}

func (f *fakeExecutor) Validate(context.Context, *registry.DefinitionContext) (*registry.ValidationResult, error) {
	if f.validation == nil && f.validateErr == nil {
		return registry.Valid(), nil
	}
	return f.validation, f.validateErr
}

func (f *fakeExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	return f.execute(ctx, elemCtx)
}

func (f *fakeExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	if f.handleError == nil {
		return nil, errors.New("no handler")
	}
	return f.handleError(ctx, elemCtx, cause)
}

func (f *fakeExecutor) Cleanup(context.Context, *registry.ElementContext) { f.cleanedUp = true }

func newElemCtx(elem *domain.Element) *registry.ElementContext {
	return &registry.ElementContext{
		Element: elem,
		ExecCtx: &domain.ElementExecutionContext{ElementKey: elem.Key, ElementType: elem.Type},
	}
}

func TestEnvelope_UnknownType(t *testing.T) {
	reg := registry.New()
	env := New(reg)

	elem := &domain.Element{Key: "A", Type: "missing"}
	result, timedOut, cause := env.Run(context.Background(), newElemCtx(elem))

	assert.False(t, timedOut)
	assert.False(t, result.Success)
	assert.Equal(t, domain.PortError, result.OutputPortKey)
	assert.Error(t, cause)
}

func TestEnvelope_ValidationFailureSkipsExecute(t *testing.T) {
	reg := registry.New()
	fake := &fakeExecutor{
		validation: registry.Invalid("bad config"),
		execute: func(context.Context, *registry.ElementContext) (*registry.NodeResult, error) {
			t.Fatal("Execute must not be called when Validate fails")
			return nil, nil
		},
	}
	reg.Register("t", func() registry.NodeExecutor { return fake })
	env := New(reg)

	elem := &domain.Element{Key: "A", Type: "t"}
	result, _, cause := env.Run(context.Background(), newElemCtx(elem))
	assert.False(t, result.Success)
	assert.Equal(t, "bad config", result.ErrorMessage)
	assert.True(t, fake.cleanedUp)
	assert.Error(t, cause)
}

func TestEnvelope_SuccessCopiesOutputAndTimestamps(t *testing.T) {
	reg := registry.New()
	fake := &fakeExecutor{
		execute: func(context.Context, *registry.ElementContext) (*registry.NodeResult, error) {
			return registry.Success(domain.PortMain, map[string]any{"x": 1}), nil
		},
	}
	reg.Register("t", func() registry.NodeExecutor { return fake })
	env := New(reg)

	elem := &domain.Element{Key: "A", Type: "t"}
	elemCtx := newElemCtx(elem)
	result, timedOut, cause := env.Run(context.Background(), elemCtx)

	require.False(t, timedOut)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"x": 1}, result.OutputData)
	assert.Equal(t, domain.ElementStatusSuccess, elemCtx.ExecCtx.Status)
	assert.False(t, elemCtx.ExecCtx.FinishedAt.IsZero())
	assert.NoError(t, cause)
}

func TestEnvelope_TimeoutDistinguishedFromCallerCancellation(t *testing.T) {
	reg := registry.New()
	fake := &fakeExecutor{
		execute: func(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	reg.Register("slow", func() registry.NodeExecutor { return fake })
	env := New(reg)

	elem := &domain.Element{Key: "Slow", Type: "slow", TimeoutSeconds: 1}
	elemCtx := newElemCtx(elem)

	start := time.Now()
	result, timedOut, cause := env.Run(context.Background(), elemCtx)
	elapsed := time.Since(start)

	assert.True(t, timedOut)
	assert.False(t, result.Success)
	assert.Equal(t, "Element execution timed out after 1 seconds", result.ErrorMessage)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Error(t, cause)
}

func TestEnvelope_HandleErrorSuppliesResult(t *testing.T) {
	reg := registry.New()
	fake := &fakeExecutor{
		execute: func(context.Context, *registry.ElementContext) (*registry.NodeResult, error) {
			return nil, errors.New("boom")
		},
		handleError: func(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
			return registry.Success(domain.PortMain, map[string]any{"recovered": true}), nil
		},
	}
	reg.Register("t", func() registry.NodeExecutor { return fake })
	env := New(reg)

	elem := &domain.Element{Key: "A", Type: "t"}
	result, timedOut, cause := env.Run(context.Background(), newElemCtx(elem))
	assert.False(t, timedOut)
	assert.True(t, result.Success)
	assert.Equal(t, map[string]any{"recovered": true}, result.OutputData)
	assert.NoError(t, cause)
}

func TestEnvelope_HandleErrorFailsFallsBackToGenericFailure(t *testing.T) {
	reg := registry.New()
	fake := &fakeExecutor{
		execute: func(context.Context, *registry.ElementContext) (*registry.NodeResult, error) {
			return nil, errors.New("boom")
		},
	}
	reg.Register("t", func() registry.NodeExecutor { return fake })
	env := New(reg)

	elem := &domain.Element{Key: "A", Type: "t"}
	result, timedOut, cause := env.Run(context.Background(), newElemCtx(elem))
	assert.False(t, timedOut)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.ErrorMessage)
	assert.Error(t, cause)
}
