package router

import (
	"context"
	"testing"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/expression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildThreeNodeThread() *domain.ThreadDefinition {
	return &domain.ThreadDefinition{
		ID: 1,
		Elements: []domain.Element{
			{ID: 1, Key: "T", IsTrigger: true},
			{ID: 2, Key: "B"},
			{ID: 3, Key: "C"},
			{ID: 4, Key: "Disabled", Disabled: true},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: "true", TargetElementID: 2},
			{SourceElementID: 1, SourcePort: "true", TargetElementID: 3},
			{SourceElementID: 1, SourcePort: "true", TargetElementID: 4},
		},
	}
}

func TestDownstreamForPort_PreservesDefinitionOrderAndFiltersDisabled(t *testing.T) {
	r := New(expression.New(), nil)
	def := buildThreeNodeThread()

	targets := r.DownstreamForPort(&def.Elements[0], "true", def)
	require.Len(t, targets, 2)
	assert.Equal(t, "B", targets[0].Key)
	assert.Equal(t, "C", targets[1].Key)
}

func TestDownstreamForPort_MissingPortYieldsEmpty(t *testing.T) {
	r := New(expression.New(), nil)
	def := buildThreeNodeThread()

	targets := r.DownstreamForPort(&def.Elements[0], "false", def)
	assert.Empty(t, targets)
	assert.NotNil(t, targets)
}

func TestEvaluateCondition_BlankIsTrue(t *testing.T) {
	r := New(expression.New(), nil)
	assert.True(t, r.EvaluateCondition(context.Background(), "  ", nil, expression.TierStrict))
	assert.True(t, r.EvaluateCondition(context.Background(), "", nil, expression.TierStrict))
}

func TestEvaluateCondition_ErrorIsFalse(t *testing.T) {
	r := New(expression.New(), nil)
	ok := r.EvaluateCondition(context.Background(), "1 +", nil, expression.TierStrict)
	assert.False(t, ok)
}

func TestEvaluateCondition_TruthyCoercion(t *testing.T) {
	r := New(expression.New(), nil)
	ok := r.EvaluateCondition(context.Background(), "v", map[string]any{"v": 5}, expression.TierStrict)
	assert.True(t, ok)
}

func TestEnabledConnections_AppliesCondition(t *testing.T) {
	r := New(expression.New(), nil)
	def := &domain.ThreadDefinition{
		Elements: []domain.Element{
			{ID: 1, Key: "If"},
			{ID: 2, Key: "B"},
			{ID: 3, Key: "C"},
		},
		Connections: []domain.Connection{
			{SourceElementID: 1, SourcePort: "main", TargetElementID: 2, Condition: "v > 10"},
			{SourceElementID: 1, SourcePort: "main", TargetElementID: 3, Condition: "v <= 10"},
		},
	}

	enabled := r.EnabledConnections(context.Background(), &def.Elements[0], "main", def, map[string]any{"v": 15}, expression.TierStrict)
	require.Len(t, enabled, 1)
	assert.Equal(t, int64(2), enabled[0].TargetElementID)
}
