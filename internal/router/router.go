// Package router maps a source element and output port to the ordered
// set of enabled downstream elements, evaluating each connection's
// optional condition expression along the way.
package router

import (
	"context"
	"log/slog"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/expression"
)

// Router resolves connections from a thread definition into traversal
// targets.
type Router struct {
	evaluator *expression.Evaluator
	logger    *slog.Logger
}

// New creates a Router backed by the given expression evaluator.
func New(evaluator *expression.Evaluator, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{evaluator: evaluator, logger: logger}
}

// DownstreamForPort returns the ordered list of enabled target elements
// reachable from src's output port, in the order their connections appear
// in the thread definition; disabled targets are never returned. A port
// with no matching connections yields an empty, non-nil slice, a terminal
// branch.
func (r *Router) DownstreamForPort(src *domain.Element, port string, threadDef *domain.ThreadDefinition) []*domain.Element {
	targets := make([]*domain.Element, 0)
	for i := range threadDef.Connections {
		conn := &threadDef.Connections[i]
		if conn.SourceElementID != src.ID {
			continue
		}
		if conn.EffectiveSourcePort() != port {
			continue
		}
		target, ok := threadDef.ElementByID(conn.TargetElementID)
		if !ok || target.Disabled {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// EvaluateCondition evaluates a connection's condition expression:
// an empty or whitespace-only expression is always true; an evaluator
// error is logged and treated as false; a non-boolean result is coerced
// via truthy parsing.
func (r *Router) EvaluateCondition(ctx context.Context, expr string, vars map[string]any, tier expression.Tier) bool {
	if isBlank(expr) {
		return true
	}
	result, err := r.evaluator.EvaluateBoolean(ctx, expr, vars, tier)
	if err != nil {
		r.logger.Warn("router: condition evaluation failed, treating as false",
			"expression", expr, "error", err)
		return false
	}
	return result
}

// EnabledConnections filters connections by target's disabled flag, and by
// their condition (when present), returning only those that currently
// route. Used by the orchestration loop when an element's successors must
// be resolved with per-connection conditions applied.
func (r *Router) EnabledConnections(ctx context.Context, src *domain.Element, port string, threadDef *domain.ThreadDefinition, vars map[string]any, tier expression.Tier) []*domain.Connection {
	enabled := make([]*domain.Connection, 0)
	for i := range threadDef.Connections {
		conn := &threadDef.Connections[i]
		if conn.SourceElementID != src.ID || conn.EffectiveSourcePort() != port {
			continue
		}
		target, ok := threadDef.ElementByID(conn.TargetElementID)
		if !ok || target.Disabled {
			continue
		}
		if !r.EvaluateCondition(ctx, conn.Condition, vars, tier) {
			continue
		}
		enabled = append(enabled, conn)
	}
	return enabled
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
