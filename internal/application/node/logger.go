// Package node provides infrastructure shared by built-in node-type
// executors (internal/application/node/builtin), starting with the
// executor-local logger. The engine's own lifecycle logging runs on
// log/slog (internal/infrastructure/logger); executors get a second,
// independent logging surface on zerolog, so executor noise is tuned
// separately from the engine's own lifecycle logging.
package node

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewExecutorLogger builds the zerolog.Logger a node executor logs
// through. Callers name themselves via nodeType so every log line an
// executor produces is attributable without the executor threading a
// node-type string through every call.
func NewExecutorLogger(nodeType string) zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Str("node_type", nodeType).Logger()
}

// NewSilentExecutorLogger discards everything, for unit tests that
// construct an executor but don't want its log output on stdout.
func NewSilentExecutorLogger(nodeType string) zerolog.Logger {
	return zerolog.New(io.Discard).With().Str("node_type", nodeType).Logger()
}
