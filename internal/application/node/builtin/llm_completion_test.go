package builtin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/memory"
	"github.com/procthread/engine/internal/registry"
)

// newTestExecutor points newClient at an httptest server standing in for
// the OpenAI chat completions endpoint, so these tests exercise the full
// request/response path without reaching the real API.
func newTestExecutor(t *testing.T, handler http.HandlerFunc) (*LLMCompletionExecutor, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL
	client := openai.NewClientWithConfig(cfg)

	return &LLMCompletionExecutor{
		defaultAPIKey: "test-key",
		newClient:     func(apiKey string) *openai.Client { return client },
	}, server
}

func chatCompletionResponder(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := openai.ChatCompletionResponse{
			ID:    "resp-1",
			Model: "gpt-4o",
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}},
			},
			Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func elementContext(config string) *registry.ElementContext {
	return &registry.ElementContext{
		Element:       &domain.Element{Key: "summarize", Type: NodeTypeLLMCompletion, Config: config},
		ThreadExecCtx: &domain.ThreadExecutionContext{ThreadID: "1", ThreadExecID: "exec-1"},
		Memory:        memory.New(map[string]any{}),
	}
}

func TestLLMCompletionExecutor_Validate(t *testing.T) {
	e := NewLLMCompletionExecutor("")

	valid, err := e.Validate(nil, &registry.DefinitionContext{Element: &domain.Element{Config: `{"prompt":"hi"}`}})
	require.NoError(t, err)
	assert.True(t, valid.Valid)

	invalid, err := e.Validate(nil, &registry.DefinitionContext{Element: &domain.Element{Config: `{}`}})
	require.NoError(t, err)
	assert.False(t, invalid.Valid)
}

func TestLLMCompletionExecutor_Execute_SubstitutesVariablesAndWritesOutput(t *testing.T) {
	e, _ := newTestExecutor(t, chatCompletionResponder("hello world"))
	elemCtx := elementContext(`{"prompt":"Say hi to {{name}}","output_key":"greeting"}`)
	require.NoError(t, elemCtx.Memory.Set("name", "Ada"))

	result, err := e.Execute(context.Background(), elemCtx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, domain.PortMain, result.OutputPortKey)
	assert.Equal(t, "hello world", result.OutputData["greeting"])

	stored, ok := elemCtx.Memory.Get("greeting")
	require.True(t, ok)
	assert.Equal(t, "hello world", stored)
}

func TestLLMCompletionExecutor_Execute_NoChoicesIsNonRetryable(t *testing.T) {
	e, _ := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{ID: "resp-2", Model: "gpt-4o"})
	})
	elemCtx := elementContext(`{"prompt":"hi"}`)

	_, err := e.Execute(context.Background(), elemCtx)
	require.Error(t, err)

	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.False(t, execErr.Retryable)
}

func TestLLMCompletionExecutor_HandleError_ReturnsFailureResult(t *testing.T) {
	e := NewLLMCompletionExecutor("")
	result, err := e.HandleError(context.Background(), elementContext(`{"prompt":"hi"}`), assert.AnError)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.PortError, result.OutputPortKey)
}

func TestSubstitutePlaceholders_LeavesUnresolvedAsIs(t *testing.T) {
	out := substitutePlaceholders("hi {{name}}, {{missing}}", map[string]any{"name": "Ada"})
	assert.Equal(t, "hi Ada, {{missing}}", out)
}
