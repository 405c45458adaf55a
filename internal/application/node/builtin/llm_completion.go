// Package builtin holds the concrete node-type executors shipped with the
// engine itself. The registry stays pluggable; anything here is just a
// registration away from being replaced.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/procthread/engine/internal/application/node"
	"github.com/procthread/engine/internal/domain"
	"github.com/procthread/engine/internal/registry"
)

// NodeTypeLLMCompletion is the type name this executor registers under.
const NodeTypeLLMCompletion = "llm-completion"

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// llmCompletionConfig is the shape of an llm-completion element's
// Config JSON.
type llmCompletionConfig struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key"`
	OutputKey   string  `json:"output_key"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// LLMCompletionExecutor calls an OpenAI-compatible chat completion
// endpoint and writes the response text to the configured output key.
// defaultAPIKey is a fallback used when neither the element config nor
// the OPENAI_API_KEY environment variable supplies one.
type LLMCompletionExecutor struct {
	defaultAPIKey string
	newClient     func(apiKey string) *openai.Client
}

// NewLLMCompletionExecutor constructs an executor with an optional
// fallback API key.
func NewLLMCompletionExecutor(defaultAPIKey string) *LLMCompletionExecutor {
	return &LLMCompletionExecutor{
		defaultAPIKey: defaultAPIKey,
		newClient:     openai.NewClient,
	}
}

var _ registry.IntegrationExecutor = (*LLMCompletionExecutor)(nil)

// Validate checks that the element carries a well-formed config with a
// non-empty prompt, before the element is ever run.
func (e *LLMCompletionExecutor) Validate(ctx context.Context, defCtx *registry.DefinitionContext) (*registry.ValidationResult, error) {
	cfg, err := parseLLMConfig(defCtx.Element.Config)
	if err != nil {
		return registry.Invalid(err.Error()), nil
	}
	if cfg.Prompt == "" {
		return registry.Invalid("llm-completion: missing 'prompt' in config"), nil
	}
	return registry.Valid(), nil
}

// Execute resolves the prompt's variable placeholders against the
// element's memory scope and calls InvokeExternalService.
func (e *LLMCompletionExecutor) Execute(ctx context.Context, elemCtx *registry.ElementContext) (*registry.NodeResult, error) {
	output, err := e.InvokeExternalService(ctx, elemCtx)
	if err != nil {
		return nil, err
	}
	return registry.Success(domain.PortMain, output), nil
}

// InvokeExternalService performs the actual OpenAI chat completion call.
func (e *LLMCompletionExecutor) InvokeExternalService(ctx context.Context, elemCtx *registry.ElementContext) (map[string]any, error) {
	cfg, err := parseLLMConfig(elemCtx.Element.Config)
	if err != nil {
		return nil, domain.NewConfigurationError(NodeTypeLLMCompletion, err.Error())
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.OutputKey == "" {
		cfg.OutputKey = "output"
	}

	apiKey := e.resolveAPIKey(cfg.APIKey)
	if apiKey == "" {
		return nil, domain.NewConfigurationError(NodeTypeLLMCompletion, "no OpenAI API key configured")
	}

	log := node.NewExecutorLogger(NodeTypeLLMCompletion)

	prompt := substitutePlaceholders(cfg.Prompt, elemCtx.Memory.Variables())
	log.Debug().Str("element_key", elemCtx.Element.Key).Msg("resolved llm-completion prompt")

	client := e.newClient(apiKey)
	req := openai.ChatCompletionRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	started := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	latency := time.Since(started)
	if err != nil {
		return nil, domain.NewExecutionError(
			elemCtx.ThreadExecCtx.ThreadID, elemCtx.ThreadExecCtx.ThreadExecID, elemCtx.Element.Key,
			fmt.Sprintf("OpenAI API error: %v", err), err, true, "integration",
		)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.NewExecutionError(
			elemCtx.ThreadExecCtx.ThreadID, elemCtx.ThreadExecCtx.ThreadExecID, elemCtx.Element.Key,
			"OpenAI returned no choices", nil, false, "integration",
		)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := elemCtx.Memory.Set(cfg.OutputKey, content); err != nil {
		return nil, err
	}

	log.Debug().Str("element_key", elemCtx.Element.Key).Dur("latency", latency).Msg("llm-completion call finished")

	return map[string]any{
		cfg.OutputKey:    content,
		"model":          resp.Model,
		"response_id":    resp.ID,
		"prompt_tokens":  resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"total_tokens":   resp.Usage.TotalTokens,
		"latency_ms":     latency.Milliseconds(),
	}, nil
}

// HandleError turns an OpenAI failure into a failed NodeResult on the error
// port carrying the cause's message; it does not classify the failure, and
// the retry policy (internal/retrypolicy) owns the actual retry decision.
func (e *LLMCompletionExecutor) HandleError(ctx context.Context, elemCtx *registry.ElementContext, cause error) (*registry.NodeResult, error) {
	return registry.Failure(cause.Error()), nil
}

// Cleanup is a no-op: this executor holds no per-invocation resources
// beyond the short-lived http client go-openai constructs internally.
func (e *LLMCompletionExecutor) Cleanup(ctx context.Context, elemCtx *registry.ElementContext) {}

// resolveAPIKey resolves config > environment > default, in that order.
func (e *LLMCompletionExecutor) resolveAPIKey(configKey string) string {
	if configKey != "" {
		return configKey
	}
	if env := os.Getenv("OPENAI_API_KEY"); env != "" {
		return env
	}
	return e.defaultAPIKey
}

func parseLLMConfig(raw string) (*llmCompletionConfig, error) {
	cfg := &llmCompletionConfig{}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("llm-completion: invalid config: %w", err)
	}
	return cfg, nil
}

// substitutePlaceholders replaces every {{key}} in template with the
// string form of variables[key], leaving unresolved placeholders as-is
// rather than failing the whole prompt.
func substitutePlaceholders(template string, variables map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := variables[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}
