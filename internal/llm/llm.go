package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"chatbridge/internal/chat"
	"chatbridge/internal/middleware"

	"github.com/tmc/langchaingo/llms"
)

type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderDeepSeek  Provider = "deepseek"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// Options selects and configures a provider. Empty fields fall back to the
// provider's defaults and environment variables.
type Options struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string
}

func NewAdapter(opts Options) (chat.Adapter, error) {
	switch opts.Provider {
	case ProviderOllama:
		return NewOllamaAdapter(opts.Model, opts.BaseURL)
	case ProviderDeepSeek:
		return NewDeepSeekAdapter(opts.Model, opts.BaseURL, opts.APIKey)
	case ProviderOpenAI:
		return NewOpenAIAdapter(opts.Model, opts.BaseURL, opts.APIKey)
	case ProviderAnthropic:
		return NewAnthropicAdapter(opts.Model, opts.APIKey)
	case ProviderGemini:
		return NewGeminiAdapter(opts.Model, opts.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
}

// modelAdapter sends a single user prompt to any langchaingo model.
type modelAdapter struct {
	client llms.Model
	model  string
}

func (a *modelAdapter) Generate(ctx context.Context, prompt string, params *middleware.LLMParams) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := a.client.GenerateContent(ctx, messages, callOptions(a.model, params)...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return resp.Choices[0].Content, nil
}

func callOptions(model string, params *middleware.LLMParams) []llms.CallOption {
	opts := make([]llms.CallOption, 0, 6)
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if params == nil {
		return opts
	}
	if params.Model != "" {
		opts = append(opts, llms.WithModel(params.Model))
	}
	if params.Temperature != 0 {
		opts = append(opts, llms.WithTemperature(params.Temperature))
	}
	if params.TopP != 0 {
		opts = append(opts, llms.WithTopP(params.TopP))
	}
	if params.MaxTokens != 0 {
		opts = append(opts, llms.WithMaxTokens(params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

// firstEnv returns explicit when set, otherwise the first non-empty variable.
func firstEnv(explicit string, names ...string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func valueOrDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
