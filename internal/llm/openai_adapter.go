package llm

import (
	"chatbridge/internal/chat"

	"github.com/tmc/langchaingo/llms/openai"
)

const (
	defaultDeepSeekURL   = "https://api.deepseek.com/v1"
	defaultDeepSeekModel = "deepseek-chat"
	defaultOpenAIModel   = "gpt-4o-mini"
)

func NewOpenAIAdapter(model, baseURL, apiKey string) (chat.Adapter, error) {
	model = valueOrDefault(model, defaultOpenAIModel)
	return newOpenAICompatible(model, baseURL, firstEnv(apiKey, "CHATBRIDGE_OPENAI_API_KEY", "OPENAI_API_KEY"))
}

// NewDeepSeekAdapter talks to DeepSeek through its OpenAI-compatible API.
func NewDeepSeekAdapter(model, baseURL, apiKey string) (chat.Adapter, error) {
	model = valueOrDefault(model, defaultDeepSeekModel)
	baseURL = valueOrDefault(baseURL, defaultDeepSeekURL)
	return newOpenAICompatible(model, baseURL, firstEnv(apiKey, "DEEPSEEK_API_KEY"))
}

func newOpenAICompatible(model, baseURL, token string) (chat.Adapter, error) {
	opts := []openai.Option{
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return &modelAdapter{client: client, model: model}, nil
}
