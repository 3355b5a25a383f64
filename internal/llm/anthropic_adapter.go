package llm

import (
	"chatbridge/internal/chat"

	"github.com/tmc/langchaingo/llms/anthropic"
)

const defaultAnthropicModel = "claude-3-5-sonnet-latest"

func NewAnthropicAdapter(model, apiKey string) (chat.Adapter, error) {
	model = valueOrDefault(model, defaultAnthropicModel)
	opts := []anthropic.Option{
		anthropic.WithModel(model),
	}
	if key := firstEnv(apiKey, "CHATBRIDGE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); key != "" {
		opts = append(opts, anthropic.WithToken(key))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}
	return &modelAdapter{client: client, model: model}, nil
}
