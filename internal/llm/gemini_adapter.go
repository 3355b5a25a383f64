package llm

import (
	"context"

	"chatbridge/internal/chat"

	"github.com/tmc/langchaingo/llms/googleai"
)

func NewGeminiAdapter(model, apiKey string) (chat.Adapter, error) {
	model = valueOrDefault(model, googleai.DefaultOptions().DefaultModel)

	opts := []googleai.Option{
		googleai.WithDefaultModel(model),
	}
	if key := firstEnv(apiKey, "GOOGLE_API_KEY", "GEMINI_API_KEY"); key != "" {
		opts = append(opts, googleai.WithAPIKey(key))
	}

	client, err := googleai.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &modelAdapter{client: client, model: model}, nil
}
