package llm

import (
	"chatbridge/internal/chat"

	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaModel = "qwen2.5:14b"

func NewOllamaAdapter(model, baseURL string) (chat.Adapter, error) {
	model = valueOrDefault(model, defaultOllamaModel)
	opts := []ollama.Option{ollama.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, ollama.WithServerURL(baseURL))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return &modelAdapter{client: client, model: model}, nil
}
