package chat

import (
	"context"

	"chatbridge/internal/middleware"
)

// Adapter abstracts chat completion providers.
type Adapter interface {
	// Generate sends one prompt and returns the model's text.
	Generate(ctx context.Context, prompt string, params *middleware.LLMParams) (string, error)
}
