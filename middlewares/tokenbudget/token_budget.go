package tokenbudget

import (
	"context"

	mw "chatbridge/internal/middleware"
)

// BudgetLimiter fills in default generation settings and caps MaxTokens.
// A per-request budget may be passed in Event.Context["token_budget"] (int);
// the smaller of that and the configured limit wins.
type BudgetLimiter struct {
	MaxTokens   int
	Temperature float64
}

func New(maxTokens int, temperature float64) BudgetLimiter {
	return BudgetLimiter{MaxTokens: maxTokens, Temperature: temperature}
}

func (BudgetLimiter) ID() string    { return "token_budget" }
func (BudgetLimiter) Priority() int { return 90 }

func (b BudgetLimiter) OnEvent(_ context.Context, e *mw.Event) (mw.Decision, error) {
	if e == nil || e.Name != mw.EventBeforeLLMRequest {
		return mw.Decision{}, nil
	}

	// Copy params so downstream can mutate safely.
	params := &mw.LLMParams{}
	if e.Params != nil {
		*params = *e.Params
	}
	changed := false

	if params.Temperature == 0 && b.Temperature > 0 {
		params.Temperature = b.Temperature
		changed = true
	}

	budget := b.MaxTokens
	if v, ok := e.Context["token_budget"].(int); ok && v > 0 && (budget == 0 || v < budget) {
		budget = v
	}
	if budget > 0 && (params.MaxTokens == 0 || params.MaxTokens > budget) {
		params.MaxTokens = budget
		changed = true
	}

	if !changed {
		return mw.Decision{}, nil
	}
	return mw.Decision{
		OverrideParams: params,
		Reason:         "token_budget: applied generation limits",
	}, nil
}
