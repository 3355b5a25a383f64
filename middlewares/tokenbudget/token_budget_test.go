package tokenbudget

import (
	"context"
	"testing"

	mw "chatbridge/internal/middleware"
)

func TestBudgetLimiterAppliesDefaults(t *testing.T) {
	b := New(3000, 0.7)
	dec, err := b.OnEvent(context.Background(), &mw.Event{Name: mw.EventBeforeLLMRequest, UserText: "hi"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if dec.OverrideParams == nil {
		t.Fatalf("expected params override")
	}
	if dec.OverrideParams.MaxTokens != 3000 || dec.OverrideParams.Temperature != 0.7 {
		t.Fatalf("unexpected params %+v", dec.OverrideParams)
	}
}

func TestBudgetLimiterPrefersSmallerContextBudget(t *testing.T) {
	b := New(3000, 0)
	e := &mw.Event{
		Name:    mw.EventBeforeLLMRequest,
		Params:  &mw.LLMParams{MaxTokens: 2000, Temperature: 0.2},
		Context: map[string]any{"token_budget": 500},
	}
	dec, err := b.OnEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if dec.OverrideParams == nil || dec.OverrideParams.MaxTokens != 500 {
		t.Fatalf("expected MaxTokens 500, got %+v", dec.OverrideParams)
	}
	if dec.OverrideParams.Temperature != 0.2 {
		t.Fatalf("expected caller temperature to survive, got %v", dec.OverrideParams.Temperature)
	}
	if e.Params.MaxTokens != 2000 {
		t.Fatalf("original params must not be mutated")
	}
}

func TestBudgetLimiterIgnoresOtherEvents(t *testing.T) {
	dec, err := New(10, 1).OnEvent(context.Background(), &mw.Event{Name: mw.EventAfterLLMResponse})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if dec.OverrideParams != nil {
		t.Fatalf("expected no-op")
	}
}
