package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

type testMW struct {
	id       string
	priority int
	cancel   bool
	seen     *[]string
}

func (m testMW) ID() string    { return m.id }
func (m testMW) Priority() int { return m.priority }
func (m testMW) OnEvent(_ context.Context, _ *Event) (Decision, error) {
	*m.seen = append(*m.seen, m.id)
	return Decision{Cancel: m.cancel}, nil
}

type conditionalTestMW struct {
	testMW
	enabled bool
}

func (m conditionalTestMW) ShouldLoad(_ context.Context, _ *Event) bool { return m.enabled }

func TestChainPriorityAndCancel(t *testing.T) {
	seen := []string{}
	c := NewChain(
		testMW{id: "low", priority: 1, seen: &seen},
		testMW{id: "high", priority: 10, cancel: true, seen: &seen},
		testMW{id: "mid", priority: 5, seen: &seen},
	)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "high" {
		t.Fatalf("expected only high to run (cancel), got %v", seen)
	}
}

func TestChainConditionalMiddlewareSkip(t *testing.T) {
	seen := []string{}
	c := NewChain(
		conditionalTestMW{testMW: testMW{id: "off", priority: 10, seen: &seen}, enabled: false},
		conditionalTestMW{testMW: testMW{id: "on", priority: 5, seen: &seen}, enabled: true},
	)

	results, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := join(seen); got != "on" {
		t.Fatalf("expected only enabled middleware to run, got %s", got)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for both middlewares, got %d", len(results))
	}
	if results[0].MiddlewareID != "off" || results[0].Decision.Reason == "" {
		t.Fatalf("expected first result to be skipped middleware with a reason, got %+v", results[0])
	}
}

func TestChainStableOrderOnEqualPriority(t *testing.T) {
	seen := []string{}
	c := NewChain(
		testMW{id: "a", priority: 5, seen: &seen},
		testMW{id: "b", priority: 5, seen: &seen},
		testMW{id: "c", priority: 5, seen: &seen},
	)

	_, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := join(seen); got != "a,b,c" {
		t.Fatalf("expected stable registration order, got %s", got)
	}
}

func join(in []string) string {
	if len(in) == 0 {
		return ""
	}
	out := in[0]
	for i := 1; i < len(in); i++ {
		out += "," + in[i]
	}
	return out
}

type rewriteMW struct {
	id       string
	priority int
	text     string
	cancel   bool
}

func (m rewriteMW) ID() string    { return m.id }
func (m rewriteMW) Priority() int { return m.priority }
func (m rewriteMW) OnEvent(_ context.Context, _ *Event) (Decision, error) {
	t := m.text
	return Decision{ReplaceText: &t, Cancel: m.cancel, Reason: m.id}, nil
}

func TestChainRunFoldsRewrites(t *testing.T) {
	c := NewChain(
		rewriteMW{id: "first", priority: 10, text: "  rewritten  "},
	)
	e := &Event{Name: EventBeforeLLMRequest, UserText: "original"}
	text, canceled, err := c.Run(context.Background(), e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canceled != nil {
		t.Fatalf("expected no cancel, got %+v", canceled)
	}
	if text != "rewritten" {
		t.Fatalf("expected trimmed rewrite, got %q", text)
	}
	if e.UserText != "  rewritten  " {
		t.Fatalf("expected event to carry the rewrite, got %q", e.UserText)
	}
}

func TestChainRunReportsCancel(t *testing.T) {
	c := NewChain(
		rewriteMW{id: "short-circuit", priority: 10, text: "cached answer", cancel: true},
		rewriteMW{id: "never", priority: 1, text: "nope"},
	)
	text, canceled, err := c.Run(context.Background(), &Event{Name: EventAfterLLMResponse, LLMText: "model"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if canceled == nil || canceled.Reason != "short-circuit" {
		t.Fatalf("expected cancel decision, got %+v", canceled)
	}
	if text != "cached answer" {
		t.Fatalf("expected cached answer, got %q", text)
	}
}

func TestBuildDropsDisabled(t *testing.T) {
	seen := []string{}
	c := Build(nil, []string{" b "},
		testMW{id: "a", priority: 5, seen: &seen},
		testMW{id: "b", priority: 5, seen: &seen},
	)
	if c == nil {
		t.Fatalf("expected chain")
	}
	if got := len(c.List()); got != 1 {
		t.Fatalf("expected 1 middleware, got %d", got)
	}
	if Build(nil, []string{"a"}, testMW{id: "a", seen: &seen}) != nil {
		t.Fatalf("expected nil chain when everything is disabled")
	}
}

func TestChainDebugLogger(t *testing.T) {
	var buf bytes.Buffer
	seen := []string{}
	c := NewChain(testMW{id: "a", priority: 1, seen: &seen})
	c.SetDebugLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	if _, err := c.Dispatch(context.Background(), &Event{Name: EventBeforeLLMRequest, ConversationID: "g1", UserText: "hello there"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"middleware":"a"`) || !strings.Contains(out, `"conversation":"g1"`) {
		t.Fatalf("expected decision record, got %s", out)
	}
}

func TestEstimateTokens(t *testing.T) {
	if estimateTokens("") != 0 {
		t.Fatalf("expected 0 for empty string")
	}
	if got := estimateTokens("hello world"); got != 3 {
		t.Fatalf("expected chars/4 floor of 3, got %d", got)
	}
}
