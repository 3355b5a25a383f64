package middleware

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Chain executes middlewares in descending Priority() order.
// If priorities are equal, registration order is preserved.
type Chain struct {
	mu  sync.RWMutex
	mws []Middleware

	debugMu sync.Mutex
	debug   *slog.Logger
}

type DecisionResult struct {
	MiddlewareID string
	Priority     int
	Decision     Decision
}

func NewChain(mws ...Middleware) *Chain {
	c := &Chain{}
	for _, mw := range mws {
		c.Use(mw)
	}
	return c
}

// SetDebugLogger enables per-middleware decision records. A nil logger
// disables them.
func (c *Chain) SetDebugLogger(l *slog.Logger) {
	c.debugMu.Lock()
	defer c.debugMu.Unlock()
	c.debug = l
}

func (c *Chain) Use(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mws = append(c.mws, mw)
	sort.SliceStable(c.mws, func(i, j int) bool {
		return c.mws[i].Priority() > c.mws[j].Priority()
	})
}

func (c *Chain) List() []Middleware {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Middleware, len(c.mws))
	copy(out, c.mws)
	return out
}

// Dispatch runs all middlewares for the given event, stopping early if a
// middleware returns Decision.Cancel. Decisions are applied to e as they come
// in, so later middlewares see earlier rewrites.
func (c *Chain) Dispatch(ctx context.Context, e *Event) ([]DecisionResult, error) {
	mws := c.List()

	results := make([]DecisionResult, 0, len(mws))
	for _, mw := range mws {
		before := eventText(e)
		if cmw, ok := mw.(ConditionalMiddleware); ok && !cmw.ShouldLoad(ctx, e) {
			dec := Decision{Reason: "skipped (ShouldLoad=false)"}
			c.record(e, mw, true, before, before, dec)
			results = append(results, DecisionResult{MiddlewareID: mw.ID(), Priority: mw.Priority(), Decision: dec})
			continue
		}

		dec, err := mw.OnEvent(ctx, e)
		if err != nil {
			c.record(e, mw, false, before, eventText(e), Decision{Reason: err.Error(), Cancel: true})
			return nil, err
		}

		applyDecisionToEvent(e, dec)
		c.record(e, mw, false, before, eventText(e), dec)

		results = append(results, DecisionResult{MiddlewareID: mw.ID(), Priority: mw.Priority(), Decision: dec})
		if dec.Cancel {
			break
		}
	}
	return results, nil
}

// Run dispatches e and folds the results: it returns the event text after
// all rewrites and, if some middleware canceled, that decision.
func (c *Chain) Run(ctx context.Context, e *Event) (string, *Decision, error) {
	results, err := c.Dispatch(ctx, e)
	if err != nil {
		return "", nil, err
	}
	text := strings.TrimSpace(eventText(e))
	for _, r := range results {
		if r.Decision.Cancel {
			dec := r.Decision
			return text, &dec, nil
		}
	}
	return text, nil, nil
}

func eventText(e *Event) string {
	if e == nil {
		return ""
	}
	switch e.Name {
	case EventBeforeLLMRequest:
		return e.UserText
	case EventAfterLLMResponse:
		return e.LLMText
	default:
		return ""
	}
}

func applyDecisionToEvent(e *Event, dec Decision) {
	if e == nil {
		return
	}
	if dec.OverrideParams != nil {
		e.Params = dec.OverrideParams
	}
	if dec.ReplaceText == nil {
		return
	}
	switch e.Name {
	case EventBeforeLLMRequest:
		e.UserText = *dec.ReplaceText
	case EventAfterLLMResponse:
		e.LLMText = *dec.ReplaceText
	}
}
