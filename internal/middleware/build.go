package middleware

import (
	"log/slog"
	"strings"
)

// Without drops the middlewares whose IDs appear in disabled.
func Without(disabled []string, mws ...Middleware) []Middleware {
	if len(disabled) == 0 {
		return mws
	}
	disabledSet := make(map[string]struct{}, len(disabled))
	for _, id := range disabled {
		disabledSet[strings.TrimSpace(id)] = struct{}{}
	}

	filtered := make([]Middleware, 0, len(mws))
	for _, mw := range mws {
		if _, ok := disabledSet[mw.ID()]; !ok {
			filtered = append(filtered, mw)
		}
	}
	return filtered
}

// Build creates a chain from mws minus the disabled IDs. It returns nil when
// nothing is left.
func Build(debug *slog.Logger, disabled []string, mws ...Middleware) *Chain {
	mws = Without(disabled, mws...)
	if len(mws) == 0 {
		return nil
	}
	c := NewChain(mws...)
	if debug != nil {
		c.SetDebugLogger(debug)
	}
	return c
}
