package middleware

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"unicode/utf8"
)

// tokenish matches "word-like" chunks (including dotted/slashed technical tokens),
// otherwise falls back to single non-space characters.
var tokenish = regexp.MustCompile(`[\pL\pN]+(?:[._/\\-][\pL\pN]+)*|[^\s]`)

// estimateTokens counts token-ish chunks, floored by a chars/4 heuristic so
// tiny punctuation-heavy strings don't look too cheap.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	chunks := len(tokenish.FindAllString(s, -1))
	charHeuristic := int(math.Ceil(float64(utf8.RuneCountInString(s)) / 4.0))
	if chunks < charHeuristic {
		return charHeuristic
	}
	return chunks
}

func (c *Chain) record(e *Event, mw Middleware, skipped bool, inText, outText string, dec Decision) {
	c.debugMu.Lock()
	l := c.debug
	c.debugMu.Unlock()
	if l == nil || e == nil {
		return
	}

	inTok := estimateTokens(inText)
	outTok := estimateTokens(outText)
	attrs := []slog.Attr{
		slog.String("event", string(e.Name)),
		slog.String("conversation", e.ConversationID),
		slog.String("middleware", mw.ID()),
		slog.Int("priority", mw.Priority()),
		slog.Int("in_chars", utf8.RuneCountInString(inText)),
		slog.Int("out_chars", utf8.RuneCountInString(outText)),
		slog.Int("in_tokens_est", inTok),
		slog.Int("out_tokens_est", outTok),
		slog.Int("saved_tokens_est", inTok-outTok),
	}
	if skipped {
		attrs = append(attrs, slog.Bool("skipped", true))
	}
	if dec.Cancel {
		attrs = append(attrs, slog.Bool("cancel", true))
	}
	if dec.Reason != "" {
		attrs = append(attrs, slog.String("reason", dec.Reason))
	}
	l.LogAttrs(context.Background(), slog.LevelInfo, "middleware decision", attrs...)
}
