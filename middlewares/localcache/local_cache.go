package localcache

import (
	"context"
	"strings"
	"sync"
	"time"

	mw "chatbridge/internal/middleware"
)

const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	response  string
	timestamp time.Time
}

// LocalCache skips the LLM if the exact question was answered recently in
// the same conversation.
type LocalCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	cache map[string]cacheEntry
}

func New(ttl time.Duration) *LocalCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LocalCache{
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cacheEntry),
	}
}

func (l *LocalCache) ID() string {
	return "local-cache"
}

func (l *LocalCache) Priority() int {
	// Run after token_budget (90) but before the LLM call.
	return 80
}

func key(e *mw.Event) string {
	return e.ConversationID + "\x00" + strings.TrimSpace(e.UserText)
}

func (l *LocalCache) OnEvent(_ context.Context, e *mw.Event) (mw.Decision, error) {
	if e == nil {
		return mw.Decision{}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Name {
	case mw.EventBeforeLLMRequest:
		k := key(e)
		entry, ok := l.cache[k]
		if !ok {
			return mw.Decision{}, nil
		}
		if l.now().Sub(entry.timestamp) >= l.ttl {
			delete(l.cache, k)
			return mw.Decision{}, nil
		}
		reply := entry.response
		return mw.Decision{
			Cancel:      true,
			ReplaceText: &reply,
			Reason:      "served from local cache",
		}, nil
	case mw.EventAfterLLMResponse:
		if strings.TrimSpace(e.UserText) != "" && e.LLMText != "" {
			l.cache[key(e)] = cacheEntry{
				response:  e.LLMText,
				timestamp: l.now(),
			}
		}
		l.evictExpiredLocked()
	}

	return mw.Decision{}, nil
}

func (l *LocalCache) evictExpiredLocked() {
	now := l.now()
	for k, entry := range l.cache {
		if now.Sub(entry.timestamp) >= l.ttl {
			delete(l.cache, k)
		}
	}
}
