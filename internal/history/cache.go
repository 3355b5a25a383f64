// Package history keeps a bounded, ordered message history per conversation
// and persists the whole mapping through a Store.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSize is the per-conversation bound used when none is given.
const DefaultMaxSize = 20

// PersistPolicy controls when the cache writes its snapshot.
type PersistPolicy string

const (
	// PersistEveryWrite saves synchronously after every Add.
	PersistEveryWrite PersistPolicy = "every-write"
	// PersistInterval saves dirty state from a background ticker and on Close.
	PersistInterval PersistPolicy = "interval"
)

// ParsePersistPolicy validates a policy name. An empty name selects
// PersistEveryWrite.
func ParsePersistPolicy(s string) (PersistPolicy, error) {
	switch PersistPolicy(s) {
	case "", PersistEveryWrite:
		return PersistEveryWrite, nil
	case PersistInterval:
		return PersistInterval, nil
	default:
		return "", fmt.Errorf("unknown persist policy %q", s)
	}
}

// Cache maps conversation ids to bounded histories. All methods are safe for
// concurrent use; Add holds the lock across append, eviction and persist.
type Cache struct {
	mu      sync.RWMutex
	convs   map[string][]Message
	maxSize int
	dirty   bool
	// stopped is set by Close; later writes persist synchronously.
	stopped bool

	store    Store
	policy   PersistPolicy
	interval time.Duration
	logger   *slog.Logger
	metrics  *Metrics

	stop    chan struct{}
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

type Option func(*Cache)

func WithMaxSize(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

func WithPersistPolicy(p PersistPolicy, interval time.Duration) Option {
	return func(c *Cache) {
		c.policy = p
		if interval > 0 {
			c.interval = interval
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New builds a cache backed by store and loads the stored snapshot. Load
// failures are logged and leave the cache empty.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		convs:    make(map[string][]Message),
		maxSize:  DefaultMaxSize,
		store:    store,
		policy:   PersistEveryWrite,
		interval: 5 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.load()

	if c.policy == PersistInterval && c.store != nil {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		go c.flushLoop()
	}
	return c
}

func (c *Cache) MaxSize() int { return c.maxSize }

func (c *Cache) load() {
	if c.store == nil {
		return
	}
	snap, err := c.store.Load()
	switch {
	case errors.Is(err, ErrNotExist):
		c.logger.Info("no stored history, starting empty")
		return
	case err != nil:
		c.logger.Error("failed to load history, starting empty", "error", err)
		return
	}

	convs := make(map[string][]Message, len(snap))
	total := 0
	for id, msgs := range snap {
		if len(msgs) > c.maxSize {
			msgs = msgs[len(msgs)-c.maxSize:]
		}
		h := make([]Message, len(msgs))
		for i, m := range msgs {
			h[i] = m.clone()
			if h[i].ConversationID == "" {
				h[i].ConversationID = id
			}
		}
		convs[id] = h
		total += len(h)
	}
	c.convs = convs
	c.metrics.conversations(len(convs))
	c.logger.Info("loaded history", "conversations", len(convs), "messages", total)
}

// Add appends msg to the conversation's history, dropping the oldest entry
// once the bound is reached, then applies the persist policy. Persist errors
// are logged; the in-memory state is kept either way.
func (c *Cache) Add(conversationID string, msg Message) {
	msg = msg.clone()
	if msg.ConversationID == "" {
		msg.ConversationID = conversationID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.convs[conversationID]
	evicted := false
	if len(h) >= c.maxSize {
		copy(h, h[len(h)-c.maxSize+1:])
		h = h[:c.maxSize-1]
		evicted = true
	}
	c.convs[conversationID] = append(h, msg)
	c.dirty = true

	c.metrics.added(evicted)
	if !ok {
		c.metrics.conversations(len(c.convs))
	}

	if c.policy == PersistEveryWrite || c.stopped {
		_ = c.persistLocked()
	}
}

// Recent returns the conversation's messages oldest first. A positive count
// limits the result to the most recent count entries. Unknown conversations
// yield an empty result.
func (c *Cache) Recent(conversationID string, count int) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.convs[conversationID]
	if count > 0 && len(h) > count {
		h = h[len(h)-count:]
	}
	if len(h) == 0 {
		return nil
	}
	out := make([]Message, len(h))
	for i, m := range h {
		out[i] = m.clone()
	}
	return out
}

func (c *Cache) Len(conversationID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.convs[conversationID])
}

// Conversations returns the known conversation ids in sorted order.
func (c *Cache) Conversations() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.convs))
	for id := range c.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of every history.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() Snapshot {
	snap := make(Snapshot, len(c.convs))
	for id, h := range c.convs {
		cp := make([]Message, len(h))
		for i, m := range h {
			cp[i] = m.clone()
		}
		snap[id] = cp
	}
	return snap
}

// Flush saves the current snapshot regardless of policy.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked()
}

func (c *Cache) persistLocked() error {
	if c.store == nil {
		return nil
	}
	start := time.Now()
	err := c.store.Save(c.snapshotLocked())
	c.metrics.persisted(time.Since(start), err)
	if err != nil {
		c.logger.Error("failed to persist history", "error", err)
		return err
	}
	c.dirty = false
	return nil
}

func (c *Cache) flushLoop() {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.dirty {
				_ = c.persistLocked()
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the background flusher, if any, and writes pending changes.
func (c *Cache) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	if c.stop != nil {
		close(c.stop)
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if !c.dirty {
		return nil
	}
	return c.persistLocked()
}
