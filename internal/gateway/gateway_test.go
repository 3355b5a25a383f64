package gateway

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatbridge/internal/chat"
	"chatbridge/internal/config"
	"chatbridge/internal/history"
	"chatbridge/internal/middleware"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAdapter struct {
	calls int
}

func (e *echoAdapter) Generate(_ context.Context, prompt string, _ *middleware.LLMParams) (string, error) {
	e.calls++
	if strings.Contains(prompt, "图片描述：") {
		return "https://image.pollinations.ai/prompt/cat", nil
	}
	return "pong", nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.History.File = filepath.Join(t.TempDir(), history.DefaultFile)
	cfg.Bot.Name = "Bot"
	return cfg
}

func TestNewBuildsWorkingApp(t *testing.T) {
	cfg := testConfig(t)
	app, err := New(cfg, WithAdapter(&echoAdapter{}))
	require.NoError(t, err)

	reply, err := app.Service.Handle(context.Background(), chatInbound("g1", "u1", "ping"))
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Text)
	require.NoError(t, app.Close())

	data, err := os.ReadFile(cfg.History.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"author_id": "Bot"`)
	assert.Equal(t, 2.0, testutil.ToFloat64(app.Metrics.MessagesAdded))
}

func TestNewSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	cfg.History.File = filepath.Join(t.TempDir(), "history.db")

	app, err := New(cfg, WithAdapter(&echoAdapter{}))
	require.NoError(t, err)
	_, err = app.Service.Handle(context.Background(), chatInbound("g1", "u1", "ping"))
	require.NoError(t, err)
	require.NoError(t, app.Close())

	reopened, err := OpenCache(cfg)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.Cache.Len("g1"))
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "redis"
	_, err := New(cfg, WithAdapter(&echoAdapter{}))
	assert.Error(t, err)
}

func TestNewWritesMiddlewareDebugLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Middleware.DebugLog = filepath.Join(t.TempDir(), "bin", "middleware.debug.jsonl")

	app, err := New(cfg, WithAdapter(&echoAdapter{}))
	require.NoError(t, err)
	_, err = app.Service.Handle(context.Background(), chatInbound("g1", "u1", "ping"))
	require.NoError(t, err)
	require.NoError(t, app.Close())

	data, err := os.ReadFile(cfg.Middleware.DebugLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token_budget")
}

func TestLocalCacheOffByDefault(t *testing.T) {
	ctx := context.Background()

	adapter := &echoAdapter{}
	app, err := New(testConfig(t), WithAdapter(adapter))
	require.NoError(t, err)
	defer app.Close()
	for range 2 {
		_, err := app.Service.Handle(ctx, chatInbound("g1", "u1", "哈哈"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, adapter.calls)

	cfg := testConfig(t)
	cfg.Middleware.Disabled = nil
	cached := &echoAdapter{}
	withCache, err := New(cfg, WithAdapter(cached))
	require.NoError(t, err)
	defer withCache.Close()
	for range 2 {
		_, err := withCache.Service.Handle(ctx, chatInbound("g1", "u1", "哈哈"))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, cached.calls)
}

func TestRunREPL(t *testing.T) {
	cfg := testConfig(t)
	adapter := &echoAdapter{}
	app, err := New(cfg, WithAdapter(adapter), WithClock(func() time.Time { return time.Unix(0, 0).UTC() }))
	require.NoError(t, err)
	defer app.Close()

	in := strings.NewReader("ping\n\n/draw a cat\n/history\n/exit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, app.Run(context.Background(), in, &out, "local", "me"))

	text := out.String()
	assert.Contains(t, text, "pong")
	assert.Contains(t, text, "画图结果\nhttps://image.pollinations.ai/prompt/cat")
	assert.Contains(t, text, "[1970-01-01T00:00:00Z] me: ping")
	assert.NotContains(t, text, "ignored")
	assert.Equal(t, 2, adapter.calls)
}

func TestServeMetricsDisabled(t *testing.T) {
	app := &App{Config: config.DefaultConfig()}
	assert.NoError(t, app.ServeMetrics(context.Background()))
}

func chatInbound(conv, author, text string) chat.Inbound {
	return chat.Inbound{ConversationID: conv, AuthorID: author, Text: text}
}
