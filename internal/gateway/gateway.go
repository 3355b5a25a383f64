// Package gateway wires configuration into a running application: the
// history store and cache, the model adapter, the middleware chain and the
// chat service.
package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chatbridge/internal/chat"
	"chatbridge/internal/config"
	"chatbridge/internal/history"
	"chatbridge/internal/llm"
	"chatbridge/internal/middleware"
	"chatbridge/internal/observability"
	"chatbridge/internal/prompt"
	"chatbridge/middlewares/localcache"
	"chatbridge/middlewares/tokenbudget"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is the application context built once at startup.
type App struct {
	Config   *config.Config
	Cache    *history.Cache
	Service  *chat.Service
	Metrics  *history.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger

	closers []func() error
}

type Option func(*appOptions)

type appOptions struct {
	adapter chat.Adapter
	clock   func() time.Time
}

// WithAdapter replaces the configured model provider.
func WithAdapter(a chat.Adapter) Option {
	return func(o *appOptions) { o.adapter = a }
}

func WithClock(now func() time.Time) Option {
	return func(o *appOptions) { o.clock = now }
}

// New builds the application from cfg. Callers must Close the App.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Logger:   observability.Logger(),
	}
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = history.NewMetrics(app.Registry)

	cache, err := app.openCache()
	if err != nil {
		return nil, err
	}
	app.Cache = cache

	adapter := o.adapter
	if adapter == nil {
		adapter, err = llm.NewAdapter(llm.Options{
			Provider: llm.Provider(cfg.LLM.Provider),
			Model:    cfg.LLM.Model,
			BaseURL:  cfg.LLM.BaseURL,
			APIKey:   cfg.LLM.APIKey,
		})
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to initialize adapter: %w", err)
		}
	}

	chain, err := app.buildChain()
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	svcOpts := []chat.ServiceOption{
		chat.WithBotID(cfg.Bot.Name),
		chat.WithLogger(observability.WithComponent("chat")),
	}
	if chain != nil {
		svcOpts = append(svcOpts, chat.WithMiddlewareChain(chain))
	}
	if o.clock != nil {
		svcOpts = append(svcOpts, chat.WithClock(o.clock))
	}
	app.Service = chat.NewService(adapter, cache, prompt.New(cfg.Bot.Character, cfg.Bot.Name), svcOpts...)
	return app, nil
}

// OpenCache loads the history cache alone, for read-only tools.
func OpenCache(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, Logger: observability.Logger()}
	cache, err := app.openCache()
	if err != nil {
		return nil, err
	}
	app.Cache = cache
	return app, nil
}

func (a *App) openCache() (*history.Cache, error) {
	cfg := a.Config
	policy, err := history.ParsePersistPolicy(cfg.History.Persist)
	if err != nil {
		return nil, err
	}

	var store history.Store
	switch cfg.Store.Backend {
	case "", "json":
		store = history.NewJSONFileStore(cfg.History.File)
	case "sqlite":
		path := cfg.History.File
		if path == history.DefaultFile {
			path = strings.TrimSuffix(path, ".json") + ".db"
		}
		s := history.NewSQLiteStore(path)
		a.closers = append(a.closers, s.Close)
		store = s
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	cache := history.New(store,
		history.WithMaxSize(cfg.History.MaxSize),
		history.WithPersistPolicy(policy, cfg.History.FlushInterval),
		history.WithLogger(observability.WithComponent("history")),
		history.WithMetrics(a.Metrics),
	)
	// Cache must flush before its store closes.
	a.closers = append([]func() error{cache.Close}, a.closers...)
	return cache, nil
}

func (a *App) buildChain() (*middleware.Chain, error) {
	cfg := a.Config
	var debug *slog.Logger
	if path := cfg.Middleware.DebugLog; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create middleware log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open middleware log file (%s): %w", path, err)
		}
		a.closers = append(a.closers, f.Close)
		debug = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return middleware.Build(debug, cfg.Middleware.Disabled,
		tokenbudget.New(cfg.LLM.MaxTokens, cfg.LLM.Temperature),
		localcache.New(cfg.Middleware.CacheTTL),
	), nil
}

// Close flushes the cache and releases the store and log files.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ServeMetrics exposes the registry on cfg.Metrics.Addr until ctx is
// canceled. It returns immediately when no address is configured.
func (a *App) ServeMetrics(ctx context.Context) error {
	addr := a.Config.Metrics.Addr
	if addr == "" || a.Registry == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Run is a local REPL speaking as author in the given conversation. Lines
// starting with /draw ask for an image; /history prints the cached messages.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer, conversationID, author string) error {
	fmt.Fprintf(out, "chatbridge chat (conversation=%s, provider=%s)\n", conversationID, a.Config.LLM.Provider)
	fmt.Fprintln(out, "Type /exit to quit, /draw <description> for an image, /history to show the cache.")

	timeout := a.Config.LLM.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch {
		case input == "/exit" || input == "exit" || input == "quit":
			return nil
		case input == "/history":
			for _, m := range a.Service.History(conversationID, 0) {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp, m.AuthorID, m.Content)
			}
			continue
		}

		msg := chat.Inbound{ConversationID: conversationID, AuthorID: author}
		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		var (
			reply chat.Reply
			err   error
		)
		if desc, ok := strings.CutPrefix(input, "/draw"); ok {
			msg.Text = desc
			reply, err = a.Service.Draw(turnCtx, msg)
		} else {
			msg.Text = input
			reply, err = a.Service.Handle(turnCtx, msg)
		}
		cancel()
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintln(out, reply.Text)
		if reply.ImageURL != "" {
			fmt.Fprintln(out, reply.ImageURL)
		}
	}
}
