// Package config loads chatbridge settings from defaults, an optional config
// file, a .env file and CHATBRIDGE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHATBRIDGE"

type Config struct {
	History    HistoryConfig    `mapstructure:"history"`
	Store      StoreConfig      `mapstructure:"store"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Bot        BotConfig        `mapstructure:"bot"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Log        LogConfig        `mapstructure:"log"`
	Web        WebConfig        `mapstructure:"web"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Middleware MiddlewareConfig `mapstructure:"middleware"`
}

type HistoryConfig struct {
	MaxSize       int           `mapstructure:"max_size"`
	File          string        `mapstructure:"file"`
	Persist       string        `mapstructure:"persist"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BotConfig struct {
	Name      string `mapstructure:"name"`
	Character string `mapstructure:"character"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type MiddlewareConfig struct {
	DebugLog string        `mapstructure:"debug_log"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Disabled []string      `mapstructure:"disabled"`
}

func DefaultConfig() *Config {
	return &Config{
		History: HistoryConfig{
			MaxSize:       20,
			File:          "message_cache.json",
			Persist:       "every-write",
			FlushInterval: 5 * time.Second,
		},
		Store: StoreConfig{Backend: "json"},
		LLM: LLMConfig{
			Provider:    "deepseek",
			Temperature: 0.7,
			MaxTokens:   3000,
			Timeout:     2 * time.Minute,
		},
		Bot: BotConfig{
			Name:      "chatbridge",
			Character: "一个热情、幽默、乐于助人的群聊伙伴。",
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Middleware: MiddlewareConfig{
			CacheTTL: 5 * time.Minute,
			// Replies from the local cache skip the history-aware prompt.
			Disabled: []string{"local-cache"},
		},
	}
}

// legacyEnv lists variable names accepted in addition to the prefixed ones.
var legacyEnv = map[string][]string{
	"telegram.token": {"TELEGRAM_BOT_TOKEN"},
	"llm.api_key":    {"DEEPSEEK_API_KEY"},
	"bot.name":       {"BOT_NAME"},
	"bot.character":  {"CHARACTER_INFO"},
}

// Load builds the configuration. path may name a config file explicitly;
// otherwise ./chatbridge.{yaml,json,toml} is used when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chatbridge")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("history.max_size", d.History.MaxSize)
	v.SetDefault("history.file", d.History.File)
	v.SetDefault("history.persist", d.History.Persist)
	v.SetDefault("history.flush_interval", d.History.FlushInterval)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("bot.name", d.Bot.Name)
	v.SetDefault("bot.character", d.Bot.Character)
	v.SetDefault("telegram.token", d.Telegram.Token)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("web.addr", d.Web.Addr)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("middleware.debug_log", d.Middleware.DebugLog)
	v.SetDefault("middleware.cache_ttl", d.Middleware.CacheTTL)
	v.SetDefault("middleware.disabled", d.Middleware.Disabled)
}

// Validate reports every invalid field at once.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.History.MaxSize <= 0 {
		errs = append(errs, fmt.Sprintf("history.max_size: must be positive, got %d", cfg.History.MaxSize))
	}
	if strings.TrimSpace(cfg.History.File) == "" {
		errs = append(errs, "history.file: must not be empty")
	}
	validPolicies := map[string]bool{"every-write": true, "interval": true, "": true}
	if !validPolicies[cfg.History.Persist] {
		errs = append(errs, fmt.Sprintf("history.persist: unsupported policy %q (supported: every-write, interval)", cfg.History.Persist))
	}
	if cfg.History.Persist == "interval" && cfg.History.FlushInterval <= 0 {
		errs = append(errs, "history.flush_interval: must be positive with the interval policy")
	}

	validBackends := map[string]bool{"json": true, "sqlite": true, "": true}
	if !validBackends[cfg.Store.Backend] {
		errs = append(errs, fmt.Sprintf("store.backend: unsupported backend %q (supported: json, sqlite)", cfg.Store.Backend))
	}

	validProviders := map[string]bool{"ollama": true, "deepseek": true, "openai": true, "anthropic": true, "gemini": true}
	if !validProviders[cfg.LLM.Provider] {
		errs = append(errs, fmt.Sprintf("llm.provider: unsupported provider %q", cfg.LLM.Provider))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("llm.temperature: must be between 0 and 2, got %f", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, "llm.max_tokens: must be non-negative")
	}

	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format: unsupported format %q (supported: text, json)", cfg.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
