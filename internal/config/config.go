package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"WebhookChat/internal/dialogue"
	"WebhookChat/internal/render"
	"WebhookChat/internal/widget"
)

// EnvPrefix prefixes every environment variable read into Config
const EnvPrefix = "WEBHOOKCHAT_"

// Config holds application configuration
type Config struct {
	WebhookURL     string        `toml:"webhook_url" env:"WEBHOOK_URL"`
	SenderID       string        `toml:"sender_id" env:"SENDER_ID"`
	RequestTimeout time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`

	Greeting             string        `toml:"greeting" env:"GREETING"`
	GreetingDelay        time.Duration `toml:"greeting_delay" env:"GREETING_DELAY"`
	StaggerDelay         time.Duration `toml:"stagger_delay" env:"STAGGER_DELAY"`
	ScrollSettle         time.Duration `toml:"scroll_settle" env:"SCROLL_SETTLE"`
	SerializeSubmissions bool          `toml:"serialize_submissions" env:"SERIALIZE_SUBMISSIONS"`
	TimeLayout           string        `toml:"time_layout" env:"TIME_LAYOUT"`

	ListenAddr string `toml:"listen_addr" env:"LISTEN_ADDR"`

	LogDir     string `toml:"log_dir" env:"LOG_DIR"`
	DeliveryDB string `toml:"delivery_db" env:"DELIVERY_DB"` // empty disables the delivery log
	Telemetry  bool   `toml:"telemetry" env:"TELEMETRY"`
	Debug      bool   `toml:"debug" env:"DEBUG"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	opts := widget.DefaultOptions()
	return &Config{
		WebhookURL:           dialogue.DefaultWebhookURL,
		SenderID:             "user",
		RequestTimeout:       30 * time.Second,
		Greeting:             opts.Greeting,
		GreetingDelay:        opts.GreetingDelay,
		StaggerDelay:         opts.StaggerDelay,
		ScrollSettle:         opts.ScrollSettle,
		SerializeSubmissions: opts.Serialize,
		TimeLayout:           render.DefaultTimeLayout,
		ListenAddr:           "127.0.0.1:8080",
		LogDir:               "logs",
		DeliveryDB:           "webhookchat.db",
		Telemetry:            true,
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path, a .env file in the working directory and WEBHOOKCHAT_* environment
// variables, in that order. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail late
func (c *Config) Validate() error {
	u, err := url.Parse(c.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid webhook url %q", c.WebhookURL)
	}
	if strings.TrimSpace(c.SenderID) == "" {
		return errors.New("sender id must not be empty")
	}
	for name, d := range map[string]time.Duration{
		"greeting_delay": c.GreetingDelay,
		"stagger_delay":  c.StaggerDelay,
		"scroll_settle":  c.ScrollSettle,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if strings.TrimSpace(c.TimeLayout) == "" {
		return errors.New("time_layout must not be empty")
	}
	return nil
}

// WidgetOptions returns the widget options for one widget instance
func (c *Config) WidgetOptions(sessionID string) widget.Options {
	return widget.Options{
		SessionID:     sessionID,
		Greeting:      c.Greeting,
		GreetingDelay: c.GreetingDelay,
		StaggerDelay:  c.StaggerDelay,
		ScrollSettle:  c.ScrollSettle,
		Serialize:     c.SerializeSubmissions,
	}
}
