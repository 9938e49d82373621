// Package config loads relay and client settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Relay configures the development relay.
type Relay struct {
	Port      string  `env:"CHAT_RELAY_PORT" envDefault:"8080"`
	DBPath    string  `env:"CHAT_RELAY_DB_PATH" envDefault:"data/chat.db"`
	SendRPS   float64 `env:"CHAT_RELAY_SEND_RPS" envDefault:"5"`
	SendBurst int     `env:"CHAT_RELAY_SEND_BURST" envDefault:"10"`
	LogLevel  string  `env:"CHAT_LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"CHAT_RELAY_ALLOWED_ORIGINS" envSeparator:","`
}

// Client configures the terminal client.
type Client struct {
	ServerURL         string        `env:"CHATSYNC_SERVER_URL" envDefault:"http://localhost:8080"`
	UserID            string        `env:"CHATSYNC_USER_ID"`
	UserName          string        `env:"CHATSYNC_USER_NAME"`
	Token             string        `env:"CHATSYNC_TOKEN"`
	PageSize          int           `env:"CHATSYNC_PAGE_SIZE" envDefault:"100"`
	TypingWindow      time.Duration `env:"CHATSYNC_TYPING_WINDOW" envDefault:"3s"`
	TypingDebounce    time.Duration `env:"CHATSYNC_TYPING_DEBOUNCE" envDefault:"1s"`
	ReconnectAttempts int           `env:"CHATSYNC_RECONNECT_ATTEMPTS" envDefault:"5"`
	ReconnectDelay    time.Duration `env:"CHATSYNC_RECONNECT_DELAY" envDefault:"1s"`
	ReconnectMaxDelay time.Duration `env:"CHATSYNC_RECONNECT_MAX_DELAY" envDefault:"5s"`
	LogLevel          string        `env:"CHAT_LOG_LEVEL" envDefault:"warn"`
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadRelay parses the relay configuration.
func LoadRelay() (Relay, error) {
	var cfg Relay
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.SendRPS <= 0 {
		return cfg, fmt.Errorf("CHAT_RELAY_SEND_RPS must be positive, got %v", cfg.SendRPS)
	}
	if cfg.SendBurst < 1 {
		return cfg, fmt.Errorf("CHAT_RELAY_SEND_BURST must be at least 1, got %d", cfg.SendBurst)
	}
	return cfg, nil
}

// LoadClient parses the client configuration.
func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports settings the client cannot run with.
func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServerURL) == "" {
		errs = append(errs, errors.New("server url is required"))
	}
	if strings.TrimSpace(c.UserID) == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if c.PageSize < 1 {
		errs = append(errs, fmt.Errorf("page size must be at least 1, got %d", c.PageSize))
	}
	if c.TypingWindow <= 0 || c.TypingDebounce <= 0 {
		errs = append(errs, errors.New("typing window and debounce must be positive"))
	}
	if c.ReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect attempts must not be negative, got %d", c.ReconnectAttempts))
	}
	return errors.Join(errs...)
}

// WebSocketURL derives the relay's WebSocket endpoint from ServerURL.
func (c Client) WebSocketURL() string {
	u := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/ws"
}

// ParseLevel maps a level name to a slog level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds a text logger, or a JSON logger when json is set.
func NewLogger(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
