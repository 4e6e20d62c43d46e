// Package config loads the chat client configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/peerchat/chat-client/internal/api"
	"github.com/peerchat/chat-client/internal/ws"
)

// Config holds all environment backed configuration.
type Config struct {
	// Backend
	APIBaseURL  string        `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8080"`
	WSURL       string        `env:"CHAT_WS_URL" envDefault:"ws://localhost:8080/ws/websocket"`
	HTTPTimeout time.Duration `env:"CHAT_HTTP_TIMEOUT" envDefault:"15s"`

	// Transport
	ReconnectDelay    time.Duration `env:"CHAT_RECONNECT_DELAY" envDefault:"5s"`
	DialTimeout       time.Duration `env:"CHAT_DIAL_TIMEOUT" envDefault:"10s"`
	HeartbeatOutgoing time.Duration `env:"CHAT_HEARTBEAT_OUTGOING" envDefault:"10s"`
	HeartbeatIncoming time.Duration `env:"CHAT_HEARTBEAT_INCOMING" envDefault:"10s"`

	// Session
	ProfileCacheSize   int    `env:"CHAT_PROFILE_CACHE_SIZE" envDefault:"256"`
	CredentialsProfile string `env:"CHAT_CREDENTIALS_PROFILE" envDefault:"default"`

	// Optional infrastructure; empty disables
	RedisAddr   string `env:"REDIS_ADDR"`
	NATSURL     string `env:"NATS_URL"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads optional .env files, then parses the environment. Variables
// already set in the environment win over file values.
func Load(envFiles ...string) (*Config, error) {
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("config: CHAT_WS_URL must be a ws:// or wss:// URL, got %q", c.WSURL)
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("config: CHAT_RECONNECT_DELAY must be positive")
	}
	if c.ProfileCacheSize <= 0 {
		return fmt.Errorf("config: CHAT_PROFILE_CACHE_SIZE must be positive")
	}
	return nil
}

// Transport returns the push connection settings.
func (c *Config) Transport() ws.Config {
	return ws.Config{
		URL:               c.WSURL,
		ReconnectDelay:    c.ReconnectDelay,
		DialTimeout:       c.DialTimeout,
		HeartbeatOutgoing: c.HeartbeatOutgoing,
		HeartbeatIncoming: c.HeartbeatIncoming,
	}
}

// API returns the REST client settings.
func (c *Config) API() api.Config {
	return api.Config{
		BaseURL: c.APIBaseURL,
		Timeout: c.HTTPTimeout,
	}
}
