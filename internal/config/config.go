package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds client connection settings, read from the environment.
type Config struct {
	Host      string `env:"TTT_HOST" envDefault:"127.0.0.1"`
	Port      int    `env:"TTT_PORT" envDefault:"7350"`
	ServerKey string `env:"TTT_SERVER_KEY" envDefault:"tictactoe-server-key"`
	UseSSL    bool   `env:"TTT_SSL" envDefault:"false"`

	// DataDir is where durable local settings (device id, nickname,
	// last match hint) are kept.
	DataDir string `env:"TTT_DATA_DIR" envDefault:"."`

	RequestTimeout time.Duration `env:"TTT_REQUEST_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"TTT_WRITE_TIMEOUT" envDefault:"5s"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &c, nil
}

// BaseURL returns the HTTP base URL of the backend.
func (c *Config) BaseURL() string {
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// SocketURL returns the realtime websocket URL for the given session
// token. The client always requests JSON-framed envelopes.
func (c *Config) SocketURL(token string) string {
	scheme := "ws"
	if c.UseSSL {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/ws?format=json&token=%s", scheme, c.Host, c.Port, url.QueryEscape(token))
}
