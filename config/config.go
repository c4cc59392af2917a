package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Every field can be set from the
// environment or a .env file in the working directory.
type Config struct {
	HTTPAddr   string   `env:"ARENA_HTTP_ADDR" envDefault:":8080"`
	UDPAddr    string   `env:"ARENA_UDP_ADDR" envDefault:":7777"`
	UDPEnabled bool     `env:"ARENA_UDP_ENABLED" envDefault:"true"`
	STUNURLs   []string `env:"ARENA_STUN_URLS" envSeparator:"," envDefault:"stun:stun.l.google.com:19302"`

	Tick           time.Duration `env:"ARENA_TICK" envDefault:"25ms"`
	NotifyInterval time.Duration `env:"ARENA_NOTIFY_INTERVAL" envDefault:"25ms"`
	Seed           uint64        `env:"ARENA_SEED" envDefault:"0"`

	// NegotiationTimeout closes peers that never open a data channel. 0 disables.
	NegotiationTimeout   time.Duration `env:"ARENA_NEGOTIATION_TIMEOUT" envDefault:"30s"`
	MaxMessagesPerSecond int           `env:"ARENA_MAX_MESSAGES_PER_SECOND" envDefault:"40"`
	UDPIdleTimeout       time.Duration `env:"ARENA_UDP_IDLE_TIMEOUT" envDefault:"15s"`
	UDPMaxPeers          int           `env:"ARENA_UDP_MAX_PEERS" envDefault:"256"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"text"`
	OTELEndpoint string `env:"ARENA_OTEL_ENDPOINT"`
}

// Load reads .env (if present) and then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse reads Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("ARENA_TICK must be > 0, got %s", c.Tick)
	}
	if c.NotifyInterval <= 0 {
		return fmt.Errorf("ARENA_NOTIFY_INTERVAL must be > 0, got %s", c.NotifyInterval)
	}
	if c.NegotiationTimeout < 0 {
		return fmt.Errorf("ARENA_NEGOTIATION_TIMEOUT must be >= 0, got %s", c.NegotiationTimeout)
	}
	if c.MaxMessagesPerSecond <= 0 {
		return fmt.Errorf("ARENA_MAX_MESSAGES_PER_SECOND must be > 0, got %d", c.MaxMessagesPerSecond)
	}
	if c.UDPMaxPeers <= 0 {
		return fmt.Errorf("ARENA_UDP_MAX_PEERS must be > 0, got %d", c.UDPMaxPeers)
	}
	return nil
}

func GetEnvVariable(v string) (string, error) {
	if v == "" {
		return "", fmt.Errorf("input param empty")
	}
	b := os.Getenv(v)
	if b == "" {
		return "", fmt.Errorf("failed to get variable for %s", v)
	}

	return b, nil
}
