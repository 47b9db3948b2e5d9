package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/pidr/go/internal/connectutil"
	"github.com/mcdev12/pidr/go/internal/game/gateway"
	"github.com/mcdev12/pidr/go/internal/game/orchestrator"
	"github.com/mcdev12/pidr/go/internal/game/outbox"
	"github.com/mcdev12/pidr/go/internal/room"
	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		LogLevel       string   `yaml:"log_level"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		JWTSecret      string   `yaml:"-"`
	} `yaml:"server"`

	Store string `yaml:"store"`

	Game      orchestrator.Config      `yaml:"game"`
	Room      room.Options             `yaml:"room"`
	BotSeed   int64                    `yaml:"bot_seed"`
	Limits    connectutil.LimitConfig  `yaml:"limits"`
	WebSocket gateway.ConnectionConfig `yaml:"websocket"`

	Redis struct {
		Addr      string        `yaml:"addr"`
		KeyPrefix string        `yaml:"key_prefix"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	JetStream outbox.JetStreamConfig          `yaml:"jetstream"`
	Consumer  gateway.JetStreamConsumerConfig `yaml:"consumer"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Store:     storeMemory,
		Limits:    connectutil.LimitConfig{RPS: 10, Burst: 20, Idle: 10 * time.Minute},
		WebSocket: gateway.DefaultConnectionConfig(),
		JetStream: outbox.DefaultJetStreamConfig(),
		Consumer:  gateway.DefaultJetStreamConsumerConfig(),
	}
	cfg.Server.Port = "8080"
	cfg.Server.LogLevel = "info"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Game.TurnTimeout = 30 * time.Second
	cfg.Game.BotDelay = 1500 * time.Millisecond
	cfg.JetStream.URL = ""
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads path over the defaults, then applies environment
// overrides. A missing file leaves the defaults in place.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Server.LogLevel = getEnv("LOG_LEVEL", config.Server.LogLevel)
	config.Server.JWTSecret = os.Getenv("JWT_SECRET")
	config.Store = getEnv("STORE", config.Store)
	config.Redis.Addr = getEnv("REDIS_ADDR", config.Redis.Addr)
	config.JetStream.URL = getEnv("NATS_URL", config.JetStream.URL)
	config.Game.TurnTimeout = getEnvAsDuration("TURN_TIMEOUT", config.Game.TurnTimeout)
	config.Game.Workers = getEnvAsInt("TURN_WORKERS", config.Game.Workers)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.Store != storeMemory && c.Store != storePostgres {
		return fmt.Errorf("unknown STORE %q, want %s or %s", c.Store, storeMemory, storePostgres)
	}
	if c.Game.TurnTimeout <= 0 {
		return fmt.Errorf("game.turn_timeout must be positive")
	}
	return nil
}
