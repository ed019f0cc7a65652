package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// app config, loaded from the environment
type Config struct {
	Port      string   `env:"PORT" envDefault:"8000"`
	ClientURL []string `env:"CLIENT_URL" envDefault:"http://localhost:5173" envSeparator:","`
	StaticDir string   `env:"STATIC_DIR"`
	LogLevel  string   `env:"LOG_LEVEL" envDefault:"info"`

	TypingTimeout time.Duration `env:"TYPING_TIMEOUT" envDefault:"3s"`

	AI            AIConfig
	WebSocket     WebSocketConfig
	Redis         RedisConfig
	GenerationLog GenerationLogConfig
	Jobs          JobsConfig
}

type AIConfig struct {
	Provider string        `env:"AI_PROVIDER" envDefault:"gemini"`
	Timeout  time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
	Prefix   string        `env:"AI_PREFIX" envDefault:"@ai "`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	PongWait       time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait      time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"1048576"`
	SendBuffer     int           `env:"WS_SEND_BUFFER" envDefault:"256"`
}

// RedisConfig enables the activity feed when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Channel  string `env:"REDIS_CHANNEL" envDefault:"coderoom:activity"`
}

// GenerationLogConfig enables the generation audit table when Driver is set.
type GenerationLogConfig struct {
	Driver    string        `env:"GENERATION_LOG_DRIVER"`
	DSN       string        `env:"GENERATION_LOG_DSN"`
	Retention time.Duration `env:"GENERATION_LOG_RETENTION" envDefault:"168h"`
}

type JobsConfig struct {
	PruneSchedule string `env:"PRUNE_SCHEDULE" envDefault:"0 3 * * *"`
	StatsSchedule string `env:"STATS_SCHEDULE" envDefault:"@every 5m"`
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.Port }

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(config *Config) error {
	if config.AI.Provider != "gemini" {
		return errors.New("unsupported AI provider: " + config.AI.Provider + ". Currently supported: gemini")
	}
	if config.AI.Timeout <= 0 {
		return errors.New("AI_TIMEOUT must be positive")
	}
	if strings.TrimSpace(config.AI.Prefix) == "" {
		return errors.New("AI_PREFIX must not be empty")
	}
	if config.TypingTimeout <= 0 {
		return errors.New("TYPING_TIMEOUT must be positive")
	}
	if config.WebSocket.SendBuffer <= 0 {
		return errors.New("WS_SEND_BUFFER must be positive")
	}
	if config.WebSocket.PingInterval >= config.WebSocket.PongWait {
		return errors.New("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}
	switch config.GenerationLog.Driver {
	case "":
	case "sqlite", "postgres":
		if config.GenerationLog.DSN == "" {
			return errors.New("GENERATION_LOG_DSN is required when GENERATION_LOG_DRIVER is set")
		}
	default:
		return fmt.Errorf("unsupported generation log driver %q", config.GenerationLog.Driver)
	}
	return nil
}
