package gemini

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// holds Gemini-specific configuration
type Config struct {
	APIKey string `env:"GEMINI_API_KEY,notEmpty"`
	Model  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
}

func NewConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("gemini config: %w", err)
	}
	return &cfg, nil
}
