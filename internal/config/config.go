// Package config loads server configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the full server configuration.
type Config struct {
	Addr     string `env:"CARDFALL_ADDR" envDefault:":8080"`
	DBPath   string `env:"CARDFALL_DB_PATH" envDefault:"cardfall.db"`
	LogLevel string `env:"CARDFALL_LOG_LEVEL" envDefault:"info"`

	// JWTSecret signs and verifies session tokens. Required.
	JWTSecret string `env:"CARDFALL_JWT_SECRET"`

	// OpenRouter credentials. Empty key disables LLM generation; the demo
	// world still works without it.
	OpenRouterKey   string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel string `env:"OPENROUTER_MODEL" envDefault:"anthropic/claude-3.5-sonnet"`

	// DeckCapacity is the number of cards per week deck.
	DeckCapacity int `env:"CARDFALL_DECK_CAPACITY" envDefault:"7"`

	// RateLimit is requests per second per client IP.
	RateLimit float64 `env:"CARDFALL_RATE_LIMIT" envDefault:"20"`

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64 `env:"CARDFALL_MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("CARDFALL_JWT_SECRET is required")
	}
	return cfg, nil
}
