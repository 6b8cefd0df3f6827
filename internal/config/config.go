// Package config loads service configuration from the environment with an
// INQUEST_ prefix, optionally seeded from a .env file.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the full service configuration. Flags own purely operational
// settings (listen addresses, verbosity); everything that varies per
// deployment or carries a credential lives here.
type Config struct {
	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMBaseURL     string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMAPIKey      string        `envconfig:"LLM_API_KEY"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"gpt-4o"`
	LLMMaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"4096"`
	LLMTemperature float64       `envconfig:"LLM_TEMPERATURE" default:"0"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"120s"`

	StoreEndpoint    string        `envconfig:"STORE_ENDPOINT" default:"https://api.loganalytics.io"`
	StoreWorkspaceID string        `envconfig:"STORE_WORKSPACE_ID"`
	StoreToken       string        `envconfig:"STORE_TOKEN"`
	StoreTimeout     time.Duration `envconfig:"STORE_TIMEOUT" default:"60s"`
	TokenCacheTTL    time.Duration `envconfig:"TOKEN_CACHE_TTL" default:"50m"`

	MaxAnalysisRows int      `envconfig:"MAX_ANALYSIS_ROWS" default:"50"`
	AllowedOrigins  []string `envconfig:"ALLOWED_ORIGINS"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("INQUEST", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.LLMProvider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
	if cfg.LLMProvider == ProviderOpenAI && cfg.LLMAPIKey == "" {
		return fmt.Errorf("INQUEST_LLM_API_KEY is required")
	}
	if cfg.StoreWorkspaceID == "" {
		return fmt.Errorf("INQUEST_STORE_WORKSPACE_ID is required")
	}
	if cfg.StoreToken == "" {
		return fmt.Errorf("INQUEST_STORE_TOKEN is required")
	}
	return nil
}
