// Package config loads and validates service configuration. Values come
// from the environment (optionally seeded from a .env file); the city
// roster is loaded from a YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the umbrella configuration object handed to the rest of the
// application at startup.
type Config struct {
	Database  DatabaseConfig
	Queue     *QueueConfig
	Conductor *ConductorConfig
	Fetcher   *FetcherConfig
	Vendors   *VendorRateConfig
	Provider  *ProviderConfig
	Chunker   *ChunkerConfig
	Retention *RetentionConfig
	Extractor ExtractorConfig
	LLM       LLMConfig
	HTTP      HTTPConfig
}

// ExtractorConfig points at the external PDF text extraction service and
// its optional fallback. The core only speaks the capability interface.
type ExtractorConfig struct {
	// URL is the primary extraction endpoint. Accepts a PDF body, returns
	// JSON {text, page_count}.
	URL string `env:"EXTRACTOR_URL" envDefault:"http://localhost:9090/extract"`

	// FallbackURL, when set, is tried exactly once after the primary
	// yields an error or empty text.
	FallbackURL string `env:"EXTRACTOR_FALLBACK_URL"`

	// Timeout bounds a single extraction call against the primary.
	Timeout time.Duration `env:"EXTRACTOR_TIMEOUT" envDefault:"120s"`

	// FallbackTimeout bounds a fallback extraction call. The fallback is a
	// last resort and gets a tighter budget than the primary.
	FallbackTimeout time.Duration `env:"EXTRACTOR_FALLBACK_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig locates the embedded SQLite database file.
type DatabaseConfig struct {
	// Path is the SQLite database file. Created on first startup.
	Path string `env:"DATABASE_PATH" envDefault:"agendawatch.db"`
}

// LLMConfig configures the summarization provider.
type LLMConfig struct {
	// Model is the provider model identifier.
	Model string `env:"LLM_MODEL" envDefault:"claude-3-5-haiku-latest"`

	// APIKey authenticates against the provider. Required for serve mode;
	// CLI verbs that never summarize tolerate it being empty.
	APIKey string `env:"ANTHROPIC_API_KEY"`

	// MaxTokens caps each summarization completion.
	MaxTokens int `env:"LLM_MAX_TOKENS" envDefault:"4096"`
}

// HTTPConfig configures the health/stats API surface.
type HTTPConfig struct {
	Port string `env:"HTTP_PORT" envDefault:"8080"`

	// CitiesFile is the YAML roster seeded into the store at startup.
	CitiesFile string `env:"CITIES_FILE" envDefault:"cities.yaml"`
}

// Load builds the full configuration: defaults first, then environment
// overrides parsed with caarlos0/env.
func Load() (*Config, error) {
	cfg := &Config{
		Queue:     DefaultQueueConfig(),
		Conductor: DefaultConductorConfig(),
		Fetcher:   DefaultFetcherConfig(),
		Vendors:   DefaultVendorRateConfig(),
		Provider:  DefaultProviderConfig(),
		Chunker:   DefaultChunkerConfig(),
		Retention: DefaultRetentionConfig(),
	}

	// env.Parse recurses into the nested config structs, so one pass
	// applies every override.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Queue.WorkerCount < 1 {
		return fmt.Errorf("%w: worker_count must be >= 1", ErrInvalidValue)
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1", ErrInvalidValue)
	}
	if c.Chunker.MaxBytes < 1 || c.Chunker.MaxPages < 1 {
		return fmt.Errorf("%w: chunker caps must be positive", ErrInvalidValue)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidValue)
	}
	return nil
}
