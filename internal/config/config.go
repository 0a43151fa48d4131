// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so env vars map one-to-one (REELRANK_PAGE_SIZE -> page_size).
// - New returns defaults; Load layers file and env on top and validates.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseURL selects the Postgres store; empty keeps everything in memory.
	DatabaseURL string `koanf:"database_url"`
	// NatsURL enables cross-process feed invalidation when set.
	NatsURL string `koanf:"nats_url"`

	// FlushIntervalMS is the aggregator flush tick period.
	FlushIntervalMS int `koanf:"flush_interval_ms"`
	// SessionIdleMS closes a session after this long without samples; 0 keeps it until closed.
	SessionIdleMS int `koanf:"session_idle_ms"`
	// PositionDeltaMS is the minimum playback jump that enqueues a new sample.
	PositionDeltaMS int `koanf:"position_delta_ms"`
	// CompletionRatio is the fraction of duration that counts as completed.
	CompletionRatio float64 `koanf:"completion_ratio"`
	// PendingQueueCapacity bounds each session's pending update queue.
	PendingQueueCapacity int `koanf:"pending_queue_capacity"`

	// PageSize is the default feed page size; MaxPageSize caps ?limit.
	PageSize    int `koanf:"page_size"`
	MaxPageSize int `koanf:"max_page_size"`
	// DedupeSize bounds the feedback request-id cache.
	DedupeSize int `koanf:"dedupe_size"`

	// EngagementWeight and SimilarityWeight mix the total score when a reference embedding exists.
	EngagementWeight float64 `koanf:"engagement_weight"`
	SimilarityWeight float64 `koanf:"similarity_weight"`

	// RetryMaxAttempts, RetryBaseDelayMS and RetryMaxDelayMS form the remote call policy.
	RetryMaxAttempts int `koanf:"retry_max_attempts"`
	RetryBaseDelayMS int `koanf:"retry_base_delay_ms"`
	RetryMaxDelayMS  int `koanf:"retry_max_delay_ms"`

	// OpenAI-compatible endpoint settings for completion, image and embedding calls.
	OpenAIAPIKey        string `koanf:"openai_api_key"`
	OpenAIBaseURL       string `koanf:"openai_base_url"`
	CompletionModel     string `koanf:"completion_model"`
	ImageModel          string `koanf:"image_model"`
	EmbeddingModel      string `koanf:"embedding_model"`
	EmbeddingDimensions int    `koanf:"embedding_dimensions"`
	RemoteTimeoutMS     int    `koanf:"remote_timeout_ms"`

	// RemoteRPS and RemoteBurst rate limit outbound AI calls.
	RemoteRPS   float64 `koanf:"remote_rps"`
	RemoteBurst int     `koanf:"remote_burst"`
	// BreakerFailures consecutive failures open the circuit for BreakerOpenMS.
	BreakerFailures uint32 `koanf:"breaker_failures"`
	BreakerOpenMS   int    `koanf:"breaker_open_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		FlushIntervalMS:      3000,
		SessionIdleMS:        300_000,
		PositionDeltaMS:      5000,
		CompletionRatio:      0.9,
		PendingQueueCapacity: 10_000,
		PageSize:             20,
		MaxPageSize:          100,
		DedupeSize:           50_000,
		EngagementWeight:     0.7,
		SimilarityWeight:     0.3,
		RetryMaxAttempts:     3,
		RetryBaseDelayMS:     500,
		RetryMaxDelayMS:      8000,
		OpenAIBaseURL:        "https://api.openai.com/v1",
		CompletionModel:      "gpt-4o-mini",
		ImageModel:           "dall-e-3",
		EmbeddingModel:       "text-embedding-3-small",
		EmbeddingDimensions:  384,
		RemoteTimeoutMS:      60_000,
		RemoteRPS:            5,
		RemoteBurst:          5,
		BreakerFailures:      5,
		BreakerOpenMS:        30_000,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FlushIntervalMS <= 0:
		return fmt.Errorf("%w: flush_interval_ms must be positive", ErrInvalidConfig)
	case c.SessionIdleMS < 0:
		return fmt.Errorf("%w: session_idle_ms must not be negative", ErrInvalidConfig)
	case c.PositionDeltaMS <= 0:
		return fmt.Errorf("%w: position_delta_ms must be positive", ErrInvalidConfig)
	case c.CompletionRatio <= 0 || c.CompletionRatio > 1:
		return fmt.Errorf("%w: completion_ratio must be in (0,1]", ErrInvalidConfig)
	case c.PageSize < 1 || c.PageSize > c.MaxPageSize:
		return fmt.Errorf("%w: page_size must be in [1,max_page_size]", ErrInvalidConfig)
	case c.RetryMaxAttempts < 1:
		return fmt.Errorf("%w: retry_max_attempts must be at least 1", ErrInvalidConfig)
	case c.RetryBaseDelayMS < 0 || c.RetryMaxDelayMS < c.RetryBaseDelayMS:
		return fmt.Errorf("%w: retry delays must satisfy 0 <= base <= max", ErrInvalidConfig)
	case c.EngagementWeight < 0 || c.SimilarityWeight < 0:
		return fmt.Errorf("%w: score weights must not be negative", ErrInvalidConfig)
	case c.EmbeddingDimensions < 1:
		return fmt.Errorf("%w: embedding_dimensions must be positive", ErrInvalidConfig)
	}
	return nil
}

// FlushInterval returns the flush tick as a duration.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// SessionIdle returns the idle period after which a session is closed.
func (c *Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMS) * time.Millisecond
}

// RetryBaseDelay returns the first backoff step.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMS) * time.Millisecond
}
