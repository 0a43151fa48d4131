// Package remote reaches the AI completion, image and embedding services.
//
// Every call goes through the retry wrapper. The SDK's own retries are
// disabled; a client side rate limiter and a circuit breaker guard each
// individual attempt.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/reelrank/internal/domain/retry"
	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Operation names used in metrics and logs.
const (
	opComplete = "complete"
	opImage    = "image"
	opEmbed    = "embed"
)

// Defaults.
const (
	DefaultBaseURL          = "https://api.openai.com/v1"
	DefaultCompletionModel  = "gpt-4o-mini"
	DefaultImageModel       = "dall-e-3"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingDims    = 384
	defaultTimeout          = 60 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerOpen      = 30 * time.Second
	breakerHalfOpenRequests = 1
	minEmbeddingRunes       = 64
)

// Config holds the remote client settings.
type Config struct {
	APIKey              string
	BaseURL             string
	CompletionModel     string
	ImageModel          string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
	RPS                 float64 // 0 disables client side limiting
	Burst               int
	BreakerFailures     uint32 // consecutive failures that open the breaker
	BreakerOpen         time.Duration
	Policy              retry.Policy
}

func (c *Config) withDefaults() {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.CompletionModel == "" {
		c.CompletionModel = DefaultCompletionModel
	}
	if c.ImageModel == "" {
		c.ImageModel = DefaultImageModel
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = DefaultEmbeddingDims
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerOpen <= 0 {
		c.BreakerOpen = defaultBreakerOpen
	}
	if c.Policy.MaxAttempts < 1 {
		c.Policy = retry.DefaultPolicy()
	}
}

// Client implements the completion, image and embedding operations.
type Client struct {
	cfg        Config
	api        openaigo.Client
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[any]
	sleep      func(ctx context.Context, d time.Duration) error
	log        logger.Logger
}

// New builds a client. The API key is required.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cfg.withDefaults()

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.Get().Named("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.api = openaigo.NewClient(
		option.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(c.httpClient),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	)

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	c.limiter = rate.NewLimiter(limit, cfg.Burst)

	c.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "openai",
		MaxRequests: breakerHalfOpenRequests,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn(context.Background(), "circuit breaker state changed",
				logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
		},
	})
	return c, nil
}

// BreakerState reports the breaker state for health output.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// call runs fn under the retry policy. Each attempt waits for the limiter
// and passes through the breaker.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error), extra ...retry.Option) (T, error) {
	attempt := func(ctx context.Context) (T, error) {
		var zero T
		metrics.RecordRemoteAttempt(op)
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, retry.Classify(retry.ClassNetwork, fmt.Errorf("rate limiter: %w", err))
		}
		v, err := c.breaker.Execute(func() (any, error) { return fn(ctx) })
		if err != nil {
			return zero, err
		}
		out, _ := v.(T)
		return out, nil
	}

	opts := append([]retry.Option{
		retry.WithClassifier(Classify),
		retry.WithSleep(c.sleep),
		retry.WithOnFailure(func(a retry.Attempt) {
			metrics.RecordRemoteFailure(op, a.Class.String())
		}),
		retry.WithOnRetry(func(a retry.Attempt) {
			c.log.Warn(ctx, "remote call retrying",
				logger.String("operation", op), logger.Int("attempt", a.Number),
				logger.String("class", a.Class.String()), logger.Duration("delay", a.Delay), logger.Error(a.Err))
		}),
	}, extra...)

	v, err := retry.Execute(ctx, c.cfg.Policy, attempt, opts...)
	if err != nil {
		var exhausted *retry.ExhaustedRetriesError
		if errors.As(err, &exhausted) {
			metrics.RecordRemoteExhausted(op)
		}
		return v, fmt.Errorf("%s: %w", op, err)
	}
	return v, nil
}

// Complete returns the assistant text for prompt.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}
	return call(ctx, c, opComplete, func(ctx context.Context) (string, error) {
		resp, err := c.api.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
			Model:    openaigo.ChatModel(c.cfg.CompletionModel),
			Messages: []openaigo.ChatCompletionMessageParamUnion{openaigo.UserMessage(prompt)},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	})
}

// GenerateImage returns the URI of an image generated for prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyInput
	}
	return call(ctx, c, opImage, func(ctx context.Context) (string, error) {
		resp, err := c.api.Images.Generate(ctx, openaigo.ImageGenerateParams{
			Prompt: prompt,
			Model:  openaigo.ImageModel(c.cfg.ImageModel),
		})
		if err != nil {
			return "", err
		}
		if len(resp.Data) == 0 || resp.Data[0].URL == "" {
			return "", ErrEmptyResponse
		}
		return resp.Data[0].URL, nil
	})
}

// Embed returns the content embedding of text. Inputs the service rejects
// as too large are halved and retried down to a minimum length.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	input := []rune(strings.TrimSpace(text))
	if len(input) == 0 {
		return nil, ErrEmptyInput
	}
	shrink := func() bool {
		if len(input) <= minEmbeddingRunes {
			return false
		}
		input = input[:max(minEmbeddingRunes, len(input)/2)]
		return true
	}

	return call(ctx, c, opEmbed, func(ctx context.Context) ([]float64, error) {
		resp, err := c.api.Embeddings.New(ctx, openaigo.EmbeddingNewParams{
			Input:      openaigo.EmbeddingNewParamsInputUnion{OfString: openaigo.String(string(input))},
			Model:      openaigo.EmbeddingModel(c.cfg.EmbeddingModel),
			Dimensions: openaigo.Int(int64(c.cfg.EmbeddingDimensions)),
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, ErrEmptyResponse
		}
		return resp.Data[0].Embedding, nil
	}, retry.WithShrink(shrink))
}
