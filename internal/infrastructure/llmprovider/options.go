// Package llmprovider implements the generation port on top of hosted
// language models. Each generator runs the function calling loop itself and
// returns only the final text.
package llmprovider

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/generation"
	"travel-companion/internal/infrastructure/metrics"
	"travel-companion/internal/infrastructure/resilience"
)

// Options are shared by all generators.
type Options struct {
	Model        string
	MaxToolDepth int
	ToolTimeout  time.Duration
	Retry        resilience.RetryConfig
	Breaker      resilience.CircuitBreakerConfig
}

func (o Options) withDefaults() Options {
	if o.MaxToolDepth <= 0 {
		o.MaxToolDepth = 6
	}
	if o.ToolTimeout <= 0 {
		o.ToolTimeout = time.Minute
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = resilience.DefaultRetryConfig()
	}
	return o
}

// NewGenerator builds the generator selected by LLM_PROVIDER.
func NewGenerator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (generation.Generator, error) {
	opts := Options{
		MaxToolDepth: cfg.MaxToolDepth,
		ToolTimeout:  cfg.ToolCallTimeout,
		Retry:        resilience.RetryFromConfig(cfg),
		Breaker:      resilience.BreakerFromConfig(cfg),
	}

	switch strings.ToLower(cfg.LLMProvider) {
	case "gemini":
		opts.Model = cfg.GeminiModel
		gen, err := NewGeminiFromConfig(ctx, cfg.GeminiAPIKey, opts, log)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "openai":
		opts.Model = cfg.OpenAIChatModel
		return NewOpenAIFromConfig(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, opts, log), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// loadImage reads an image part and resolves its MIME type.
func loadImage(part generation.Part) ([]byte, string, error) {
	data, err := os.ReadFile(part.ImagePath)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", part.ImagePath, err)
	}
	mime := part.MIMEType
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return data, mime, nil
}

func dataURL(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// guarded runs fn through the breaker and retry policy and records latency.
func guarded[T any](ctx context.Context, provider string, breaker *resilience.CircuitBreaker, retry resilience.RetryConfig, fn func() (T, error)) (T, error) {
	var out T
	start := time.Now()
	err := breaker.Execute(func() error {
		res, err := resilience.WithRetry(ctx, retry, provider+" generate", fn)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency(provider, status, time.Since(start).Seconds())
	return out, err
}
