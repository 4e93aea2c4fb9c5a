package api

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/lamim/storyforge/internal/config"
	"github.com/lamim/storyforge/internal/metrics"
)

// Streamer opens one streaming chat completion. The sequence yields chunks in arrival
// order and ends after the first error. Stopping iteration early closes the stream.
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}

// provider is a single backend protocol
type provider interface {
	name() string
	stream(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}

// Client streams chat completions from the configured model endpoint
type Client struct {
	modelCfg        config.ModelConfig
	modelID         string
	provider        provider
	rateLimiterPool *RateLimiterPool
	metrics         *metrics.Collector
	logger          *slog.Logger
}

// NewClient creates a new API client for modelCfg.
// collector may be nil.
func NewClient(modelCfg config.ModelConfig, apiKey string, logger *slog.Logger, collector *metrics.Collector) (*Client, error) {
	var p provider
	switch modelCfg.Provider {
	case config.ProviderOpenAI, "":
		p = newOpenAIProvider(modelCfg, apiKey, logger)
	case config.ProviderOllama:
		op, err := newOllamaProvider(modelCfg)
		if err != nil {
			return nil, err
		}
		p = op
	default:
		return nil, fmt.Errorf("unsupported provider %q", modelCfg.Provider)
	}

	return &Client{
		modelCfg: modelCfg,
		// Generate a unique model ID for rate limiting
		modelID:         fmt.Sprintf("%s:%s", config.GetProviderName(modelCfg.BaseURL), modelCfg.ModelName),
		provider:        p,
		rateLimiterPool: NewRateLimiterPool(logger),
		metrics:         collector,
		logger:          logger,
	}, nil
}

// Stream implements Streamer. Every call is a single attempt; retrying is up to the caller.
func (c *Client) Stream(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		if c.modelCfg.HTTPTimeoutSeconds > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(c.modelCfg.HTTPTimeoutSeconds)*time.Second)
			defer cancel()
		}

		waitStart := time.Now()
		if err := c.rateLimiterPool.Wait(ctx, c.modelID, c.modelCfg.RateLimitPerMinute); err != nil {
			yield(Chunk{}, fmt.Errorf("rate limiter wait failed: %w", err))
			return
		}
		c.metrics.RecordRateLimiterWait(c.modelCfg.ModelName, time.Since(waitStart))

		c.logger.Debug("Opening stream",
			"provider", c.provider.name(),
			"model", c.modelCfg.ModelName,
			"stage", req.Stage,
			"messages", len(req.Messages))

		start := time.Now()
		chunks := 0
		for chunk, err := range c.provider.stream(ctx, req) {
			if err != nil {
				c.metrics.RecordAPIRequest(c.modelCfg.ModelName, time.Since(start), false)
				c.logger.Debug("Stream failed",
					"stage", req.Stage,
					"chunks", chunks,
					"error", err)
				yield(Chunk{}, err)
				return
			}
			chunks++
			if !yield(chunk, nil) {
				return
			}
		}

		c.metrics.RecordAPIRequest(c.modelCfg.ModelName, time.Since(start), true)
		c.logger.Debug("Stream completed",
			"stage", req.Stage,
			"chunks", chunks,
			"duration", time.Since(start))
	}
}

// ProviderName returns the backend protocol in use
func (c *Client) ProviderName() string {
	return c.provider.name()
}
