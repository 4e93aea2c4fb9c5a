package api

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiterPool manages per-model rate limiters
type RateLimiterPool struct {
	limiters map[string]*rate.Limiter
	rates    map[string]int // Track original rates for consistency check
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRateLimiterPool creates a new rate limiter pool
func NewRateLimiterPool(logger *slog.Logger) *RateLimiterPool {
	return &RateLimiterPool{
		limiters: make(map[string]*rate.Limiter),
		rates:    make(map[string]int),
		logger:   logger,
	}
}

// GetOrCreate returns an existing rate limiter or creates a new one.
// If a limiter exists with a different rate, it logs a warning and keeps the existing one.
// A non-positive rate disables limiting for the model.
func (p *RateLimiterPool) GetOrCreate(modelID string, requestsPerMinute int) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if limiter, exists := p.limiters[modelID]; exists {
		if existingRate, ok := p.rates[modelID]; ok && existingRate != requestsPerMinute {
			p.logger.Warn("Rate limiter already exists with different rate, using existing rate",
				"model_id", modelID,
				"existing_rpm", existingRate,
				"requested_rpm", requestsPerMinute)
		}
		return limiter
	}

	var limiter *rate.Limiter
	if requestsPerMinute <= 0 {
		limiter = rate.NewLimiter(rate.Inf, 1)
	} else {
		// Convert requests per minute to requests per second
		rps := float64(requestsPerMinute) / 60.0
		burst := max(1, requestsPerMinute/5)
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
		p.logger.Debug("Created rate limiter",
			"model_id", modelID,
			"rpm", requestsPerMinute,
			"rps", rps,
			"burst", burst)
	}
	p.limiters[modelID] = limiter
	p.rates[modelID] = requestsPerMinute

	return limiter
}

// Wait blocks until the rate limiter allows the next request
func (p *RateLimiterPool) Wait(ctx context.Context, modelID string, requestsPerMinute int) error {
	limiter := p.GetOrCreate(modelID, requestsPerMinute)
	return limiter.Wait(ctx)
}
