package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyforge_api_request_duration_seconds",
			Help:    "Streaming request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyforge_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_retries_total",
			Help: "Total number of request retries",
		},
		[]string{"stage"}, // "plan" or "section"
	)

	// Stream metrics
	streamDeltas = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_stream_deltas_total",
			Help: "Stream deltas decoded by stage and kind",
		},
		[]string{"stage", "kind"}, // kind: "reasoning"/"content"
	)

	malformedChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_malformed_chunks_total",
			Help: "Provider chunks that could not be classified and were treated as content",
		},
		[]string{"stage"},
	)

	// Generation metrics
	generationThroughput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyforge_generation_total",
			Help: "Total number of generation calls completed",
		},
		[]string{"stage", "status"}, // status: "success"/"error"/"interrupted"
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyforge_stage_duration_seconds",
			Help:    "Duration of a full generation call including retries",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"stage"},
	)

	sectionsRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storyforge_sections_remaining",
			Help: "Sections of the current outline not yet written",
		},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordAPIRequest records a streaming request duration
func (c *Collector) RecordAPIRequest(model string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	apiRequestDuration.WithLabelValues(model, statusLabel(success)).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncrementRetry counts a retry of a generation call
func (c *Collector) IncrementRetry(stage string) {
	if c == nil {
		return
	}
	retryTotal.WithLabelValues(stage).Inc()
}

// RecordDelta counts a decoded stream delta
func (c *Collector) RecordDelta(stage, kind string) {
	if c == nil {
		return
	}
	streamDeltas.WithLabelValues(stage, kind).Inc()
}

// IncrementMalformed counts a chunk degraded to content
func (c *Collector) IncrementMalformed(stage string) {
	if c == nil {
		return
	}
	malformedChunks.WithLabelValues(stage).Inc()
}

// IncrementGeneration increments the generation counter
func (c *Collector) IncrementGeneration(stage, status string) {
	if c == nil {
		return
	}
	generationThroughput.WithLabelValues(stage, status).Inc()
}

// RecordStage records the duration of a generation call
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetSectionsRemaining sets the number of sections left to write
func (c *Collector) SetSectionsRemaining(n int) {
	if c == nil {
		return
	}
	sectionsRemaining.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if c != nil && c.logger != nil {
		c.logger.Info("Serving metrics", "addr", addr, "path", "/metrics")
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
