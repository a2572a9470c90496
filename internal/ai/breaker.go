package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerProvider wraps a Provider with circuit breaker protection so a
// persistently failing LLM endpoint fails fast instead of burning the retry
// budget on every incident.
type BreakerProvider struct {
	breaker  *gobreaker.CircuitBreaker
	provider Provider
	log      zerolog.Logger
}

// NewBreakerProvider creates a circuit breaker wrapper.
// Configuration: 3 half-open probes, 60s counting window, 60s open timeout,
// trip after 5 consecutive failures.
func NewBreakerProvider(provider Provider, log zerolog.Logger) *BreakerProvider {
	logger := log.With().Str("component", "llm_breaker").Logger()
	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &BreakerProvider{
		breaker:  gobreaker.NewCircuitBreaker(settings),
		provider: provider,
		log:      logger,
	}
}

// Generate executes the call through the breaker. An open circuit reports
// ErrUnavailable so callers engage their fallback immediately.
func (b *BreakerProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.provider.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit open: %w", ErrUnavailable)
		}
		return nil, err
	}
	return result.(*Response), nil
}

// HealthCheck delegates to the wrapped provider.
func (b *BreakerProvider) HealthCheck(ctx context.Context) error {
	return b.provider.HealthCheck(ctx)
}

// GetModelInfo delegates to the wrapped provider.
func (b *BreakerProvider) GetModelInfo() *ModelInfo {
	return b.provider.GetModelInfo()
}
