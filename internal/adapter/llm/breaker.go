package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"newsrag/internal/domain"
	"newsrag/internal/port"
)

// BreakerGenerator stops calling a failing backend for a cooldown period.
// While open, calls fail immediately with domain.ErrBackend.
type BreakerGenerator struct {
	inner port.Generator
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerGenerator(inner port.Generator, failures uint32, cooldown time.Duration, logger *slog.Logger) *BreakerGenerator {
	if failures == 0 {
		failures = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	settings := gobreaker.Settings{
		Name:        "generator:" + inner.ModelName(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerGenerator{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *BreakerGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.Generate(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", domain.ErrBackend, err)
		}
		return "", err
	}
	return out.(string), nil
}

func (g *BreakerGenerator) State() string {
	return g.cb.State().String()
}

func (g *BreakerGenerator) ModelName() string {
	return g.inner.ModelName()
}
