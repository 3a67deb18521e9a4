// Package resilience guards calls to external services with a circuit
// breaker built on sony/gobreaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without calling the operation while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds configuration for a Breaker.
type BreakerConfig struct {
	Name string
	// MaxFailures consecutive counted failures open the breaker.
	MaxFailures int
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
	// Counts reports whether an operation error says something about the
	// service's health. Nil counts every error except context cancellation.
	Counts func(error) bool
	Logger *slog.Logger
}

// Breaker is a circuit breaker whose operation errors pass through unchanged.
type Breaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	counts func(error) bool
}

// NewBreaker creates a Breaker, filling unset fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Counts == nil {
		cfg.Counts = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := cfg.Logger.With("component", "circuit_breaker")
	maxFailures := uint32(cfg.MaxFailures)

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Breaker{
		name:   cfg.Name,
		cb:     gobreaker.NewCircuitBreaker(settings),
		counts: cfg.Counts,
	}
}

// Execute runs op unless the breaker is open. Errors rejected by Counts are
// returned to the caller without affecting the breaker.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var opErr error
	_, err := b.cb.Execute(func() (interface{}, error) {
		opErr = op(ctx)
		if opErr != nil && b.counts(opErr) {
			return nil, opErr
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	if err != nil {
		return err
	}
	return opErr
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
