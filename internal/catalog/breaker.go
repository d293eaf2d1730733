package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Provider lists raw product records for a category.
type Provider interface {
	Name() string
	List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error)
}

// Breaker stops calling a provider after consecutive failures and lets a
// trial request through once openFor has passed.
type Breaker struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func NewBreaker(inner Provider, maxFailures uint32, openFor time.Duration) *Breaker {
	if maxFailures == 0 {
		maxFailures = 3
	}
	return &Breaker{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "catalog:" + inner.Name(),
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (b *Breaker) Name() string { return b.inner.Name() }

// State reports the breaker state for status output.
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.List(ctx, category, limit)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %v: %w", b.inner.Name(), err, domain.ErrProviderUnavailable)
	}
	if err != nil {
		return nil, err
	}
	recs, _ := out.([]domain.RawProduct)
	return recs, nil
}
