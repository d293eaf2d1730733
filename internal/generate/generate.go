// Package generate produces the script, voice and video artifacts for a
// queue item by calling external AI providers.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/catalog"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Input is what a generator works from. Later stages see the handles of
// earlier ones: the voice generator reads Script, the video generator Voice.
type Input struct {
	Item   domain.QueueItem
	Script string
	Voice  string
}

// Generator produces one artifact and returns its handle. Errors wrap
// ErrProviderUnavailable, ErrQuotaExceeded, ErrInvalidInput or ErrCancelled.
type Generator interface {
	Name() string
	Generate(ctx context.Context, in Input) (string, error)
}

const defaultTimeout = 5 * time.Minute

// Guard bounds a generator with a per-call timeout and a circuit breaker.
// A timeout counts as the provider being unavailable; cancellation of the
// caller's context is reported as ErrCancelled.
type Guard struct {
	inner   Generator
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

func NewGuard(inner Generator, timeout time.Duration, maxFailures uint32, openFor time.Duration) *Guard {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxFailures == 0 {
		maxFailures = 3
	}
	return &Guard{
		inner:   inner,
		timeout: timeout,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "generator:" + inner.Name(),
			MaxRequests: 1,
			Timeout:     openFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrCancelled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) State() string { return g.cb.State().String() }

func (g *Guard) Generate(ctx context.Context, in Input) (string, error) {
	out, err := g.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		handle, err := g.inner.Generate(callCtx, in)
		if err == nil {
			return handle, nil
		}
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%s: %v: %w", g.inner.Name(), ctx.Err(), domain.ErrCancelled)
		case callCtx.Err() != nil:
			return nil, fmt.Errorf("%s: timed out after %s: %w", g.inner.Name(), g.timeout, domain.ErrProviderUnavailable)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%s: %v: %w", g.inner.Name(), err, domain.ErrProviderUnavailable)
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// statusError classifies a non-2xx provider response. 401 and 403 are
// credential problems and count as unavailability, not bad input.
func statusError(provider string, status int, body string) error {
	if status == 401 || status == 403 {
		return fmt.Errorf("%s: unexpected status %d: %w", provider, status, domain.ErrProviderUnavailable)
	}
	return catalog.StatusError(provider, status, body)
}

// transportError wraps a failed HTTP round trip. A cancelled context stays
// visible to the Guard through ctx.Err().
func transportError(provider string, err error) error {
	return fmt.Errorf("%s: %v: %w", provider, err, domain.ErrProviderUnavailable)
}
