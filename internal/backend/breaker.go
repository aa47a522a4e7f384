// internal/backend/breaker.go
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker refuses calls to a failing backend.
var ErrCircuitOpen = errors.New("backend circuit open")

// Breaker trips after a run of consecutive failures and rejects calls until
// the timeout elapses, after which a single probe decides whether to close again.
// Missing records and canceled requests are not counted as failures.
type Breaker struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

var _ Backend = (*Breaker)(nil)

func NewBreaker(next Backend, failures uint32, timeout time.Duration, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "backend",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("backend circuit changed state", "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrNotFound) ||
					errors.Is(err, ErrUnknownCollection) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

// State reports "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) Create(ctx context.Context, coll Collection, rec Record) (string, error) {
	return guard(b, func() (string, error) { return b.next.Create(ctx, coll, rec) })
}

func (b *Breaker) Update(ctx context.Context, coll Collection, id string, fields Record) error {
	_, err := guard(b, func() (struct{}, error) { return struct{}{}, b.next.Update(ctx, coll, id, fields) })
	return err
}

func (b *Breaker) Read(ctx context.Context, coll Collection, id string) (Record, error) {
	return guard(b, func() (Record, error) { return b.next.Read(ctx, coll, id) })
}

// Subscribe is passed through; subscriptions recover on their own.
func (b *Breaker) Subscribe(ctx context.Context, coll Collection, h Handler) (func(), error) {
	return b.next.Subscribe(ctx, coll, h)
}

func guard[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	case err != nil:
		return zero, err
	}
	return v.(T), nil
}
