package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Chain] fails or has an
// open breaker.
var ErrExhausted = errors.New("all providers failed")

// ChainConfig configures the per-entry breaker created for each provider in
// a [Chain].
type ChainConfig struct {
	Breaker BreakerConfig
}

// link pairs a provider value with its dedicated breaker.
type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails, or its breaker is open, the next
// healthy fallback is tried in registration order.
//
// Build the chain fully before first use; Add is not safe to call
// concurrently with Try.
type Chain[T any] struct {
	links []link[T]
	cfg   ChainConfig
}

// NewChain creates a [Chain] with primary as the first entry.
func NewChain[T any](primary T, primaryName string, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (c *Chain[T]) Add(name string, fallback T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.links = append(c.links, link[T]{
		name:    name,
		value:   fallback,
		breaker: NewBreaker(bc),
	})
}

// Primary returns the first entry's value.
func (c *Chain[T]) Primary() T {
	return c.links[0].value
}

// Try runs fn against each entry in order until one succeeds. Entries with
// an open breaker are skipped. Returns [ErrExhausted] wrapped with the last
// error when every entry fails.
func (c *Chain[T]) Try(fn func(T) error) error {
	var lastErr error
	for i := range c.links {
		l := &c.links[i]
		err := l.breaker.Do(func() error {
			return fn(l.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", l.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", l.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// TryResult runs fn against each entry until one succeeds, returning the
// result. This is a package-level function because Go does not support
// method-level type parameters.
func TryResult[T any, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.links {
		l := &c.links[i]
		var result R
		err := l.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(l.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", l.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", l.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
