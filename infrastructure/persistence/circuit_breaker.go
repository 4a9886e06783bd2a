package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	apperrors "fluent-backend/pkg/errors"
)

// CircuitBreakerConfig holds configuration for the store circuit breaker
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns a default configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// CircuitBreakerStore rejects calls to a failing backend instead of waiting on it.
// Missing keys are not failures.
type CircuitBreakerStore struct {
	inner   ports.BlobStore
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerStore wraps inner with a gobreaker circuit breaker
func NewCircuitBreakerStore(inner ports.BlobStore, config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ports.ErrNotFound) || errors.Is(err, context.Canceled)
		},
	})
	return &CircuitBreakerStore{inner: inner, breaker: breaker}
}

// State reports the current breaker state
func (s *CircuitBreakerStore) State() gobreaker.State {
	return s.breaker.State()
}

// Get reads through the breaker
func (s *CircuitBreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return v.([]byte), nil
}

// Put writes through the breaker
func (s *CircuitBreakerStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.Put(ctx, key, value)
	})
	return s.translate(err)
}

// Delete deletes through the breaker
func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return s.translate(err)
}

func (s *CircuitBreakerStore) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperrors.NewUnavailableError(s.breaker.Name()).WithCause(err)
	}
	return err
}
