package persistence

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fluent-backend/application/ports"
)

// InstrumentedStore records a span and a metric sample for every call
type InstrumentedStore struct {
	inner   ports.BlobStore
	backend string
	tracer  trace.Tracer
	metrics ports.MetricsRecorder
}

// NewInstrumentedStore wraps inner. A nil metrics recorder discards samples.
func NewInstrumentedStore(inner ports.BlobStore, backend string, tracer trace.Tracer, metrics ports.MetricsRecorder) *InstrumentedStore {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	return &InstrumentedStore{inner: inner, backend: backend, tracer: tracer, metrics: metrics}
}

func (s *InstrumentedStore) observe(ctx context.Context, op, key string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "blobstore."+op, trace.WithAttributes(
		attribute.String("store.backend", s.backend),
		attribute.String("store.key", key),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	recorded := err
	if errors.Is(err, ports.ErrNotFound) {
		recorded = nil
		span.SetAttributes(attribute.Bool("store.miss", true))
	}
	if recorded != nil {
		span.RecordError(recorded)
		span.SetStatus(codes.Error, recorded.Error())
	}
	s.metrics.RecordStorageOperation(op, time.Since(start), recorded)
	return err
}

// Get returns the value stored under key
func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.observe(ctx, "get", key, func(ctx context.Context) error {
		var err error
		value, err = s.inner.Get(ctx, key)
		return err
	})
	return value, err
}

// Put overwrites the value stored under key
func (s *InstrumentedStore) Put(ctx context.Context, key string, value []byte) error {
	return s.observe(ctx, "put", key, func(ctx context.Context) error {
		return s.inner.Put(ctx, key, value)
	})
}

// Delete removes key
func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	return s.observe(ctx, "delete", key, func(ctx context.Context) error {
		return s.inner.Delete(ctx, key)
	})
}
