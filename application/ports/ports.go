package ports

import (
	"context"
	"errors"
	"time"

	"fluent-backend/domain/events"
	"fluent-backend/domain/graph"
)

// ErrNotFound is returned by a BlobStore when no value is stored under a key
var ErrNotFound = errors.New("key not found")

// BlobStore is a namespaced key-value store holding opaque values.
// Backends must return ErrNotFound (possibly wrapped) for missing keys.
type BlobStore interface {
	// Get returns the value stored under key
	Get(ctx context.Context, key string) ([]byte, error)

	// Put overwrites the value stored under key
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SentenceSource produces captured sentences
type SentenceSource interface {
	// ListSentences returns every captured sentence ordered by timestamp
	ListSentences(ctx context.Context) ([]graph.CapturedSentence, error)
}

// Checkpointer remembers how far sentence processing has progressed
type Checkpointer interface {
	// LastProcessed returns "" when nothing has been processed
	LastProcessed(ctx context.Context) (string, error)
	SetLastProcessed(ctx context.Context, timestamp string) error
}

// EventPublisher delivers graph change notifications
type EventPublisher interface {
	Publish(ctx context.Context, event events.GraphChanged) error
}

// GraphExporter copies a graph into an external graph database
type GraphExporter interface {
	Export(ctx context.Context, data *graph.Data) error
}

// MetricsRecorder receives storage and sync measurements
type MetricsRecorder interface {
	RecordStorageOperation(operation string, duration time.Duration, err error)
	RecordSync(mode string, processed int, duration time.Duration, err error)
	SetGraphSize(nodes, edges int)
}

// NoopMetrics discards all measurements
type NoopMetrics struct{}

func (NoopMetrics) RecordStorageOperation(string, time.Duration, error) {}
func (NoopMetrics) RecordSync(string, int, time.Duration, error)        {}
func (NoopMetrics) SetGraphSize(int, int)                               {}
