package di

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	graphsvc "fluent-backend/domain/services"
	"fluent-backend/infrastructure/config"
	"fluent-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	LogLevel  zap.AtomicLevel
	Metrics   *observability.Collector
	Recorder  ports.MetricsRecorder
	Tracing   *observability.TracerProvider
	Tracer    trace.Tracer
	Store     ports.BlobStore
	Publisher ports.EventPublisher
	Exporter  ports.GraphExporter
	Processor *graphsvc.GraphProcessor
	Storage   *services.GraphStorage
	Sentences *services.SentenceStore
	Source    ports.SentenceSource
	Sync      *services.GraphSync
}
