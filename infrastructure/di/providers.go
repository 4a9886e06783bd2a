package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	graphsvc "fluent-backend/domain/services"
	"fluent-backend/infrastructure/config"
	neo4jexport "fluent-backend/infrastructure/export/neo4j"
	"fluent-backend/infrastructure/messaging"
	"fluent-backend/infrastructure/persistence"
	badgerstore "fluent-backend/infrastructure/persistence/badger"
	dynamostore "fluent-backend/infrastructure/persistence/dynamodb"
	"fluent-backend/infrastructure/persistence/memory"
	sqlitestore "fluent-backend/infrastructure/persistence/sqlite"
	"fluent-backend/infrastructure/persistence/supabase"
	"fluent-backend/pkg/observability"
)

const serviceName = "fluent-backend"

// ProvideLogLevel parses the configured log level
func ProvideLogLevel(cfg *config.Config) (zap.AtomicLevel, error) {
	return config.NewLogLevel(cfg)
}

// ProvideLogger creates the service logger
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, func(), error) {
	logger, err := config.NewLogger(cfg, level)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("fluent")
}

// ProvideMetricsRecorder returns the collector when metrics are enabled
func ProvideMetricsRecorder(cfg *config.Config, collector *observability.Collector) ports.MetricsRecorder {
	if !cfg.EnableMetrics {
		return ports.NoopMetrics{}
	}
	return collector
}

// ProvideTracing sets up OTLP tracing when enabled
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	if !cfg.EnableTracing {
		return observability.NoopTracing(serviceName), func() {}, nil
	}
	tp, err := observability.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp, func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}, nil
}

// ProvideTracer returns the service tracer
func ProvideTracer(tp *observability.TracerProvider) trace.Tracer {
	return tp.Tracer()
}

// ProvideBlobStore opens the configured backend and wraps it with the
// circuit breaker and instrumentation decorators.
func ProvideBlobStore(
	ctx context.Context,
	cfg *config.Config,
	tracer trace.Tracer,
	metrics ports.MetricsRecorder,
	logger *zap.Logger,
) (ports.BlobStore, func(), error) {
	var (
		store   ports.BlobStore
		cleanup = func() {}
	)

	switch cfg.StorageBackend {
	case config.BackendMemory:
		store = memory.NewStore()
	case config.BackendSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath, cfg.StorageNamespace)
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = s, closer(s.Close, "sqlite", logger)
	case config.BackendBadger:
		s, err := badgerstore.Open(badgerstore.Options{
			Dir:       cfg.BadgerDir,
			Namespace: cfg.StorageNamespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, err
		}
		store, cleanup = s, closer(s.Close, "badger", logger)
	case config.BackendDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		store = dynamostore.NewStore(awsdynamodb.NewFromConfig(awsCfg), cfg.TableName, cfg.StorageNamespace, logger)
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	if cfg.CircuitBreaker.Enabled {
		store = persistence.NewCircuitBreakerStore(store, persistence.CircuitBreakerConfig{
			Name:             cfg.StorageBackend,
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         cfg.CircuitBreaker.Interval,
			Timeout:          cfg.CircuitBreaker.Timeout,
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			MinRequests:      cfg.CircuitBreaker.MinRequests,
		}, logger)
	}
	store = persistence.NewInstrumentedStore(store, cfg.StorageBackend, tracer, metrics)

	logger.Info("Blob store ready",
		zap.String("backend", cfg.StorageBackend),
		zap.String("namespace", cfg.StorageNamespace),
	)
	return store, cleanup, nil
}

// ProvideEventPublisher returns an EventBridge publisher when events are
// enabled, a log publisher otherwise.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	if !cfg.EnableEvents {
		return messaging.NewLogPublisher(logger), nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return messaging.NewEventBridgePublisher(awseventbridge.NewFromConfig(awsCfg), cfg.EventBusName, logger), nil
}

// ProvideGraphExporter connects to Neo4j when configured. Without
// configuration the exporter is nil.
func ProvideGraphExporter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.GraphExporter, func(), error) {
	if !cfg.HasNeo4j() {
		return nil, func() {}, nil
	}
	exporter, err := neo4jexport.NewExporter(ctx, neo4jexport.Config{
		URI:      cfg.Neo4jURI,
		Username: cfg.Neo4jUsername,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return exporter, func() {
		if err := exporter.Close(context.Background()); err != nil {
			logger.Warn("Failed to close neo4j driver", zap.Error(err))
		}
	}, nil
}

// ProvideGraphProcessor creates the processor with the default weights
func ProvideGraphProcessor() *graphsvc.GraphProcessor {
	return graphsvc.NewGraphProcessor(graphsvc.DefaultWeightConfig())
}

// ProvideGraphStorage creates the storage façade
func ProvideGraphStorage(
	store ports.BlobStore,
	publisher ports.EventPublisher,
	metrics ports.MetricsRecorder,
	cfg *config.Config,
	logger *zap.Logger,
) *services.GraphStorage {
	return services.NewGraphStorage(store, publisher, metrics, cfg.StorageNamespace, logger)
}

// ProvideSentenceStore creates the captured-sentence store
func ProvideSentenceStore(store ports.BlobStore, logger *zap.Logger) *services.SentenceStore {
	return services.NewSentenceStore(store, logger)
}

// ProvideSentenceSource reads sentences from Supabase when configured and
// from the local sentence store otherwise.
func ProvideSentenceSource(cfg *config.Config, store *services.SentenceStore, logger *zap.Logger) (ports.SentenceSource, error) {
	if !cfg.HasSupabase() {
		return store, nil
	}
	return supabase.NewSentenceSource(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseUserID, logger)
}

// ProvideCheckpointer keeps the last-processed marker next to the sentences
func ProvideCheckpointer(store *services.SentenceStore) ports.Checkpointer {
	return store
}

// ProvideGraphSync creates the sync pipeline
func ProvideGraphSync(
	storage *services.GraphStorage,
	source ports.SentenceSource,
	checkpoints ports.Checkpointer,
	processor *graphsvc.GraphProcessor,
	metrics ports.MetricsRecorder,
	tracer trace.Tracer,
	logger *zap.Logger,
) *services.GraphSync {
	return services.NewGraphSync(storage, source, checkpoints, processor, metrics, tracer, logger)
}

func closer(closeFn func() error, name string, logger *zap.Logger) func() {
	return func() {
		if err := closeFn(); err != nil {
			logger.Warn("Failed to close store", zap.String("backend", name), zap.Error(err))
		}
	}
}
