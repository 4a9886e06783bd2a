//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"fluent-backend/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogLevel,
	ProvideLogger,
	ProvideMetrics,
	ProvideMetricsRecorder,
	ProvideTracing,
	ProvideTracer,
	ProvideBlobStore,
	ProvideEventPublisher,
	ProvideGraphExporter,
	ProvideGraphProcessor,
	ProvideGraphStorage,
	ProvideSentenceStore,
	ProvideSentenceSource,
	ProvideCheckpointer,
	ProvideGraphSync,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
