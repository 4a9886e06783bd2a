package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	"fluent-backend/interfaces/http/rest/handlers"
	"fluent-backend/interfaces/http/rest/middleware"
	"fluent-backend/pkg/observability"
)

// Router creates and configures the HTTP router
type Router struct {
	storage    *services.GraphStorage
	sentences  *services.SentenceStore
	source     ports.SentenceSource
	sync       *services.GraphSync
	exporter   ports.GraphExporter
	metrics    *observability.Collector
	enableCORS bool
	logger     *zap.Logger
}

// Options carries the dependencies of the router. Exporter and Metrics may be nil.
type Options struct {
	Storage    *services.GraphStorage
	Sentences  *services.SentenceStore
	Source     ports.SentenceSource
	Sync       *services.GraphSync
	Exporter   ports.GraphExporter
	Metrics    *observability.Collector
	EnableCORS bool
	Logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	source := opts.Source
	if source == nil {
		source = opts.Sentences
	}
	return &Router{
		storage:    opts.Storage,
		sentences:  opts.Sentences,
		source:     source,
		sync:       opts.Sync,
		exporter:   opts.Exporter,
		metrics:    opts.Metrics,
		enableCORS: opts.EnableCORS,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.metrics != nil {
		router.Use(middleware.Metrics(rt.metrics))
	}
	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", handlers.DegradedHeader},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics.Handler())
	}

	graphHandler := handlers.NewGraphHandler(rt.storage, rt.source, rt.sync, rt.exporter, rt.logger)
	sentenceHandler := handlers.NewSentenceHandler(rt.sentences, rt.source, rt.sync, rt.logger)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/sentences", sentenceHandler.Capture)

		r.Route("/graph", func(r chi.Router) {
			r.Get("/", graphHandler.GetGraph)
			r.Put("/", graphHandler.SaveGraph)
			r.Delete("/", graphHandler.ClearGraph)
			r.Post("/merge", graphHandler.MergeGraph)
			r.Get("/topics", graphHandler.GetTopics)
			r.Get("/frameworks", graphHandler.GetFrameworks)
			r.Get("/date-range", graphHandler.GetDateRange)
			r.Get("/domains", graphHandler.GetDomains)
			r.Get("/domains/{context}", graphHandler.GetDomainStats)
			r.Post("/sync", graphHandler.Sync)
			r.Post("/refresh/{context}", graphHandler.RefreshContext)
			r.Post("/export", graphHandler.Export)
		})
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
