package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	"fluent-backend/domain/graph"
	graphsvc "fluent-backend/domain/services"
	apperrors "fluent-backend/pkg/errors"
)

// DegradedHeader is set when the stored graph could not be read and an
// empty graph was served instead.
const DegradedHeader = "X-Graph-Degraded"

// GraphHandler serves the stored graph and the operations on it
type GraphHandler struct {
	storage  *services.GraphStorage
	source   ports.SentenceSource
	sync     *services.GraphSync
	exporter ports.GraphExporter
	logger   *zap.Logger
}

// NewGraphHandler creates a graph handler. exporter may be nil.
func NewGraphHandler(
	storage *services.GraphStorage,
	source ports.SentenceSource,
	sync *services.GraphSync,
	exporter ports.GraphExporter,
	logger *zap.Logger,
) *GraphHandler {
	return &GraphHandler{
		storage:  storage,
		source:   source,
		sync:     sync,
		exporter: exporter,
		logger:   logger,
	}
}

// load returns the stored graph, or an empty one when nothing is stored or
// the stored value is unreadable.
func (h *GraphHandler) load(w http.ResponseWriter, r *http.Request) *graph.Data {
	data, err := h.storage.GetGraphData(r.Context())
	if err != nil {
		w.Header().Set(DegradedHeader, "true")
	}
	if data == nil {
		return graph.Empty()
	}
	return data
}

// GetGraph handles GET /graph with optional topic, framework, start, end and view filters
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := graphsvc.QueryOptions{
		Topic:     q.Get("topic"),
		Framework: q.Get("framework"),
		StartDate: q.Get("start"),
		EndDate:   q.Get("end"),
		View:      graphsvc.View(q.Get("view")),
	}
	switch opts.View {
	case graphsvc.ViewFull, graphsvc.ViewQuizTrail, graphsvc.ViewHighConfidence:
	default:
		respondError(w, h.logger, apperrors.NewValidationError("view must be one of: quiz, confidence"))
		return
	}

	respondJSON(w, h.logger, http.StatusOK, opts.Apply(h.load(w, r)))
}

// GetTopics handles GET /graph/topics
func (h *GraphHandler) GetTopics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"topics": graphsvc.Topics(h.load(w, r)),
	})
}

// GetFrameworks handles GET /graph/frameworks
func (h *GraphHandler) GetFrameworks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"frameworks": graphsvc.Frameworks(h.load(w, r)),
	})
}

// GetDateRange handles GET /graph/date-range. A graph without timestamps yields null.
func (h *GraphHandler) GetDateRange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.logger, http.StatusOK, graphsvc.GetDateRange(h.load(w, r)))
}

// GetDomains handles GET /graph/domains
func (h *GraphHandler) GetDomains(w http.ResponseWriter, r *http.Request) {
	sentences, err := h.source.ListSentences(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"domains": graphsvc.AvailableDomains(sentences),
	})
}

// GetDomainStats handles GET /graph/domains/{context}
func (h *GraphHandler) GetDomainStats(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "context")
	respondJSON(w, h.logger, http.StatusOK, graphsvc.GetDomainStats(label, h.load(w, r)))
}

// SaveGraph handles PUT /graph
func (h *GraphHandler) SaveGraph(w http.ResponseWriter, r *http.Request) {
	var data graph.Data
	if err := decodeJSON(r, &data); err != nil {
		respondError(w, h.logger, err)
		return
	}
	// Client-supplied stats are not trusted.
	data.Recompute()
	if err := h.storage.SaveGraphData(r.Context(), &data); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, data.Stats)
}

// MergeGraph handles POST /graph/merge
func (h *GraphHandler) MergeGraph(w http.ResponseWriter, r *http.Request) {
	var data graph.Data
	if err := decodeJSON(r, &data); err != nil {
		respondError(w, h.logger, err)
		return
	}
	result, err := h.storage.MergeGraphData(r.Context(), &data)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"newNodes": result.NewNodes,
		"newEdges": result.NewEdges,
		"stats":    result.Graph.Stats,
	})
}

// ClearGraph handles DELETE /graph. The last-processed marker is reset so
// the next sync rebuilds; with all=true the captured sentences are removed too.
func (h *GraphHandler) ClearGraph(w http.ResponseWriter, r *http.Request) {
	if err := h.sync.Clear(r.Context(), r.URL.Query().Get("all") == "true"); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /graph/sync
func (h *GraphHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Sync(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, result)
}

// RefreshContext handles POST /graph/refresh/{context}
func (h *GraphHandler) RefreshContext(w http.ResponseWriter, r *http.Request) {
	label := chi.URLParam(r, "context")
	if label == "" {
		respondError(w, h.logger, apperrors.NewValidationError("context is required"))
		return
	}
	result, err := h.sync.RefreshContext(r.Context(), label)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, result)
}

// Export handles POST /graph/export
func (h *GraphHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		respondError(w, h.logger, apperrors.NewUnavailableError("neo4j"))
		return
	}
	data, err := h.storage.GetGraphData(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if data == nil {
		respondError(w, h.logger, apperrors.NewNotFoundError("graph"))
		return
	}
	if err := h.exporter.Export(r.Context(), data); err != nil {
		respondError(w, h.logger, apperrors.NewExternalError("neo4j", err))
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]interface{}{
		"exportedNodes": len(data.Nodes),
		"exportedEdges": len(data.Edges),
	})
}
