package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	"fluent-backend/domain/graph"
	graphsvc "fluent-backend/domain/services"
	"fluent-backend/infrastructure/persistence/memory"
	"fluent-backend/interfaces/http/rest/handlers"
	"fluent-backend/pkg/observability"
)

type fakeExporter struct {
	exported *graph.Data
	err      error
}

func (f *fakeExporter) Export(_ context.Context, data *graph.Data) error {
	f.exported = data
	return f.err
}

type testServer struct {
	store   *memory.Store
	storage *services.GraphStorage
	handler http.Handler
}

func newTestServer(t *testing.T, exporter ports.GraphExporter, metrics *observability.Collector) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	sentences := services.NewSentenceStore(store, logger)
	storage := services.NewGraphStorage(store, nil, nil, "test", logger)
	sync := services.NewGraphSync(storage, sentences, sentences, graphsvc.NewGraphProcessor(nil), nil, nil, logger)

	router := NewRouter(Options{
		Storage:    storage,
		Sentences:  sentences,
		Sync:       sync,
		Exporter:   exporter,
		Metrics:    metrics,
		EnableCORS: true,
		Logger:     logger,
	})
	return &testServer{store: store, storage: storage, handler: router.Setup()}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func captureBody() map[string]interface{} {
	return map[string]interface{}{
		"sentences": []map[string]interface{}{
			{
				"id": "s1", "sentence": "Liquidity pools price swaps", "terms": []string{"liquidity", "pool"},
				"context": "DeFi", "framework": "Uniswap", "confidence": 90, "timestamp": "2024-04-01T10:00:00.000Z",
			},
			{
				"id": "s2", "sentence": "Pools need liquidity", "terms": []string{"pool", "liquidity"},
				"context": "DeFi", "confidence": 60, "timestamp": "2024-04-02T10:00:00.000Z",
			},
			{
				"sentence": "Mints create tokens", "terms": []string{"mint"},
				"context": "NFTs", "confidence": 75,
			},
		},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCaptureAndQuery(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	capture := decode[handlers.CaptureResponse](t, rec)
	assert.Equal(t, 3, capture.Added)
	require.Len(t, capture.IDs, 3)
	assert.NotEmpty(t, capture.IDs[2])
	require.NotNil(t, capture.Sync)
	assert.Equal(t, services.SyncModeFull, capture.Sync.Mode)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	full := decode[graph.Data](t, rec)
	assert.Equal(t, 3, full.Stats.TotalSentences)
	assert.Equal(t, 2, full.Stats.TopicCount)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph?topic=DeFi", nil)
	defi := decode[graph.Data](t, rec)
	assert.Equal(t, 2, defi.Stats.TotalSentences)
	assert.Equal(t, 1, defi.Stats.TopicCount)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph?view=confidence", nil)
	confident := decode[graph.Data](t, rec)
	assert.Equal(t, 2, confident.Stats.TotalSentences)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph?start=2024-04-01&end=2024-04-01", nil)
	day := decode[graph.Data](t, rec)
	assert.Equal(t, 1, day.Stats.TotalSentences)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/topics", nil)
	assert.JSONEq(t, `{"topics":["DeFi","NFTs"]}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/frameworks", nil)
	assert.JSONEq(t, `{"frameworks":["Uniswap"]}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/date-range", nil)
	dateRange := decode[graphsvc.DateRange](t, rec)
	assert.Equal(t, "2024-04-01", dateRange.Start)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/domains", nil)
	assert.JSONEq(t, `{"domains":[{"context":"DeFi","count":2},{"context":"NFTs","count":1}]}`, rec.Body.String())

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/domains/DeFi", nil)
	stats := decode[graphsvc.DomainStats](t, rec)
	assert.Equal(t, 2, stats.SentenceCount)
	assert.Equal(t, 3, stats.NodeCount)
}

func TestCaptureValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed", "{"},
		{"no sentences", map[string]interface{}{"sentences": []interface{}{}}},
		{"missing sentence", map[string]interface{}{"sentences": []map[string]interface{}{{"terms": []string{"x"}}}}},
		{"confidence out of range", map[string]interface{}{"sentences": []map[string]interface{}{{"sentence": "x", "confidence": 140}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/sentences", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode[map[string]interface{}](t, rec)
			assert.Equal(t, true, body["error"])
		})
	}
}

func TestGetGraph_Empty(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"nodes":[],"edges":[],"stats":{"totalSentences":0,"topicCount":0,"avgLinkStrength":0}}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(handlers.DegradedHeader))

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/date-range", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = srv.do(t, http.MethodGet, "/api/v1/graph?view=everything", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGraph_Degraded(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	require.NoError(t, srv.store.Put(context.Background(), services.GraphKey, []byte("garbage")))

	rec := srv.do(t, http.MethodGet, "/api/v1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get(handlers.DegradedHeader))
	assert.Equal(t, 0, decode[graph.Data](t, rec).Stats.TotalSentences)
}

func TestSaveMergeClear(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	node := func(id string) graph.Node {
		return graph.Node{ID: id, Type: graph.NodeTypeSentence, Label: id, Context: "DeFi"}
	}

	rec := srv.do(t, http.MethodPut, "/api/v1/graph", graph.Data{
		Nodes: []graph.Node{node("a")},
		Stats: graph.Stats{TotalSentences: 40},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[graph.Stats](t, rec).TotalSentences)

	rec = srv.do(t, http.MethodPost, "/api/v1/graph/merge", graph.Data{Nodes: []graph.Node{node("a"), node("b")}})
	require.Equal(t, http.StatusOK, rec.Code)
	merged := decode[map[string]interface{}](t, rec)
	assert.Equal(t, 1.0, merged["newNodes"])

	rec = srv.do(t, http.MethodPost, "/api/v1/graph/merge", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/graph?all=true", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, srv.storage.HasGraphData(context.Background()))

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/domains", nil)
	assert.JSONEq(t, `{"domains":[]}`, rec.Body.String())
}

func TestSyncAndRefresh(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/graph/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.SyncModeNone, decode[services.SyncResult](t, rec).Mode)

	rec = srv.do(t, http.MethodPost, "/api/v1/graph/refresh/DeFi", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[services.SyncResult](t, rec).Processed)
}

func TestExport(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t, nil, nil)
		rec := srv.do(t, http.MethodPost, "/api/v1/graph/export", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("no graph", func(t *testing.T) {
		srv := newTestServer(t, &fakeExporter{}, nil)
		rec := srv.do(t, http.MethodPost, "/api/v1/graph/export", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("exported", func(t *testing.T) {
		exporter := &fakeExporter{}
		srv := newTestServer(t, exporter, nil)
		srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())

		rec := srv.do(t, http.MethodPost, "/api/v1/graph/export", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, exporter.exported)
		assert.Equal(t, 3, exporter.exported.Stats.TotalSentences)
	})

	t.Run("driver failure", func(t *testing.T) {
		srv := newTestServer(t, &fakeExporter{err: errors.New("bolt closed")}, nil)
		srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())

		rec := srv.do(t, http.MethodPost, "/api/v1/graph/export", nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotContains(t, rec.Body.String(), "bolt closed")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, observability.NewCollector("fluent"))
	srv.do(t, http.MethodGet, "/api/v1/graph/domains/DeFi", nil)

	rec := srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/graph/domains/{context}"`)
}

type externalSource struct {
	sentences []graph.CapturedSentence
}

func (e *externalSource) ListSentences(context.Context) ([]graph.CapturedSentence, error) {
	return e.sentences, nil
}

func TestCapture_RejectedWithExternalSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	sentences := services.NewSentenceStore(store, logger)
	storage := services.NewGraphStorage(store, nil, nil, "test", logger)
	source := &externalSource{sentences: []graph.CapturedSentence{{
		ID: "remote-1", Sentence: "Bridges move tokens", Terms: []string{"bridge"},
		Context: "Interop", Confidence: 80, Timestamp: "2024-04-01T10:00:00.000Z",
	}}}
	sync := services.NewGraphSync(storage, source, sentences, nil, nil, nil, logger)
	srv := &testServer{store: store, storage: storage, handler: NewRouter(Options{
		Storage:   storage,
		Sentences: sentences,
		Source:    source,
		Sync:      sync,
		Logger:    logger,
	}).Setup()}

	rec := srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	local, err := sentences.ListSentences(context.Background())
	require.NoError(t, err)
	assert.Empty(t, local)

	rec = srv.do(t, http.MethodPost, "/api/v1/graph/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[services.SyncResult](t, rec).Processed)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph/domains", nil)
	assert.JSONEq(t, `{"domains":[{"context":"Interop","count":1}]}`, rec.Body.String())
}

func TestClearThenCapture(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(t, http.MethodPost, "/api/v1/sentences", captureBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodDelete, "/api/v1/graph", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/v1/sentences", map[string]interface{}{
		"sentences": []map[string]interface{}{{
			"id": "s4", "sentence": "Oracles feed prices", "terms": []string{"oracle"},
			"context": "DeFi", "confidence": 80, "timestamp": "2024-04-05T10:00:00.000Z",
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/graph", nil)
	assert.Equal(t, 4, decode[graph.Data](t, rec).Stats.TotalSentences)
}
