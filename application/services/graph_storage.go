package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/domain/events"
	"fluent-backend/domain/graph"
	apperrors "fluent-backend/pkg/errors"
)

// Keys of the single-slot values kept in the blob store
const (
	GraphKey         = "currentGraph"
	SentencesKey     = "capturedSentences"
	LastProcessedKey = "lastProcessed"
)

// GraphStorage persists one graph under a fixed key.
// Writes are serialized within the process; concurrent processes sharing a
// store still race at the read-modify-write boundary of Merge.
type GraphStorage struct {
	store     ports.BlobStore
	publisher ports.EventPublisher
	metrics   ports.MetricsRecorder
	namespace string
	logger    *zap.Logger

	mu sync.Mutex
}

// NewGraphStorage creates the storage façade. publisher and metrics may be nil.
func NewGraphStorage(
	store ports.BlobStore,
	publisher ports.EventPublisher,
	metrics ports.MetricsRecorder,
	namespace string,
	logger *zap.Logger,
) *GraphStorage {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphStorage{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		namespace: namespace,
		logger:    logger,
	}
}

// MergeResult reports what a merge added to the stored graph
type MergeResult struct {
	Graph    *graph.Data
	NewNodes int
	NewEdges int
}

// SaveGraphData overwrites the stored graph
func (s *GraphStorage) SaveGraphData(ctx context.Context, data *graph.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if data == nil {
		data = graph.Empty()
	}
	if err := s.write(ctx, data.Normalize()); err != nil {
		return err
	}

	s.logger.Info("Saved graph data",
		zap.Int("totalSentences", data.Stats.TotalSentences),
		zap.Int("topicCount", data.Stats.TopicCount),
		zap.Float64("avgLinkStrength", data.Stats.AvgLinkStrength),
	)
	s.publish(ctx, events.NewGraphChanged(events.GraphSaved, s.namespace, data.Stats, len(data.Nodes), len(data.Edges)))
	return nil
}

// GetGraphData returns the stored graph. An absent graph yields (nil, nil).
// A graph that cannot be read yields nil and a storage-read error, which
// callers may treat as "no data".
func (s *GraphStorage) GetGraphData(ctx context.Context) (*graph.Data, error) {
	return s.read(ctx)
}

// MergeGraphData unions newData into the stored graph by node and edge id.
// Stored entities win on id collisions and stats are recomputed from the
// union, so merging the same data twice leaves the stored graph unchanged.
func (s *GraphStorage) MergeGraphData(ctx context.Context, newData *graph.Data) (*MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if newData == nil {
		newData = graph.Empty()
	}

	existing, err := s.read(ctx)
	if err != nil {
		s.logger.Warn("Merging over unreadable graph, treating it as empty", zap.Error(err))
		existing = nil
	}

	base := existing
	if base == nil {
		base = graph.Empty()
	}
	merged := MergeGraphs(base, newData)
	result := &MergeResult{
		Graph:    merged,
		NewNodes: len(merged.Nodes) - len(base.Nodes),
		NewEdges: len(merged.Edges) - len(base.Edges),
	}

	if err := s.write(ctx, merged); err != nil {
		return nil, err
	}

	s.logger.Info("Merged graph data",
		zap.Int("newNodes", result.NewNodes),
		zap.Int("newEdges", result.NewEdges),
		zap.Int("totalNodes", len(merged.Nodes)),
	)
	s.publish(ctx, events.NewGraphChanged(events.GraphMerged, s.namespace, merged.Stats, result.NewNodes, result.NewEdges))
	return result, nil
}

// ClearGraphData removes the stored graph
func (s *GraphStorage) ClearGraphData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, GraphKey); err != nil {
		return apperrors.NewStorageWriteError(GraphKey, err)
	}

	s.metrics.SetGraphSize(0, 0)
	s.logger.Info("Cleared graph data", zap.String("namespace", s.namespace))
	s.publish(ctx, events.NewGraphChanged(events.GraphCleared, s.namespace, graph.Stats{}, 0, 0))
	return nil
}

// HasGraphData reports whether a readable graph with at least one node is stored
func (s *GraphStorage) HasGraphData(ctx context.Context) bool {
	data, err := s.read(ctx)
	return err == nil && data.HasNodes()
}

// MergeGraphs returns the union of base and extra by id, keeping base
// entities on collisions and the first occurrence of duplicates within
// either input. Inputs are not modified.
func MergeGraphs(base, extra *graph.Data) *graph.Data {
	out := &graph.Data{
		Nodes: make([]graph.Node, 0, len(base.Nodes)+len(extra.Nodes)),
		Edges: make([]graph.Edge, 0, len(base.Edges)+len(extra.Edges)),
	}

	nodeIDs := make(map[string]struct{}, cap(out.Nodes))
	for _, set := range [][]graph.Node{base.Nodes, extra.Nodes} {
		for _, n := range set {
			if _, ok := nodeIDs[n.ID]; ok {
				continue
			}
			nodeIDs[n.ID] = struct{}{}
			out.Nodes = append(out.Nodes, n)
		}
	}

	edgeIDs := make(map[string]struct{}, cap(out.Edges))
	for _, set := range [][]graph.Edge{base.Edges, extra.Edges} {
		for _, e := range set {
			if _, ok := edgeIDs[e.ID]; ok {
				continue
			}
			edgeIDs[e.ID] = struct{}{}
			out.Edges = append(out.Edges, e)
		}
	}

	return out.Recompute()
}

func (s *GraphStorage) read(ctx context.Context) (*graph.Data, error) {
	raw, err := s.store.Get(ctx, GraphKey)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Warn("Failed to read graph data", zap.String("key", GraphKey), zap.Error(err))
		return nil, apperrors.NewStorageReadError(GraphKey, err)
	}

	var data graph.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Warn("Stored graph data is not valid JSON", zap.String("key", GraphKey), zap.Error(err))
		return nil, apperrors.NewStorageReadError(GraphKey, err)
	}
	return data.Normalize(), nil
}

func (s *GraphStorage) write(ctx context.Context, data *graph.Data) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.NewStorageWriteError(GraphKey, err)
	}

	if err := s.store.Put(ctx, GraphKey, raw); err != nil {
		s.logger.Error("Failed to write graph data", zap.String("key", GraphKey), zap.Error(err))
		return apperrors.NewStorageWriteError(GraphKey, err)
	}

	s.metrics.SetGraphSize(len(data.Nodes), len(data.Edges))
	return nil
}

func (s *GraphStorage) publish(ctx context.Context, event events.GraphChanged) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish graph event",
			zap.String("eventType", event.EventType),
			zap.Error(err),
		)
	}
}
