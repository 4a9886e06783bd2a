package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluent-backend/domain/events"
	"fluent-backend/domain/graph"
	"fluent-backend/infrastructure/persistence/memory"
	apperrors "fluent-backend/pkg/errors"
)

// flakyStore fails the next failPuts writes and every read while failGets is set
type flakyStore struct {
	*memory.Store
	failPuts atomic.Int32
	failGets atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.NewStore()}
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failGets.Load() {
		return nil, errors.New("read timeout")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	if f.failPuts.Load() > 0 {
		f.failPuts.Add(-1)
		return errors.New("write rejected")
	}
	return f.Store.Put(ctx, key, value)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.GraphChanged
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.GraphChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// chainGraph returns n sentence nodes linked in a chain
func chainGraph(n int) *graph.Data {
	data := graph.Empty()
	for i := 1; i <= n; i++ {
		data.Nodes = append(data.Nodes, graph.Node{
			ID:        fmt.Sprintf("s%d", i),
			Type:      graph.NodeTypeSentence,
			Label:     fmt.Sprintf("sentence %d", i),
			Terms:     []string{"term"},
			Context:   "DeFi",
			Timestamp: "2024-04-01T10:00:00.000Z",
		})
		if i > 1 {
			src, dst := fmt.Sprintf("s%d", i-1), fmt.Sprintf("s%d", i)
			data.Edges = append(data.Edges, graph.Edge{
				ID: graph.EdgeID(src, dst), Source: src, Target: dst, Weight: 0.5, Type: graph.EdgeTypeTermMatch,
			})
		}
	}
	return data.Recompute()
}

func TestGraphStorage_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	storage := NewGraphStorage(memory.NewStore(), pub, nil, "test", nil)

	got, err := storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, storage.HasGraphData(ctx))

	require.NoError(t, storage.SaveGraphData(ctx, chainGraph(3)))

	got, err = storage.GetGraphData(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Nodes, 3)
	assert.Len(t, got.Edges, 2)
	assert.Equal(t, 3, got.Stats.TotalSentences)
	assert.True(t, storage.HasGraphData(ctx))
	assert.Equal(t, []string{events.GraphSaved}, pub.types())
}

func TestGraphStorage_SaveEmptyGraphHasNoData(t *testing.T) {
	ctx := context.Background()
	storage := NewGraphStorage(memory.NewStore(), nil, nil, "test", nil)

	require.NoError(t, storage.SaveGraphData(ctx, graph.Empty()))
	assert.False(t, storage.HasGraphData(ctx))
}

func TestGraphStorage_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	storage := NewGraphStorage(memory.NewStore(), nil, nil, "test", nil)
	data := chainGraph(5)

	first, err := storage.MergeGraphData(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, 5, first.NewNodes)
	assert.Equal(t, 4, first.NewEdges)

	second, err := storage.MergeGraphData(ctx, data)
	require.NoError(t, err)
	assert.Zero(t, second.NewNodes)
	assert.Zero(t, second.NewEdges)

	stored, err := storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 5)
	assert.Len(t, stored.Edges, 4)
	assert.Equal(t, graph.Stats{TotalSentences: 5, TopicCount: 0, AvgLinkStrength: 0.5}, stored.Stats)
}

func TestGraphStorage_MergeKeepsStoredEntities(t *testing.T) {
	ctx := context.Background()
	storage := NewGraphStorage(memory.NewStore(), nil, nil, "test", nil)
	require.NoError(t, storage.SaveGraphData(ctx, chainGraph(2)))

	update := chainGraph(3)
	update.Nodes[0].Label = "rewritten"
	update.Edges[0].Weight = 0.9

	result, err := storage.MergeGraphData(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewNodes)
	assert.Equal(t, 1, result.NewEdges)
	assert.Equal(t, "sentence 1", result.Graph.Nodes[0].Label)
	assert.Equal(t, 0.5, result.Graph.Edges[0].Weight)
	assert.Equal(t, 3, result.Graph.Stats.TotalSentences)
}

func TestGraphStorage_ReadFailureDegrades(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	storage := NewGraphStorage(store, nil, nil, "test", nil)
	require.NoError(t, storage.SaveGraphData(ctx, chainGraph(2)))

	store.failGets.Store(true)
	got, err := storage.GetGraphData(ctx)
	assert.Nil(t, got)
	assert.True(t, apperrors.IsStorageRead(err))
	assert.False(t, storage.HasGraphData(ctx))

	result, err := storage.MergeGraphData(ctx, chainGraph(3))
	require.NoError(t, err)
	assert.Equal(t, 3, result.NewNodes)
}

func TestGraphStorage_CorruptValueIsReadError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Put(ctx, GraphKey, []byte("{not json")))

	storage := NewGraphStorage(store, nil, nil, "test", nil)
	got, err := storage.GetGraphData(ctx)
	assert.Nil(t, got)
	assert.True(t, apperrors.IsStorageRead(err))
}

func TestGraphStorage_WriteFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	pub := &recordingPublisher{}
	storage := NewGraphStorage(store, pub, nil, "test", nil)

	store.failPuts.Store(2)
	assert.True(t, apperrors.IsStorageWrite(storage.SaveGraphData(ctx, chainGraph(2))))

	_, err := storage.MergeGraphData(ctx, chainGraph(2))
	assert.True(t, apperrors.IsStorageWrite(err))
	assert.Empty(t, pub.types())
}

func TestGraphStorage_Clear(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	storage := NewGraphStorage(memory.NewStore(), pub, nil, "test", nil)

	require.NoError(t, storage.ClearGraphData(ctx))

	require.NoError(t, storage.SaveGraphData(ctx, chainGraph(2)))
	require.NoError(t, storage.ClearGraphData(ctx))

	got, err := storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []string{events.GraphCleared, events.GraphSaved, events.GraphCleared}, pub.types())
}

func TestGraphStorage_PublishFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("bus down")}
	storage := NewGraphStorage(memory.NewStore(), pub, nil, "test", nil)

	require.NoError(t, storage.SaveGraphData(ctx, chainGraph(2)))
	assert.True(t, storage.HasGraphData(ctx))
}

func TestMergeGraphs_DedupesInputs(t *testing.T) {
	base := chainGraph(2)
	extra := chainGraph(2)
	extra.Nodes = append(extra.Nodes, extra.Nodes[0])

	merged := MergeGraphs(base, extra)
	assert.Len(t, merged.Nodes, 2)
	assert.Len(t, merged.Edges, 1)
	assert.Len(t, base.Nodes, 2)
}

func TestGraphStorage_ConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	storage := NewGraphStorage(memory.NewStore(), nil, nil, "test", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data := &graph.Data{Nodes: []graph.Node{{
				ID: fmt.Sprintf("n%d", i), Type: graph.NodeTypeSentence, Context: "DeFi",
			}}}
			_, err := storage.MergeGraphData(ctx, data)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 8)
}
