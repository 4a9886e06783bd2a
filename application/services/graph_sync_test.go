package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluent-backend/domain/graph"
	graphsvc "fluent-backend/domain/services"
	apperrors "fluent-backend/pkg/errors"
)

type syncFixture struct {
	backing   *flakyStore
	sentences *SentenceStore
	storage   *GraphStorage
	sync      *GraphSync
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	backing := newFlakyStore()
	sentences := NewSentenceStore(backing, nil)
	storage := NewGraphStorage(backing, nil, nil, "test", nil)
	processor := graphsvc.NewGraphProcessor(nil, graphsvc.WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}))
	return &syncFixture{
		backing:   backing,
		sentences: sentences,
		storage:   storage,
		sync:      NewGraphSync(storage, sentences, sentences, processor, nil, nil, nil),
	}
}

func (f *syncFixture) add(t *testing.T, sentences ...graph.CapturedSentence) {
	t.Helper()
	_, err := f.sentences.AddSentences(context.Background(), sentences)
	require.NoError(t, err)
}

type sliceSource struct {
	sentences []graph.CapturedSentence
	err       error
}

func (s *sliceSource) ListSentences(context.Context) ([]graph.CapturedSentence, error) {
	return s.sentences, s.err
}

func hasEdgeBetween(data *graph.Data, a, b string) bool {
	for _, e := range data.Edges {
		if (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a) {
			return true
		}
	}
	return false
}

func TestGraphSync_FullThenIncremental(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool", "liquidity"),
		captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool", "liquidity"),
	)

	result, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeFull, result.Mode)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, "2024-04-02T10:00:00.000Z", result.LastProcessed)

	checkpoint, err := f.sentences.LastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-02T10:00:00.000Z", checkpoint)

	result, err = f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeNone, result.Mode)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 2, result.Stats.TotalSentences)

	f.add(t, captured("s3", "DeFi", "2024-04-03T10:00:00.000Z", "pool"))
	result, err = f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeIncremental, result.Mode)
	assert.Equal(t, 1, result.Processed)

	stored, err := f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, stored.Nodes, 4)
	assert.Equal(t, 3, stored.Stats.TotalSentences)
	assert.Equal(t, 1, stored.Stats.TopicCount)
	assert.True(t, hasEdgeBetween(stored, "s3", "s1"))
	assert.True(t, hasEdgeBetween(stored, "s3", "s2"))
	assert.True(t, hasEdgeBetween(stored, "s1", "s2"))
	assert.Equal(t, result.Stats, stored.Stats)
}

func TestGraphSync_RebuildsWhenProcessingFails(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
		captured("s2", "NFTs", "2024-04-02T10:00:00.000Z", "mint"),
	)

	f.backing.failPuts.Store(1)
	result, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeRebuild, result.Mode)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Stats.TopicCount)

	checkpoint, err := f.sentences.LastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-04-02T10:00:00.000Z", checkpoint)
}

func TestGraphSync_RebuildFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t, captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"))

	f.backing.failPuts.Store(2)
	_, err := f.sync.Sync(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsStorageWrite(err))
	assert.False(t, f.storage.HasGraphData(ctx))
}

func TestGraphSync_SourceFailure(t *testing.T) {
	f := newSyncFixture(t)
	gs := NewGraphSync(f.storage, &sliceSource{err: errors.New("supabase down")}, f.sentences, nil, nil, nil, nil)

	_, err := gs.Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supabase down")
}

func TestGraphSync_MissingGraphForcesFullBuild(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
		captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool"),
	)
	require.NoError(t, f.sentences.SetLastProcessed(ctx, "2024-04-01T10:00:00.000Z"))

	result, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeFull, result.Mode)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Stats.TotalSentences)
}

func TestGraphSync_ClearThenCaptureKeepsEarlierSentences(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
		captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool"),
	)
	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sync.Clear(ctx, false))
	assert.False(t, f.storage.HasGraphData(ctx))
	checkpoint, err := f.sentences.LastProcessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, checkpoint)

	f.add(t, captured("s3", "DeFi", "2024-04-03T10:00:00.000Z", "pool"))
	result, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeFull, result.Mode)
	assert.Equal(t, 3, result.Processed)

	stored, err := f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Stats.TotalSentences)
}

func TestGraphSync_ClearAll(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t, captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"))
	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, f.sync.Clear(ctx, true))
	all, err := f.sentences.ListSentences(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	result, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncModeNone, result.Mode)
	assert.False(t, f.storage.HasGraphData(ctx))
}

// gatedSource blocks ListSentences until release is closed and reports the
// state of the context it was called with.
type gatedSource struct {
	sentences []graph.CapturedSentence
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
}

func (g *gatedSource) ListSentences(ctx context.Context) ([]graph.CapturedSentence, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return g.sentences, ctx.Err()
}

func TestGraphSync_CallerCancellationDoesNotAbortSharedRun(t *testing.T) {
	f := newSyncFixture(t)
	source := &gatedSource{
		sentences: []graph.CapturedSentence{
			captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
			captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool"),
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	gs := NewGraphSync(f.storage, source, f.sentences, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := gs.Sync(ctx)
		first <- err
	}()

	<-source.started
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	second := make(chan error, 1)
	go func() {
		_, err := gs.Sync(context.Background())
		second <- err
	}()
	close(source.release)

	require.NoError(t, <-second)
	stored, err := f.storage.GetGraphData(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 2, stored.Stats.TotalSentences)
}

func TestGraphSync_ConcurrentCallsAgree(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
		captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool"),
	)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.sync.Sync(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Stats.TotalSentences)
	assert.Len(t, stored.Nodes, 3)
}

func TestGraphSync_Subscribe(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t, captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"))

	var received []*graph.Data
	unsubscribe := f.sync.Subscribe(func(data *graph.Data) {
		received = append(received, data)
	})

	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, 1, received[0].Stats.TotalSentences)

	unsubscribe()
	f.add(t, captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool"))
	_, err = f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, received, 1)
}

func TestGraphSync_Watch(t *testing.T) {
	f := newSyncFixture(t)
	f.add(t, captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f.sync.Subscribe(func(*graph.Data) { cancel() })

	err := f.sync.Watch(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.storage.HasGraphData(context.Background()))
}

func TestGraphSync_RefreshContext(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)

	s1 := captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool", "liquidity")
	s1.Framework = "Uniswap"
	s2 := captured("s2", "DeFi", "2024-04-02T10:00:00.000Z", "pool", "liquidity")
	s3 := captured("s3", "NFTs", "2024-04-03T10:00:00.000Z", "pool", "liquidity")
	s3.Framework = "Uniswap"
	f.add(t, s1, s2, s3)

	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)

	source := &sliceSource{sentences: []graph.CapturedSentence{s1, s3}}
	gs := NewGraphSync(f.storage, source, f.sentences, nil, nil, nil, nil)

	result, err := gs.RefreshContext(ctx, "DeFi")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	stored, err := f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	ids := stored.NodeIDs()
	assert.Contains(t, ids, "s1")
	assert.NotContains(t, ids, "s2")
	assert.Contains(t, ids, "topic-defi")
	assert.True(t, hasEdgeBetween(stored, "s1", "s3"))
	assert.False(t, hasEdgeBetween(stored, "s1", "s2"))
	assert.Equal(t, 2, stored.Stats.TotalSentences)

	source.sentences = []graph.CapturedSentence{s3}
	_, err = gs.RefreshContext(ctx, "DeFi")
	require.NoError(t, err)

	stored, err = f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	ids = stored.NodeIDs()
	assert.NotContains(t, ids, "topic-defi")
	assert.NotContains(t, ids, "s1")
	assert.Contains(t, ids, "topic-nfts")
	assert.Equal(t, 1, stored.Stats.TopicCount)
}

func TestGraphSync_RefreshContextMatchesTopicID(t *testing.T) {
	ctx := context.Background()
	f := newSyncFixture(t)
	f.add(t,
		captured("s1", "DeFi", "2024-04-01T10:00:00.000Z", "pool"),
		captured("s2", "defi", "2024-04-02T10:00:00.000Z", "pool"),
	)
	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)

	result, err := f.sync.RefreshContext(ctx, "DEFI")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	stored, err := f.storage.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Stats.TopicCount)
	assert.Equal(t, 2, stored.Stats.TotalSentences)
}
