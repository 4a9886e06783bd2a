package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"fluent-backend/application/ports"
	"fluent-backend/domain/graph"
	graphsvc "fluent-backend/domain/services"
)

// SyncMode describes which path a sync took
type SyncMode string

const (
	SyncModeNone        SyncMode = "none"
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
	SyncModeRebuild     SyncMode = "rebuild"
)

// SyncResult summarizes one sync run
type SyncResult struct {
	Mode          SyncMode    `json:"mode"`
	Processed     int         `json:"processed"`
	LastProcessed string      `json:"lastProcessed,omitempty"`
	Stats         graph.Stats `json:"stats"`
}

// GraphSync folds newly captured sentences into the stored graph
type GraphSync struct {
	storage     *GraphStorage
	sentences   ports.SentenceSource
	checkpoints ports.Checkpointer
	processor   *graphsvc.GraphProcessor
	metrics     ports.MetricsRecorder
	tracer      trace.Tracer
	logger      *zap.Logger

	flight singleflight.Group

	subMu       sync.Mutex
	subscribers map[int]func(*graph.Data)
	nextSub     int
}

// NewGraphSync wires the sync pipeline. metrics and tracer may be nil.
func NewGraphSync(
	storage *GraphStorage,
	sentences ports.SentenceSource,
	checkpoints ports.Checkpointer,
	processor *graphsvc.GraphProcessor,
	metrics ports.MetricsRecorder,
	tracer trace.Tracer,
	logger *zap.Logger,
) *GraphSync {
	if processor == nil {
		processor = graphsvc.NewGraphProcessor(nil)
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("graph-sync")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphSync{
		storage:     storage,
		sentences:   sentences,
		checkpoints: checkpoints,
		processor:   processor,
		metrics:     metrics,
		tracer:      tracer,
		logger:      logger,
		subscribers: make(map[int]func(*graph.Data)),
	}
}

// Sync processes the sentences captured since the last run. The first run,
// or a run without a stored graph, builds the graph from every sentence;
// later runs merge an incremental delta. When either path fails the graph is
// rebuilt from every sentence. Concurrent calls share one execution.
func (s *GraphSync) Sync(ctx context.Context) (*SyncResult, error) {
	return s.shared(ctx, "sync", s.sync)
}

// shared runs fn once for all concurrent callers of key. fn runs on a
// context that outlives any single caller; a caller whose ctx ends stops
// waiting without aborting the others.
func (s *GraphSync) shared(ctx context.Context, key string, fn func(context.Context) (*SyncResult, error)) (*SyncResult, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		result, _ := res.Val.(*SyncResult)
		return result, nil
	}
}

func (s *GraphSync) sync(ctx context.Context) (result *SyncResult, err error) {
	ctx, span := s.tracer.Start(ctx, "graph.sync")
	start := time.Now()
	defer func() {
		mode, processed := string(SyncModeNone), 0
		if result != nil {
			mode, processed = string(result.Mode), result.Processed
			span.SetAttributes(attribute.String("sync.mode", mode), attribute.Int("sync.processed", processed))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.RecordSync(mode, processed, time.Since(start), err)
		span.End()
	}()

	lastProcessed, cpErr := s.checkpoints.LastProcessed(ctx)
	if cpErr != nil {
		s.logger.Warn("Last processed timestamp unreadable, processing everything", zap.Error(cpErr))
		lastProcessed = ""
	}

	var (
		all      []graph.CapturedSentence
		existing *graph.Data
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = s.sentences.ListSentences(gctx)
		return err
	})
	g.Go(func() error {
		data, err := s.storage.GetGraphData(gctx)
		if err != nil {
			s.logger.Warn("Stored graph unreadable, rebuilding", zap.Error(err))
			data = nil
		}
		existing = data
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load captured sentences: %w", err)
	}

	newSentences := all
	if lastProcessed != "" {
		newSentences = SentencesSince(all, lastProcessed)
	}
	if len(newSentences) == 0 {
		s.logger.Debug("No new sentences to process")
		result := &SyncResult{Mode: SyncModeNone, LastProcessed: lastProcessed}
		if existing != nil {
			result.Stats = existing.Stats
		}
		return result, nil
	}

	s.logger.Info("Processing new sentences", zap.Int("count", len(newSentences)))

	result, err = s.apply(ctx, existing, lastProcessed, all, newSentences)
	if err != nil {
		s.logger.Error("Sentence processing failed, attempting full rebuild", zap.Error(err))
		result, err = s.rebuild(ctx, all)
		if err != nil {
			s.logger.Error("Full rebuild also failed", zap.Error(err))
			return nil, err
		}
	}

	s.notify(ctx)
	return result, nil
}

func (s *GraphSync) apply(
	ctx context.Context,
	existing *graph.Data,
	lastProcessed string,
	all, newSentences []graph.CapturedSentence,
) (*SyncResult, error) {
	result := &SyncResult{Processed: len(newSentences)}

	if existing == nil || lastProcessed == "" {
		// Without a stored graph nothing earlier survives, so every
		// sentence goes into the build.
		data := s.processor.ProcessSentencesIntoGraph(all)
		if err := s.storage.SaveGraphData(ctx, data); err != nil {
			return nil, err
		}
		result.Mode = SyncModeFull
		result.Processed = len(all)
		result.Stats = data.Stats
	} else {
		delta := s.processor.ProcessNewSentencesIncremental(newSentences, withoutIDs(all, newSentences))
		merged, err := s.storage.MergeGraphData(ctx, delta)
		if err != nil {
			return nil, err
		}
		result.Mode = SyncModeIncremental
		result.Stats = merged.Graph.Stats
	}

	result.LastProcessed = latestTimestamp(newSentences)
	if err := s.checkpoints.SetLastProcessed(ctx, result.LastProcessed); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GraphSync) rebuild(ctx context.Context, all []graph.CapturedSentence) (*SyncResult, error) {
	data := s.processor.ProcessSentencesIntoGraph(all)
	if err := s.storage.SaveGraphData(ctx, data); err != nil {
		return nil, err
	}

	result := &SyncResult{Mode: SyncModeRebuild, Processed: len(all), Stats: data.Stats}
	if len(all) > 0 {
		result.LastProcessed = latestTimestamp(all)
		if err := s.checkpoints.SetLastProcessed(ctx, result.LastProcessed); err != nil {
			return nil, err
		}
	}
	s.logger.Info("Full rebuild successful", zap.Int("sentences", len(all)))
	return result, nil
}

// Rebuild discards the stored graph and builds it again from every sentence
func (s *GraphSync) Rebuild(ctx context.Context) (*SyncResult, error) {
	return s.shared(ctx, "sync", func(ctx context.Context) (*SyncResult, error) {
		all, err := s.sentences.ListSentences(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load captured sentences: %w", err)
		}
		result, err := s.rebuild(ctx, all)
		if err != nil {
			return nil, err
		}
		s.notify(ctx)
		return result, nil
	})
}

// RefreshContext rebuilds the part of the stored graph belonging to the
// topic of one context. Edges to sentences of other contexts are recomputed, and a
// context without sentences is removed from the graph.
func (s *GraphSync) RefreshContext(ctx context.Context, label string) (*SyncResult, error) {
	return s.shared(ctx, "refresh:"+graph.TopicID(label), func(ctx context.Context) (*SyncResult, error) {
		ctx, span := s.tracer.Start(ctx, "graph.refresh_context",
			trace.WithAttributes(attribute.String("graph.context", label)))
		defer span.End()

		all, err := s.sentences.ListSentences(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load captured sentences: %w", err)
		}
		stored, err := s.storage.GetGraphData(ctx)
		if err != nil {
			s.logger.Warn("Stored graph unreadable, refreshing over an empty graph", zap.Error(err))
		}
		if stored == nil {
			stored = graph.Empty()
		}

		inContext := sentencesInTopic(all, label)
		pruned := withoutContext(stored, label)
		delta := s.processor.ProcessNewSentencesIncremental(inContext, withoutIDs(all, inContext))
		refreshed := MergeGraphs(pruned, delta)

		if err := s.storage.SaveGraphData(ctx, refreshed); err != nil {
			return nil, err
		}

		s.logger.Info("Refreshed graph for context",
			zap.String("context", label),
			zap.Int("sentences", len(inContext)),
		)
		s.notify(ctx)
		return &SyncResult{Mode: SyncModeRebuild, Processed: len(inContext), Stats: refreshed.Stats}, nil
	})
}

// Clear removes the stored graph and resets the last-processed marker so
// the next sync rebuilds from every captured sentence. With sentences set
// the captured sentences are removed as well.
func (s *GraphSync) Clear(ctx context.Context, sentences bool) error {
	_, err := s.shared(ctx, "sync", func(ctx context.Context) (*SyncResult, error) {
		if err := s.storage.ClearGraphData(ctx); err != nil {
			return nil, err
		}
		if sentences {
			if clearer, ok := s.sentences.(sentenceClearer); ok {
				if err := clearer.ClearSentences(ctx); err != nil {
					return nil, err
				}
			}
		}
		return nil, s.checkpoints.SetLastProcessed(ctx, "")
	})
	return err
}

type sentenceClearer interface {
	ClearSentences(ctx context.Context) error
}

// Subscribe registers fn to receive the stored graph after every
// successful sync. The returned function removes the subscription.
func (s *GraphSync) Subscribe(fn func(*graph.Data)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

// Watch runs Sync every interval until ctx is cancelled
func (s *GraphSync) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				s.logger.Error("Scheduled sync failed", zap.Error(err))
			}
		}
	}
}

func (s *GraphSync) notify(ctx context.Context) {
	s.subMu.Lock()
	subs := make([]func(*graph.Data), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	if len(subs) == 0 {
		return
	}

	data, err := s.storage.GetGraphData(ctx)
	if err != nil || data == nil {
		return
	}
	for _, fn := range subs {
		fn(data.Clone())
	}
}

// sentencesInTopic returns the sentences clustered under the topic of label
func sentencesInTopic(sentences []graph.CapturedSentence, label string) []graph.CapturedSentence {
	topicID := graph.TopicID(label)
	out := make([]graph.CapturedSentence, 0)
	for _, s := range sentences {
		if graph.TopicID(s.TopicLabel()) == topicID {
			out = append(out, s)
		}
	}
	return out
}

// withoutContext drops the sentence nodes and topic node of label together
// with every edge touching them.
func withoutContext(data *graph.Data, label string) *graph.Data {
	topicID := graph.TopicID(label)
	removed := make(map[string]struct{})
	out := &graph.Data{Nodes: make([]graph.Node, 0, len(data.Nodes)), Edges: make([]graph.Edge, 0, len(data.Edges))}

	for _, n := range data.Nodes {
		if n.ID == topicID || (n.IsSentence() && graph.TopicID(n.Context) == topicID) {
			removed[n.ID] = struct{}{}
			continue
		}
		out.Nodes = append(out.Nodes, n)
	}
	for _, e := range data.Edges {
		_, src := removed[e.Source]
		_, dst := removed[e.Target]
		if !src && !dst {
			out.Edges = append(out.Edges, e)
		}
	}
	return out.Recompute()
}

// latestTimestamp returns the timestamp of the most recently captured sentence
func latestTimestamp(sentences []graph.CapturedSentence) string {
	latest := sentences[len(sentences)-1]
	for _, s := range sentences {
		if s.Time().After(latest.Time()) {
			latest = s
		}
	}
	return latest.Timestamp
}
