package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/domain/graph"
	apperrors "fluent-backend/pkg/errors"
)

// SentenceStore keeps captured sentences and the last-processed marker
// in the blob store next to the graph.
type SentenceStore struct {
	store  ports.BlobStore
	logger *zap.Logger

	mu sync.Mutex
}

// NewSentenceStore creates a sentence store over store
func NewSentenceStore(store ports.BlobStore, logger *zap.Logger) *SentenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentenceStore{store: store, logger: logger}
}

// ListSentences returns every captured sentence ordered by timestamp
func (s *SentenceStore) ListSentences(ctx context.Context) ([]graph.CapturedSentence, error) {
	return s.load(ctx)
}

// GetCapturedSentences is ListSentences. Read failures yield an empty list
// together with the storage-read error.
func (s *SentenceStore) GetCapturedSentences(ctx context.Context) ([]graph.CapturedSentence, error) {
	sentences, err := s.load(ctx)
	if err != nil {
		return []graph.CapturedSentence{}, err
	}
	return sentences, nil
}

// GetNewCapturedSentences returns sentences captured strictly after since
func (s *SentenceStore) GetNewCapturedSentences(ctx context.Context, since string) ([]graph.CapturedSentence, error) {
	sentences, err := s.GetCapturedSentences(ctx)
	if err != nil {
		return sentences, err
	}
	return SentencesSince(sentences, since), nil
}

// GetSentencesByContext returns the sentences of one context, newest first
func (s *SentenceStore) GetSentencesByContext(ctx context.Context, label string) ([]graph.CapturedSentence, error) {
	sentences, err := s.GetCapturedSentences(ctx)
	if err != nil {
		return sentences, err
	}
	out := SentencesInContext(sentences, label)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().After(out[j].Time())
	})
	return out, nil
}

// AddSentences appends sentences, skipping ids that are already stored.
// It returns the number of sentences added.
func (s *SentenceStore) AddSentences(ctx context.Context, sentences []graph.CapturedSentence) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(existing)+len(sentences))
	for _, e := range existing {
		seen[e.ID] = struct{}{}
	}

	added := 0
	for _, sentence := range sentences {
		if _, ok := seen[sentence.ID]; ok {
			continue
		}
		seen[sentence.ID] = struct{}{}
		existing = append(existing, sentence.Normalized())
		added++
	}
	if added == 0 {
		return 0, nil
	}

	sortByTime(existing)
	raw, err := json.Marshal(existing)
	if err != nil {
		return 0, apperrors.NewStorageWriteError(SentencesKey, err)
	}
	if err := s.store.Put(ctx, SentencesKey, raw); err != nil {
		return 0, apperrors.NewStorageWriteError(SentencesKey, err)
	}

	s.logger.Info("Captured sentences stored",
		zap.Int("added", added),
		zap.Int("total", len(existing)),
	)
	return added, nil
}

// ClearSentences removes the stored sentences and the last-processed marker
func (s *SentenceStore) ClearSentences(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{SentencesKey, LastProcessedKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			return apperrors.NewStorageWriteError(key, err)
		}
	}
	return nil
}

// LastProcessed returns the timestamp of the last processed sentence, or ""
// when nothing has been processed yet.
func (s *SentenceStore) LastProcessed(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, LastProcessedKey)
	if errors.Is(err, ports.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		s.logger.Warn("Failed to read last processed timestamp", zap.Error(err))
		return "", apperrors.NewStorageReadError(LastProcessedKey, err)
	}
	return string(raw), nil
}

// SetLastProcessed records the timestamp of the last processed sentence
func (s *SentenceStore) SetLastProcessed(ctx context.Context, timestamp string) error {
	if err := s.store.Put(ctx, LastProcessedKey, []byte(timestamp)); err != nil {
		return apperrors.NewStorageWriteError(LastProcessedKey, err)
	}
	s.logger.Debug("Updated last processed timestamp", zap.String("timestamp", timestamp))
	return nil
}

func (s *SentenceStore) load(ctx context.Context) ([]graph.CapturedSentence, error) {
	raw, err := s.store.Get(ctx, SentencesKey)
	if errors.Is(err, ports.ErrNotFound) {
		return []graph.CapturedSentence{}, nil
	}
	if err != nil {
		s.logger.Warn("Failed to read captured sentences", zap.Error(err))
		return nil, apperrors.NewStorageReadError(SentencesKey, err)
	}

	var sentences []graph.CapturedSentence
	if err := json.Unmarshal(raw, &sentences); err != nil {
		s.logger.Warn("Stored sentences are not valid JSON", zap.Error(err))
		return nil, apperrors.NewStorageReadError(SentencesKey, err)
	}
	for i := range sentences {
		sentences[i] = sentences[i].Normalized()
	}
	sortByTime(sentences)
	return sentences, nil
}

// SentencesSince returns the sentences captured strictly after since.
// An unparseable since returns every sentence.
func SentencesSince(sentences []graph.CapturedSentence, since string) []graph.CapturedSentence {
	cutoff := graph.ParseTimestamp(since)
	if cutoff.IsZero() {
		return append([]graph.CapturedSentence(nil), sentences...)
	}
	out := make([]graph.CapturedSentence, 0)
	for _, s := range sentences {
		if s.Time().After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// SentencesInContext returns the sentences whose context is label
func SentencesInContext(sentences []graph.CapturedSentence, label string) []graph.CapturedSentence {
	out := make([]graph.CapturedSentence, 0)
	for _, s := range sentences {
		if s.TopicLabel() == label {
			out = append(out, s)
		}
	}
	return out
}

// withoutIDs returns sentences whose id is not in exclude
func withoutIDs(sentences, exclude []graph.CapturedSentence) []graph.CapturedSentence {
	ids := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		ids[s.ID] = struct{}{}
	}
	out := make([]graph.CapturedSentence, 0, len(sentences))
	for _, s := range sentences {
		if _, ok := ids[s.ID]; !ok {
			out = append(out, s)
		}
	}
	return out
}

func sortByTime(sentences []graph.CapturedSentence) {
	sort.SliceStable(sentences, func(i, j int) bool {
		return sentences[i].Time().Before(sentences[j].Time())
	})
}
