package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"fluent-backend/domain/graph"
)

const sentencesTable = "captured_sentences"

// sentenceRow mirrors a row of the captured_sentences table
type sentenceRow struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Sentence         string          `json:"sentence"`
	Terms            []string        `json:"terms"`
	Context          string          `json:"context"`
	Framework        string          `json:"framework"`
	SecondaryContext string          `json:"secondary_context"`
	Confidence       float64         `json:"confidence"`
	Timestamp        string          `json:"timestamp"`
	Extract          json.RawMessage `json:"asi_extract"`
}

type fetchFunc func(ctx context.Context) ([]sentenceRow, error)

// SentenceSource reads one user's captured sentences from Supabase
type SentenceSource struct {
	fetch  fetchFunc
	logger *zap.Logger
}

// NewSentenceSource connects to the Supabase project at url
func NewSentenceSource(url, key, userID string, logger *zap.Logger) (*SentenceSource, error) {
	client, err := supabase.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	fetch := func(ctx context.Context) ([]sentenceRow, error) {
		var rows []sentenceRow
		_, err := client.From(sentencesTable).
			Select("*", "", false).
			Eq("user_id", userID).
			ExecuteTo(&rows)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sentences: %w", err)
		}
		return rows, nil
	}
	return newSentenceSource(fetch, logger), nil
}

func newSentenceSource(fetch fetchFunc, logger *zap.Logger) *SentenceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SentenceSource{fetch: fetch, logger: logger}
}

// ListSentences returns the user's sentences ordered by timestamp
func (s *SentenceSource) ListSentences(ctx context.Context) ([]graph.CapturedSentence, error) {
	rows, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]graph.CapturedSentence, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.toSentence(row))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})

	s.logger.Debug("Fetched captured sentences", zap.Int("count", len(out)))
	return out, nil
}

func (s *SentenceSource) toSentence(row sentenceRow) graph.CapturedSentence {
	sentence := graph.CapturedSentence{
		ID:               row.ID,
		Sentence:         row.Sentence,
		Terms:            row.Terms,
		Context:          row.Context,
		Framework:        row.Framework,
		SecondaryContext: row.SecondaryContext,
		Confidence:       row.Confidence,
		Timestamp:        row.Timestamp,
	}
	if len(row.Extract) > 0 && string(row.Extract) != "null" {
		var extract graph.Extract
		if err := json.Unmarshal(row.Extract, &extract); err != nil {
			s.logger.Warn("Ignoring unreadable asi_extract",
				zap.String("sentenceID", row.ID),
				zap.Error(err),
			)
		} else {
			sentence.Extract = &extract
		}
	}
	return sentence.Normalized()
}
