package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fluent-backend/application/ports"
	"fluent-backend/application/services"
	"fluent-backend/domain/graph"
	apperrors "fluent-backend/pkg/errors"
)

// SentenceHandler accepts captured sentences from the capture pipeline
type SentenceHandler struct {
	sentences *services.SentenceStore
	local     bool
	sync      *services.GraphSync
	now       func() time.Time
	logger    *zap.Logger
}

// NewSentenceHandler creates a sentence handler. Captures are accepted only
// when source is the local sentence store; any other source owns its own
// capture path and the sync never reads the local store.
func NewSentenceHandler(sentences *services.SentenceStore, source ports.SentenceSource, sync *services.GraphSync, logger *zap.Logger) *SentenceHandler {
	local := source == nil
	if store, ok := source.(*services.SentenceStore); ok && store == sentences {
		local = true
	}
	return &SentenceHandler{sentences: sentences, local: local, sync: sync, now: time.Now, logger: logger}
}

// CaptureSentenceRequest is one captured sentence
type CaptureSentenceRequest struct {
	ID               string         `json:"id,omitempty" validate:"omitempty,max=128"`
	Sentence         string         `json:"sentence" validate:"required"`
	Terms            []string       `json:"terms,omitempty" validate:"omitempty,dive,min=1"`
	Context          string         `json:"context,omitempty"`
	Framework        string         `json:"framework,omitempty"`
	SecondaryContext string         `json:"secondaryContext,omitempty"`
	Confidence       float64        `json:"confidence" validate:"gte=0,lte=100"`
	Timestamp        string         `json:"timestamp,omitempty"`
	Extract          *graph.Extract `json:"asi_extract,omitempty"`
}

// CaptureRequest is the body of POST /sentences
type CaptureRequest struct {
	Sentences []CaptureSentenceRequest `json:"sentences" validate:"required,min=1,dive"`
}

// CaptureResponse reports what a capture request changed
type CaptureResponse struct {
	Added int                  `json:"added"`
	IDs   []string             `json:"ids"`
	Sync  *services.SyncResult `json:"sync,omitempty"`
}

// Capture handles POST /sentences. Missing ids and timestamps are filled
// in, the sentences are stored and a sync is run. It answers 409 when
// sentences come from an external source.
func (h *SentenceHandler) Capture(w http.ResponseWriter, r *http.Request) {
	if !h.local {
		respondError(w, h.logger, apperrors.NewConflictError("sentences are read from an external source and cannot be captured here"))
		return
	}

	var req CaptureRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, h.logger, err)
		return
	}

	stamp := graph.FormatTimestamp(h.now())
	sentences := make([]graph.CapturedSentence, 0, len(req.Sentences))
	ids := make([]string, 0, len(req.Sentences))
	for _, s := range req.Sentences {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		if s.Timestamp == "" {
			s.Timestamp = stamp
		}
		ids = append(ids, s.ID)
		sentences = append(sentences, graph.CapturedSentence{
			ID:               s.ID,
			Sentence:         s.Sentence,
			Terms:            s.Terms,
			Context:          s.Context,
			Framework:        s.Framework,
			SecondaryContext: s.SecondaryContext,
			Confidence:       s.Confidence,
			Timestamp:        s.Timestamp,
			Extract:          s.Extract,
		})
	}

	added, err := h.sentences.AddSentences(r.Context(), sentences)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	resp := CaptureResponse{Added: added, IDs: ids}
	result, err := h.sync.Sync(r.Context())
	if err != nil {
		// The sentences are stored; the next sync picks them up.
		h.logger.Warn("Sync after capture failed", zap.Error(err))
	} else {
		resp.Sync = result
	}
	respondJSON(w, h.logger, http.StatusCreated, resp)
}
