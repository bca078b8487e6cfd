package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/api/shared"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/service"
)

// CreateCardRequest represents the request body for creating a new card
type CreateCardRequest struct {
	Type    string   `json:"type" validate:"required"`
	Content string   `json:"content,omitempty"`
	URL     string   `json:"url,omitempty"`
	FileID  string   `json:"file_id,omitempty"`
	Notes   string   `json:"notes,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// CardResponse represents the response data for a card
type CardResponse struct {
	ID               string                 `json:"id"`
	OwnerID          string                 `json:"owner_id"`
	Type             string                 `json:"type"`
	Content          string                 `json:"content,omitempty"`
	URL              string                 `json:"url,omitempty"`
	FileID           string                 `json:"file_id,omitempty"`
	Notes            string                 `json:"notes,omitempty"`
	Tags             []string               `json:"tags,omitempty"`
	Colors           []string               `json:"colors,omitempty"`
	AITags           []string               `json:"ai_tags,omitempty"`
	AISummary        string                 `json:"ai_summary,omitempty"`
	AITranscript     string                 `json:"ai_transcript,omitempty"`
	Metadata         domain.CardMetadata    `json:"metadata"`
	ProcessingStatus map[string]StageStatus `json:"processing_status"`
	ThumbnailID      string                 `json:"thumbnail_id,omitempty"`
	Revision         int64                  `json:"revision"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// StageStatus mirrors the per-stage enrichment state in API responses.
type StageStatus struct {
	State       string     `json:"status"`
	Confidence  *float64   `json:"confidence,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusResponse carries only the processing status of a card.
type StatusResponse struct {
	ID               string                 `json:"id"`
	Revision         int64                  `json:"revision"`
	ProcessingStatus map[string]StageStatus `json:"processing_status"`
}

// CardHandler handles card-related HTTP requests
type CardHandler struct {
	cardService service.CardService
	validator   *validator.Validate
}

// NewCardHandler creates a new CardHandler
func NewCardHandler(cardService service.CardService) *CardHandler {
	return &CardHandler{
		cardService: cardService,
		validator:   validator.New(),
	}
}

// CreateCard handles POST /api/cards requests. Enrichment runs
// asynchronously, so a successful save returns 202 with all stages pending.
func (h *CardHandler) CreateCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req CreateCardRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	card, err := h.cardService.SaveCard(r.Context(), userID, service.SaveCardInput{
		Type:    domain.CardType(req.Type),
		Content: req.Content,
		URL:     req.URL,
		FileID:  req.FileID,
		Notes:   req.Notes,
		Tags:    req.Tags,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to create card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, cardToResponse(card))
}

// GetCard handles GET /api/cards/{id} requests.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}

	card, err := h.cardService.GetCard(r.Context(), userID, cardID)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to retrieve card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, cardToResponse(card))
}

// GetCardStatus handles GET /api/cards/{id}/status requests, returning the
// per-stage enrichment state without the full card payload.
func (h *CardHandler) GetCardStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}

	card, err := h.cardService.GetCard(r.Context(), userID, cardID)
	if err != nil {
		h.respondServiceError(w, r, err, "Failed to retrieve card")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, StatusResponse{
		ID:               card.ID.String(),
		Revision:         card.Revision,
		ProcessingStatus: stagesToResponse(card.ProcessingStatus),
	})
}

// RegenerateAI handles POST /api/cards/{id}/regenerate requests. The reset
// and re-enqueue happen synchronously; generation itself is async, so the
// handler returns 202.
func (h *CardHandler) RegenerateAI(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}

	if err := h.cardService.RegenerateAI(r.Context(), userID, cardID); err != nil {
		h.respondServiceError(w, r, err, "Failed to regenerate AI metadata")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DeleteCard handles DELETE /api/cards/{id} requests.
func (h *CardHandler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	cardID, ok := parseCardID(w, r)
	if !ok {
		return
	}

	if err := h.cardService.DeleteCard(r.Context(), userID, cardID); err != nil {
		h.respondServiceError(w, r, err, "Failed to delete card")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondServiceError maps service and domain errors to HTTP status codes.
func (h *CardHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var rateErr *service.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", rateErr.Decision.RetryAt.UTC().Format(http.TimeFormat))
		shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
			"Too many cards created, try again later", err)
	case errors.Is(err, service.ErrCardNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound, "Card not found")
	case errors.Is(err, domain.ErrUnauthorized):
		shared.RespondWithError(w, r, http.StatusForbidden, "Not allowed")
	case errors.Is(err, domain.ErrValidation):
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid card", err)
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, fallback, err)
	}
}

func requireUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := r.Context().Value(shared.UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

func parseCardID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	cardID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid card ID")
		return uuid.Nil, false
	}
	return cardID, true
}

// cardToResponse converts a domain.Card to its API representation
func cardToResponse(card *domain.Card) CardResponse {
	return CardResponse{
		ID:               card.ID.String(),
		OwnerID:          card.OwnerID.String(),
		Type:             string(card.Type),
		Content:          card.Content,
		URL:              card.URL,
		FileID:           card.FileID,
		Notes:            card.Notes,
		Tags:             card.Tags,
		Colors:           card.Colors,
		AITags:           card.AITags,
		AISummary:        card.AISummary,
		AITranscript:     card.AITranscript,
		Metadata:         card.Metadata,
		ProcessingStatus: stagesToResponse(card.ProcessingStatus),
		ThumbnailID:      card.ThumbnailID,
		Revision:         card.Revision,
		CreatedAt:        card.CreatedAt,
		UpdatedAt:        card.UpdatedAt,
	}
}

func stagesToResponse(stages map[domain.Stage]domain.StageStatus) map[string]StageStatus {
	out := make(map[string]StageStatus, len(stages))
	for stage, status := range stages {
		out[string(stage)] = StageStatus{
			State:       string(status.State),
			Confidence:  status.Confidence,
			CompletedAt: status.CompletedAt,
		}
	}
	return out
}
