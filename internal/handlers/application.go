package handlers

import (
	"context"
	"net/http"

	"soul-card-backend/internal/middleware"
	"soul-card-backend/internal/models"
	"soul-card-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AccessTokenHeader carries a guest applicant's access token
const AccessTokenHeader = "X-Application-Token"

// ApplicationService runs the application workflow
type ApplicationService interface {
	Submit(ctx context.Context, currentUserID *string, shareCode string, in services.SubmitInput) (*services.SubmitResult, error)
	ListReceived(ctx context.Context, ownerID string) ([]*models.ApplicationEntry, error)
	ListSent(ctx context.Context, applicantID string) ([]*models.ApplicationEntry, error)
	Get(ctx context.Context, userID, id string) (*models.Application, error)
	GetWithToken(ctx context.Context, id, accessToken string) (*models.Application, error)
	Approve(ctx context.Context, actorID, id string, in services.DecisionInput) (*services.DecisionResult, error)
	Reject(ctx context.Context, actorID, id string, in services.DecisionInput) (*services.DecisionResult, error)
	AskFollowUp(ctx context.Context, actorID, id string, questions []string) (*models.Application, error)
	AnswerFollowUp(ctx context.Context, actorID, id string, answers []string) (*models.Application, error)
	AnswerFollowUpWithToken(ctx context.Context, id, accessToken string, answers []string) (*models.Application, error)
	Stats(ctx context.Context, userID string) (*services.Stats, error)
}

// ApplicationHandler handles application HTTP requests
type ApplicationHandler struct {
	applicationService ApplicationService
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(applicationService ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: applicationService}
}

type followUpRequest struct {
	Questions []string `json:"questions"`
}

type answersRequest struct {
	Answers []string `json:"answers"`
}

// Submit handles POST /api/v1/cards/{share_code}/applications
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in services.SubmitInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondServiceError(w, r, err)
		return
	}

	shareCode := chi.URLParam(r, "share_code")
	result, err := h.applicationService.Submit(r.Context(), middleware.CurrentUserID(r.Context()), shareCode, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("application_id", result.ApplicationID).
		Str("share_code", shareCode).
		Msg("Application submitted")
	respondJSON(w, http.StatusCreated, result)
}

// Received handles GET /api/v1/applications/received
func (h *ApplicationHandler) Received(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	entries, err := h.applicationService.ListReceived(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Sent handles GET /api/v1/applications/sent
func (h *ApplicationHandler) Sent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	entries, err := h.applicationService.ListSent(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

// Stats handles GET /api/v1/applications/stats
func (h *ApplicationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := h.applicationService.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Get handles GET /api/v1/applications/{id}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	app, err := h.applicationService.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// Approve handles POST /api/v1/applications/{id}/approve
func (h *ApplicationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.applicationService.Approve)
}

// Reject handles POST /api/v1/applications/{id}/reject
func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.applicationService.Reject)
}

func (h *ApplicationHandler) decide(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actorID, id string, in services.DecisionInput) (*services.DecisionResult, error),
) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var in services.DecisionInput
	if err := decodeOptionalJSON(w, r, &in); err != nil {
		respondServiceError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	result, err := fn(r.Context(), userID, id, in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("application_id", id).
		Str("status", string(result.Status)).
		Msg("Application decided")
	respondJSON(w, http.StatusOK, result)
}

// AskFollowUp handles POST /api/v1/applications/{id}/follow-ups
func (h *ApplicationHandler) AskFollowUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req followUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	app, err := h.applicationService.AskFollowUp(r.Context(), userID, chi.URLParam(r, "id"), req.Questions)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// AnswerFollowUp handles POST /api/v1/applications/{id}/follow-ups/answers
func (h *ApplicationHandler) AnswerFollowUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req answersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	app, err := h.applicationService.AnswerFollowUp(r.Context(), userID, chi.URLParam(r, "id"), req.Answers)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// GuestGet handles GET /api/v1/guest/applications/{id}
func (h *ApplicationHandler) GuestGet(w http.ResponseWriter, r *http.Request) {
	token, ok := accessToken(w, r)
	if !ok {
		return
	}

	app, err := h.applicationService.GetWithToken(r.Context(), chi.URLParam(r, "id"), token)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

// GuestAnswerFollowUp handles POST /api/v1/guest/applications/{id}/follow-ups/answers
func (h *ApplicationHandler) GuestAnswerFollowUp(w http.ResponseWriter, r *http.Request) {
	token, ok := accessToken(w, r)
	if !ok {
		return
	}

	var req answersRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	app, err := h.applicationService.AnswerFollowUpWithToken(r.Context(), chi.URLParam(r, "id"), token, req.Answers)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, app)
}

func accessToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.Header.Get(AccessTokenHeader)
	if token == "" {
		respondError(w, "application access token required", http.StatusUnauthorized)
		return "", false
	}
	return token, true
}
