package handlers

import (
	"context"
	"net/http"

	"soul-card-backend/internal/models"
	"soul-card-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ProfileService manages cards
type ProfileService interface {
	GetMine(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, userID string, upd services.ProfileUpdate) (*models.Profile, error)
	GetPublicCard(ctx context.Context, shareCode string) (*models.PublicCard, error)
	CreateAvatarUpload(ctx context.Context, userID, contentType string) (*services.AvatarUpload, error)
}

// ProfileHandler handles the owner's card and public card reads
type ProfileHandler struct {
	profileService ProfileService
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profileService ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// GetMine handles GET /api/v1/me/profile
func (h *ProfileHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	profile, err := h.profileService.GetMine(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// Update handles PATCH /api/v1/me/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var upd services.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		respondServiceError(w, r, err)
		return
	}

	profile, err := h.profileService.Update(r.Context(), userID, upd)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().Str("user_id", userID).Str("profile_id", profile.ID).Msg("Profile updated")
	respondJSON(w, http.StatusOK, profile)
}

type avatarRequest struct {
	ContentType string `json:"content_type"`
}

// CreateAvatarUpload handles POST /api/v1/me/profile/avatar
func (h *ProfileHandler) CreateAvatarUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req avatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	upload, err := h.profileService.CreateAvatarUpload(r.Context(), userID, req.ContentType)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, upload)
}

// GetCard handles GET /api/v1/cards/{share_code}
func (h *ProfileHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.profileService.GetPublicCard(r.Context(), chi.URLParam(r, "share_code"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, card)
}
