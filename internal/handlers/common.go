package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"soul-card-backend/internal/apperr"
	"soul-card-backend/internal/middleware"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 64 << 10

const internalErrorMessage = "something went wrong, please try again later"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse acknowledges a request that returns no resource
type SuccessResponse struct {
	Success bool `json:"success"`
}

// respondJSON sends v with the given status
func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondServiceError maps a service error to its HTTP status. Internal
// failures are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		respondError(w, internalErrorMessage, http.StatusInternalServerError)
		return
	}
	respondError(w, apperr.MessageOf(err), statusFor(kind))
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

var errBadBody = apperr.Validation("invalid request body")

// decodeJSON reads a required JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decode(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return decode(w, r, v, true)
}

func decode(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(err, apperr.KindValidation, errBadBody.Msg)
	}
	return nil
}

// currentUser returns the authenticated user. Routes behind RequireAuth always have one.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, "please sign in first", http.StatusUnauthorized)
	}
	return userID, ok
}
