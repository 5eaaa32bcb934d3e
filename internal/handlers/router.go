package handlers

import (
	"context"
	"net/http"
	"time"

	"soul-card-backend/internal/metrics"
	"soul-card-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Pinger reports whether the database is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the router serves
type Deps struct {
	Users         UserService
	Profiles      ProfileService
	Applications  ApplicationService
	Hub           EventHub
	DB            Pinger
	SubmitLimiter *middleware.IPRateLimiter
}

// NewRouter builds the HTTP API
func NewRouter(d Deps) http.Handler {
	userHandler := NewUserHandler(d.Users)
	profileHandler := NewProfileHandler(d.Profiles)
	applicationHandler := NewApplicationHandler(d.Applications)
	wsHandler := NewWebSocketHandler(d.Hub, d.Users)

	requireAuth := middleware.RequireAuth(d.Users)
	optionalAuth := middleware.OptionalAuth(d.Users)
	limitSubmit := func(next http.Handler) http.Handler { return next }
	if d.SubmitLimiter != nil {
		limitSubmit = d.SubmitLimiter.Limit
	}

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", healthHandler(d.DB))
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)
		r.Get("/cards/{share_code}", profileHandler.GetCard)
		r.With(limitSubmit, optionalAuth).Post("/cards/{share_code}/applications", applicationHandler.Submit)

		// Guest applicants authenticate with the token returned on submit
		r.Get("/guest/applications/{id}", applicationHandler.GuestGet)
		r.Post("/guest/applications/{id}/follow-ups/answers", applicationHandler.GuestAnswerFollowUp)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", userHandler.Me)
			r.Put("/me/push-token", userHandler.UpdatePushToken)
			r.Get("/me/profile", profileHandler.GetMine)
			r.Patch("/me/profile", profileHandler.Update)
			r.Post("/me/profile/avatar", profileHandler.CreateAvatarUpload)

			r.Get("/applications/received", applicationHandler.Received)
			r.Get("/applications/sent", applicationHandler.Sent)
			r.Get("/applications/stats", applicationHandler.Stats)
			r.Get("/applications/{id}", applicationHandler.Get)
			r.Post("/applications/{id}/approve", applicationHandler.Approve)
			r.Post("/applications/{id}/reject", applicationHandler.Reject)
			r.Post("/applications/{id}/follow-ups", applicationHandler.AskFollowUp)
			r.Post("/applications/{id}/follow-ups/answers", applicationHandler.AnswerFollowUp)
		})
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+AccessTokenHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
