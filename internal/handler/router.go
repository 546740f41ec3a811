package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	redisrepo "dauth-service/internal/repository/redis"
	"dauth-service/internal/session"
	"dauth-service/internal/token"
)

// RouterDeps carries everything the router wires together. Limiter may be
// nil, which disables rate limiting.
type RouterDeps struct {
	Auth     *AuthHandler
	Users    *UserHandler
	Codec    *token.Codec
	Sessions *session.Store
	Limiter  *redisrepo.RateLimiter
	Health   http.HandlerFunc
}

func NewRouter(deps RouterDeps) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if deps.Health != nil {
		router.Get("/health", deps.Health)
	} else {
		router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"healthy","service":"dauth-service"}`))
		})
	}

	authenticated := Authenticator(deps.Codec, deps.Sessions)

	router.Route("/auth", func(r chi.Router) {
		r.Use(RateLimit(deps.Limiter))
		deps.Auth.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/sessions", deps.Auth.Sessions)
		})
	})

	router.Route("/api/v1/users", func(r chi.Router) {
		r.Use(authenticated)
		deps.Users.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound,
			errorResponse(http.StatusNotFound, "Endpoint not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed,
			errorResponse(http.StatusMethodNotAllowed, "Method not allowed"))
	})

	return router
}
