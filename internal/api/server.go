// Package api serves explorer sessions and stored datasets over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/todmy/embedscope/internal/auth"
	"github.com/todmy/embedscope/internal/explorer"
	"github.com/todmy/embedscope/internal/storage"
)

const (
	DefaultMaxSessions = 64

	// DefaultMaxBodyBytes limits JSON request bodies
	DefaultMaxBodyBytes = 32 << 20
)

// Options configures a Server
type Options struct {
	AllowedOrigins []string
	Session        explorer.Config
	MaxSessions    int
	MaxBodyBytes   int64
	Auth           auth.Service              // nil disables authentication
	Datasets       storage.DatasetRepository // nil disables dataset routes
}

type Server struct {
	router   *chi.Mux
	opts     Options
	sessions *SessionStore
}

func NewServer(opts Options) (*Server, error) {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://*"}
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	sessions, err := NewSessionStore(opts.MaxSessions)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s := &Server{router: r, opts: opts, sessions: sessions}
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.opts.Auth != nil {
			r.Post("/auth/token", auth.NewHandlers(s.opts.Auth).Token)
		}

		r.Group(func(r chi.Router) {
			if s.opts.Auth != nil {
				r.Use(auth.Middleware(s.opts.Auth))
			}

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.handleCreateSession)
				r.Get("/{sessionID}", s.handleGetSession)
				r.Delete("/{sessionID}", s.handleDeleteSession)

				r.Post("/{sessionID}/focus", s.handleFocus)
				r.Delete("/{sessionID}/focus", s.handleClearFocus)
				r.Post("/{sessionID}/narrow", s.handleNarrow)
				r.Post("/{sessionID}/reset", s.handleReset)
			})

			r.Route("/datasets", func(r chi.Router) {
				r.Post("/", s.handleCreateDataset)
				r.Get("/{datasetID}", s.handleGetDataset)
				r.Delete("/{datasetID}", s.handleDeleteDataset)
			})
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Helper to send JSON responses
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
