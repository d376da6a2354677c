// Package server provides the HTTP API for reelrank.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/reelrank/internal/auth"
	"github.com/hyperjump/reelrank/internal/config"
	"github.com/hyperjump/reelrank/internal/extract"
	"github.com/hyperjump/reelrank/internal/indexer"
	"github.com/hyperjump/reelrank/internal/keyword"
	"github.com/hyperjump/reelrank/internal/metrics"
	"github.com/hyperjump/reelrank/internal/recommend"
	"github.com/hyperjump/reelrank/internal/storage"
)

// Deps are the collaborators the routes are served from.
type Deps struct {
	Storage storage.Storage
	Keyword keyword.MovieIndex
	Service *recommend.Service
	Indexer *indexer.Indexer
	Auth    *auth.Authenticator
	Loader  *extract.Loader
	Config  *config.Config
	Logger  *zap.Logger
}

// Server is the HTTP server for the reelrank API.
type Server struct {
	storage storage.Storage
	keyword keyword.MovieIndex
	service *recommend.Service
	indexer *indexer.Indexer
	auth    *auth.Authenticator
	loader  *extract.Loader
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
	handler http.Handler
}

// NewServer creates a server and builds its router.
func NewServer(d Deps) *Server {
	s := &Server{
		storage: d.Storage,
		keyword: d.Keyword,
		service: d.Service,
		indexer: d.Indexer,
		auth:    d.Auth,
		loader:  d.Loader,
		config:  d.Config,
		logger:  d.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loader == nil {
		s.loader = extract.NewLoader()
	}
	if s.config == nil {
		s.config = &config.Config{}
		config.ApplyDefaults(s.config)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	cfg := s.config.Server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.config.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignup)
			r.Post("/login", s.handleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireUser)

			r.Get("/user/me", s.handleMe)
			r.Put("/user/preferences", s.handleUpdatePreferences)

			r.Route("/movie", func(r chi.Router) {
				r.Get("/", s.handleListMovies)
				r.Get("/genres", s.handleListGenres)
				r.Get("/actor/{id}", s.handleMoviesByActor)
				r.Get("/{id}", s.handleGetMovie)
			})

			r.Route("/user-activity", func(r chi.Router) {
				r.Get("/search", s.handleKeywordSearch)
				r.Get("/search-history", s.handleListSearchHistory)
				r.Delete("/search-history/{id}", s.handleDeleteSearchHistory)
				r.Get("/favorites", s.handleListFavorites)
				r.Post("/favorites/{movie_id}", s.handleAddFavorite)
				r.Delete("/favorites/{movie_id}", s.handleRemoveFavorite)
			})

			r.Route("/vector", func(r chi.Router) {
				r.Get("/search", s.handleVectorSearch)
				r.Post("/search", s.handleVectorSearch)
				r.Post("/upload", s.handleUpload)
				r.Post("/process", s.handleUpload)
				r.Get("/recommend", s.handleRecommendProfile)
				r.Post("/recommend", s.handleRecommendQuery)
				r.Get("/recommend/history", s.handleRecommendHistory)
				r.Get("/recommend/favorites", s.handleRecommendFavorites)
				r.Delete("/movies/{id}", s.handleRemoveMovie)
				r.Get("/status", s.handleStatus)
			})
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
