package playlist

import (
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerOptions tunes the HTTP layer. A nil JWTSecret means identity comes
// from the gateway's X-User-Id and X-User-Role headers.
type ServerOptions struct {
	JWTSecret      []byte
	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	svc     *Service
	logger  *log.Logger
	opts    ServerOptions
	limiter *callerLimiter
}

func NewServer(svc *Service, logger *log.Logger, opts ServerOptions) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		svc:     svc,
		logger:  logger,
		opts:    opts,
		limiter: newCallerLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
	}
}

func (s *Server) Router(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.identify)

		// Anonymous callers may read public playlists.
		r.Get("/playlists/{id}", s.handleGetPlaylist)
		r.Get("/playlists/user/{userId}", s.handleListUserPlaylists)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)

			r.Get("/playlists", s.handleListOwnPlaylists)
			r.Get("/playlists/shared", s.handleListSharedPlaylists)

			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit)

				r.Post("/playlists", s.handleCreatePlaylist)
				r.Patch("/playlists/{id}", s.handlePatchPlaylist)
				r.Delete("/playlists/{id}", s.handleDeletePlaylist)

				r.Post("/playlists/{id}/songs", s.handleAddSongs)
				r.Post("/playlists/{id}/songs/{songId}", s.handleAddSong)
				r.Delete("/playlists/{id}/songs/{songId}", s.handleRemoveSong)

				r.Post("/playlists/{id}/share", s.handleShare)
				r.Delete("/playlists/{id}/share/{userId}", s.handleRevokeShare)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "playlist-service",
	})
}
