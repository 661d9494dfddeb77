// Package server exposes the matchmaking coordinator and the admin API over HTTP.
package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/config"
	"github.com/woozymasta/matchmaker/internal/models"
)

const journalQueueSize = 1000

// New creates a Server.
func New(deps Deps, cfg *config.Config) *Server {
	workers := cfg.Server.Workers
	if workers < 1 {
		workers = 1
	}

	return &Server{
		deps:       deps,
		authToken:  cfg.Server.AuthToken,
		maxBody:    cfg.Server.MaxBodySize,
		trustProxy: cfg.Server.TrustProxy,
		workers:    workers,
		rateCount:  cfg.RateLimit.Count,
		rateWin:    cfg.RateLimit.Window,
		queue:      make(chan models.Connection, journalQueueSize),
		limiters:   newLimiters(),
	}
}

// StartWorkers starts the connection journal writers.
func (s *Server) StartWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// StopWorkers closes the journal queue and waits until it is drained.
// No handler may run after it is called.
func (s *Server) StopWorkers() {
	close(s.queue)
	s.wg.Wait()
}

func (s *Server) worker() {
	defer s.wg.Done()

	for c := range s.queue {
		if err := s.deps.Journal.InsertConnection(c); err != nil {
			log.Error().Err(err).Str("endpoint", c.Endpoint).Msg("Failed to journal connection")
		}
	}
}

// journal queues c without blocking the request.
func (s *Server) journal(c models.Connection) {
	if s.deps.Journal == nil {
		return
	}

	select {
	case s.queue <- c:
	default:
		log.Warn().Str("endpoint", c.Endpoint).Msg("Journal queue full, dropping connection record")
	}
}

// Run configures the routes and returns the root handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()
	limit := s.RateLimitMiddleware

	mux.Handle("POST /api/authenticate", limit(http.HandlerFunc(s.handleAuthenticate)))
	mux.Handle("POST /api/keepalive", limit(http.HandlerFunc(s.handleKeepalive)))
	mux.Handle("POST /api/connect", limit(http.HandlerFunc(s.handleConnect)))
	mux.Handle("DELETE /api/session", limit(http.HandlerFunc(s.handleDisconnect)))

	admin := func(h http.HandlerFunc) http.Handler { return AdminAuthMiddleware(s.authToken, h) }
	mux.Handle("GET /api/servers", admin(s.handleListServers))
	mux.Handle("GET /api/server", admin(s.handleGetServer))
	mux.Handle("DELETE /api/server", admin(s.handleDeleteServer))
	mux.Handle("GET /api/a2s", admin(s.handleServerQuery))
	mux.Handle("GET /api/stats", admin(s.handleStats))

	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.LoggingMiddleware(mux)
}
