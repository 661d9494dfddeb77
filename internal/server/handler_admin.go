package server

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/vars"
)

const (
	statsWindow  = 24 * time.Hour
	recentLimit  = 50
	maxRecentCap = 1000
)

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	Results   map[string]int64    `json:"results"`
	Countries map[string]int64    `json:"countries"`
	Recent    []models.Connection `json:"recent"`
	Servers   int                 `json:"servers"`
	Sessions  int                 `json:"sessions"`
}

// handleListServers returns every registered server, oldest first.
func (s *Server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	servers := s.deps.Servers.Servers()
	if servers == nil {
		servers = []models.Server{}
	}
	slices.SortFunc(servers, func(a, b models.Server) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Secret, b.Secret)
	})

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns one server.
// Query params: ?secret=...
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	server, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, server)
}

// handleDeleteServer force-removes a server and forgets the sessions that joined it.
// Query params: ?secret=...
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		http.Error(w, "Missing secret", http.StatusBadRequest)
		return
	}

	if !s.deps.Servers.Remove(secret) {
		http.NotFound(w, r)
		return
	}
	forgotten := s.deps.Sessions.Servers().ForgetServer(secret)

	log.Info().
		Str("secret", secret).
		Int("sessions", forgotten).
		Msg("Server removed manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server removed"})
}

// handleServerQuery runs a live A2S query against a registered server's endpoint.
// Query params: ?secret=...
func (s *Server) handleServerQuery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prober == nil {
		http.Error(w, "A2S queries disabled", http.StatusNotImplemented)
		return
	}

	server, ok := s.lookupServer(w, r)
	if !ok {
		return
	}

	host, portStr, err := net.SplitHostPort(server.RemoteEndpoint)
	if err != nil {
		http.Error(w, "Server endpoint is not host:port", http.StatusUnprocessableEntity)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		http.Error(w, "Invalid server port", http.StatusUnprocessableEntity)
		return
	}

	info, err := s.deps.Prober.Query(host, port)
	if err != nil {
		writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleStats summarizes the registry, sessions and the last day of the journal.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	limit := recentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxRecentCap)
	}

	resp := statsResponse{
		Servers:   s.deps.Servers.Len(),
		Sessions:  s.deps.Sessions.Len(),
		Results:   map[string]int64{},
		Countries: map[string]int64{},
		Recent:    []models.Connection{},
	}

	if s.deps.Journal != nil {
		since := time.Now().Add(-statsWindow)
		var err error

		if resp.Results, err = s.deps.Journal.ResultStats(since); err == nil {
			resp.Countries, err = s.deps.Journal.CountryStats(since)
		}
		if err == nil {
			var recent []models.Connection
			if recent, err = s.deps.Journal.RecentConnections(limit); err == nil && recent != nil {
				resp.Recent = recent
			}
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to read connection journal")
			http.Error(w, "Database Error", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports liveness and build info.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"build":  vars.Info(),
	})
}

func (s *Server) lookupServer(w http.ResponseWriter, r *http.Request) (models.Server, bool) {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		http.Error(w, "Missing secret", http.StatusBadRequest)
		return models.Server{}, false
	}

	server, ok := s.deps.Servers.Get(secret)
	if !ok {
		http.NotFound(w, r)
		return models.Server{}, false
	}

	return server, true
}
