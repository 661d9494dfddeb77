package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
)

// handleAuthenticate opens the client's session, or reuses it, and binds the identity.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	endpoint, ok := s.sessionEndpoint(w, r, req.Port)
	if !ok {
		return
	}

	sess := s.deps.Sessions.Open(endpoint)
	resp := s.deps.Coordinator.Authenticate(r.Context(), sess, req.AuthenticateRequest)
	writeJSON(w, http.StatusOK, resp)
}

// handleKeepalive refreshes the session's idle timer.
func (s *Server) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	endpoint, ok := s.sessionEndpoint(w, r, req.Port)
	if !ok {
		return
	}

	sess, found := s.deps.Sessions.Get(endpoint)
	if !found || !s.deps.Sessions.Refresh(sess) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	s.deps.Coordinator.SessionKeepalive(r.Context(), sess)
	w.WriteHeader(http.StatusNoContent)
}

// handleConnect places an authenticated client on a server and journals the attempt.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	endpoint, ok := s.sessionEndpoint(w, r, req.Port)
	if !ok {
		return
	}

	sess, found := s.deps.Sessions.Get(endpoint)
	if !found {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	info := sess.Snapshot()
	if !info.Authenticated {
		http.Error(w, "Not authenticated", http.StatusForbidden)
		return
	}
	if !s.deps.Sessions.Refresh(sess) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	resp, err := s.deps.Coordinator.ConnectToMatchmakingServer(r.Context(), sess, req.ConnectRequest)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("Connect aborted")
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	country := ""
	if s.deps.Geo != nil {
		country = s.deps.Geo.CountryCode(GetRealIP(r, s.trustProxy))
	}

	s.journal(models.Connection{
		CreatedAt:   time.Now().UTC(),
		Endpoint:    endpoint,
		UserID:      info.UserID,
		UserName:    info.UserName,
		Platform:    info.Platform,
		CountryCode: country,
		Quickplay:   req.IsQuickplay(),
		Result:      resp.Result.String(),
		Secret:      resp.Secret,
		Code:        resp.Code,
	})

	writeJSON(w, http.StatusOK, resp)
}

// handleDisconnect drops the session. Player counts are left to the dedicated server.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	endpoint, ok := s.sessionEndpoint(w, r, req.Port)
	if !ok {
		return
	}

	if !s.deps.Sessions.Close(endpoint) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
