package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
)

// decodeBody reads a size limited JSON body into v. On failure it answers 400 and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Debug().
			Err(err).
			Str("ip", GetRealIP(r, s.trustProxy)).
			Str("path", r.URL.Path).
			Msg("Invalid JSON")

		http.Error(w, "Bad Request", http.StatusBadRequest)
		return false
	}

	return true
}

// sessionEndpoint keys a client session by its real IP and the port it reports.
func (s *Server) sessionEndpoint(w http.ResponseWriter, r *http.Request, port int) (string, bool) {
	if port < 1 || port > 65535 {
		http.Error(w, "Invalid port", http.StatusBadRequest)
		return "", false
	}

	return net.JoinHostPort(GetRealIP(r, s.trustProxy), strconv.Itoa(port)), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
