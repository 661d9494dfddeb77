// Package session tracks connected clients and the server each one joined.
package session

import (
	"bytes"
	"sync"
	"time"

	"github.com/woozymasta/matchmaker/internal/models"
)

// Session is one connected client, keyed by its endpoint.
type Session struct {
	lastKeepAlive   time.Time
	endpoint        string
	userID          string
	userName        string
	gameID          string
	clientRandom    []byte
	clientPublicKey []byte
	mu              sync.RWMutex
	platform        models.Platform
	authenticated   bool
}

// Info is a point-in-time copy of a session.
type Info struct {
	LastKeepAlive   time.Time       `json:"last_keep_alive"`
	Endpoint        string          `json:"endpoint"`
	UserID          string          `json:"user_id"`
	UserName        string          `json:"user_name"`
	GameID          string          `json:"game_id"`
	ClientRandom    []byte          `json:"client_random"`
	ClientPublicKey []byte          `json:"client_public_key"`
	Platform        models.Platform `json:"platform"`
	Authenticated   bool            `json:"authenticated"`
}

// New returns an unauthenticated session for endpoint.
func New(endpoint string, now time.Time) *Session {
	return &Session{endpoint: endpoint, lastKeepAlive: now}
}

// Endpoint returns the session key.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Bind attaches an authenticated identity to the session.
func (s *Session) Bind(platform models.Platform, userID, userName, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.platform = platform
	s.userID = userID
	s.userName = userName
	s.gameID = gameID
	s.authenticated = true
}

// SetClientHandshake stores the client's key exchange material.
func (s *Session) SetClientHandshake(random, publicKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientRandom = bytes.Clone(random)
	s.clientPublicKey = bytes.Clone(publicKey)
}

// Touch records a keepalive.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastKeepAlive = now
	s.mu.Unlock()
}

// LastKeepAlive returns the time of the last keepalive.
func (s *Session) LastKeepAlive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastKeepAlive
}

// Snapshot copies the session.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Info{
		Endpoint:        s.endpoint,
		Platform:        s.platform,
		UserID:          s.userID,
		UserName:        s.userName,
		GameID:          s.gameID,
		ClientRandom:    bytes.Clone(s.clientRandom),
		ClientPublicKey: bytes.Clone(s.clientPublicKey),
		LastKeepAlive:   s.lastKeepAlive,
		Authenticated:   s.authenticated,
	}
}
