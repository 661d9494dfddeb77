package session

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

// Store holds live sessions. A session that sees no keepalive for the idle
// timeout is evicted, and so is its server association.
type Store struct {
	sessions *expirable.LRU[string, *Session]
	servers  *ServerMap
	clock    clock.Clock
	mu       sync.Mutex
}

// NewStore returns a store holding at most capacity sessions, each expiring after
// idle without a refresh. A nil clock uses the wall clock.
func NewStore(capacity int, idle time.Duration, servers *ServerMap, clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if servers == nil {
		servers = NewServerMap()
	}

	st := &Store{servers: servers, clock: clk}
	st.sessions = expirable.NewLRU[string, *Session](capacity, st.onEvict, idle)

	return st
}

func (st *Store) onEvict(endpoint string, _ *Session) {
	st.servers.Forget(endpoint)
	log.Debug().Str("endpoint", endpoint).Msg("Session closed")
}

// Open returns the session for endpoint, creating it on first contact.
func (st *Store) Open(endpoint string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions.Get(endpoint); ok {
		return s
	}

	s := New(endpoint, st.clock.Now())
	st.sessions.Add(endpoint, s)
	log.Debug().Str("endpoint", endpoint).Msg("Session opened")

	return s
}

// Get returns a live session.
func (st *Store) Get(endpoint string) (*Session, bool) {
	return st.sessions.Get(endpoint)
}

// Refresh restarts the idle timer of a session. A session that was closed or
// evicted in the meantime is not brought back and Refresh returns false.
func (st *Store) Refresh(s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	current, ok := st.sessions.Peek(s.Endpoint())
	if !ok || current != s {
		return false
	}

	st.sessions.Add(s.Endpoint(), s)
	return true
}

// Close drops a session. It returns false if the endpoint had none.
func (st *Store) Close(endpoint string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.sessions.Remove(endpoint)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	return st.sessions.Len()
}

// Servers returns the endpoint to server association map.
func (st *Store) Servers() *ServerMap {
	return st.servers
}
