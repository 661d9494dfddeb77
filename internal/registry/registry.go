// Package registry keeps the authoritative in-memory set of dedicated servers,
// indexed by secret and by join code.
package registry

import (
	"bytes"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
)

// DefaultGlobalMaxPlayers is the quickplay selection ceiling used when none is configured.
const DefaultGlobalMaxPlayers = 5

const shardCount = 32

// JoinResult is the outcome of TryJoin.
type JoinResult uint8

const (
	// Joined means the player count was incremented.
	Joined JoinResult = iota
	// JoinNotFound means no server is registered under the secret.
	JoinNotFound
	// JoinAtCapacity means the server is full and was left untouched.
	JoinAtCapacity
)

// entry owns one server record. Every field of server except CurrentPlayerCount
// is immutable after insertion; CurrentPlayerCount and removed are guarded by mu.
type entry struct {
	server  models.Server
	mu      sync.Mutex
	removed bool
}

func (e *entry) snapshot() models.Server {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.copyLocked()
}

func (e *entry) copyLocked() models.Server {
	s := e.server
	s.Random = bytes.Clone(e.server.Random)
	s.PublicKey = bytes.Clone(e.server.PublicKey)
	return s
}

func (e *entry) playerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.server.CurrentPlayerCount
}

// checkInvariantLocked logs a count outside [0, max]. Callers hold e.mu.
func (e *entry) checkInvariantLocked(op string) {
	count, limit := e.server.CurrentPlayerCount, e.server.Configuration.MaxPlayerCount
	if count < 0 || count > limit {
		log.Error().
			Str("op", op).
			Str("secret", e.server.Secret).
			Int("count", count).
			Int("max", limit).
			Msg("Impossible player count on server record")
	}
}

type shard struct {
	servers map[string]*entry
	mu      sync.RWMutex
}

// Memory is a concurrency-safe registry. Records are spread over lock stripes by
// the xxhash of their secret so single-key operations on different servers do not
// contend. The code index has its own lock; writers always take it before a stripe.
type Memory struct {
	byCode    map[string]*entry
	shards    [shardCount]*shard
	codeMu    sync.RWMutex
	globalMax int
}

// New returns an empty registry. globalMax is the ceiling used by FindAvailablePublic;
// a non-positive value selects DefaultGlobalMaxPlayers.
func New(globalMax int) *Memory {
	if globalMax <= 0 {
		globalMax = DefaultGlobalMaxPlayers
	}

	m := &Memory{
		byCode:    make(map[string]*entry),
		globalMax: globalMax,
	}
	for i := range m.shards {
		m.shards[i] = &shard{servers: make(map[string]*entry)}
	}

	return m
}

func (m *Memory) shardFor(secret string) *shard {
	return m.shards[xxhash.Sum64String(secret)%shardCount]
}

func (m *Memory) lookup(secret string) *entry {
	sh := m.shardFor(secret)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	return sh.servers[secret]
}

// Get returns a copy of the server registered under secret.
func (m *Memory) Get(secret string) (models.Server, bool) {
	e := m.lookup(secret)
	if e == nil {
		return models.Server{}, false
	}

	return e.snapshot(), true
}

// GetByCode returns a copy of the server registered under a join code.
func (m *Memory) GetByCode(code string) (models.Server, bool) {
	m.codeMu.RLock()
	e := m.byCode[code]
	m.codeMu.RUnlock()

	if e == nil {
		return models.Server{}, false
	}

	return e.snapshot(), true
}

// Add registers a server. It never overwrites: a taken secret or a taken code
// leaves both indexes unchanged and returns false. A record without a secret, with
// a maximum below one or with a count outside [0, max] is refused.
func (m *Memory) Add(server models.Server) bool {
	if server.Secret == "" {
		return false
	}

	limit := server.Configuration.MaxPlayerCount
	if limit < 1 || server.CurrentPlayerCount < 0 || server.CurrentPlayerCount > limit {
		log.Warn().
			Str("secret", server.Secret).
			Int("count", server.CurrentPlayerCount).
			Int("max", limit).
			Msg("Refusing server record with invalid player counts")
		return false
	}

	e := &entry{server: server}
	e.server.Random = bytes.Clone(server.Random)
	e.server.PublicKey = bytes.Clone(server.PublicKey)

	m.codeMu.Lock()
	defer m.codeMu.Unlock()

	if server.Code != "" {
		if _, taken := m.byCode[server.Code]; taken {
			log.Warn().
				Str("secret", server.Secret).
				Str("code", server.Code).
				Msg("Join code already registered")
			return false
		}
	}

	sh := m.shardFor(server.Secret)
	sh.mu.Lock()
	if _, exists := sh.servers[server.Secret]; exists {
		sh.mu.Unlock()
		return false
	}
	sh.servers[server.Secret] = e
	sh.mu.Unlock()

	if server.Code != "" {
		m.byCode[server.Code] = e
	}

	return true
}

// Remove unregisters a server from both indexes. It returns false if the secret is unknown.
func (m *Memory) Remove(secret string) bool {
	m.codeMu.Lock()
	defer m.codeMu.Unlock()

	sh := m.shardFor(secret)
	sh.mu.Lock()
	e, ok := sh.servers[secret]
	if ok {
		// Flagged before the stripe is released so a join racing the removal
		// either completes first or sees the flag.
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
		delete(sh.servers, secret)
	}
	sh.mu.Unlock()

	if !ok {
		return false
	}

	if m.byCode[e.server.Code] == e {
		delete(m.byCode, e.server.Code)
	}

	return true
}

// IncrementPlayerCount adds one player. It returns false when the secret is unknown
// or when the increment would push the count above the server's maximum; such an
// increment is rejected, not applied.
func (m *Memory) IncrementPlayerCount(secret string) bool {
	_, res := m.TryJoin(secret)
	return res == Joined
}

// TryJoin checks capacity and increments the player count as one step.
// The returned copy reflects the record after the operation.
func (m *Memory) TryJoin(secret string) (models.Server, JoinResult) {
	e := m.lookup(secret)
	if e == nil {
		return models.Server{}, JoinNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return models.Server{}, JoinNotFound
	}

	e.checkInvariantLocked("join")

	if e.server.CurrentPlayerCount+1 > e.server.Configuration.MaxPlayerCount {
		return e.copyLocked(), JoinAtCapacity
	}

	e.server.CurrentPlayerCount++
	return e.copyLocked(), Joined
}

// SetPlayerCount overwrites the player count with a value reported by the dedicated
// server. Values outside [0, max] are clamped and logged.
func (m *Memory) SetPlayerCount(secret string, count int) {
	e := m.lookup(secret)
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	limit := max(e.server.Configuration.MaxPlayerCount, 0)
	clamped := min(max(count, 0), limit)
	if clamped != count {
		log.Error().
			Str("secret", secret).
			Int("reported", count).
			Int("clamped", clamped).
			Int("max", limit).
			Msg("Reported player count out of range, clamping")
	}

	e.server.CurrentPlayerCount = clamped
}

// FindAvailablePublic picks a public server matching every filter field exactly.
// It keeps the least populated candidate seen so far and stops early at one with
// at most one player. A candidate already at the global ceiling is not returned.
//
// The scan is a point-in-time snapshot; callers must still go through TryJoin.
func (m *Memory) FindAvailablePublic(filter models.PublicFilter) (models.Server, bool) {
	var candidates []*entry
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, e := range sh.servers {
			if filter.Matches(&e.server) {
				candidates = append(candidates, e)
			}
		}
		sh.mu.RUnlock()
	}

	var (
		best      *entry
		bestCount int
	)
	for _, e := range candidates {
		count := e.playerCount()
		if best == nil || count < bestCount {
			best, bestCount = e, count
		}
		if bestCount <= 1 {
			break
		}
	}

	if best == nil || bestCount >= m.globalMax {
		return models.Server{}, false
	}

	return best.snapshot(), true
}

// Servers returns copies of every registered server.
func (m *Memory) Servers() []models.Server {
	var out []models.Server
	for _, sh := range m.shards {
		sh.mu.RLock()
		entries := make([]*entry, 0, len(sh.servers))
		for _, e := range sh.servers {
			entries = append(entries, e)
		}
		sh.mu.RUnlock()

		for _, e := range entries {
			out = append(out, e.snapshot())
		}
	}

	return out
}

// Len returns the number of registered servers.
func (m *Memory) Len() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.servers)
		sh.mu.RUnlock()
	}

	return n
}
