package server

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/matchmaker/internal/metrics"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/session"
	"golang.org/x/time/rate"
)

// Coordinator is the matchmaking service behind the client API.
type Coordinator interface {
	Authenticate(ctx context.Context, sess *session.Session, req models.AuthenticateRequest) models.AuthenticateResponse
	SessionKeepalive(ctx context.Context, sess *session.Session)
	ConnectToMatchmakingServer(ctx context.Context, sess *session.Session, req models.ConnectRequest) (models.ConnectResponse, error)
}

// Servers is the registry view used by the admin API.
type Servers interface {
	Get(secret string) (models.Server, bool)
	Remove(secret string) bool
	Servers() []models.Server
	Len() int
}

// Journal persists connect attempts and answers admin statistics.
type Journal interface {
	InsertConnection(c models.Connection) error
	RecentConnections(limit int) ([]models.Connection, error)
	ResultStats(since time.Time) (map[string]int64, error)
	CountryStats(since time.Time) (map[string]int64, error)
}

// CountryResolver maps client IPs to ISO country codes.
type CountryResolver interface {
	CountryCode(ip string) string
}

// Prober queries a dedicated server directly.
type Prober interface {
	Query(ip string, port int) (*a2s.Info, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Coordinator Coordinator
	Sessions    *session.Store
	Servers     Servers
	Journal     Journal
	// Geo, Prober and Metrics may be nil.
	Geo     CountryResolver
	Prober  Prober
	Metrics *metrics.Metrics
}

// Server holds the HTTP layer's dependencies and the journal worker pool.
type Server struct {
	deps Deps

	// queue carries connect attempts from handlers to the journal writers.
	queue chan models.Connection

	// limiters holds one token bucket per client IP, evicted when idle.
	limiters   *expirable.LRU[string, *rate.Limiter]
	limitersMu sync.Mutex

	wg sync.WaitGroup

	// authToken guards the admin API.
	authToken string

	maxBody   int64
	workers   int
	rateCount int
	rateWin   time.Duration

	// trustProxy enables CF-Connecting-IP and X-Forwarded-For.
	trustProxy bool
}

// sessionRequest is the common part of every client request body.
type sessionRequest struct {
	Port int `json:"port"`
}

type authenticateRequest struct {
	models.AuthenticateRequest
	sessionRequest
}

type connectRequest struct {
	models.ConnectRequest
	sessionRequest
}
