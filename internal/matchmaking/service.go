// Package matchmaking resolves or provisions dedicated servers for connecting clients
// and performs the join handshake.
package matchmaking

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/woozymasta/matchmaker/internal/metrics"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/registry"
)

const (
	// DefaultEncryptionDelay is how long a successful join waits after announcing the
	// player, giving the dedicated server time to install the client's keys.
	DefaultEncryptionDelay = 1500 * time.Millisecond

	// DefaultQuickplayHostID is the identity that owns every quickplay server.
	DefaultQuickplayHostID = "ziuMSceapEuNN7wRGQXrZg"
)

// Registry is the server store used by the coordinator.
type Registry interface {
	Get(secret string) (models.Server, bool)
	GetByCode(code string) (models.Server, bool)
	FindAvailablePublic(filter models.PublicFilter) (models.Server, bool)
	Add(server models.Server) bool
	Remove(secret string) bool
	TryJoin(secret string) (models.Server, registry.JoinResult)
}

// Provisioner spawns dedicated servers.
type Provisioner interface {
	CreateServer(ctx context.Context, req models.CreateServerRequest) (models.CreateServerResponse, error)
}

// NodeChecker reports whether the node behind a server endpoint is up.
type NodeChecker interface {
	EndpointExists(ctx context.Context, endpoint string) bool
}

// SecretProvider issues server secrets.
type SecretProvider interface {
	NewSecret() string
}

// CodeProvider issues join codes.
type CodeProvider interface {
	NewCode() string
}

// SessionMap records which server a client endpoint joined.
type SessionMap interface {
	Associate(endpoint, secret string)
}

// EventPublisher delivers events to dedicated servers. Publishing never fails from the caller's view.
type EventPublisher interface {
	Publish(ctx context.Context, event models.PlayerConnectedEvent)
}

// Deps are the collaborators of a Service. All are required.
type Deps struct {
	Registry    Registry
	Provisioner Provisioner
	Nodes       NodeChecker
	Secrets     SecretProvider
	Codes       CodeProvider
	Sessions    SessionMap
	Events      EventPublisher
}

// Options tune a Service. Zero values select the defaults.
type Options struct {
	// Clock drives the encryption delay and keepalive timestamps.
	Clock clock.Clock

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// QuickplayHostID owns quickplay servers.
	QuickplayHostID string

	// EncryptionDelay is waited on every successful join before responding.
	// A negative value disables it.
	EncryptionDelay time.Duration

	// PrivateHosting lets a secret-only request that matches nothing provision a
	// private server under that secret instead of failing with InvalidSecret.
	PrivateHosting bool
}

// Service is the matchmaking coordinator.
type Service struct {
	deps            Deps
	clock           clock.Clock
	metrics         *metrics.Metrics
	quickplayHostID string
	encryptionDelay time.Duration
	privateHosting  bool
}

// New returns a coordinator.
func New(deps Deps, opts Options) *Service {
	s := &Service{
		deps:            deps,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		quickplayHostID: opts.QuickplayHostID,
		encryptionDelay: opts.EncryptionDelay,
		privateHosting:  opts.PrivateHosting,
	}

	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.quickplayHostID == "" {
		s.quickplayHostID = DefaultQuickplayHostID
	}
	switch {
	case s.encryptionDelay == 0:
		s.encryptionDelay = DefaultEncryptionDelay
	case s.encryptionDelay < 0:
		s.encryptionDelay = 0
	}

	return s
}

// EncryptionDelay returns the delay applied to successful joins.
func (s *Service) EncryptionDelay() time.Duration {
	return s.encryptionDelay
}
