package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/matchmaker/internal/identity"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/registry"
	"github.com/woozymasta/matchmaker/internal/session"
)

type fakeProvisioner struct {
	err      error
	requests []models.CreateServerRequest
	resp     models.CreateServerResponse
	mu       sync.Mutex
}

func (f *fakeProvisioner) CreateServer(_ context.Context, req models.CreateServerRequest) (models.CreateServerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	return f.resp, f.err
}

func (f *fakeProvisioner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.requests)
}

type fakeNodes struct {
	dead map[string]bool
}

func (f *fakeNodes) EndpointExists(_ context.Context, endpoint string) bool {
	return !f.dead[endpoint]
}

type sequence struct {
	prefix string
	n      atomic.Int32
}

func (s *sequence) next() string {
	return fmt.Sprintf("%s%d", s.prefix, s.n.Add(1))
}

func (s *sequence) NewSecret() string { return s.next() }
func (s *sequence) NewCode() string   { return s.next() }

type recordingEvents struct {
	events []models.PlayerConnectedEvent
	mu     sync.Mutex
}

func (r *recordingEvents) Publish(_ context.Context, ev models.PlayerConnectedEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

type fixture struct {
	svc         *Service
	registry    *registry.Memory
	provisioner *fakeProvisioner
	nodes       *fakeNodes
	sessions    *session.ServerMap
	events      *recordingEvents
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	f := &fixture{
		registry: registry.New(0),
		provisioner: &fakeProvisioner{resp: models.CreateServerResponse{
			Success:        true,
			RemoteEndpoint: "10.0.0.1:30000",
			Random:         []byte{0xAA},
			PublicKey:      []byte{0xBB},
		}},
		nodes:    &fakeNodes{dead: map[string]bool{}},
		sessions: session.NewServerMap(),
		events:   &recordingEvents{},
	}

	if opts.EncryptionDelay == 0 {
		opts.EncryptionDelay = -1
	}

	f.svc = New(Deps{
		Registry:    f.registry,
		Provisioner: f.provisioner,
		Nodes:       f.nodes,
		Secrets:     &sequence{prefix: "secret-"},
		Codes:       &sequence{prefix: "CODE"},
		Sessions:    f.sessions,
		Events:      f.events,
	}, opts)

	return f
}

func authedSession(t *testing.T, svc *Service, endpoint string) *session.Session {
	t.Helper()

	sess := session.New(endpoint, time.Now())
	svc.Authenticate(context.Background(), sess, models.AuthenticateRequest{
		Platform: models.PlatformSteam,
		UserID:   "user-" + endpoint,
		UserName: "Player",
	})

	return sess
}

func quickplayRequest() models.ConnectRequest {
	return models.ConnectRequest{
		Random:    []byte{1, 2, 3},
		PublicKey: []byte{4, 5, 6},
		Configuration: models.GameplayServerConfiguration{
			MaxPlayerCount:     5,
			DiscoveryPolicy:    models.DiscoveryPublic,
			InvitePolicy:       models.InviteAnyone,
			GameplayServerMode: models.ServerModeCountdown,
			SongSelectionMode:  models.SongSelectionVote,
		},
		SelectionMask: models.BeatmapLevelSelectionMask{
			BeatmapDifficultyMask: models.DifficultyExpert,
			SongPackMask:          models.SongPackMask{Top: 7, Bottom: 9},
		},
	}
}

func registerServer(t *testing.T, reg *registry.Memory, secret, code string, players, maxPlayers int) models.Server {
	t.Helper()

	req := quickplayRequest()
	req.Configuration.MaxPlayerCount = maxPlayers
	s := models.Server{
		Secret:             secret,
		Code:               code,
		RemoteEndpoint:     "10.0.0.9:30000",
		Configuration:      req.Configuration,
		SelectionMask:      req.SelectionMask,
		CurrentPlayerCount: players,
		Host:               models.Player{UserID: "host", UserName: "Host"},
	}
	require.True(t, reg.Add(s))

	return s
}

func TestQuickplayProvisionsServer(t *testing.T) {
	f := newFixture(t, Options{})
	sess := authedSession(t, f.svc, "1.1.1.1:1000")
	req := quickplayRequest()
	req.Configuration.DiscoveryPolicy = models.DiscoveryHidden

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)
	require.Equal(t, models.ConnectSuccess, resp.Result)

	require.Equal(t, 1, f.provisioner.calls())
	created := f.provisioner.requests[0]
	assert.Equal(t, "secret-1", created.Secret)
	assert.Equal(t, DefaultQuickplayHostID, created.ManagerID)
	assert.Equal(t, models.DiscoveryPublic, created.Configuration.DiscoveryPolicy)

	servers := f.registry.Servers()
	require.Len(t, servers, 1)
	server := servers[0]
	assert.Equal(t, 1, server.CurrentPlayerCount)
	assert.Equal(t, "CODE1", server.Code)
	assert.True(t, server.IsPublic())
	assert.Equal(t, "Quickplay: Expert", server.Host.UserName)

	assert.Equal(t, "secret-1", resp.Secret)
	assert.Equal(t, "CODE1", resp.Code)
	assert.Equal(t, "10.0.0.1:30000", resp.RemoteEndpoint)
	assert.Equal(t, []byte{0xAA}, resp.Random)
	assert.Equal(t, []byte{0xBB}, resp.PublicKey)
	assert.Equal(t, req.Random, resp.ClientRandom)
	assert.Equal(t, req.PublicKey, resp.ClientPublicKey)
	assert.Equal(t, DefaultQuickplayHostID, resp.ManagerID)
	assert.Equal(t, DefaultQuickplayHostID, resp.UserID)
	assert.Equal(t, req.SelectionMask, resp.SelectionMask)
	assert.True(t, resp.IsConnectionOwner)
	assert.True(t, resp.IsDedicatedServer)

	secret, ok := f.sessions.Lookup("1.1.1.1:1000")
	require.True(t, ok)
	assert.Equal(t, "secret-1", secret)

	require.Equal(t, 1, f.events.count())
	ev := f.events.events[0]
	assert.Equal(t, "1.1.1.1:1000", ev.RemoteEndpoint)
	assert.Equal(t, "user-1.1.1.1:1000", ev.UserID)
	assert.Equal(t, "Player", ev.UserName)
	assert.Equal(t, req.Random, ev.Random)
	assert.Equal(t, req.PublicKey, ev.PublicKey)
}

func TestQuickplayJoinsExistingServer(t *testing.T) {
	f := newFixture(t, Options{})
	registerServer(t, f.registry, "busy", "BUSY1", 3, 5)
	registerServer(t, f.registry, "idle", "IDLE1", 0, 5)

	sess := authedSession(t, f.svc, "1.1.1.1:1000")
	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, quickplayRequest())
	require.NoError(t, err)

	assert.Equal(t, models.ConnectSuccess, resp.Result)
	assert.Equal(t, "idle", resp.Secret)
	assert.Zero(t, f.provisioner.calls())

	idle, _ := f.registry.Get("idle")
	assert.Equal(t, 1, idle.CurrentPlayerCount)
}

func TestConnectInvalidCode(t *testing.T) {
	f := newFixture(t, Options{PrivateHosting: true})
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	req := quickplayRequest()
	req.Code = "NOPE1"
	req.Secret = "also-set"

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)

	assert.Equal(t, models.ConnectInvalidCode, resp.Result)
	assert.Zero(t, f.registry.Len())
	assert.Zero(t, f.provisioner.calls())
	assert.Zero(t, f.events.count())
}

func TestConnectBySecret(t *testing.T) {
	t.Run("unknown secret", func(t *testing.T) {
		f := newFixture(t, Options{})
		sess := authedSession(t, f.svc, "1.1.1.1:1000")

		req := quickplayRequest()
		req.Secret = "unknown"

		resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectInvalidSecret, resp.Result)
		assert.Zero(t, f.provisioner.calls())
	})

	t.Run("known secret", func(t *testing.T) {
		f := newFixture(t, Options{})
		registerServer(t, f.registry, "private", "PRIV1", 0, 5)
		sess := authedSession(t, f.svc, "1.1.1.1:1000")

		req := quickplayRequest()
		req.Secret = "private"

		resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectSuccess, resp.Result)
		assert.Equal(t, "PRIV1", resp.Code)
	})

	t.Run("code falls back to secret", func(t *testing.T) {
		f := newFixture(t, Options{})
		registerServer(t, f.registry, "private", "PRIV1", 0, 5)
		sess := authedSession(t, f.svc, "1.1.1.1:1000")

		req := quickplayRequest()
		req.Code = "WRONG"
		req.Secret = "private"

		resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectSuccess, resp.Result)
	})
}

func TestPrivateHostingProvisionsUnderRequestSecret(t *testing.T) {
	f := newFixture(t, Options{PrivateHosting: true})
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	req := quickplayRequest()
	req.Secret = "my-lobby"
	req.Configuration.DiscoveryPolicy = models.DiscoveryWithCode

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)
	require.Equal(t, models.ConnectSuccess, resp.Result)

	gameID := identity.DeriveGameID(models.PlatformSteam, "user-1.1.1.1:1000")
	require.Equal(t, 1, f.provisioner.calls())
	assert.Equal(t, "my-lobby", f.provisioner.requests[0].Secret)
	assert.Equal(t, gameID, f.provisioner.requests[0].ManagerID)

	server, ok := f.registry.Get("my-lobby")
	require.True(t, ok)
	assert.Equal(t, "Player's server", server.Host.UserName)
	assert.Equal(t, gameID, server.Host.UserID)
	assert.False(t, server.IsPublic())
	assert.Equal(t, gameID, resp.ManagerID)
}

func TestConnectReapsDeadServer(t *testing.T) {
	f := newFixture(t, Options{})
	server := registerServer(t, f.registry, "stale", "STALE", 0, 5)
	f.nodes.dead[server.RemoteEndpoint] = true
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	req := quickplayRequest()
	req.Code = "STALE"

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectConfigMismatch, resp.Result)

	_, ok := f.registry.Get("stale")
	assert.False(t, ok)
	_, ok = f.registry.GetByCode("STALE")
	assert.False(t, ok)
	assert.Zero(t, f.provisioner.calls())
	assert.Zero(t, f.events.count())
}

func TestConnectProvisioningFailure(t *testing.T) {
	tests := []struct {
		name string
		resp models.CreateServerResponse
		err  error
	}{
		{name: "refused", resp: models.CreateServerResponse{Success: false}},
		{name: "transport error", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			f.provisioner.resp = tt.resp
			f.provisioner.err = tt.err
			sess := authedSession(t, f.svc, "1.1.1.1:1000")

			resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, quickplayRequest())
			require.NoError(t, err)
			assert.Equal(t, models.ConnectNoAvailableDedicatedServers, resp.Result)
			assert.Zero(t, f.registry.Len())
		})
	}
}

func TestConnectRefusesUnjoinableConfiguration(t *testing.T) {
	t.Run("quickplay", func(t *testing.T) {
		f := newFixture(t, Options{})
		req := quickplayRequest()
		req.Configuration.MaxPlayerCount = 0

		for i := 0; i < 3; i++ {
			sess := authedSession(t, f.svc, fmt.Sprintf("1.1.1.%d:1000", i))
			resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
			require.NoError(t, err)
			assert.Equal(t, models.ConnectConfigMismatch, resp.Result)
		}

		assert.Zero(t, f.provisioner.calls())
		assert.Zero(t, f.registry.Len())

		// Nothing was left behind to block the filter bucket.
		sess := authedSession(t, f.svc, "2.2.2.2:1000")
		resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, quickplayRequest())
		require.NoError(t, err)
		assert.Equal(t, models.ConnectSuccess, resp.Result)
		assert.Equal(t, 1, f.provisioner.calls())
	})

	t.Run("private hosting", func(t *testing.T) {
		f := newFixture(t, Options{PrivateHosting: true})
		sess := authedSession(t, f.svc, "1.1.1.1:1000")

		req := quickplayRequest()
		req.Secret = "my-lobby"
		req.Configuration.MaxPlayerCount = -1

		resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectConfigMismatch, resp.Result)
		assert.Zero(t, f.provisioner.calls())
		assert.Zero(t, f.registry.Len())
	})
}

func TestConnectRegistrationCollision(t *testing.T) {
	f := newFixture(t, Options{})
	// The code provider's first code is CODE1; an Expert server already holds it.
	registerServer(t, f.registry, "other", "CODE1", 0, 5)
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	req := quickplayRequest()
	req.SelectionMask.BeatmapDifficultyMask = models.DifficultyEasy

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectInvalidSecret, resp.Result)
	assert.Equal(t, 1, f.registry.Len())
}

func TestConnectServerAtCapacity(t *testing.T) {
	f := newFixture(t, Options{})
	registerServer(t, f.registry, "full", "FULL1", 2, 2)
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	req := quickplayRequest()
	req.Code = "FULL1"

	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectServerAtCapacity, resp.Result)

	full, _ := f.registry.Get("full")
	assert.Equal(t, 2, full.CurrentPlayerCount)
	_, associated := f.sessions.Lookup("1.1.1.1:1000")
	assert.False(t, associated)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	const (
		maxPlayers = 4
		clients    = 20
	)

	f := newFixture(t, Options{})
	registerServer(t, f.registry, "lobby", "LOBBY", 0, maxPlayers)

	var success, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sess := authedSession(t, f.svc, fmt.Sprintf("1.1.1.%d:1000", i))
			req := quickplayRequest()
			req.Code = "LOBBY"

			resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, req)
			if !assert.NoError(t, err) {
				return
			}
			switch resp.Result {
			case models.ConnectSuccess:
				success.Add(1)
			case models.ConnectServerAtCapacity:
				full.Add(1)
			default:
				t.Errorf("unexpected result %s", resp.Result)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, maxPlayers, success.Load())
	assert.EqualValues(t, clients-maxPlayers, full.Load())
	assert.Equal(t, maxPlayers, f.events.count())

	lobby, _ := f.registry.Get("lobby")
	assert.Equal(t, maxPlayers, lobby.CurrentPlayerCount)
}

func TestEncryptionDelayIsHonored(t *testing.T) {
	const delay = 60 * time.Millisecond

	f := newFixture(t, Options{EncryptionDelay: delay})
	assert.Equal(t, delay, f.svc.EncryptionDelay())
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	started := time.Now()
	resp, err := f.svc.ConnectToMatchmakingServer(context.Background(), sess, quickplayRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ConnectSuccess, resp.Result)
	assert.GreaterOrEqual(t, time.Since(started), delay)
}

func TestEncryptionDelayRespectsContext(t *testing.T) {
	// A mock clock never fires on its own, so only the context can end the wait.
	f := newFixture(t, Options{EncryptionDelay: time.Hour, Clock: clock.NewMock()})
	sess := authedSession(t, f.svc, "1.1.1.1:1000")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := f.svc.ConnectToMatchmakingServer(ctx, sess, quickplayRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The join itself happened before the wait.
	assert.Equal(t, 1, f.events.count())
}

func TestDefaultOptions(t *testing.T) {
	svc := New(Deps{}, Options{})
	assert.Equal(t, DefaultEncryptionDelay, svc.EncryptionDelay())
	assert.Equal(t, DefaultQuickplayHostID, svc.quickplayHostID)
}
