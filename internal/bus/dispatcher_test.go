package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/matchmaker/internal/liveness"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/registry"
	"github.com/woozymasta/matchmaker/internal/session"
)

func newDispatcher(t *testing.T) (*Dispatcher, *registry.Memory, *session.ServerMap, *liveness.Nodes) {
	t.Helper()

	reg := registry.New(0)
	require.True(t, reg.Add(models.Server{
		Secret:         "s1",
		Code:           "AAAAA",
		RemoteEndpoint: "10.0.0.1:30000",
		Configuration:  models.GameplayServerConfiguration{MaxPlayerCount: 5},
	}))

	servers := session.NewServerMap()
	nodes := liveness.NewNodes(0)

	return &Dispatcher{
		Registry: reg,
		Sessions: servers,
		Nodes:    nodes,
		Prefix:   "matchmaker",
	}, reg, servers, nodes
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "matchmaker.player.connected", Subject("matchmaker", SubjectPlayerConnected))
	assert.Equal(t, "node.heartbeat", Subject("", SubjectNodeHeartbeat))
}

func TestDispatcherPlayerCount(t *testing.T) {
	d, reg, _, _ := newDispatcher(t)

	err := d.Handle("matchmaker.server.players", []byte(`{"secret":"s1","current_player_count":3}`))
	require.NoError(t, err)

	s, ok := reg.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 3, s.CurrentPlayerCount)

	// Out of range reports are clamped.
	require.NoError(t, d.Handle("matchmaker.server.players", []byte(`{"secret":"s1","current_player_count":9}`)))
	s, _ = reg.Get("s1")
	assert.Equal(t, 5, s.CurrentPlayerCount)
}

func TestDispatcherServerStopped(t *testing.T) {
	d, reg, servers, _ := newDispatcher(t)
	servers.Associate("1.1.1.1:1000", "s1")
	servers.Associate("2.2.2.2:1000", "other")

	require.NoError(t, d.Handle("matchmaker.server.stopped", []byte(`{"secret":"s1"}`)))

	_, ok := reg.Get("s1")
	assert.False(t, ok)
	_, ok = reg.GetByCode("AAAAA")
	assert.False(t, ok)
	_, ok = servers.Lookup("1.1.1.1:1000")
	assert.False(t, ok)
	_, ok = servers.Lookup("2.2.2.2:1000")
	assert.True(t, ok)

	// A repeated notice is harmless.
	require.NoError(t, d.Handle("matchmaker.server.stopped", []byte(`{"secret":"s1"}`)))
}

func TestDispatcherHeartbeat(t *testing.T) {
	d, _, _, nodes := newDispatcher(t)

	require.NoError(t, d.Handle("matchmaker.node.heartbeat", []byte(`{"endpoint":"10.0.0.1:30000"}`)))
	assert.True(t, nodes.EndpointExists(t.Context(), "10.0.0.1:40000"))

	d.Nodes = nil
	assert.NoError(t, d.Handle("matchmaker.node.heartbeat", []byte(`{"endpoint":"10.0.0.2:30000"}`)))
}

func TestDispatcherRejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
	}{
		{name: "unknown subject", subject: "matchmaker.something", data: `{}`},
		{name: "malformed json", subject: "matchmaker.server.players", data: `{`},
		{name: "missing secret", subject: "matchmaker.server.stopped", data: `{}`},
		{name: "missing endpoint", subject: "matchmaker.node.heartbeat", data: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, _ := newDispatcher(t)
			assert.Error(t, d.Handle(tt.subject, []byte(tt.data)))
		})
	}

	d, _, _, _ := newDispatcher(t)
	assert.ErrorIs(t, d.Handle("matchmaker.something", []byte(`{}`)), ErrUnknownSubject)
}
