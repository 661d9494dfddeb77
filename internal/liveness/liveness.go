// Package liveness answers whether the node behind a dedicated server endpoint is still up.
package liveness

import (
	"context"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Nodes is a table of recently seen dedicated server nodes, fed by heartbeats.
// A node that misses heartbeats for the TTL is considered gone.
type Nodes struct {
	seen *expirable.LRU[string, time.Time]
}

// NewNodes returns an empty table with the given heartbeat TTL.
func NewNodes(ttl time.Duration) *Nodes {
	return &Nodes{seen: expirable.NewLRU[string, time.Time](0, nil, ttl)}
}

// Heartbeat marks the node hosting endpoint as alive. Endpoints may carry a port;
// nodes are tracked by host.
func (n *Nodes) Heartbeat(endpoint string) {
	n.seen.Add(hostOf(endpoint), time.Now())
}

// EndpointExists reports whether the node hosting endpoint has sent a heartbeat within the TTL.
func (n *Nodes) EndpointExists(_ context.Context, endpoint string) bool {
	_, ok := n.seen.Get(hostOf(endpoint))
	return ok
}

// Forget drops a node immediately.
func (n *Nodes) Forget(endpoint string) {
	n.seen.Remove(hostOf(endpoint))
}

// Len returns the number of live nodes.
func (n *Nodes) Len() int {
	return n.seen.Len()
}

// Always treats every endpoint as alive. Used when liveness checks are disabled.
type Always struct{}

// EndpointExists always returns true.
func (Always) EndpointExists(context.Context, string) bool {
	return true
}

func hostOf(endpoint string) string {
	host, _, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}

	return host
}
