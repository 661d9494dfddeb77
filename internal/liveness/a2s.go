package liveness

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/a2s/pkg/a2s"
)

// A2SProbe checks a dedicated server directly with a Source Query A2S_INFO request.
type A2SProbe struct {
	Timeout    time.Duration
	BufferSize uint16
}

// Query connects to a game server via UDP and requests A2S_INFO.
func (p A2SProbe) Query(ip string, port int) (*a2s.Info, error) {
	client, err := a2s.New(ip, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	if p.BufferSize > 0 {
		client.BufferSize = p.BufferSize
	}
	if p.Timeout > 0 {
		client.Timeout = p.Timeout
	}

	return client.GetInfo()
}

// EndpointExists reports whether the server at endpoint answers A2S_INFO before the timeout.
func (p A2SProbe) EndpointExists(ctx context.Context, endpoint string) bool {
	if ctx.Err() != nil {
		return false
	}

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("Malformed server endpoint")
		return false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("Malformed server port")
		return false
	}

	if _, err := p.Query(host, port); err != nil {
		log.Debug().Err(err).Str("endpoint", endpoint).Msg("A2S query failed")
		return false
	}

	return true
}
