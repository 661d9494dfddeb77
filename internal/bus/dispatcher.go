package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/metrics"
	"github.com/woozymasta/matchmaker/internal/models"
)

// ErrUnknownSubject is returned for messages on a subject the dispatcher does not handle.
var ErrUnknownSubject = errors.New("unknown subject")

// PlayerCounts receives authoritative player counts and stop notices.
type PlayerCounts interface {
	SetPlayerCount(secret string, count int)
	Remove(secret string) bool
}

// Heartbeats receives node heartbeats.
type Heartbeats interface {
	Heartbeat(endpoint string)
}

// Associations drops client-to-server associations of a stopped server.
type Associations interface {
	ForgetServer(secret string) int
}

// Dispatcher applies dedicated server reports to local state.
type Dispatcher struct {
	Registry PlayerCounts
	Sessions Associations
	// Nodes may be nil when liveness is not heartbeat driven.
	Nodes   Heartbeats
	Metrics *metrics.Metrics
	Prefix  string
}

// Handle decodes and applies one message.
func (d *Dispatcher) Handle(subject string, data []byte) error {
	suffix := strings.TrimPrefix(subject, d.Prefix+".")
	if d.Prefix == "" {
		suffix = subject
	}

	switch suffix {
	case SubjectNodeHeartbeat:
		var msg models.NodeHeartbeat
		if err := decode(data, &msg); err != nil {
			return err
		}
		if msg.Endpoint == "" {
			return errors.New("heartbeat without endpoint")
		}
		if d.Nodes != nil {
			d.Nodes.Heartbeat(msg.Endpoint)
		}
		log.Trace().Str("endpoint", msg.Endpoint).Msg("Node heartbeat")

	case SubjectServerPlayers:
		var msg models.PlayerCountReport
		if err := decode(data, &msg); err != nil {
			return err
		}
		if msg.Secret == "" {
			return errors.New("player count report without secret")
		}
		d.Registry.SetPlayerCount(msg.Secret, msg.CurrentPlayerCount)
		log.Debug().Str("secret", msg.Secret).Int("players", msg.CurrentPlayerCount).Msg("Player count reported")

	case SubjectServerStopped:
		var msg models.ServerStopped
		if err := decode(data, &msg); err != nil {
			return err
		}
		if msg.Secret == "" {
			return errors.New("stop notice without secret")
		}
		removed := d.Registry.Remove(msg.Secret)
		forgotten := d.Sessions.ForgetServer(msg.Secret)
		log.Info().
			Str("secret", msg.Secret).
			Bool("removed", removed).
			Int("sessions", forgotten).
			Msg("Server stopped")

	default:
		return fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}

	d.Metrics.BusMessage(suffix)
	return nil
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
