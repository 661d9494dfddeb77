// Package bus connects the matchmaker to dedicated servers over NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectPlayerConnected = "player.connected"
	SubjectNodeHeartbeat   = "node.heartbeat"
	SubjectServerPlayers   = "server.players"
	SubjectServerStopped   = "server.stopped"
)

// Options configure the NATS connection.
type Options struct {
	URL           string
	Name          string
	Prefix        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Bus is a NATS connection carrying matchmaker traffic.
type Bus struct {
	nc     *nats.Conn
	prefix string
	subs   []*nats.Subscription
}

// Subject joins prefix and suffix.
func Subject(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "." + suffix
}

// Connect dials NATS. The connection keeps retrying in the background when the
// server is not reachable at startup.
func Connect(opts Options) (*Bus, error) {
	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", opts.URL).Str("prefix", opts.Prefix).Msg("NATS connection established")

	return &Bus{nc: nc, prefix: opts.Prefix}, nil
}

// Publish announces a joined player to the dedicated servers. Failures are logged,
// never returned.
func (b *Bus) Publish(_ context.Context, event models.PlayerConnectedEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("secret", event.Secret).Msg("Failed to encode player connected event")
		return
	}

	subject := Subject(b.prefix, SubjectPlayerConnected)
	if err := b.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Str("secret", event.Secret).Msg("Failed to publish player connected event")
	}
}

// Subscribe routes the dedicated servers' reports to d.
func (b *Bus) Subscribe(d *Dispatcher) error {
	for _, suffix := range []string{SubjectNodeHeartbeat, SubjectServerPlayers, SubjectServerStopped} {
		subject := Subject(b.prefix, suffix)
		sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
			if err := d.Handle(msg.Subject, msg.Data); err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropped bus message")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}

		b.subs = append(b.subs, sub)
		log.Debug().Str("subject", subject).Msg("Subscribed")
	}

	return nil
}

// Close drains subscriptions and pending publishes, then closes the connection.
func (b *Bus) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}

	return nil
}

// LogOnly stands in for the bus when NATS is not configured.
type LogOnly struct{}

// Publish logs the event.
func (LogOnly) Publish(_ context.Context, event models.PlayerConnectedEvent) {
	log.Debug().
		Str("secret", event.Secret).
		Str("endpoint", event.RemoteEndpoint).
		Str("user_id", event.UserID).
		Msg("Player connected (bus disabled)")
}
