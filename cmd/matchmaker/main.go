// main is the entry point of the matchmaker.
// It wires configuration, storage, the server registry, liveness, the event bus and the HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/bus"
	"github.com/woozymasta/matchmaker/internal/codes"
	"github.com/woozymasta/matchmaker/internal/config"
	"github.com/woozymasta/matchmaker/internal/fake"
	"github.com/woozymasta/matchmaker/internal/geoip"
	"github.com/woozymasta/matchmaker/internal/liveness"
	"github.com/woozymasta/matchmaker/internal/logger"
	"github.com/woozymasta/matchmaker/internal/maintenance"
	"github.com/woozymasta/matchmaker/internal/matchmaking"
	"github.com/woozymasta/matchmaker/internal/metrics"
	"github.com/woozymasta/matchmaker/internal/provision"
	"github.com/woozymasta/matchmaker/internal/registry"
	"github.com/woozymasta/matchmaker/internal/server"
	"github.com/woozymasta/matchmaker/internal/session"
	"github.com/woozymasta/matchmaker/internal/storage"
	"github.com/woozymasta/matchmaker/internal/vars"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.Parse()

	logCloser := logger.Setup(cfg.Logger)
	log.Info().Str("version", vars.Version).Str("commit", vars.CommitShort()).Msg("Starting matchmaker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Matchmaker failed")
		_ = logCloser.Close()
		os.Exit(1)
	}

	log.Info().Msg("Matchmaker exited")
	_ = logCloser.Close()
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	// Data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(store, cfg.Storage.GenerateCount)
		return nil
	}
	if maintenance.Run(cfg, store) {
		return nil
	}

	geo := openGeoIP(ctx, cfg.GeoIP)
	defer func() { err = multierr.Append(err, geo.Close()) }()

	m := metrics.New()
	reg := registry.New(cfg.Matchmaking.GlobalMaxPlayers)
	servers := session.NewServerMap()
	sessions := session.NewStore(cfg.Sessions.Capacity, cfg.Sessions.IdleTimeout, servers, nil)
	probe := liveness.A2SProbe{Timeout: cfg.Liveness.Timeout, BufferSize: cfg.Liveness.BufferSize}

	m.Gauge("servers", "Registered dedicated servers.", func() float64 { return float64(reg.Len()) })
	m.Gauge("sessions", "Live client sessions.", func() float64 { return float64(sessions.Len()) })

	checker, nodes := livenessChecker(cfg, probe)
	if nodes != nil {
		m.Gauge("nodes", "Dedicated server nodes seen within the heartbeat TTL.", func() float64 { return float64(nodes.Len()) })
	}

	var events matchmaking.EventPublisher = bus.LogOnly{}
	if cfg.NATS.URL != "" {
		b, connErr := bus.Connect(bus.Options{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			Prefix:        cfg.NATS.Prefix,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if connErr != nil {
			return connErr
		}
		defer func() { err = multierr.Append(err, b.Close()) }()

		dispatcher := &bus.Dispatcher{Registry: reg, Sessions: servers, Metrics: m, Prefix: cfg.NATS.Prefix}
		if nodes != nil {
			dispatcher.Nodes = nodes
		}
		if err := b.Subscribe(dispatcher); err != nil {
			return err
		}
		events = b
	} else {
		log.Warn().Msg("NATS is not configured, player connected events are only logged")
	}

	svc := matchmaking.New(matchmaking.Deps{
		Registry:    reg,
		Provisioner: provision.New(cfg.Provisioner.URL, cfg.Provisioner.Token, cfg.Provisioner.Timeout),
		Nodes:       checker,
		Secrets:     codes.Secrets{},
		Codes:       codes.NewCodes(cfg.Matchmaking.CodeLength),
		Sessions:    servers,
		Events:      events,
	}, matchmaking.Options{
		Metrics:         m,
		QuickplayHostID: cfg.Matchmaking.QuickplayHostID,
		EncryptionDelay: cfg.Matchmaking.EncryptionDelay,
		PrivateHosting:  cfg.Matchmaking.PrivateHosting,
	})

	srv := server.New(server.Deps{
		Coordinator: svc,
		Sessions:    sessions,
		Servers:     reg,
		Journal:     store,
		Geo:         geo,
		Prober:      probe,
		Metrics:     m,
	}, cfg)
	srv.StartWorkers()
	defer srv.StopWorkers()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srv.Run(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// Connect responses wait for the encryption delay.
		WriteTimeout: 10*time.Second + svc.EncryptionDelay(),
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openGeoIP returns nil when country lookup is disabled or unavailable.
func openGeoIP(ctx context.Context, cfg config.GeoIP) *geoip.Provider {
	if cfg.Path == "" {
		return nil
	}

	if err := geoip.EnsureDB(ctx, cfg.Path, cfg.URL, cfg.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}

	geo, err := geoip.Open(cfg.Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		return nil
	}

	return geo
}

// livenessChecker picks the node checker for the configured mode. The heartbeat
// table is returned too when it is in use.
func livenessChecker(cfg *config.Config, probe liveness.A2SProbe) (matchmaking.NodeChecker, *liveness.Nodes) {
	switch cfg.Liveness.Mode {
	case config.LivenessA2S:
		return probe, nil
	case config.LivenessNone:
		return liveness.Always{}, nil
	}

	if cfg.NATS.URL == "" {
		log.Warn().Msg("Heartbeat liveness needs NATS, liveness checks disabled")
		return liveness.Always{}, nil
	}

	nodes := liveness.NewNodes(cfg.Liveness.NodeTTL)
	return nodes, nodes
}
