package matchmaking

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/registry"
	"github.com/woozymasta/matchmaker/internal/session"
)

// ConnectToMatchmakingServer places the client on a server. It looks the server up by
// code or secret, or for quickplay picks the least populated matching public server;
// when nothing is found it provisions a new one. Every outcome is reported through
// the response's Result. The error is non-nil only when ctx ends during the join
// handshake.
func (s *Service) ConnectToMatchmakingServer(ctx context.Context, sess *session.Session, req models.ConnectRequest) (models.ConnectResponse, error) {
	quickplay := req.IsQuickplay()
	info := sess.Snapshot()

	logger := log.With().
		Str("endpoint", info.Endpoint).
		Str("user_id", info.UserID).
		Str("code", req.Code).
		Bool("quickplay", quickplay).
		Logger()

	logger.Trace().
		Str("user_name", info.UserName).
		Hex("random", req.Random).
		Hex("public_key", req.PublicKey).
		Stringer("difficulty", req.SelectionMask.BeatmapDifficultyMask).
		Uint16("modifiers", uint16(req.SelectionMask.GameplayModifiersMask)).
		Msg("Handling connect request")

	sess.SetClientHandshake(req.Random, req.PublicKey)

	resp, err := s.connect(ctx, logger, info, req, quickplay)
	if err != nil {
		return models.ConnectResponse{}, err
	}

	s.metrics.ObserveConnect(resp.Result, quickplay)
	if resp.Result != models.ConnectSuccess {
		logger.Debug().Stringer("result", resp.Result).Msg("Connect rejected")
	}

	return resp, nil
}

func (s *Service) connect(ctx context.Context, logger zerolog.Logger, info session.Info, req models.ConnectRequest, quickplay bool) (models.ConnectResponse, error) {
	server, found := s.resolve(req, quickplay)

	if !found && !quickplay {
		if req.Code != "" {
			return failure(models.ConnectInvalidCode), nil
		}
		if !s.privateHosting {
			return failure(models.ConnectInvalidSecret), nil
		}
	}

	if found && !s.deps.Nodes.EndpointExists(ctx, server.RemoteEndpoint) {
		logger.Info().
			Str("secret", server.Secret).
			Str("remote_endpoint", server.RemoteEndpoint).
			Msg("Node offline, removing server")

		s.deps.Registry.Remove(server.Secret)
		s.metrics.ServerReaped()
		return failure(models.ConnectConfigMismatch), nil
	}

	if !found {
		var result models.ConnectResult
		server, result = s.provision(ctx, logger, info, req, quickplay)
		if result != models.ConnectSuccess {
			return failure(result), nil
		}
	}

	return s.join(ctx, logger, info, server.Secret, req)
}

func (s *Service) resolve(req models.ConnectRequest, quickplay bool) (models.Server, bool) {
	if quickplay {
		return s.deps.Registry.FindAvailablePublic(models.FilterFor(req))
	}

	if req.Code != "" {
		if server, ok := s.deps.Registry.GetByCode(req.Code); ok {
			return server, true
		}
	}
	if req.Secret != "" {
		return s.deps.Registry.Get(req.Secret)
	}

	return models.Server{}, false
}

// provision asks the backend for a new server and registers it.
func (s *Service) provision(ctx context.Context, logger zerolog.Logger, info session.Info, req models.ConnectRequest, quickplay bool) (models.Server, models.ConnectResult) {
	secret := req.Secret
	managerID := info.GameID
	host := models.Player{UserID: info.GameID, UserName: info.UserName + "'s server"}
	config := req.Configuration

	if quickplay {
		secret = s.deps.Secrets.NewSecret()
		managerID = s.quickplayHostID
		host = models.Player{
			UserID:   s.quickplayHostID,
			UserName: "Quickplay: " + req.SelectionMask.BeatmapDifficultyMask.String(),
		}
		// Quickplay servers must be discoverable by the next quickplay request.
		config.DiscoveryPolicy = models.DiscoveryPublic
	}

	if config.MaxPlayerCount < 1 {
		logger.Warn().
			Int("max_players", config.MaxPlayerCount).
			Msg("Refusing to provision a server nobody can join")
		return models.Server{}, models.ConnectConfigMismatch
	}

	started := time.Now()
	created, err := s.deps.Provisioner.CreateServer(ctx, models.CreateServerRequest{
		Secret:        secret,
		ManagerID:     managerID,
		Configuration: config,
	})
	ok := err == nil && created.Success
	s.metrics.ObserveProvision(time.Since(started), ok)

	if !ok {
		logger.Warn().
			Err(err).
			Str("secret", secret).
			Str("manager_id", managerID).
			Msg("Provisioning backend has no dedicated server available")
		return models.Server{}, models.ConnectNoAvailableDedicatedServers
	}

	server := models.Server{
		Host:           host,
		Secret:         secret,
		Code:           s.deps.Codes.NewCode(),
		RemoteEndpoint: created.RemoteEndpoint,
		Random:         created.Random,
		PublicKey:      created.PublicKey,
		Configuration:  config,
		SelectionMask:  req.SelectionMask,
		CreatedAt:      s.clock.Now(),
	}

	if !s.deps.Registry.Add(server) {
		logger.Warn().
			Str("secret", secret).
			Str("code", server.Code).
			Msg("Provisioned server collides with a registered one")
		return models.Server{}, models.ConnectInvalidSecret
	}

	logger.Info().
		Str("secret", server.Secret).
		Str("code", server.Code).
		Str("remote_endpoint", server.RemoteEndpoint).
		Str("host", server.Host.UserName).
		Int("max_players", server.Configuration.MaxPlayerCount).
		Msg("Server created")

	return server, models.ConnectSuccess
}

// join admits the client to the server registered under secret. The capacity check
// runs on the registry's current record and is atomic with the increment.
func (s *Service) join(ctx context.Context, logger zerolog.Logger, info session.Info, secret string, req models.ConnectRequest) (models.ConnectResponse, error) {
	server, res := s.deps.Registry.TryJoin(secret)
	switch res {
	case registry.JoinNotFound:
		// Removed by a concurrent reap or a stop notice since it was resolved.
		return failure(models.ConnectConfigMismatch), nil
	case registry.JoinAtCapacity:
		return failure(models.ConnectServerAtCapacity), nil
	}

	s.deps.Sessions.Associate(info.Endpoint, secret)
	s.deps.Events.Publish(ctx, models.PlayerConnectedEvent{
		Secret:         secret,
		RemoteEndpoint: info.Endpoint,
		UserID:         info.UserID,
		UserName:       info.UserName,
		Random:         req.Random,
		PublicKey:      req.PublicKey,
	})

	if err := s.waitEncryption(ctx); err != nil {
		logger.Warn().Err(err).Str("secret", secret).Msg("Connect abandoned during handshake delay")
		return models.ConnectResponse{}, err
	}

	logger.Info().
		Str("secret", secret).
		Str("server_code", server.Code).
		Int("players", server.CurrentPlayerCount).
		Hex("random", server.Random).
		Hex("public_key", server.PublicKey).
		Msg("Connected to matchmaking server")

	return models.ConnectResponse{
		Result:            models.ConnectSuccess,
		UserID:            server.Host.UserID,
		UserName:          server.Host.UserName,
		ManagerID:         server.Host.UserID,
		Secret:            server.Secret,
		Code:              server.Code,
		RemoteEndpoint:    server.RemoteEndpoint,
		Random:            server.Random,
		PublicKey:         server.PublicKey,
		ClientRandom:      req.Random,
		ClientPublicKey:   req.PublicKey,
		Configuration:     server.Configuration,
		SelectionMask:     server.SelectionMask,
		IsConnectionOwner: true,
		IsDedicatedServer: true,
	}, nil
}

// waitEncryption blocks for the encryption delay. The dedicated server installs the
// client's keys out of band after the player-connected event; responding earlier
// makes the client's first packet arrive before the keys do.
// TODO: drop once servers accept the key exchange over a direct channel.
func (s *Service) waitEncryption(ctx context.Context) error {
	if s.encryptionDelay <= 0 {
		return ctx.Err()
	}

	timer := s.clock.Timer(s.encryptionDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failure(result models.ConnectResult) models.ConnectResponse {
	return models.ConnectResponse{Result: result}
}
