package matchmaking

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/identity"
	"github.com/woozymasta/matchmaker/internal/models"
	"github.com/woozymasta/matchmaker/internal/session"
)

// Authenticate binds the client's platform identity to its session and derives its game id.
// The token is not verified and the call always succeeds.
func (s *Service) Authenticate(_ context.Context, sess *session.Session, req models.AuthenticateRequest) models.AuthenticateResponse {
	gameID := identity.DeriveGameID(req.Platform, req.UserID)
	sess.Bind(req.Platform, req.UserID, req.UserName, gameID)

	log.Info().
		Str("endpoint", sess.Endpoint()).
		Stringer("platform", req.Platform).
		Str("user_id", req.UserID).
		Str("user_name", req.UserName).
		Msg("Session authenticated")

	return models.AuthenticateResponse{
		Result: models.AuthenticateSuccess,
		GameID: gameID,
	}
}

// SessionKeepalive records that the client is still there.
func (s *Service) SessionKeepalive(_ context.Context, sess *session.Session) {
	sess.Touch(s.clock.Now())

	log.Trace().
		Str("endpoint", sess.Endpoint()).
		Msg("Session keepalive")
}
