// Package models defines the domain records, API payloads and bus events shared across the application.
package models

import "time"

// GameplayServerConfiguration describes the lobby a client asks for.
type GameplayServerConfiguration struct {
	MaxPlayerCount                int                           `json:"max_player_count"`
	DiscoveryPolicy               DiscoveryPolicy               `json:"discovery_policy"`
	InvitePolicy                  InvitePolicy                  `json:"invite_policy"`
	GameplayServerMode            GameplayServerMode            `json:"gameplay_server_mode"`
	SongSelectionMode             SongSelectionMode             `json:"song_selection_mode"`
	GameplayServerControlSettings GameplayServerControlSettings `json:"gameplay_server_control_settings"`
}

// SongPackMask is the two halves of the song pack bloom filter.
type SongPackMask struct {
	Top    uint64 `json:"top"`
	Bottom uint64 `json:"bottom"`
}

// BeatmapLevelSelectionMask restricts the content played on a server.
type BeatmapLevelSelectionMask struct {
	BeatmapDifficultyMask BeatmapDifficultyMask `json:"beatmap_difficulty_mask"`
	GameplayModifiersMask GameplayModifiersMask `json:"gameplay_modifiers_mask"`
	SongPackMask          SongPackMask          `json:"song_pack_mask"`
}

// Player is an identity attributed to a server host.
type Player struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// Server is one dedicated server instance known to the master server.
// Everything except CurrentPlayerCount is fixed when the record is created.
type Server struct {
	CreatedAt          time.Time                   `json:"created_at"`
	Host               Player                      `json:"host"`
	Secret             string                      `json:"secret"`
	Code               string                      `json:"code"`
	RemoteEndpoint     string                      `json:"remote_endpoint"`
	Random             []byte                      `json:"random"`
	PublicKey          []byte                      `json:"public_key"`
	Configuration      GameplayServerConfiguration `json:"configuration"`
	SelectionMask      BeatmapLevelSelectionMask   `json:"selection_mask"`
	CurrentPlayerCount int                         `json:"current_player_count"`
}

// IsPublic reports whether the server takes part in quickplay.
func (s *Server) IsPublic() bool {
	return s.Configuration.DiscoveryPolicy == DiscoveryPublic
}

// PublicFilter is the set of capability fields a quickplay candidate must match exactly.
type PublicFilter struct {
	InvitePolicy    InvitePolicy
	ServerMode      GameplayServerMode
	SongMode        SongSelectionMode
	ControlSettings GameplayServerControlSettings
	DifficultyMask  BeatmapDifficultyMask
	ModifiersMask   GameplayModifiersMask
	SongPackTop     uint64
	SongPackBottom  uint64
}

// FilterFor builds the quickplay filter from a connect request.
func FilterFor(req ConnectRequest) PublicFilter {
	return PublicFilter{
		InvitePolicy:    req.Configuration.InvitePolicy,
		ServerMode:      req.Configuration.GameplayServerMode,
		SongMode:        req.Configuration.SongSelectionMode,
		ControlSettings: req.Configuration.GameplayServerControlSettings,
		DifficultyMask:  req.SelectionMask.BeatmapDifficultyMask,
		ModifiersMask:   req.SelectionMask.GameplayModifiersMask,
		SongPackTop:     req.SelectionMask.SongPackMask.Top,
		SongPackBottom:  req.SelectionMask.SongPackMask.Bottom,
	}
}

// Matches reports whether s is public and equal to the filter on every field.
// The bloom filter halves are compared for equality, not containment.
func (f PublicFilter) Matches(s *Server) bool {
	return s.IsPublic() &&
		s.Configuration.InvitePolicy == f.InvitePolicy &&
		s.Configuration.GameplayServerMode == f.ServerMode &&
		s.Configuration.SongSelectionMode == f.SongMode &&
		s.Configuration.GameplayServerControlSettings == f.ControlSettings &&
		s.SelectionMask.BeatmapDifficultyMask == f.DifficultyMask &&
		s.SelectionMask.GameplayModifiersMask == f.ModifiersMask &&
		s.SelectionMask.SongPackMask.Top == f.SongPackTop &&
		s.SelectionMask.SongPackMask.Bottom == f.SongPackBottom
}

// AuthenticateRequest carries the client's platform token.
// The token is accepted as is, it is never verified.
type AuthenticateRequest struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	AuthToken string   `json:"auth_token,omitempty"`
	Platform  Platform `json:"platform"`
}

// AuthenticateResponse is always a success.
type AuthenticateResponse struct {
	Result string `json:"result"`
	GameID string `json:"game_id"`
}

// ConnectRequest asks for a server by code, by secret, or through quickplay when both are empty.
type ConnectRequest struct {
	Code          string                      `json:"code,omitempty"`
	Secret        string                      `json:"secret,omitempty"`
	Random        []byte                      `json:"random"`
	PublicKey     []byte                      `json:"public_key"`
	Configuration GameplayServerConfiguration `json:"configuration"`
	SelectionMask BeatmapLevelSelectionMask   `json:"selection_mask"`
}

// IsQuickplay reports whether the request names no server.
func (r ConnectRequest) IsQuickplay() bool {
	return r.Code == "" && r.Secret == ""
}

// ConnectResponse is returned for every connect attempt. Only Result is set on failures.
type ConnectResponse struct {
	Result            ConnectResult               `json:"result"`
	UserID            string                      `json:"user_id,omitempty"`
	UserName          string                      `json:"user_name,omitempty"`
	ManagerID         string                      `json:"manager_id,omitempty"`
	Secret            string                      `json:"secret,omitempty"`
	Code              string                      `json:"code,omitempty"`
	RemoteEndpoint    string                      `json:"remote_endpoint,omitempty"`
	Random            []byte                      `json:"random,omitempty"`
	PublicKey         []byte                      `json:"public_key,omitempty"`
	ClientRandom      []byte                      `json:"client_random,omitempty"`
	ClientPublicKey   []byte                      `json:"client_public_key,omitempty"`
	Configuration     GameplayServerConfiguration `json:"configuration"`
	SelectionMask     BeatmapLevelSelectionMask   `json:"selection_mask"`
	IsConnectionOwner bool                        `json:"is_connection_owner"`
	IsDedicatedServer bool                        `json:"is_dedicated_server"`
}

// CreateServerRequest is sent to the provisioning backend.
type CreateServerRequest struct {
	Secret        string                      `json:"secret"`
	ManagerID     string                      `json:"manager_id"`
	Configuration GameplayServerConfiguration `json:"configuration"`
}

// CreateServerResponse is the provisioning backend's answer.
type CreateServerResponse struct {
	RemoteEndpoint string `json:"remote_endpoint"`
	Random         []byte `json:"random"`
	PublicKey      []byte `json:"public_key"`
	Success        bool   `json:"success"`
}

// PlayerConnectedEvent tells the dedicated server to expect a client handshake.
type PlayerConnectedEvent struct {
	Secret         string `json:"secret"`
	RemoteEndpoint string `json:"remote_endpoint"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	Random         []byte `json:"random"`
	PublicKey      []byte `json:"public_key"`
}

// NodeHeartbeat is published periodically by every dedicated server node.
type NodeHeartbeat struct {
	Endpoint string `json:"endpoint"`
}

// PlayerCountReport is the dedicated server's authoritative occupancy.
type PlayerCountReport struct {
	Secret             string `json:"secret"`
	CurrentPlayerCount int    `json:"current_player_count"`
}

// ServerStopped is published when a dedicated server instance shuts down.
type ServerStopped struct {
	Secret string `json:"secret"`
}

// Connection is one journaled connect attempt.
type Connection struct {
	CreatedAt   time.Time `json:"created_at"`
	Endpoint    string    `json:"endpoint"`
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	CountryCode string    `json:"country_code"`
	Result      string    `json:"result"`
	Secret      string    `json:"secret"`
	Code        string    `json:"code"`
	Platform    Platform  `json:"platform"`
	Quickplay   bool      `json:"quickplay"`
}
