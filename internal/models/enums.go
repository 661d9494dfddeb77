package models

import "strings"

// Platform identifies the store a client authenticated through.
type Platform uint8

const (
	PlatformTest Platform = iota
	PlatformSteam
	PlatformOculus
	PlatformOculusQuest
	PlatformPS4
)

func (p Platform) String() string {
	switch p {
	case PlatformTest:
		return "Test"
	case PlatformSteam:
		return "Steam"
	case PlatformOculus:
		return "Oculus"
	case PlatformOculusQuest:
		return "OculusQuest"
	case PlatformPS4:
		return "PS4"
	default:
		return "Unknown"
	}
}

// DiscoveryPolicy controls whether a server can be found by quickplay.
// Anything other than DiscoveryPublic is private.
type DiscoveryPolicy uint8

const (
	DiscoveryHidden DiscoveryPolicy = iota
	DiscoveryWithCode
	DiscoveryPublic
)

// InvitePolicy controls who may invite players into a lobby.
type InvitePolicy uint8

const (
	InviteOnlyConnectionOwner InvitePolicy = iota
	InviteAnyone
)

// GameplayServerMode is the lobby flow run by the dedicated server.
type GameplayServerMode uint8

const (
	ServerModeCountdown GameplayServerMode = iota
	ServerModeManaged
	ServerModeQuickStartOneSong
)

// SongSelectionMode is how the next beatmap is picked.
type SongSelectionMode uint8

const (
	SongSelectionVote SongSelectionMode = iota
	SongSelectionRandom
	SongSelectionOwnerPicks
	SongSelectionServerPicks
)

// GameplayServerControlSettings is a bit set of lobby permissions.
type GameplayServerControlSettings uint8

const (
	ControlNone                   GameplayServerControlSettings = 0
	ControlAllowModifierSelection GameplayServerControlSettings = 1
	ControlAllowSpectate          GameplayServerControlSettings = 2
	ControlAll                    GameplayServerControlSettings = 3
)

// BeatmapDifficultyMask is a bit set of allowed difficulties.
type BeatmapDifficultyMask uint8

const (
	DifficultyEasy       BeatmapDifficultyMask = 1 << 0
	DifficultyNormal     BeatmapDifficultyMask = 1 << 1
	DifficultyHard       BeatmapDifficultyMask = 1 << 2
	DifficultyExpert     BeatmapDifficultyMask = 1 << 3
	DifficultyExpertPlus BeatmapDifficultyMask = 1 << 4
	DifficultyAll        BeatmapDifficultyMask = 0x1F
)

var difficultyNames = []struct {
	mask BeatmapDifficultyMask
	name string
}{
	{DifficultyEasy, "Easy"},
	{DifficultyNormal, "Normal"},
	{DifficultyHard, "Hard"},
	{DifficultyExpert, "Expert"},
	{DifficultyExpertPlus, "ExpertPlus"},
}

// String renders the mask the way players see it in quickplay server names,
// e.g. "All", "Expert" or "Hard, Expert".
func (m BeatmapDifficultyMask) String() string {
	if m == DifficultyAll {
		return "All"
	}
	if m == 0 {
		return "None"
	}

	var parts []string
	for _, d := range difficultyNames {
		if m&d.mask != 0 {
			parts = append(parts, d.name)
		}
	}

	return strings.Join(parts, ", ")
}

// GameplayModifiersMask is a bit set of allowed gameplay modifiers.
type GameplayModifiersMask uint16

const (
	ModifiersNone GameplayModifiersMask = 0
	ModifiersAll  GameplayModifiersMask = 0xFFFF
)
