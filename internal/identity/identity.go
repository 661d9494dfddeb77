// Package identity derives stable pseudonymous game identifiers from platform accounts.
package identity

import (
	"encoding/base64"

	"github.com/minio/sha256-simd"
	"github.com/woozymasta/matchmaker/internal/models"
)

// GameIDLength is the length of every derived game id.
const GameIDLength = 22

// PlatformPrefix returns the literal mixed into the hash for a platform.
// Unknown platforms get an empty prefix.
func PlatformPrefix(p models.Platform) string {
	switch p {
	case models.PlatformTest:
		return "Test#"
	case models.PlatformOculus, models.PlatformOculusQuest:
		return "Oculus#"
	case models.PlatformSteam:
		return "Steam#"
	case models.PlatformPS4:
		return "PSN#"
	default:
		return ""
	}
}

// DeriveGameID hashes the platform prefix and user id with SHA-256 and keeps the
// first GameIDLength characters of its base64 form. The result is deterministic
// and not reversible.
func DeriveGameID(platform models.Platform, userID string) string {
	sum := sha256.Sum256([]byte(PlatformPrefix(platform) + userID))
	return base64.StdEncoding.EncodeToString(sum[:])[:GameIDLength]
}
