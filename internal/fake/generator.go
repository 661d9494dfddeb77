// Package fake fills the connection journal with random rows for development.
package fake

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/models"
)

// Journal receives generated rows.
type Journal interface {
	InsertConnection(c models.Connection) error
}

var (
	names     = []string{"Alice", "Bob", "Carol", "Dave", "Erin", "Frank", "Grace", "Heidi"}
	platforms = []models.Platform{models.PlatformSteam, models.PlatformOculus, models.PlatformOculusQuest, models.PlatformPS4}
	countries = []string{"US", "DE", "RU", "BR", "FR", "GB", "PL", "JP", "KR", "CA", "AU", ""}
)

// results weighted towards success.
var results = []models.ConnectResult{
	models.ConnectSuccess, models.ConnectSuccess, models.ConnectSuccess, models.ConnectSuccess,
	models.ConnectSuccess, models.ConnectSuccess, models.ConnectServerAtCapacity,
	models.ConnectInvalidCode, models.ConnectConfigMismatch, models.ConnectNoAvailableDedicatedServers,
}

// GenerateData inserts count random connect attempts spread over the last 30 days.
// It returns the number of rows written.
func GenerateData(store Journal, count int) int {
	written := 0
	for i := 0; i < count; i++ {
		result := results[rand.IntN(len(results))]
		quickplay := rand.Float32() < 0.6

		c := models.Connection{
			CreatedAt: time.Now().
				Add(-time.Duration(rand.IntN(30)) * 24 * time.Hour).
				Add(-time.Duration(rand.IntN(1440)) * time.Minute),
			Endpoint:    fmt.Sprintf("%d.%d.%d.%d:%d", rand.IntN(220)+1, rand.IntN(255), rand.IntN(255), rand.IntN(255), 1024+rand.IntN(60000)),
			UserID:      fmt.Sprintf("%016x", rand.Uint64()),
			UserName:    names[rand.IntN(len(names))],
			Platform:    platforms[rand.IntN(len(platforms))],
			CountryCode: countries[rand.IntN(len(countries))],
			Quickplay:   quickplay,
			Result:      result.String(),
		}
		if result == models.ConnectSuccess {
			c.Secret = fmt.Sprintf("%032x", rand.Uint64())
			c.Code = fmt.Sprintf("%05X", rand.IntN(0xFFFFF))
		}

		if err := store.InsertConnection(c); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake connection")
			continue
		}
		written++
	}

	log.Info().Int("rows", written).Msg("Fake connection journal generated")
	return written
}
