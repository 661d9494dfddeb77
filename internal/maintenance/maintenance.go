// Package maintenance runs one-shot database tasks selected by flags.
package maintenance

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/matchmaker/internal/config"
)

// Journal is the part of the storage layer maintenance needs.
type Journal interface {
	PruneConnections(before time.Time) (int64, error)
}

// Run executes the maintenance task requested in cfg, if any.
// It returns true when a task ran and the program should exit.
func Run(cfg *config.Config, store Journal) bool {
	if cfg.Storage.PruneOlderThan <= 0 {
		return false
	}

	before := time.Now().Add(-cfg.Storage.PruneOlderThan)
	log.Info().Time("before", before).Msg("Pruning connection journal")

	deleted, err := store.PruneConnections(before)
	if err != nil {
		log.Error().Err(err).Msg("Failed to prune connection journal")
		return true
	}

	log.Info().Int64("deleted", deleted).Msg("Prune finished")
	return true
}
