package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/matchmaker/internal/models"
)

func newRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	repo, err := New(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = New(path)
	require.NoError(t, err)
	defer func() { _ = repo.Close() }()

	var applied int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	files, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, len(files), applied)
}

func TestConnectionsJournal(t *testing.T) {
	repo := newRepository(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	rows := []models.Connection{
		{CreatedAt: now.Add(-48 * time.Hour), Endpoint: "1.1.1.1:1", Result: "Success", CountryCode: "DE"},
		{CreatedAt: now.Add(-time.Hour), Endpoint: "2.2.2.2:2", Result: "InvalidCode", CountryCode: "US"},
		{
			CreatedAt:   now,
			Endpoint:    "3.3.3.3:3",
			UserID:      "u3",
			UserName:    "Carol",
			Platform:    models.PlatformOculus,
			CountryCode: "DE",
			Quickplay:   true,
			Result:      "Success",
			Secret:      "s3",
			Code:        "ABCDE",
		},
	}
	for _, c := range rows {
		require.NoError(t, repo.InsertConnection(c))
	}

	recent, err := repo.RecentConnections(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, rows[2], recent[0])
	assert.Equal(t, "2.2.2.2:2", recent[1].Endpoint)

	results, err := repo.ResultStats(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Success": 1, "InvalidCode": 1}, results)

	countries, err := repo.CountryStats(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"DE": 2, "US": 1}, countries)

	pruned, err := repo.PruneConnections(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	recent, err = repo.RecentConnections(10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}
