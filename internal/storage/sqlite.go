// Package storage keeps the connection journal in SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/woozymasta/matchmaker/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath and brings its schema up to date.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// InsertConnection journals one connect attempt.
func (r *Repository) InsertConnection(c models.Connection) error {
	_, err := r.db.Exec(`
	INSERT INTO connections (
		created_at, endpoint, user_id, user_name, platform, country_code,
		quickplay, result, secret, code
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CreatedAt.UnixMilli(), c.Endpoint, c.UserID, c.UserName, int(c.Platform), c.CountryCode,
		c.Quickplay, c.Result, c.Secret, c.Code,
	)

	return err
}

// RecentConnections returns up to limit journal rows, newest first.
func (r *Repository) RecentConnections(limit int) ([]models.Connection, error) {
	rows, err := r.db.Query(`
		SELECT created_at, endpoint, user_id, user_name, platform, country_code,
		       quickplay, result, secret, code
		FROM connections
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Connection
	for rows.Next() {
		var (
			c        models.Connection
			created  int64
			platform int
		)
		if err := rows.Scan(
			&created, &c.Endpoint, &c.UserID, &c.UserName, &platform, &c.CountryCode,
			&c.Quickplay, &c.Result, &c.Secret, &c.Code,
		); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created).UTC()
		c.Platform = models.Platform(platform)
		out = append(out, c)
	}

	return out, rows.Err()
}

// ResultStats counts journaled attempts per result since the given time.
func (r *Repository) ResultStats(since time.Time) (map[string]int64, error) {
	return r.countBy("result", since)
}

// CountryStats counts journaled attempts per client country since the given time.
// Attempts with an unknown country are not counted.
func (r *Repository) CountryStats(since time.Time) (map[string]int64, error) {
	return r.countBy("country_code", since)
}

// column is never user input.
func (r *Repository) countBy(column string, since time.Time) (map[string]int64, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM connections
		WHERE created_at >= ? AND %[1]s != ''
		GROUP BY %[1]s`, column)

	rows, err := r.db.Query(query, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		stats[key] = count
	}

	return stats, rows.Err()
}

// PruneConnections deletes journal rows older than before.
func (r *Repository) PruneConnections(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM connections WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
