// Package storage persists setlists in SQLite. It is the loader sessions
// take their initial and reloaded snapshots from.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dkeye/Setlist/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the setlist database.
type DB struct {
	db   *sql.DB
	path string
	// SQLite allows one writer at a time.
	mu sync.Mutex
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS setlists (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create setlists table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS setlist_songs (
			setlist_id       TEXT NOT NULL REFERENCES setlists(id) ON DELETE CASCADE,
			position         INTEGER NOT NULL,
			song_id          TEXT NOT NULL,
			title            TEXT NOT NULL DEFAULT '',
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (setlist_id, position),
			UNIQUE (setlist_id, song_id)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create setlist songs table: %w", err)
	}

	log.Info().Str("module", "storage").Str("path", path).Msg("database opened")
	return &DB{db: db, path: path}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Path() string { return d.path }

// LoadSetlist returns the ordered songs of a setlist, or an error wrapping
// domain.ErrNotFound.
func (d *DB) LoadSetlist(ctx context.Context, id domain.SetlistID) (domain.SetlistSnapshot, error) {
	var exists int
	err := d.db.QueryRowContext(ctx, `SELECT 1 FROM setlists WHERE id = ?`, string(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setlist %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load setlist %s: %w", id, err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT song_id, title, duration_seconds
		FROM setlist_songs
		WHERE setlist_id = ?
		ORDER BY position`, string(id))
	if err != nil {
		return nil, fmt.Errorf("load songs of %s: %w", id, err)
	}
	defer rows.Close()

	var songs []domain.SongRef
	for rows.Next() {
		var s domain.SongRef
		if err := rows.Scan(&s.SongID, &s.Title, &s.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return domain.NewSetlistSnapshot(songs), nil
}

// SaveSetlist replaces a setlist and all of its songs.
func (d *DB) SaveSetlist(ctx context.Context, sl domain.Setlist) error {
	if sl.ID == "" {
		return fmt.Errorf("%w: setlist without id", domain.ErrBadPayload)
	}
	seen := make(map[domain.SongID]struct{}, len(sl.Songs))
	for _, s := range sl.Songs {
		if s.SongID == "" {
			return fmt.Errorf("%w: song without id in %s", domain.ErrBadPayload, sl.ID)
		}
		if _, dup := seen[s.SongID]; dup {
			return fmt.Errorf("%w: duplicate song %s in %s", domain.ErrBadPayload, s.SongID, sl.ID)
		}
		seen[s.SongID] = struct{}{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO setlists (id, name, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = CURRENT_TIMESTAMP`,
		string(sl.ID), sl.Name); err != nil {
		return fmt.Errorf("upsert setlist %s: %w", sl.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM setlist_songs WHERE setlist_id = ?`, string(sl.ID)); err != nil {
		return fmt.Errorf("clear songs of %s: %w", sl.ID, err)
	}
	for i, s := range sl.Songs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO setlist_songs (setlist_id, position, song_id, title, duration_seconds)
			VALUES (?, ?, ?, ?, ?)`,
			string(sl.ID), i, string(s.SongID), s.Title, s.DurationSeconds); err != nil {
			return fmt.Errorf("insert song %s: %w", s.SongID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	log.Info().Str("module", "storage").Str("setlist", string(sl.ID)).Int("songs", len(sl.Songs)).Msg("setlist saved")
	return nil
}

// SetlistInfo is a row of ListSetlists.
type SetlistInfo struct {
	ID    domain.SetlistID `json:"id"`
	Name  string           `json:"name"`
	Songs int              `json:"songs"`
}

func (d *DB) ListSetlists(ctx context.Context) ([]SetlistInfo, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.id, s.name, COUNT(ss.song_id)
		FROM setlists s
		LEFT JOIN setlist_songs ss ON ss.setlist_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.id`)
	if err != nil {
		return nil, fmt.Errorf("list setlists: %w", err)
	}
	defer rows.Close()

	var out []SetlistInfo
	for rows.Next() {
		var info SetlistInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Songs); err != nil {
			return nil, fmt.Errorf("scan setlist: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (d *DB) DeleteSetlist(ctx context.Context, id domain.SetlistID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM setlist_songs WHERE setlist_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete songs of %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM setlists WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete setlist %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("setlist %s: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}
