// Package history stores the watch history in a sqlite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cncverse/internal/config"
	"cncverse/internal/media"
)

// ErrNotFound is returned by Find when no entry matches.
var ErrNotFound = errors.New("history entry not found")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	provider      TEXT    NOT NULL,
	id            TEXT    NOT NULL,
	title         TEXT    NOT NULL,
	episode_data  TEXT    NOT NULL DEFAULT '',
	episode_label TEXT    NOT NULL DEFAULT '',
	link_url      TEXT    NOT NULL DEFAULT '',
	watched_at    INTEGER NOT NULL,
	UNIQUE (provider, id)
);
CREATE INDEX IF NOT EXISTS history_watched_at ON history (watched_at DESC);`

// Store is an open history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. An empty path uses
// config.HistoryPath.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		p, err := config.HistoryPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts e, or replaces the entry with the same provider and id. A zero
// WatchedAt is stamped with the current time.
func (s *Store) Add(ctx context.Context, e media.HistoryEntry) error {
	if e.Provider == "" || e.ID == "" {
		return fmt.Errorf("history entry needs a provider and id")
	}
	if e.WatchedAt == 0 {
		e.WatchedAt = s.now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO history (provider, id, title, episode_data, episode_label, link_url, watched_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (provider, id) DO UPDATE SET
	title = excluded.title,
	episode_data = excluded.episode_data,
	episode_label = excluded.episode_label,
	link_url = excluded.link_url,
	watched_at = excluded.watched_at`,
		e.Provider, e.ID, e.Title, e.EpisodeData, e.EpisodeLabel, e.LinkURL, e.WatchedAt)
	if err != nil {
		return fmt.Errorf("saving history entry: %w", err)
	}
	return nil
}

// List returns all entries, newest first.
func (s *Store) List(ctx context.Context) ([]media.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT provider, id, title, episode_data, episode_label, link_url, watched_at
FROM history ORDER BY watched_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var entries []media.HistoryEntry
	for rows.Next() {
		var e media.HistoryEntry
		if err := rows.Scan(&e.Provider, &e.ID, &e.Title, &e.EpisodeData, &e.EpisodeLabel, &e.LinkURL, &e.WatchedAt); err != nil {
			return nil, fmt.Errorf("reading history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// Find returns the entry for provider and id.
func (s *Store) Find(ctx context.Context, provider, id string) (media.HistoryEntry, error) {
	e := media.HistoryEntry{Provider: provider, ID: id}
	err := s.db.QueryRowContext(ctx, `
SELECT title, episode_data, episode_label, link_url, watched_at
FROM history WHERE provider = ? AND id = ?`, provider, id).
		Scan(&e.Title, &e.EpisodeData, &e.EpisodeLabel, &e.LinkURL, &e.WatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return media.HistoryEntry{}, ErrNotFound
	}
	if err != nil {
		return media.HistoryEntry{}, fmt.Errorf("finding history entry: %w", err)
	}
	return e, nil
}

// Remove deletes the entry for provider and id. Removing a missing entry is
// not an error.
func (s *Store) Remove(ctx context.Context, provider, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE provider = ? AND id = ?`, provider, id); err != nil {
		return fmt.Errorf("removing history entry: %w", err)
	}
	return nil
}

// FormatForDisplay creates picker lines from history entries.
func FormatForDisplay(entries []media.HistoryEntry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		display := fmt.Sprintf("[%s] %s", e.Provider, e.Title)
		if e.EpisodeLabel != "" && e.EpisodeLabel != e.Title {
			display += " - " + e.EpisodeLabel
		}
		if e.WatchedAt > 0 {
			display += time.Unix(e.WatchedAt, 0).Format(" (2006-01-02)")
		}
		items = append(items, display)
	}
	return items
}
