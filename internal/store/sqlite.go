package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // database/sql driver
)

// SQLiteStore persists the history between runs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the history database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("history database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS history (
		key TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		platform TEXT NOT NULL,
		song_id TEXT NOT NULL,
		name TEXT NOT NULL,
		artist TEXT NOT NULL,
		quality TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		song_json TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// Load returns up to limit entries, newest first.
func (s *SQLiteStore) Load(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = MaxHistory
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, platform, song_id, name, artist, quality, recorded_at, song_json
		 FROM history ORDER BY position ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			millis   int64
			songJSON string
		)
		if err := rows.Scan(&e.Key, &e.Platform, &e.SongID, &e.Name, &e.Artist, &e.Quality, &millis, &songJSON); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if err := json.Unmarshal([]byte(songJSON), &e.Song); err != nil {
			return nil, fmt.Errorf("decode history song %s: %w", e.Key, err)
		}
		e.Time = time.UnixMilli(millis)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save replaces the stored history with entries, given newest first.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO history (key, position, platform, song_id, name, artist, quality, recorded_at, song_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for i, e := range entries {
		songJSON, err := json.Marshal(e.Song)
		if err != nil {
			return fmt.Errorf("encode history song %s: %w", e.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, e.Key, i, string(e.Platform), e.SongID, e.Name, e.Artist,
			e.Quality, e.Time.UnixMilli(), string(songJSON)); err != nil {
			return fmt.Errorf("insert history entry %s: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

// Clear deletes every stored entry.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
