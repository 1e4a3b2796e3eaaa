// Package store persists finished transcriptions in SQLite so that the same
// media file is never sent to the ASR provider twice.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"transcript-chat-service/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	key        TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	mediaPath  TEXT NOT NULL,
	createdAt  REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	transcriptKey TEXT NOT NULL REFERENCES transcripts(key) ON DELETE CASCADE,
	seq           INTEGER NOT NULL,
	startMs       INTEGER NOT NULL,
	text          TEXT NOT NULL,
	PRIMARY KEY (transcriptKey, seq)
);
`

// TranscriptStore is a SQLite-backed transcript cache.
type TranscriptStore struct {
	db *sql.DB
}

// Record describes a stored transcription.
type Record struct {
	Key       string
	Provider  string
	MediaPath string
	Segments  int
	CreatedAt time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted.
func Open(path string) (*TranscriptStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &TranscriptStore{db: db}, nil
}

// Close closes the database connection.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

// Get returns the segments stored under key. ok is false when nothing is stored.
func (s *TranscriptStore) Get(ctx context.Context, key string) ([]models.TranscriptSegment, bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM transcripts WHERE key = ?`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query transcript: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT startMs, text
		FROM segments
		WHERE transcriptKey = ?
		ORDER BY seq ASC
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segs []models.TranscriptSegment
	for rows.Next() {
		var startMs int64
		var seg models.TranscriptSegment
		if err := rows.Scan(&startMs, &seg.Text); err != nil {
			return nil, false, fmt.Errorf("scan segment: %w", err)
		}
		seg.StartOffset = time.Duration(startMs) * time.Millisecond
		segs = append(segs, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return segs, true, nil
}

// Put replaces whatever is stored under key with segs.
func (s *TranscriptStore) Put(ctx context.Context, key, provider, mediaPath string, segs []models.TranscriptSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments WHERE transcriptKey = ?`, key); err != nil {
		return fmt.Errorf("clear segments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transcripts (key, provider, mediaPath, createdAt) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET provider = excluded.provider, mediaPath = excluded.mediaPath, createdAt = excluded.createdAt
	`, key, provider, mediaPath, unixFromTime(time.Now())); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO segments (transcriptKey, seq, startMs, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()
	for i, seg := range segs {
		if _, err := stmt.ExecContext(ctx, key, i, seg.StartOffset.Milliseconds(), seg.Text); err != nil {
			return fmt.Errorf("insert segment %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// List returns every stored transcription, newest first.
func (s *TranscriptStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.key, t.provider, t.mediaPath, t.createdAt, COUNT(s.seq)
		FROM transcripts t
		LEFT JOIN segments s ON s.transcriptKey = t.key
		GROUP BY t.key
		ORDER BY t.createdAt DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var createdAt float64
		if err := rows.Scan(&r.Key, &r.Provider, &r.MediaPath, &createdAt, &r.Segments); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		r.CreatedAt = timeFromUnix(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(f float64) time.Time {
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
