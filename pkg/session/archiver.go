package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/templog/internal/observability"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// RecordArchiver keeps records that compaction is about to discard.
type RecordArchiver interface {
	Archive(ctx context.Context, records []Record) (int, error)
}

// Archiver stores discarded session records in a SQLite database.
//
// Records are keyed by start time. Archiving a record again replaces the
// stored copy only when the new one has at least as many samples.
type Archiver struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
}

// NewArchiver opens (creating if needed) the archive database at path
func NewArchiver(path string, logger zerolog.Logger) (*Archiver, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	a := &Archiver{
		db:     db,
		path:   path,
		logger: logger.With().Str("component", "session-archiver").Logger(),
	}

	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	a.logger.Info().Str("path", path).Msg("Session archive initialized")
	return a, nil
}

func (a *Archiver) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			start_at INTEGER PRIMARY KEY,
			samples BLOB NOT NULL,
			sample_count INTEGER NOT NULL,
			archived_at INTEGER NOT NULL
		);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Archive writes records to the archive in one transaction and returns
// how many were stored.
func (a *Archiver) Archive(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sessions (start_at, samples, sample_count, archived_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(start_at) DO UPDATE SET
			samples = excluded.samples,
			sample_count = excluded.sample_count,
			archived_at = excluded.archived_at
		WHERE excluded.sample_count >= sessions.sample_count
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare archive statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, rec := range records {
		samples := []byte(rec.Temperatures)
		if samples == nil {
			samples = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, int64(rec.StartAt), samples, len(samples), now); err != nil {
			return 0, fmt.Errorf("failed to archive session %d: %w", rec.StartAt, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive: %w", err)
	}

	observability.RecordArchived(len(records))
	a.logger.Info().Int("count", len(records)).Msg("Sessions archived")

	return len(records), nil
}

// List returns every archived record ordered by start time
func (a *Archiver) List(ctx context.Context) ([]Record, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT start_at, samples FROM sessions ORDER BY start_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var startAt int64
		var samples []byte
		if err := rows.Scan(&startAt, &samples); err != nil {
			return nil, fmt.Errorf("failed to scan archived session: %w", err)
		}
		if samples == nil {
			samples = []byte{}
		}
		records = append(records, Record{StartAt: uint64(startAt), Temperatures: Samples(samples)})
	}

	return records, rows.Err()
}

// Close closes the archive database
func (a *Archiver) Close() error {
	return a.db.Close()
}
