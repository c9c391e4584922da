// Package store persists extraction runs and their cue timelines in sqlite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/framefish/subsift/internal/pipeline"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) a sqlite database at path and ensures the schema
// exists. Use ":memory:" for an ephemeral database in tests.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// modernc sqlite serializes writes regardless; one connection avoids
	// SQLITE_BUSY on concurrent cue inserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store pragmas: %w", err)
	}

	s := &DB{db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (db *DB) ensureSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id       TEXT PRIMARY KEY,
			source       TEXT NOT NULL,
			started_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished_at  TIMESTAMP,
			frames       BIGINT NOT NULL DEFAULT 0,
			samples      BIGINT NOT NULL DEFAULT 0,
			cue_count    BIGINT NOT NULL DEFAULT 0,
			error        TEXT
		);
		CREATE TABLE IF NOT EXISTS cues (
			run_id       TEXT NOT NULL,
			idx          BIGINT NOT NULL,
			start_ms     BIGINT NOT NULL,
			end_ms       BIGINT NOT NULL,
			text         TEXT NOT NULL,
			confidence   DOUBLE NOT NULL DEFAULT 0,
			regions      TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, idx),
			FOREIGN KEY (run_id) REFERENCES runs(run_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("store schema: %w", err)
	}
	return nil
}

// Run is one extraction run's persisted record.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Frames     uint64
	Samples    uint64
	CueCount   int
	Error      string
}

// CreateRun registers a new run for the given source path and returns its
// id.
func (db *DB) CreateRun(ctx context.Context, source string) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, source) VALUES (?, ?)`, id, source)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun closes out a run's record with its final counters. runErr may be
// nil for a clean finish.
func (db *DB) FinishRun(ctx context.Context, id string, frames, samples uint64, cueCount int, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = CURRENT_TIMESTAMP, frames = ?, samples = ?, cue_count = ?, error = ?
		WHERE run_id = ?`,
		frames, samples, cueCount, errText, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpsertCue writes one cue at its timeline index, replacing any previous
// value there. The merge stage updates cues in place, so replace semantics
// match the update stream.
func (db *DB) UpsertCue(ctx context.Context, runID string, index int, cue pipeline.MergedSubtitle) error {
	regions := make([]string, len(cue.Regions))
	for i, r := range cue.Regions {
		regions[i] = string(r)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO cues (run_id, idx, start_ms, end_ms, text, confidence, regions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, idx) DO UPDATE SET
			start_ms = excluded.start_ms,
			end_ms = excluded.end_ms,
			text = excluded.text,
			confidence = excluded.confidence,
			regions = excluded.regions`,
		runID, index,
		cue.Start.Milliseconds(), cue.End.Milliseconds(),
		strings.Join(cue.Lines, "\n"), cue.Confidence,
		strings.Join(regions, ","))
	if err != nil {
		return fmt.Errorf("upsert cue %d: %w", index, err)
	}
	return nil
}

// Cues returns a run's cue timeline in index order.
func (db *DB) Cues(ctx context.Context, runID string) ([]pipeline.MergedSubtitle, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT start_ms, end_ms, text, confidence, regions
		FROM cues WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cues: %w", err)
	}
	defer rows.Close()

	var cues []pipeline.MergedSubtitle
	for rows.Next() {
		var startMs, endMs int64
		var text, regions string
		var confidence float64
		if err := rows.Scan(&startMs, &endMs, &text, &confidence, &regions); err != nil {
			return nil, fmt.Errorf("scan cue: %w", err)
		}
		cue := pipeline.MergedSubtitle{
			TimedSubtitle: pipeline.TimedSubtitle{
				Start: time.Duration(startMs) * time.Millisecond,
				End:   time.Duration(endMs) * time.Millisecond,
				Lines: strings.Split(text, "\n"),
			},
			Confidence: float32(confidence),
		}
		if regions != "" {
			for _, r := range strings.Split(regions, ",") {
				cue.Regions = append(cue.Regions, pipeline.RegionID(r))
			}
		}
		cues = append(cues, cue)
	}
	return cues, rows.Err()
}

// Runs lists persisted runs, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, source, started_at, finished_at, frames, samples, cue_count, COALESCE(error, '')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.StartedAt, &r.FinishedAt,
			&r.Frames, &r.Samples, &r.CueCount, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
