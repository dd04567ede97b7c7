// Package history keeps a SQLite ledger of stacking runs and the outcome of
// every frame in them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store wraps SQLite-backed persistence for stacking runs.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the database at path and ensures schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stack_runs (
            id TEXT PRIMARY KEY,
            started_at TEXT NOT NULL,
            finished_at TEXT NOT NULL,
            frame_count INTEGER NOT NULL,
            reference_frame INTEGER,
            aligned INTEGER,
            rejected INTEGER,
            weight_sum REAL,
            output_path TEXT,
            params_json TEXT,
            status TEXT NOT NULL,
            stage TEXT,
            error_message TEXT
        );`,
		`CREATE TABLE IF NOT EXISTS stack_frames (
            run_id TEXT NOT NULL,
            frame_index INTEGER NOT NULL,
            path TEXT,
            stars INTEGER,
            quality REAL,
            status TEXT,
            model TEXT,
            correspondences INTEGER,
            alignment_quality REAL,
            reason TEXT,
            PRIMARY KEY (run_id, frame_index)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_stack_runs_started_at ON stack_runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Run captures one stacking run. Stage names the step that failed for
// failed runs.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	FrameCount int
	Reference  int
	Aligned    int
	Rejected   int
	WeightSum  float64
	OutputPath string
	ParamsJSON string
	Status     string
	Stage      string
	Error      string
	Frames     []Frame
}

// Frame captures the outcome of one input frame.
type Frame struct {
	Index            int
	Path             string
	Stars            int
	Quality          float64
	Status           string
	Model            string
	Correspondences  int
	AlignmentQuality float64
	Reason           string
}

// RecordRun stores a run and its frames in one transaction. A run without
// an id gets a fresh UUID, which is returned.
func (s *Store) RecordRun(ctx context.Context, run Run) (string, error) {
	if s == nil {
		return "", errors.New("store not initialized")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO stack_runs (id, started_at, finished_at, frame_count, reference_frame, aligned, rejected, weight_sum, output_path, params_json, status, stage, error_message) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
		run.FrameCount, run.Reference, run.Aligned, run.Rejected, run.WeightSum,
		run.OutputPath, run.ParamsJSON, run.Status, run.Stage, run.Error)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, f := range run.Frames {
		_, err = tx.ExecContext(ctx, `INSERT INTO stack_frames (run_id, frame_index, path, stars, quality, status, model, correspondences, alignment_quality, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			run.ID, f.Index, f.Path, f.Stars, f.Quality, f.Status, f.Model, f.Correspondences, f.AlignmentQuality, f.Reason)
		if err != nil {
			return "", fmt.Errorf("insert frame %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return run.ID, nil
}

// RecentRuns returns the latest runs, newest first, without their frames.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, started_at, finished_at, frame_count, reference_frame, aligned, rejected, weight_sum, output_path, params_json, status, stage, error_message FROM stack_runs ORDER BY started_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run                 Run
			started, finished   string
			outputPath, params  sql.NullString
			stage, errorMessage sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.FrameCount, &run.Reference, &run.Aligned,
			&run.Rejected, &run.WeightSum, &outputPath, &params, &run.Status, &stage, &errorMessage); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s: parse finished_at: %w", run.ID, err)
		}
		run.OutputPath = outputPath.String
		run.ParamsJSON = params.String
		run.Stage = stage.String
		run.Error = errorMessage.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Frames returns the frames recorded for a run in index order.
func (s *Store) Frames(ctx context.Context, runID string) ([]Frame, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT frame_index, path, stars, quality, status, model, correspondences, alignment_quality, reason FROM stack_frames WHERE run_id=? ORDER BY frame_index;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var (
			f                          Frame
			path, status, model, reason sql.NullString
		)
		if err := rows.Scan(&f.Index, &path, &f.Stars, &f.Quality, &status, &model,
			&f.Correspondences, &f.AlignmentQuality, &reason); err != nil {
			return nil, err
		}
		f.Path = path.String
		f.Status = status.String
		f.Model = model.String
		f.Reason = reason.String
		frames = append(frames, f)
	}
	return frames, rows.Err()
}
