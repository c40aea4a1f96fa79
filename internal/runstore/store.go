package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vast/internal/config"
)

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the run database under the configured log
// directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RunsDBPath())
}

// OpenPath opens the run database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewRun inserts a pending run and assigns it a fresh identifier.
func (s *Store) NewRun(ctx context.Context, run Run) (*Run, error) {
	if strings.TrimSpace(run.SourcePath) == "" {
		return nil, errors.New("source path is required")
	}
	run.ID = uuid.NewString()
	run.Status = StatusPending
	now := time.Now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	timestamp := now.Format(timestampLayout)

	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (
            id, source_path, work_dir, strategy, threshold, interval_seconds,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.SourcePath,
		run.WorkDir,
		run.Strategy,
		run.Threshold,
		run.Interval,
		run.Status,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &run, nil
}

// Get fetches a run by identifier. A full id or a unique prefix is accepted;
// nil is returned when nothing matches.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ORDER BY created_at LIMIT 2`,
		id, id+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID == id {
			return run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// Update persists changes to an existing run.
func (s *Store) Update(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	run.UpdatedAt = time.Now().UTC()
	if run.Status.IsTerminal() && run.CompletedAt == nil {
		completed := run.UpdatedAt
		run.CompletedAt = &completed
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs
         SET status = ?, current_stage = ?, error_kind = ?, error_message = ?,
             frame_count = ?, segment_count = ?, clip_count = ?, section_count = ?,
             dropped_spans = ?, updated_at = ?, completed_at = ?
         WHERE id = ?`,
		run.Status,
		nullableString(run.CurrentStage),
		nullableString(run.ErrorKind),
		nullableString(run.ErrorMessage),
		run.FrameCount,
		run.SegmentCount,
		run.ClipCount,
		run.SectionCount,
		run.DroppedSpans,
		run.UpdatedAt.Format(timestampLayout),
		nullableTime(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update run %s: not found", run.ID)
	}
	return nil
}

// List returns runs filtered by status set (or all runs when no status is
// provided), newest first. A limit <= 0 returns every match.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Stats returns the number of runs per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}

// Remove deletes a run and its stage records.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("remove run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// StartStage records that a stage has begun, replacing any earlier attempt.
func (s *Store) StartStage(ctx context.Context, runID, stage string) error {
	now := time.Now().UTC().Format(timestampLayout)
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO run_stages (run_id, stage, status, message, started_at, finished_at)
         VALUES (?, ?, ?, NULL, ?, NULL)
         ON CONFLICT(run_id, stage) DO UPDATE SET
             status = excluded.status, message = NULL,
             started_at = excluded.started_at, finished_at = NULL`,
		runID, stage, StatusRunning, now,
	)
}

// FinishStage records the outcome of a stage.
func (s *Store) FinishStage(ctx context.Context, runID, stage string, status Status, message string) error {
	now := time.Now().UTC().Format(timestampLayout)
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO run_stages (run_id, stage, status, message, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(run_id, stage) DO UPDATE SET
             status = excluded.status, message = excluded.message,
             finished_at = excluded.finished_at`,
		runID, stage, status, nullableString(message), now, now,
	)
}

// Stages returns the stage records of a run in start order.
func (s *Store) Stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, status, message, started_at, finished_at
         FROM run_stages WHERE run_id = ? ORDER BY started_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stages: %w", err)
	}
	defer rows.Close()

	var records []StageRecord
	for rows.Next() {
		var (
			record      StageRecord
			status      string
			message     sql.NullString
			startedRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&record.RunID, &record.Stage, &status, &message, &startedRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		record.Status = Status(status)
		record.Message = message.String
		if started, err := parseTimeString(startedRaw); err == nil {
			record.StartedAt = started
		}
		if finishedRaw.Valid {
			if finished, err := parseTimeString(finishedRaw.String); err == nil {
				record.FinishedAt = &finished
			}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
