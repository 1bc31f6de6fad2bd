package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteRunStore implements RunStore on a single SQLite database file.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens or creates the database at dbPath.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file location.
func (s *SQLiteRunStore) Path() string { return s.dbPath }

// CreateRun inserts a new run. The ID must be unique.
func (s *SQLiteRunStore) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if !run.Status.Valid() {
		return fmt.Errorf("invalid run status: %q", run.Status)
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal run config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, experiment, config, target, steps, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Experiment, string(cfg), run.Target, run.Steps, string(run.Status),
		run.StartedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final status and summary of a run.
func (s *SQLiteRunStore) FinishRun(ctx context.Context, id string, status RunStatus, summary RunSummary, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid run status: %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, steps_completed = ?, target_spikes = ?,
			total_spikes = ?, peak_alert = ?, final_alert = ?, final_avg_energy = ?
		WHERE id = ?`,
		string(status), at.UTC().Format(timeFormat), summary.StepsCompleted, summary.TargetSpikes,
		summary.TotalSpikes, summary.PeakAlert, summary.FinalAlert, summary.FinalAvgEnergy, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, experiment, config, target, steps, status, started_at, finished_at,
	steps_completed, target_spikes, total_spikes, peak_alert, final_alert, final_avg_energy`

// timeFormat has fixed-width fractions so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		cfg        string
		status     string
		startedAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(&run.ID, &run.Experiment, &cfg, &run.Target, &run.Steps, &status, &startedAt, &finishedAt,
		&run.Summary.StepsCompleted, &run.Summary.TargetSpikes, &run.Summary.TotalSpikes,
		&run.Summary.PeakAlert, &run.Summary.FinalAlert, &run.Summary.FinalAvgEnergy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cfg), &run.Config); err != nil {
		return nil, fmt.Errorf("run %s: parse config: %w", run.ID, err)
	}
	run.Status = RunStatus(status)
	if run.StartedAt, err = time.Parse(timeFormat, startedAt); err != nil {
		return nil, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeFormat, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: parse finished_at: %w", run.ID, err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Experiment != "" {
		where = append(where, "experiment = ?")
		args = append(args, filter.Experiment)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, by cascade, its steps and snapshots.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// AppendSteps inserts a batch of steps in one transaction.
func (s *SQLiteRunStore) AppendSteps(ctx context.Context, runID string, steps []Step) error {
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append steps: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps (run_id, time, target_firing, target_energy, target_priority,
			total_firing, avg_energy, alert_level, avg_novelty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("append steps: prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range steps {
		if _, err := stmt.ExecContext(ctx, runID, st.Time, boolToInt(st.TargetFiring), st.TargetEnergy,
			st.TargetPriority, st.TotalFiring, st.AvgEnergy, st.AlertLevel, st.AvgNovelty); err != nil {
			return fmt.Errorf("append step %d to run %s: %w", st.Time, runID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append steps: commit: %w", err)
	}
	return nil
}

// GetSteps returns a run's steps within r, in time order.
func (s *SQLiteRunStore) GetSteps(ctx context.Context, runID string, r StepRange) ([]Step, error) {
	query := `SELECT time, target_firing, target_energy, target_priority, total_firing,
		avg_energy, alert_level, avg_novelty FROM steps WHERE run_id = ? AND time >= ?`
	args := []any{runID, r.From}
	if r.To >= 0 {
		query += " AND time < ?"
		args = append(args, r.To)
	}
	query += " ORDER BY time"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get steps for run %s: %w", runID, err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var (
			st     Step
			firing int
		)
		if err := rows.Scan(&st.Time, &firing, &st.TargetEnergy, &st.TargetPriority, &st.TotalFiring,
			&st.AvgEnergy, &st.AlertLevel, &st.AvgNovelty); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.TargetFiring = firing != 0
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// SaveWeights stores a weight snapshot, replacing any at the same time.
func (s *SQLiteRunStore) SaveWeights(ctx context.Context, snap WeightSnapshot) error {
	data, err := json.Marshal(snap.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO weight_snapshots (run_id, time, weights) VALUES (?, ?, ?)`,
		snap.RunID, snap.Time, string(data))
	if err != nil {
		return fmt.Errorf("save weights for run %s at %d: %w", snap.RunID, snap.Time, err)
	}
	return nil
}

// GetWeights returns all snapshots of a run in time order.
func (s *SQLiteRunStore) GetWeights(ctx context.Context, runID string) ([]WeightSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT time, weights FROM weight_snapshots WHERE run_id = ? ORDER BY time`, runID)
	if err != nil {
		return nil, fmt.Errorf("get weights for run %s: %w", runID, err)
	}
	defer rows.Close()

	var snaps []WeightSnapshot
	for rows.Next() {
		var (
			snap = WeightSnapshot{RunID: runID}
			data string
		)
		if err := rows.Scan(&snap.Time, &data); err != nil {
			return nil, fmt.Errorf("scan weights: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &snap.Weights); err != nil {
			return nil, fmt.Errorf("parse weights at %d: %w", snap.Time, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
