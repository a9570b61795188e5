package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ RunRepository = (*Repository)(nil)

// Repository is the SQLite implementation of RunRepository
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

const runColumns = `id, job, triggered_by, status, message, keywords, succeeded, empty, failed,
	rate_limited, rows_written, columns, started_at, finished_at`

func (r *Repository) CreateRun(run Run) error {
	_, err := r.db.Exec(`
		INSERT INTO runs (id, job, triggered_by, status, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Job, run.Trigger, string(run.Status), run.StartedAt.UnixMilli())

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (r *Repository) FinishRun(runID string, result RunResult) error {
	res, err := r.db.Exec(`
		UPDATE runs
		SET status = ?, message = ?, keywords = ?, succeeded = ?, empty = ?, failed = ?,
		    rate_limited = ?, rows_written = ?, columns = ?, finished_at = ?
		WHERE id = ?
	`, string(result.Status), result.Message, result.Keywords, result.Succeeded, result.Empty, result.Failed,
		result.RateLimited, result.Rows, result.Columns, result.FinishedAt.UnixMilli(), runID)

	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run '%s' not found", runID)
	}

	return nil
}

func (r *Repository) SaveOutcomes(runID string, outcomes []KeywordOutcome) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO keyword_outcomes (run_id, position, keyword, status, reason, points, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err := stmt.Exec(runID, o.Position, o.Keyword, o.Status, o.Reason, o.Points, o.Error); err != nil {
			return fmt.Errorf("failed to store outcome for '%s': %w", o.Keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit outcomes: %w", err)
	}

	return nil
}

func (r *Repository) GetRun(runID string) (*Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// GetRecentRuns returns the latest runs, newest first. An empty job matches
// every job.
func (r *Repository) GetRecentRuns(job string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(`
		SELECT `+runColumns+`
		FROM runs
		WHERE (? = '' OR job = ?)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, job, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}

	return runs, nil
}

func (r *Repository) GetLastRun(job string) (*Run, error) {
	if job == "" {
		return nil, fmt.Errorf("job name is required")
	}

	runs, err := r.GetRecentRuns(job, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (r *Repository) GetOutcomes(runID string) ([]KeywordOutcome, error) {
	rows, err := r.db.Query(`
		SELECT run_id, position, keyword, status, reason, points, error
		FROM keyword_outcomes
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []KeywordOutcome
	for rows.Next() {
		var o KeywordOutcome
		if err := rows.Scan(&o.RunID, &o.Position, &o.Keyword, &o.Status, &o.Reason, &o.Points, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome rows: %w", err)
	}

	return outcomes, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status string
	var startedAt int64
	var finishedAt sql.NullInt64

	err := row.Scan(
		&run.ID, &run.Job, &run.Trigger, &status, &run.Message, &run.Keywords, &run.Succeeded, &run.Empty, &run.Failed,
		&run.RateLimited, &run.Rows, &run.Columns, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}

	return &run, nil
}
