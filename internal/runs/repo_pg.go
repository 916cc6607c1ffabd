package runs

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, session_id, status, data_file_name, style_file_name, detected_style,
       recommendation_count, rejected_count, row_count, error_message, style_error_message,
       started_at, finished_at`

// Create inserts a new run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	const query = `
INSERT INTO generation_runs (
	id, session_id, status, data_file_name, style_file_name, started_at
)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.DB.ExecContext(ctx, query,
		run.ID,
		run.SessionID,
		string(run.Status),
		run.DataFileName,
		run.StyleFileName,
		run.StartedAt,
	)
	return err
}

// Finish updates the terminal fields of a run.
func (r *PGRepo) Finish(ctx context.Context, run Run) error {
	const query = `
UPDATE generation_runs
SET status = $2,
    detected_style = $3,
    recommendation_count = $4,
    rejected_count = $5,
    row_count = $6,
    error_message = $7,
    style_error_message = $8,
    finished_at = $9
WHERE id = $1`
	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	res, err := r.DB.ExecContext(ctx, query,
		run.ID,
		string(run.Status),
		run.DetectedStyle,
		run.RecommendationCount,
		run.RejectedCount,
		run.RowCount,
		run.ErrorMessage,
		run.StyleErrorMessage,
		finishedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, runID string) (Run, error) {
	query := `
SELECT ` + runColumns + `
FROM generation_runs
WHERE id = $1
LIMIT 1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// ListBySession returns runs for a session, newest first.
func (r *PGRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT ` + runColumns + `
FROM generation_runs
WHERE session_id = $1
ORDER BY started_at DESC
LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var status string
	var finishedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.SessionID,
		&status,
		&run.DataFileName,
		&run.StyleFileName,
		&run.DetectedStyle,
		&run.RecommendationCount,
		&run.RejectedCount,
		&run.RowCount,
		&run.ErrorMessage,
		&run.StyleErrorMessage,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return Run{}, err
	}
	run.Status = Status(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

var (
	_ Repo = (*PGRepo)(nil)
	_ Repo = (*MemoryRepo)(nil)
)
