package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"riskradar/internal/models"
	"riskradar/internal/util"
)

type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobCols = `job_id, job_kind, status, total_items, completed_items,
       COALESCE(error_message,''), started_at, completed_at`

// StartRunning inserts a new running job. The jobs_single_running partial
// unique index turns the singleton invariant into a plain insert: if any job
// is already running the insert fails with a unique violation, which maps to
// ErrJobAlreadyRunning. No check-then-act window, and the flag survives
// restarts because it lives in the table, not in process memory.
func (r *JobRepo) StartRunning(ctx context.Context, kind models.JobKind) (models.Job, error) {
	job := models.Job{
		ID:     uuid.NewString(),
		Kind:   kind,
		Status: models.JobRunning,
	}
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO jobs (job_id, job_kind, status)
VALUES ($1, $2, 'running')
RETURNING started_at`, job.ID, kind).Scan(&job.StartedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.Job{}, util.ErrJobAlreadyRunning
		}
		return models.Job{}, fmt.Errorf("start job: %w", err)
	}
	return job, nil
}

// FailStale marks any job left running by a dead process as failed. Runs
// once at startup: the running row survives a crash, and without this the
// partial unique index would reject every future start.
func (r *JobRepo) FailStale(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE jobs SET status = 'failed', error_message = 'interrupted by restart', completed_at = NOW()
WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepo) SetTotal(ctx context.Context, id string, total int) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE jobs SET total_items = $2 WHERE job_id = $1 AND status = 'running'`, id, total)
	if err != nil {
		return fmt.Errorf("set job total: %w", err)
	}
	return nil
}

// IncrementCompleted bumps the progress counter. The guards keep the counter
// monotonic, capped at total_items, and frozen once the job is terminal.
func (r *JobRepo) IncrementCompleted(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE jobs SET completed_items = completed_items + 1
WHERE job_id = $1 AND status = 'running' AND completed_items < total_items`, id)
	if err != nil {
		return fmt.Errorf("increment job progress: %w", err)
	}
	return nil
}

func (r *JobRepo) Finish(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE jobs SET status = $2, error_message = NULLIF($3,''), completed_at = NOW()
WHERE job_id = $1 AND status = 'running'`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	err := r.db.Pool.QueryRow(ctx, `
SELECT `+jobCols+` FROM jobs WHERE job_id = $1`, id).
		Scan(&j.ID, &j.Kind, &j.Status, &j.TotalItems, &j.CompletedItems,
			&j.ErrorMessage, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

func (r *JobRepo) Latest(ctx context.Context) (*models.Job, error) {
	var j models.Job
	err := r.db.Pool.QueryRow(ctx, `
SELECT `+jobCols+` FROM jobs ORDER BY started_at DESC LIMIT 1`).
		Scan(&j.ID, &j.Kind, &j.Status, &j.TotalItems, &j.CompletedItems,
			&j.ErrorMessage, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job: %w", err)
	}
	return &j, nil
}

func (r *JobRepo) History(ctx context.Context, limit int) ([]models.Job, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+jobCols+` FROM jobs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("job history: %w", err)
	}
	defer rows.Close()

	out := make([]models.Job, 0, limit)
	for rows.Next() {
		var j models.Job
		if err := rows.Scan(&j.ID, &j.Kind, &j.Status, &j.TotalItems, &j.CompletedItems,
			&j.ErrorMessage, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}
