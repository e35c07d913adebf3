package job

import (
	"context"
	"database/sql"
)

// Repository persists job records. The conditional updates are compare-and-swap
// operations: the bool result reports whether the transition was applied, so a
// losing writer can detect the race instead of clobbering a terminal row.
type Repository interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	List(ctx context.Context, limit int) ([]Job, error)

	// SetInput moves uploading -> queued and records the input reference.
	SetInput(ctx context.Context, id, inputRef string) (bool, error)
	// MarkProcessing moves queued -> processing.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	// Complete moves queued/processing -> completed and records the output.
	Complete(ctx context.Context, id, outputRef string) (bool, error)
	// Fail moves any non-terminal state -> failed and records the error.
	Fail(ctx context.Context, id, message string) (bool, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, j *Job) error {
	query := `INSERT INTO jobs (status, input_ref) VALUES ($1, $2) RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, j.Status, j.InputRef).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	query := `SELECT id, status, input_ref, output_ref, error, created_at, updated_at FROM jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.Status, &j.InputRef, &j.OutputRef, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Job, error) {
	query := `SELECT id, status, input_ref, output_ref, error, created_at, updated_at FROM jobs ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Status, &j.InputRef, &j.OutputRef, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) SetInput(ctx context.Context, id, inputRef string) (bool, error) {
	query := `UPDATE jobs SET status = $1, input_ref = $2, updated_at = NOW() WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, StatusQueued, inputRef, id, StatusUploading)
	if err != nil {
		return false, err
	}
	return applied(res)
}

func (r *PostgresRepo) MarkProcessing(ctx context.Context, id string) (bool, error) {
	query := `UPDATE jobs SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, StatusProcessing, id, StatusQueued)
	if err != nil {
		return false, err
	}
	return applied(res)
}

func (r *PostgresRepo) Complete(ctx context.Context, id, outputRef string) (bool, error) {
	query := `UPDATE jobs SET status = $1, output_ref = $2, error = '', updated_at = NOW() WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, StatusCompleted, outputRef, id, StatusQueued, StatusProcessing)
	if err != nil {
		return false, err
	}
	return applied(res)
}

func (r *PostgresRepo) Fail(ctx context.Context, id, message string) (bool, error) {
	query := `UPDATE jobs SET status = $1, error = $2, output_ref = '', updated_at = NOW() WHERE id = $3 AND status NOT IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, StatusFailed, message, id, StatusCompleted, StatusFailed)
	if err != nil {
		return false, err
	}
	return applied(res)
}

func applied(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
