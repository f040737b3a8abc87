package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/whitelist/internal/db"
)

type Repository struct {
	db  *db.DB
	now func() time.Time
}

func NewRepository(d *db.DB) *Repository { return &Repository{db: d, now: time.Now} }

type jobRow struct {
	ID          string         `db:"id"`
	Type        string         `db:"type"`
	Payload     sql.NullString `db:"payload"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	Priority    int            `db:"priority"`
	ScheduledAt int64          `db:"scheduled_at"`
	NextTryAt   sql.NullInt64  `db:"next_try_at"`
	LastError   sql.NullString `db:"last_error"`
	Created     int64          `db:"created"`
	Updated     int64          `db:"updated"`
}

func (r jobRow) job() *Job {
	j := &Job{
		ID:          r.ID,
		Type:        r.Type,
		Status:      r.Status,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		Priority:    r.Priority,
		ScheduledAt: r.ScheduledAt,
		LastError:   r.LastError.String,
		Created:     r.Created,
		Updated:     r.Updated,
	}
	if r.Payload.Valid {
		j.Payload = []byte(r.Payload.String)
	}
	if r.NextTryAt.Valid {
		t := r.NextTryAt.Int64
		j.NextTryAt = &t
	}
	return j
}

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, j *Job) (string, error) {
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	now := r.now().UTC().UnixMilli()
	if j.ScheduledAt == 0 {
		j.ScheduledAt = now
	}
	j.ID = uuid.NewString()
	j.Status = StatusQueued
	j.Created, j.Updated = now, now
	q := `INSERT INTO jobs(id, type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?,?)`
	if _, err := r.db.Exec(ctx, q, j.ID, j.Type, string(j.Payload), j.Status, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt, now, now); err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	return j.ID, nil
}

// FetchNext claims the next due job, respecting priority and schedule, and
// marks it running. It returns (nil, nil) when nothing is due.
func (r *Repository) FetchNext(ctx context.Context) (*Job, error) {
	now := r.now().UTC().UnixMilli()
	q := `SELECT id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated
		FROM jobs
		WHERE (status = 'queued' OR status = 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
		ORDER BY priority ASC, scheduled_at ASC LIMIT 1`

	var job *Job
	err := r.db.InTx(ctx, func(tx *db.Tx) error {
		var row jobRow
		if err := tx.Get(ctx, &row, q, now, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		res, err := tx.Exec(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE id = ? AND status = ?`, StatusRunning, now, row.ID, row.Status)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// claimed by another worker
			return nil
		}
		job = row.job()
		job.Status = StatusRunning
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch next job: %w", err)
	}
	return job, nil
}

// GetJob returns a job by id, or (nil, nil).
func (r *Repository) GetJob(ctx context.Context, id string) (*Job, error) {
	var row jobRow
	err := r.db.Get(ctx, &row, `SELECT id, type, payload, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return row.job(), nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = *j.NextTryAt
	}
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.db.Exec(ctx, q, j.Status, j.Attempts, nextTry, j.LastError, r.now().UTC().UnixMilli(), j.ID)
	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the queued row
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	return r.db.InTx(ctx, func(tx *db.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(id, job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?,?)`
		if _, err := tx.Exec(ctx, insert, uuid.NewString(), j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, r.now().UTC().UnixMilli()); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID)
		return err
	})
}

// DeadLetters returns the number of jobs that exhausted their attempts.
func (r *Repository) DeadLetters(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Get(ctx, &n, `SELECT COUNT(1) FROM dead_letter_jobs`); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}
