package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// JobQueueRepository implements the syncjob.Queue interface on a PostgreSQL
// table. Leasing relies on FOR UPDATE SKIP LOCKED so multiple processor
// instances can dequeue concurrently without handing out the same job twice.
type JobQueueRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewJobQueueRepository creates a new PostgreSQL-backed sync job queue
func NewJobQueueRepository(logger *slog.Logger, db *persistence.PostgresDB) syncjob.Queue {
	return &JobQueueRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Enqueue inserts a pending job. The partial unique index on live jobs turns
// a duplicate key into syncjob.ErrDuplicateJob.
func (r *JobQueueRepository) Enqueue(ctx context.Context, job *syncjob.Job) error {
	query := `
		INSERT INTO sync_jobs (job_key, qr_id, account_id, priority, state, attempts, run_at, enqueued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		job.Key,
		job.QRID,
		job.AccountID,
		int(job.Priority),
		job.State,
		job.Attempts,
		job.RunAt,
		job.EnqueuedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return syncjob.ErrDuplicateJob{Key: job.Key}
		}
		r.logger.Error("Failed to enqueue sync job", "job_key", job.Key, "error", err)
		return fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	return nil
}

// Dequeue leases up to limit runnable jobs ordered by priority, then run_at.
// The inner SELECT skips rows locked by concurrent consumers; the UPDATE
// flips them to IN_FLIGHT in the same statement so the lease is atomic.
func (r *JobQueueRepository) Dequeue(ctx context.Context, limit int) ([]*syncjob.Job, error) {
	query := `
		UPDATE sync_jobs
		SET state = $1, leased_at = $2
		WHERE id IN (
			SELECT id FROM sync_jobs
			WHERE state = $3 AND run_at <= $2
			ORDER BY priority ASC, run_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING job_key, qr_id, account_id, priority, state, attempts, run_at, enqueued_at, leased_at, dead_reason
	`

	rows, err := r.querier.Query(ctx, query, syncjob.StateInFlight, time.Now(), syncjob.StatePending, limit)
	if err != nil {
		r.logger.Error("Failed to dequeue sync jobs", "error", err)
		return nil, fmt.Errorf("failed to dequeue sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*syncjob.Job
	for rows.Next() {
		var job syncjob.Job
		var priority int
		var deadReason *string
		err := rows.Scan(
			&job.Key,
			&job.QRID,
			&job.AccountID,
			&priority,
			&job.State,
			&job.Attempts,
			&job.RunAt,
			&job.EnqueuedAt,
			&job.LeasedAt,
			&deadReason,
		)
		if err != nil {
			r.logger.Error("Failed to scan sync job", "error", err)
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		job.Priority = syncjob.Priority(priority)
		if deadReason != nil {
			job.DeadReason = *deadReason
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over sync jobs", "error", err)
		return nil, fmt.Errorf("error iterating over sync jobs: %w", err)
	}

	return jobs, nil
}

// Ack marks a leased job done, freeing the key for a future cycle
func (r *JobQueueRepository) Ack(ctx context.Context, key string) error {
	query := `
		UPDATE sync_jobs
		SET state = $1, leased_at = NULL
		WHERE job_key = $2 AND state = $3
	`

	return r.finishLeased(ctx, query, key, syncjob.StateDone)
}

// Retry returns a leased job to pending with a new run time and one more
// recorded attempt
func (r *JobQueueRepository) Retry(ctx context.Context, key string, runAt time.Time) error {
	query := `
		UPDATE sync_jobs
		SET state = $1, attempts = attempts + 1, run_at = $2, leased_at = NULL
		WHERE job_key = $3 AND state = $4
	`

	tag, err := r.querier.Exec(ctx, query, syncjob.StatePending, runAt, key, syncjob.StateInFlight)
	if err != nil {
		r.logger.Error("Failed to retry sync job", "job_key", key, "error", err)
		return fmt.Errorf("failed to retry sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{Key: key}
	}

	return nil
}

// MarkDead parks a leased job for operator inspection. Dead jobs are kept,
// never silently dropped.
func (r *JobQueueRepository) MarkDead(ctx context.Context, key string, reason string) error {
	query := `
		UPDATE sync_jobs
		SET state = $1, dead_reason = $2, leased_at = NULL
		WHERE job_key = $3 AND state = $4
	`

	tag, err := r.querier.Exec(ctx, query, syncjob.StateDead, reason, key, syncjob.StateInFlight)
	if err != nil {
		r.logger.Error("Failed to dead-letter sync job", "job_key", key, "error", err)
		return fmt.Errorf("failed to dead-letter sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{Key: key}
	}

	return nil
}

// ReclaimStalled returns in-flight jobs whose lease is older than the timeout
// back to pending, and reports how many were reclaimed. Covers processor
// crashes mid-lease.
func (r *JobQueueRepository) ReclaimStalled(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	query := `
		UPDATE sync_jobs
		SET state = $1, leased_at = NULL
		WHERE state = $2 AND leased_at < $3
	`

	tag, err := r.querier.Exec(ctx, query, syncjob.StatePending, syncjob.StateInFlight, time.Now().Add(-leaseTimeout))
	if err != nil {
		r.logger.Error("Failed to reclaim stalled sync jobs", "error", err)
		return 0, fmt.Errorf("failed to reclaim stalled sync jobs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *JobQueueRepository) finishLeased(ctx context.Context, query, key string, to syncjob.State) error {
	tag, err := r.querier.Exec(ctx, query, to, key, syncjob.StateInFlight)
	if err != nil {
		r.logger.Error("Failed to update sync job state", "job_key", key, "error", err)
		return fmt.Errorf("failed to update sync job state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{Key: key}
	}

	return nil
}
