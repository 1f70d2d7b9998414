package syncjob

import (
	"context"
	"time"
)

// Queue is the persistent priority job queue contract. Any durable backend
// satisfies it; the engine ships a Postgres-backed implementation. Dedupe is
// by job key: enqueueing a key that already has a live (pending or in-flight)
// job is a harmless no-op.
type Queue interface {
	// Enqueue inserts a pending job. Duplicate live keys return ErrDuplicateJob.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue leases up to limit runnable jobs ordered by priority, then
	// run_at. Leased jobs are invisible to other consumers until acked,
	// retried, dead-lettered, or their lease expires.
	Dequeue(ctx context.Context, limit int) ([]*Job, error)

	// Ack marks a leased job done, freeing the key for a future cycle.
	Ack(ctx context.Context, key string) error

	// Retry returns a leased job to pending with a new run time and one more
	// recorded attempt.
	Retry(ctx context.Context, key string, runAt time.Time) error

	// MarkDead parks a leased job for operator inspection. Dead jobs are kept,
	// never silently dropped.
	MarkDead(ctx context.Context, key string, reason string) error

	// ReclaimStalled returns in-flight jobs whose lease is older than the
	// timeout back to pending, and reports how many were reclaimed.
	ReclaimStalled(ctx context.Context, leaseTimeout time.Duration) (int64, error)
}

// ErrDuplicateJob indicates a live job already exists for the key
type ErrDuplicateJob struct {
	Key string
}

func (e ErrDuplicateJob) Error() string {
	return "sync job already enqueued for key: " + e.Key
}

// Is matches any ErrDuplicateJob when the target key is empty
func (e ErrDuplicateJob) Is(target error) bool {
	t, ok := target.(ErrDuplicateJob)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}

// ErrJobNotFound indicates no leased job exists for the key
type ErrJobNotFound struct {
	Key string
}

func (e ErrJobNotFound) Error() string {
	return "sync job not found: " + e.Key
}

// Is matches any ErrJobNotFound when the target key is empty
func (e ErrJobNotFound) Is(target error) bool {
	t, ok := target.(ErrJobNotFound)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}
