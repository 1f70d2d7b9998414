// Package dispatcher drains the persistent job queue and drives reconciliation
// attempts through the worker-pool service. Every dequeued job ends in exactly
// one of three states: acked, rescheduled for another attempt, or dead.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/reconlog"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/metrics"
	"github.com/qrpay-reconciler/internal/platform/messaging/producers"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

// Dispatcher leases runnable jobs from the queue and hands them to the
// reconcile service. Concurrency is bounded by the service's worker pool, so
// the dispatcher never leases more jobs per cycle than the pool has workers.
type Dispatcher struct {
	queue            syncjob.Queue
	reconcileService service.ReconcileService
	qrCodes          qrcode.Repository
	audit            service.AuditRecorder
	dlqProducer      producers.DeadLetterPublisher
	logger           *slog.Logger

	dispatchInterval time.Duration
	batchSize        int
	maxAttempts      int
	attemptBackoff   time.Duration
}

func NewDispatcher(
	cfg *config.WorkerPoolConfig,
	queue syncjob.Queue,
	reconcileService service.ReconcileService,
	qrCodes qrcode.Repository,
	audit service.AuditRecorder,
	dlqProducer producers.DeadLetterPublisher,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		queue:            queue,
		reconcileService: reconcileService,
		qrCodes:          qrCodes,
		audit:            audit,
		dlqProducer:      dlqProducer,
		logger:           logger,
		dispatchInterval: cfg.DispatchInterval,
		batchSize:        cfg.Size,
		maxAttempts:      cfg.MaxAttempts,
		attemptBackoff:   cfg.AttemptBackoff,
	}
}

// Start runs the dispatch loop until the context is canceled. Dequeue failures
// back off exponentially instead of hammering a struggling database.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting sync job dispatcher",
		"dispatch_interval", d.dispatchInterval.String(),
		"batch_size", d.batchSize,
		"max_attempts", d.maxAttempts,
	)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.dispatchInterval
	bo.MaxElapsedTime = 0 // Keep retrying for as long as the process lives

	ticker := time.NewTicker(d.dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Sync job dispatcher stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := d.dispatchBatch(ctx); err != nil {
				wait := bo.NextBackOff()
				d.logger.Error("Failed to dequeue sync jobs, backing off",
					"error", err,
					"backoff", wait.String(),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				continue
			}
			bo.Reset()
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) error {
	jobs, err := d.queue.Dequeue(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to dequeue sync jobs: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	d.logger.Debug("Leased sync jobs for dispatch", "count", len(jobs))

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job *syncjob.Job) {
			defer wg.Done()
			d.process(ctx, job)
		}(job)
	}
	wg.Wait()
	return nil
}

// process settles one leased job. Reconcile errors consume one attempt; the
// job is rescheduled with a doubling delay until the attempt ceiling, then
// parked dead.
func (d *Dispatcher) process(ctx context.Context, job *syncjob.Job) {
	logger := d.logger.With("job_key", job.Key, "qr_id", job.QRID, "priority", job.Priority.String())

	err := d.reconcileService.Reconcile(ctx, job)
	if err == nil {
		if ackErr := d.queue.Ack(ctx, job.Key); ackErr != nil {
			// The lease reclaimer will re-run the job; reconciliation is
			// idempotent so the duplicate attempt is harmless.
			logger.Error("Failed to ack completed sync job", "error", ackErr)
		}
		return
	}

	attempts := job.Attempts + 1
	if attempts >= d.maxAttempts {
		d.deadLetter(ctx, logger, job, attempts, err)
		return
	}

	// 2s, 4s, 8s for the default base
	delay := d.attemptBackoff << (attempts - 1)
	runAt := time.Now().Add(delay)
	if retryErr := d.queue.Retry(ctx, job.Key, runAt); retryErr != nil {
		logger.Error("Failed to reschedule sync job", "error", retryErr, "original_error", err)
		return
	}
	logger.Warn("Sync job attempt failed, rescheduled",
		"attempts", attempts,
		"retry_in", delay.String(),
		"error", err,
	)
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger *slog.Logger, job *syncjob.Job, attempts int, cause error) {
	reason := fmt.Sprintf("reconciliation failed after %d attempts: %s", attempts, cause)

	if err := d.queue.MarkDead(ctx, job.Key, reason); err != nil {
		logger.Error("Failed to mark sync job dead", "error", err, "original_error", cause)
		return
	}
	metrics.SyncJobsDeadLettered.Inc()
	logger.Error("Sync job exhausted its retry budget, parked as dead",
		"attempts", attempts,
		"error", cause,
	)

	d.publishDeadLetter(ctx, logger, job, reason)

	// The audit entry is what surfaces the job in the conflict review list
	if qr, qrErr := d.qrCodes.GetByID(ctx, job.QRID); qrErr == nil {
		d.audit.Record(ctx, job.QRID, attempts, qr.Status, nil, reconlog.OutcomeDeadLettered, reason)
	} else {
		logger.Error("Failed to load qr for dead-letter audit entry", "error", qrErr)
	}
}

func (d *Dispatcher) publishDeadLetter(ctx context.Context, logger *slog.Logger, job *syncjob.Job, reason string) {
	if d.dlqProducer == nil {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		logger.Error("Failed to marshal dead sync job for DLQ", "error", err)
		return
	}
	if err := d.dlqProducer.PublishToDLQ(ctx, job.Key, payload, reason); err != nil {
		// The durable dead row in sync_jobs survives; only the Kafka
		// notification is lost.
		logger.Error("Failed to publish dead sync job to DLQ", "error", err)
	}
}
