// Package scheduler runs the selection loop of the polling subsystem. Each
// tick it reclaims stalled leases, selects a bounded batch of QRs due for a
// reconciliation check, and enqueues one sync job per QR. QRs past their
// check budget or age window are abandoned instead, flagging them for manual
// follow-up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
)

// Scheduler selects QRs due for reconciliation and feeds the job queue
type Scheduler struct {
	qrCodes      qrcode.Repository
	syncStatuses syncstatus.Repository
	queue        syncjob.Queue
	policy       Policy
	pollInterval time.Duration
	batchSize    int
	leaseTimeout time.Duration
	logger       *slog.Logger
}

func NewScheduler(
	cfg *config.SchedulerConfig,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	queue syncjob.Queue,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		qrCodes:      qrCodes,
		syncStatuses: syncStatuses,
		queue:        queue,
		policy: Policy{
			MaxCheckCount: cfg.MaxCheckCount,
			MaxQRAge:      cfg.MaxQRAge,
		},
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		leaseTimeout: cfg.LeaseTimeout,
		logger:       logger,
	}
}

// Start begins the selection loop until context is canceled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler",
		"poll_interval", s.pollInterval.String(),
		"batch_size", s.batchSize,
		"max_check_count", s.policy.MaxCheckCount,
		"max_qr_age", s.policy.MaxQRAge.String(),
	)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := s.tick(ctx, time.Now()); err != nil {
				s.logger.Error("Error during scheduler tick", "error", err)
			}
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) error {
	// Crashed workers leave jobs leased forever; return them first so the
	// batch below can pick them up again.
	reclaimed, err := s.queue.ReclaimStalled(ctx, s.leaseTimeout)
	if err != nil {
		s.logger.Error("Failed to reclaim stalled sync jobs", "error", err)
	} else if reclaimed > 0 {
		s.logger.Warn("Reclaimed stalled sync jobs", "count", reclaimed)
	}

	candidates, err := s.qrCodes.ListSyncCandidates(ctx, now, s.batchSize)
	if err != nil {
		return fmt.Errorf("failed to select sync candidates: %w", err)
	}

	if len(candidates) == 0 {
		s.logger.Debug("No QRs due for reconciliation.")
		return nil
	}

	enqueued := 0
	for _, candidate := range candidates {
		if s.policy.Exhausted(candidate.QR, candidate.CheckCount, now) {
			s.abandon(ctx, candidate, now)
			continue
		}
		if s.enqueue(ctx, candidate, now) {
			enqueued++
		}
	}

	s.logger.Info("Scheduler tick completed", "selected", len(candidates), "enqueued", enqueued)
	return nil
}

// enqueue submits one sync job for the QR. A live job already queued for the
// same QR is left alone; the job key makes the duplicate a no-op.
func (s *Scheduler) enqueue(ctx context.Context, candidate *qrcode.SyncCandidate, now time.Time) bool {
	priority, _ := s.policy.Classify(candidate.QR.Status, candidate.CheckCount)
	job := syncjob.NewJob(candidate.QR.ID, candidate.QR.AccountID, priority, now)

	if err := s.queue.Enqueue(ctx, job); err != nil {
		if errors.Is(err, syncjob.ErrDuplicateJob{}) {
			s.logger.Debug("Sync job already queued", "qr_id", candidate.QR.ID)
			return false
		}
		s.logger.Error("Failed to enqueue sync job", "qr_id", candidate.QR.ID, "error", err)
		return false
	}

	s.logger.Debug("Enqueued sync job",
		"qr_id", candidate.QR.ID,
		"priority", priority.String(),
		"check_count", candidate.CheckCount,
	)
	return true
}

// abandon permanently removes the QR from future selection without a terminal
// outcome, leaving it flagged for manual follow-up.
func (s *Scheduler) abandon(ctx context.Context, candidate *qrcode.SyncCandidate, now time.Time) {
	status, err := s.syncStatuses.GetByQRID(ctx, candidate.QR.ID)
	if err != nil {
		if !errors.Is(err, syncstatus.ErrSyncStatusNotFound{}) {
			s.logger.Error("Failed to load sync status for abandonment", "qr_id", candidate.QR.ID, "error", err)
			return
		}
		status = syncstatus.New(candidate.QR.ID)
	}

	status.Abandon(now)
	if err := s.syncStatuses.Upsert(ctx, status); err != nil {
		s.logger.Error("Failed to abandon qr polling", "qr_id", candidate.QR.ID, "error", err)
		return
	}

	s.logger.Warn("Stopped polling qr without terminal outcome, flagged for manual follow-up",
		"qr_id", candidate.QR.ID,
		"status", candidate.QR.Status,
		"check_count", candidate.CheckCount,
		"age", now.Sub(candidate.QR.CreatedAt).String(),
	)
}
