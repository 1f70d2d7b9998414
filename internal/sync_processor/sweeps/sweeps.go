// Package sweeps runs the cron-scheduled maintenance passes: expiring overdue
// QRs, escalating soon-to-expire ones, and pruning old sync status rows.
package sweeps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/metrics"
)

// Sweeps owns the cron runner and the three scheduled passes. Each pass is a
// single statement or small loop against the repositories, so a failed run is
// logged and simply retried on the next schedule.
type Sweeps struct {
	qrCodes      qrcode.Repository
	syncStatuses syncstatus.Repository
	queue        syncjob.Queue
	logger       *slog.Logger

	cron          *cron.Cron
	expirySpec    string
	dueSoonSpec   string
	dueSoonWindow time.Duration
	cleanupSpec   string
	retention     time.Duration
}

func NewSweeps(
	cfg *config.SweepsConfig,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	queue syncjob.Queue,
	logger *slog.Logger,
) *Sweeps {
	return &Sweeps{
		qrCodes:       qrCodes,
		syncStatuses:  syncStatuses,
		queue:         queue,
		logger:        logger,
		cron:          cron.New(),
		expirySpec:    cfg.ExpirySchedule,
		dueSoonSpec:   cfg.DueSoonSchedule,
		dueSoonWindow: cfg.DueSoonWindow,
		cleanupSpec:   cfg.CleanupSchedule,
		retention:     cfg.SyncStatusRetention,
	}
}

// Start registers the three passes and starts the cron runner
func (s *Sweeps) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.expirySpec, func() {
		if err := s.ExpireOverdue(ctx, time.Now()); err != nil {
			s.logger.Error("Expiry sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule expiry sweep %q: %w", s.expirySpec, err)
	}

	if _, err := s.cron.AddFunc(s.dueSoonSpec, func() {
		if err := s.EscalateDueSoon(ctx, time.Now()); err != nil {
			s.logger.Error("Due-soon sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule due-soon sweep %q: %w", s.dueSoonSpec, err)
	}

	if _, err := s.cron.AddFunc(s.cleanupSpec, func() {
		if err := s.CleanupSyncStatuses(ctx, time.Now()); err != nil {
			s.logger.Error("Sync status cleanup sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule cleanup sweep %q: %w", s.cleanupSpec, err)
	}

	s.logger.Info("Starting maintenance sweeps",
		"expiry_schedule", s.expirySpec,
		"due_soon_schedule", s.dueSoonSpec,
		"due_soon_window", s.dueSoonWindow.String(),
		"cleanup_schedule", s.cleanupSpec,
		"sync_status_retention", s.retention.String(),
	)
	s.cron.Start()
	return nil
}

// Stop halts the cron runner and returns once in-flight sweep runs finish
func (s *Sweeps) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Maintenance sweeps stopped")
}

// ExpireOverdue flips every ACTIVE QR past its due date to EXPIRED. The next
// reconciliation attempt of an expired QR short-circuits on the terminal state
// and finalizes its sync status.
func (s *Sweeps) ExpireOverdue(ctx context.Context, now time.Time) error {
	ids, err := s.qrCodes.ExpireOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to expire overdue qr codes: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	metrics.QRCodesExpired.Add(float64(len(ids)))
	s.logger.Info("Expired overdue qr codes", "count", len(ids))
	return nil
}

// EscalateDueSoon enqueues a high priority check for every payable QR whose
// due date falls inside the window, so a last-minute payment is caught before
// the expiry sweep closes the QR. A live job with a lower priority keeps its
// slot; the escalation only matters for QRs the queue has forgotten about.
func (s *Sweeps) EscalateDueSoon(ctx context.Context, now time.Time) error {
	qrs, err := s.qrCodes.ListDueWithin(ctx, now, s.dueSoonWindow)
	if err != nil {
		return fmt.Errorf("failed to list qr codes due within %s: %w", s.dueSoonWindow, err)
	}

	enqueued := 0
	for _, qr := range qrs {
		if !qr.Payable() {
			continue
		}
		job := syncjob.NewJob(qr.ID, qr.AccountID, syncjob.PriorityHigh, now)
		if err := s.queue.Enqueue(ctx, job); err != nil {
			if errors.Is(err, syncjob.ErrDuplicateJob{}) {
				continue
			}
			s.logger.Error("Failed to enqueue due-soon sync job", "qr_id", qr.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("Escalated qr codes nearing their due date", "candidates", len(qrs), "enqueued", enqueued)
	}
	return nil
}

// CleanupSyncStatuses prunes sync status rows last checked before the
// retention cutoff
func (s *Sweeps) CleanupSyncStatuses(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.retention)
	removed, err := s.syncStatuses.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete sync statuses older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if removed > 0 {
		s.logger.Info("Pruned old sync status rows", "count", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
