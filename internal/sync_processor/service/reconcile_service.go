package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/reconlog"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/sync_processor/scheduler"
)

// ReconcileServiceImpl drives one reconciliation attempt: local
// short-circuits first, then the bank status query, then the remote-driven
// transition. Every attempt leaves one audit log document.
type ReconcileServiceImpl struct {
	gateway bankgateway.Client
	qrCodes qrcode.Repository
	tracker StatusTracker
	applier PaymentApplier
	audit   AuditRecorder
	policy  scheduler.Policy
	logger  *slog.Logger
}

func NewReconcileService(
	gateway bankgateway.Client,
	qrCodes qrcode.Repository,
	tracker StatusTracker,
	applier PaymentApplier,
	audit AuditRecorder,
	policy scheduler.Policy,
	logger *slog.Logger,
) ReconcileService {
	return &ReconcileServiceImpl{
		gateway: gateway,
		qrCodes: qrCodes,
		tracker: tracker,
		applier: applier,
		audit:   audit,
		policy:  policy,
		logger:  logger,
	}
}

// Reconcile checks one QR against the bank and records the outcome
func (s *ReconcileServiceImpl) Reconcile(ctx context.Context, job *syncjob.Job) error {
	logger := s.logger.With("qr_id", job.QRID)
	now := time.Now()

	qr, err := s.qrCodes.GetByID(ctx, job.QRID)
	if err != nil {
		if errors.Is(err, qrcode.ErrQRCodeNotFound{}) {
			// A registry row cannot appear by retrying; ack the job.
			logger.Error("Sync job references a qr missing from the registry")
			return nil
		}
		return err
	}

	status, err := s.tracker.Load(ctx, qr.ID)
	if err != nil {
		return err
	}

	if done, err := s.shortCircuit(ctx, logger, qr, status, now); done || err != nil {
		return err
	}

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("bank authentication failed for qr %s: %w", qr.ID, err)
	}

	remote, err := s.gateway.GetStatus(ctx, token, qr.ID)
	if err != nil {
		return fmt.Errorf("bank status query failed for qr %s: %w", qr.ID, err)
	}

	switch remote.StatusCode {
	case bankgateway.StatusCodePaid:
		return s.applyRemotePayment(ctx, logger, qr, status, remote)
	case bankgateway.StatusCodeCancelled:
		return s.applyRemoteCancellation(ctx, logger, qr, status, now)
	default:
		return s.recordNoChange(ctx, logger, qr, status, now)
	}
}

// shortCircuit resolves the attempt locally when the gateway call would be
// pointless: the QR is already terminal, its due date has passed, or a
// single-use QR already carries its credit movement.
func (s *ReconcileServiceImpl) shortCircuit(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode, status *syncstatus.SyncStatus, now time.Time) (bool, error) {
	if qr.Status.IsTerminal() {
		status.Finalize(now, qr.Status)
		if err := s.tracker.Record(ctx, status); err != nil {
			return true, err
		}
		s.audit.Record(ctx, qr.ID, status.CheckCount, qr.Status, nil, reconlog.OutcomeShortCircuit, "qr already terminal locally")
		logger.Debug("Sync resolved locally, qr already terminal", "status", qr.Status)
		return true, nil
	}

	if qr.Overdue(now) {
		final, err := s.transitionTolerant(ctx, qr, qrcode.StatusExpired)
		if err != nil {
			return true, err
		}
		status.Finalize(now, final)
		if err := s.tracker.Record(ctx, status); err != nil {
			return true, err
		}
		s.audit.Record(ctx, qr.ID, status.CheckCount, final, nil, reconlog.OutcomeShortCircuit, "due date passed, expired locally")
		logger.Info("Expired overdue qr during sync", "due_date", qr.DueDate)
		return true, nil
	}

	if qr.SingleUse {
		existing, err := s.applier.ExistingMovement(ctx, qr.ID)
		if err != nil {
			return true, err
		}
		if existing != nil {
			final, err := s.transitionTolerant(ctx, qr, qrcode.StatusPaid)
			if err != nil {
				return true, err
			}
			status.Finalize(now, final)
			if err := s.tracker.Record(ctx, status); err != nil {
				return true, err
			}
			s.audit.Record(ctx, qr.ID, status.CheckCount, final, nil, reconlog.OutcomeShortCircuit, "credit movement already recorded")
			logger.Info("Sync resolved locally, movement already recorded", "movement_id", existing.ID)
			return true, nil
		}
	}

	return false, nil
}

func (s *ReconcileServiceImpl) applyRemotePayment(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode, status *syncstatus.SyncStatus, remote *bankgateway.StatusResponse) error {
	var payment *shared.PaymentNotification
	if len(remote.Payments) > 0 {
		payment = &remote.Payments[0]
	}

	remotePaid := qrcode.StatusPaid
	recorded, created, err := s.applier.Apply(ctx, qr, status, payment)
	if err != nil {
		var stateErr qrcode.ErrInvalidState
		if errors.As(err, &stateErr) {
			// Bank confirms a payment but the QR is terminally closed here,
			// such as a late payment landing after the expiry sweep. Park it
			// for manual review instead of retrying.
			status.Finalize(time.Now(), stateErr.Status)
			if recErr := s.tracker.Record(ctx, status); recErr != nil {
				return recErr
			}
			s.audit.Record(ctx, qr.ID, status.CheckCount, stateErr.Status, &remotePaid, reconlog.OutcomeConflict,
				"bank reports payment for a qr closed locally as "+string(stateErr.Status))
			return nil
		}
		return err
	}

	outcome := reconlog.OutcomeCredited
	detail := "payment confirmed by polling, movement recorded"
	if !created {
		outcome = reconlog.OutcomeTransitioned
		detail = "payment already credited, registry caught up"
	}
	s.audit.Record(ctx, qr.ID, status.CheckCount, qrcode.StatusPaid, &remotePaid, outcome, detail)
	logger.Info("Remote payment reconciled", "movement_id", recorded.ID, "created", created)
	return nil
}

func (s *ReconcileServiceImpl) applyRemoteCancellation(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode, status *syncstatus.SyncStatus, now time.Time) error {
	remoteCancelled := qrcode.StatusCancelled

	final, err := s.transitionTolerant(ctx, qr, qrcode.StatusCancelled)
	if err != nil {
		return err
	}

	if final == qrcode.StatusPaid {
		// The bank says cancelled but a payment was credited here. The
		// movement stands; flag the disagreement for manual review.
		status.Finalize(now, final)
		if recErr := s.tracker.Record(ctx, status); recErr != nil {
			return recErr
		}
		s.audit.Record(ctx, qr.ID, status.CheckCount, final, &remoteCancelled, reconlog.OutcomeConflict,
			"bank reports cancellation for a qr credited locally")
		return nil
	}

	status.Finalize(now, final)
	if err := s.tracker.Record(ctx, status); err != nil {
		return err
	}
	s.audit.Record(ctx, qr.ID, status.CheckCount, final, &remoteCancelled, reconlog.OutcomeTransitioned, "qr cancelled at the bank")
	logger.Info("Remote cancellation reconciled", "final_status", final)
	return nil
}

// recordNoChange schedules the next cycle per the priority policy
func (s *ReconcileServiceImpl) recordNoChange(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode, status *syncstatus.SyncStatus, now time.Time) error {
	_, interval := s.policy.Classify(qr.Status, status.CheckCount+1)
	status.RecordAttempt(now, true, interval)
	if err := s.tracker.Record(ctx, status); err != nil {
		return err
	}

	remotePending := qrcode.StatusPending
	s.audit.Record(ctx, qr.ID, status.CheckCount, qr.Status, &remotePending, reconlog.OutcomeNoChange, "")
	logger.Debug("Remote status unchanged", "check_count", status.CheckCount, "next_check_in", interval.String())
	return nil
}

// transitionTolerant applies a guarded status write and treats a lost race as
// resolved, returning the status that actually won. Only a genuinely failed
// write propagates as an error.
func (s *ReconcileServiceImpl) transitionTolerant(ctx context.Context, qr *qrcode.QRCode, to qrcode.Status) (qrcode.Status, error) {
	err := s.qrCodes.UpdateStatus(ctx, qr.ID, qr.Status, to)
	if err != nil {
		var stateErr qrcode.ErrInvalidState
		if errors.As(err, &stateErr) && stateErr.Status.IsTerminal() {
			return stateErr.Status, nil
		}
		return "", err
	}
	return to, nil
}
