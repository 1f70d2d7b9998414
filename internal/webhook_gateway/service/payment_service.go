package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/ledger"
	"github.com/qrpay-reconciler/internal/metrics"
	"github.com/qrpay-reconciler/internal/platform/messaging/producers"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// ErrAmountMismatch indicates a notification amount that deviates from a
// fixed-amount QR
var ErrAmountMismatch = errors.New("notification amount does not match qr amount")

// ErrCurrencyMismatch indicates a notification denominated in a currency other
// than the QR's
var ErrCurrencyMismatch = errors.New("notification currency does not match qr currency")

// paymentService binds the PAID transition and the credit movement into one
// transaction, then emits the post-commit payment event.
type paymentService struct {
	beginner     persistence.TxBeginner
	qrCodes      qrcode.Repository
	syncStatuses syncstatus.Repository
	recorder     *ledger.Recorder
	publisher    producers.MessagePublisher // May be nil when Kafka is disabled
	logger       *slog.Logger
}

// NewPaymentService creates the webhook payment processing service
func NewPaymentService(
	logger *slog.Logger,
	beginner persistence.TxBeginner,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	recorder *ledger.Recorder,
	publisher producers.MessagePublisher,
) PaymentService {
	return &paymentService{
		beginner:     beginner,
		qrCodes:      qrCodes,
		syncStatuses: syncStatuses,
		recorder:     recorder,
		publisher:    publisher,
		logger:       logger,
	}
}

func (s *paymentService) ProcessNotification(ctx context.Context, notification *shared.PaymentNotification, correlationID string) (*PaymentResult, error) {
	logger := s.logger
	if correlationID != "" {
		logger = s.logger.With("correlation_id", correlationID)
	}

	qr, err := s.qrCodes.GetByID(ctx, notification.QRID)
	if err != nil {
		return nil, err
	}

	if qr.Status == qrcode.StatusPaid {
		return s.alreadyApplied(ctx, logger, qr)
	}
	if qr.Status.IsTerminal() {
		return nil, qrcode.ErrInvalidState{ID: qr.ID, Status: qr.Status, Attempted: qrcode.StatusPaid}
	}

	// A same-magnitude payment in the wrong currency is not the payment the
	// QR asked for, regardless of ModifyAmount
	if notification.Currency != qr.Currency {
		logger.Warn("Rejecting payment with mismatched currency",
			"qr_id", qr.ID,
			"expected", qr.Currency,
			"received", notification.Currency,
		)
		return nil, ErrCurrencyMismatch
	}

	amount := qr.Amount
	if qr.ModifyAmount {
		amount = notification.Amount
	} else if notification.Amount != qr.Amount {
		logger.Warn("Rejecting payment with mismatched amount",
			"qr_id", qr.ID,
			"expected", qr.Amount,
			"received", notification.Amount,
		)
		return nil, ErrAmountMismatch
	}

	var recorded *movement.Movement
	err = persistence.ExecuteTx(ctx, s.beginner, func(tx pgx.Tx) error {
		if err := s.qrCodes.WithTx(tx).UpdateStatus(ctx, qr.ID, qr.Status, qrcode.StatusPaid); err != nil {
			return err
		}

		var created bool
		var txErr error
		recorded, created, txErr = s.recorder.ApplyMovementTx(ctx, tx, ledger.MovementRequest{
			AccountID:     qr.AccountID,
			Type:          movement.TypeQRPayment,
			Amount:        amount,
			ReferenceID:   qr.ID,
			ReferenceType: movement.ReferenceTypeQRCode,
			Description:   notification.Description,
		})
		if txErr != nil {
			return txErr
		}
		if !created {
			// The QR was not PAID but its movement already exists; the
			// guarded status write above caught the registry up.
			logger.Warn("Movement existed ahead of qr status", "qr_id", qr.ID, "movement_id", recorded.ID)
		}

		return s.finalizeSyncStatus(ctx, tx, qr.ID)
	})
	if err != nil {
		// A concurrent webhook delivery or poll cycle may have won the PAID
		// transition between our read and the guarded write.
		if errors.Is(err, qrcode.ErrInvalidState{}) || errors.Is(err, movement.ErrDuplicateMovement{}) {
			current, getErr := s.qrCodes.GetByID(ctx, notification.QRID)
			if getErr == nil && current.Status == qrcode.StatusPaid {
				return s.alreadyApplied(ctx, logger, current)
			}
		}
		return nil, err
	}

	metrics.WebhookNotifications.WithLabelValues("applied").Inc()
	metrics.MovementsRecorded.WithLabelValues(string(movement.TypeQRPayment)).Inc()
	logger.Info("Payment notification applied",
		"qr_id", qr.ID,
		"movement_id", recorded.ID,
		"amount", amount,
	)

	s.publishPaymentEvent(ctx, logger, qr, recorded, correlationID)

	return &PaymentResult{QRID: qr.ID, MovementID: recorded.ID}, nil
}

// alreadyApplied confirms the earlier credit exists and reports the
// redelivery as an idempotent success
func (s *paymentService) alreadyApplied(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode) (*PaymentResult, error) {
	existing, err := s.recorder.Movements().GetByReference(ctx, qr.ID, movement.ReferenceTypeQRCode)
	if err != nil {
		if errors.Is(err, movement.ErrMovementNotFound{}) {
			// PAID with no movement should be impossible given the paired
			// write; surface it rather than acknowledge silently.
			return nil, fmt.Errorf("qr %s is PAID but has no recorded movement: %w", qr.ID, err)
		}
		return nil, err
	}

	metrics.WebhookNotifications.WithLabelValues("idempotent").Inc()
	logger.Info("Duplicate payment notification acknowledged", "qr_id", qr.ID, "movement_id", existing.ID)
	return &PaymentResult{QRID: qr.ID, MovementID: existing.ID, AlreadyApplied: true}, nil
}

// finalizeSyncStatus stops any pending polling for the QR inside the same
// transaction that marked it PAID
func (s *paymentService) finalizeSyncStatus(ctx context.Context, tx pgx.Tx, qrID string) error {
	statuses := s.syncStatuses.WithTx(tx)

	status, err := statuses.GetByQRID(ctx, qrID)
	if err != nil {
		if !errors.Is(err, syncstatus.ErrSyncStatusNotFound{}) {
			return err
		}
		status = syncstatus.New(qrID)
	}

	status.Finalize(time.Now(), qrcode.StatusPaid)
	return statuses.Upsert(ctx, status)
}

func (s *paymentService) publishPaymentEvent(ctx context.Context, logger *slog.Logger, qr *qrcode.QRCode, m *movement.Movement, correlationID string) {
	if s.publisher == nil {
		return
	}

	event := &shared.PaymentEvent{
		QRID:          qr.ID,
		AccountID:     qr.AccountID,
		MovementID:    m.ID,
		Amount:        m.Amount,
		Currency:      qr.Currency,
		Source:        shared.PaymentSourceWebhook,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}

	// The movement is committed; a lost event is an observability gap, not a
	// ledger inconsistency.
	if err := s.publisher.Publish(ctx, qr.ID, event); err != nil {
		logger.Error("Failed to publish payment event", "qr_id", qr.ID, "error", err)
	}
}
