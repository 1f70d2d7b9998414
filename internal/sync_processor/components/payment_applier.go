package components

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
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

// PaymentApplierImpl credits a bank-confirmed payment discovered by polling.
// The PAID transition, the movement, and the sync status finalization share
// one transaction, the same pairing the webhook path uses, so the two paths
// race safely on the movement's reference uniqueness.
type PaymentApplierImpl struct {
	beginner     persistence.TxBeginner
	qrCodes      qrcode.Repository
	syncStatuses syncstatus.Repository
	recorder     *ledger.Recorder
	publisher    producers.MessagePublisher // May be nil when Kafka is disabled
	logger       *slog.Logger
}

func NewPaymentApplier(
	beginner persistence.TxBeginner,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	recorder *ledger.Recorder,
	publisher producers.MessagePublisher,
	logger *slog.Logger,
) service.PaymentApplier {
	return &PaymentApplierImpl{
		beginner:     beginner,
		qrCodes:      qrCodes,
		syncStatuses: syncStatuses,
		recorder:     recorder,
		publisher:    publisher,
		logger:       logger,
	}
}

// ExistingMovement returns the movement already recorded for the QR, or nil
// when the QR has never been credited.
func (a *PaymentApplierImpl) ExistingMovement(ctx context.Context, qrID string) (*movement.Movement, error) {
	existing, err := a.recorder.Movements().GetByReference(ctx, qrID, movement.ReferenceTypeQRCode)
	if err != nil {
		if errors.Is(err, movement.ErrMovementNotFound{}) {
			return nil, nil
		}
		return nil, err
	}
	return existing, nil
}

// Apply executes the PAID transition, the credit movement, and the sync
// status finalization in one transaction. It reports created=false when the
// movement already existed, which is the expected outcome when the webhook
// beat the poller to the same payment.
func (a *PaymentApplierImpl) Apply(ctx context.Context, qr *qrcode.QRCode, status *syncstatus.SyncStatus, payment *shared.PaymentNotification) (*movement.Movement, bool, error) {
	amount := qr.Amount
	description := ""
	if payment != nil {
		if qr.ModifyAmount && payment.Amount > 0 {
			amount = payment.Amount
		}
		description = payment.Description
	}

	var recorded *movement.Movement
	var created bool
	err := persistence.ExecuteTx(ctx, a.beginner, func(tx pgx.Tx) error {
		if err := a.qrCodes.WithTx(tx).UpdateStatus(ctx, qr.ID, qr.Status, qrcode.StatusPaid); err != nil {
			return err
		}

		var txErr error
		recorded, created, txErr = a.recorder.ApplyMovementTx(ctx, tx, ledger.MovementRequest{
			AccountID:     qr.AccountID,
			Type:          movement.TypeQRPayment,
			Amount:        amount,
			ReferenceID:   qr.ID,
			ReferenceType: movement.ReferenceTypeQRCode,
			Description:   description,
		})
		if txErr != nil {
			return txErr
		}

		status.Finalize(time.Now(), qrcode.StatusPaid)
		return a.syncStatuses.WithTx(tx).Upsert(ctx, status)
	})
	if err != nil {
		// The webhook or another poll cycle may have won the PAID transition
		// between the caller's read and our guarded write.
		if errors.Is(err, qrcode.ErrInvalidState{}) || errors.Is(err, movement.ErrDuplicateMovement{}) {
			current, getErr := a.qrCodes.GetByID(ctx, qr.ID)
			if getErr == nil && current.Status == qrcode.StatusPaid {
				return a.reconcileWithWinner(ctx, current, status)
			}
		}
		return nil, false, err
	}

	if created {
		metrics.MovementsRecorded.WithLabelValues(string(movement.TypeQRPayment)).Inc()
		a.publishPaymentEvent(ctx, qr, recorded)
	}
	return recorded, created, nil
}

// reconcileWithWinner resolves a lost PAID race by adopting the winner's
// movement and finalizing the polling bookkeeping outside the aborted
// transaction.
func (a *PaymentApplierImpl) reconcileWithWinner(ctx context.Context, qr *qrcode.QRCode, status *syncstatus.SyncStatus) (*movement.Movement, bool, error) {
	existing, err := a.ExistingMovement(ctx, qr.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("qr %s is PAID but has no recorded movement", qr.ID)
	}

	status.Finalize(time.Now(), qrcode.StatusPaid)
	if err := a.syncStatuses.Upsert(ctx, status); err != nil {
		return nil, false, err
	}

	a.logger.Info("Payment already credited by a concurrent path", "qr_id", qr.ID, "movement_id", existing.ID)
	return existing, false, nil
}

func (a *PaymentApplierImpl) publishPaymentEvent(ctx context.Context, qr *qrcode.QRCode, m *movement.Movement) {
	if a.publisher == nil {
		return
	}

	event := &shared.PaymentEvent{
		QRID:       qr.ID,
		AccountID:  qr.AccountID,
		MovementID: m.ID,
		Amount:     m.Amount,
		Currency:   qr.Currency,
		Source:     shared.PaymentSourcePolling,
		Timestamp:  time.Now(),
	}

	// The movement is committed; a lost event is an observability gap, not a
	// ledger inconsistency.
	if err := a.publisher.Publish(ctx, qr.ID, event); err != nil {
		a.logger.Error("Failed to publish payment event", "qr_id", qr.ID, "error", err)
	}
}
