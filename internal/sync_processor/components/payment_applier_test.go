package components

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qrpay-reconciler/internal/domain/account"
	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/ledger"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

type applierFixture struct {
	qrCodes      *MockQRCodeRepository
	syncStatuses *MockSyncStatusRepository
	accounts     *MockAccountRepository
	movements    *MockMovementRepository
	publisher    *MockPublisher
	tx           *MockTx
	applier      service.PaymentApplier
}

func newApplierFixture() *applierFixture {
	f := &applierFixture{
		qrCodes:      new(MockQRCodeRepository),
		syncStatuses: new(MockSyncStatusRepository),
		accounts:     new(MockAccountRepository),
		movements:    new(MockMovementRepository),
		publisher:    new(MockPublisher),
		tx:           newPermissiveTx(),
	}
	logger := newTestLogger()
	recorder := ledger.NewRecorder(logger, &MockTxBeginner{tx: f.tx}, f.accounts, f.movements)
	f.applier = NewPaymentApplier(&MockTxBeginner{tx: f.tx}, f.qrCodes, f.syncStatuses, recorder, f.publisher, logger)
	return f
}

func syncQR() *qrcode.QRCode {
	now := time.Now()
	return &qrcode.QRCode{
		ID:            "QR-APPLY-001",
		TransactionID: "TXN-001",
		AccountID:     uuid.New(),
		Amount:        12550,
		Currency:      "EUR",
		DueDate:       now.Add(12 * time.Hour),
		SingleUse:     true,
		Status:        qrcode.StatusActive,
		CreatedAt:     now.Add(-time.Hour),
		UpdatedAt:     now.Add(-time.Hour),
	}
}

func TestPaymentApplier_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("CreditsAndFinalizesInOneTransaction", func(t *testing.T) {
		f := newApplierFixture()
		qr := syncQR()
		status := syncstatus.New(qr.ID)
		acc := &account.Account{ID: qr.AccountID, Balance: 100000, AvailableBalance: 100000, Currency: "EUR", Status: account.StatusActive}

		f.qrCodes.On("UpdateStatus", ctx, qr.ID, qrcode.StatusActive, qrcode.StatusPaid).Return(nil).Once()
		f.movements.On("GetByReference", ctx, qr.ID, movement.ReferenceTypeQRCode).
			Return(nil, movement.ErrMovementNotFound{ReferenceID: qr.ID}).Once()
		f.accounts.On("LockForUpdate", ctx, qr.AccountID).Return(acc, nil).Once()
		f.movements.On("Create", ctx, mock.MatchedBy(func(m *movement.Movement) bool {
			return m.Amount == 12550 && m.BalanceBefore == 100000 && m.BalanceAfter == 112550
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*movement.Movement).ID = 7
		}).Return(nil).Once()
		f.accounts.On("UpdateBalances", ctx, mock.MatchedBy(func(a *account.Account) bool {
			return a.Balance == 112550
		})).Return(nil).Once()
		f.syncStatuses.On("Upsert", ctx, mock.MatchedBy(func(s *syncstatus.SyncStatus) bool {
			return s.NextCheck == nil && s.FinalStatus != nil && *s.FinalStatus == qrcode.StatusPaid
		})).Return(nil).Once()
		f.publisher.On("Publish", ctx, qr.ID, mock.MatchedBy(func(v interface{}) bool {
			event, ok := v.(*shared.PaymentEvent)
			return ok && event.Source == shared.PaymentSourcePolling && event.MovementID == 7
		})).Return(nil).Once()

		recorded, created, err := f.applier.Apply(ctx, qr, status, nil)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(7), recorded.ID)
		f.publisher.AssertExpectations(t)
		f.syncStatuses.AssertExpectations(t)
	})

	t.Run("ExistingMovementShortCircuitsInsideTransaction", func(t *testing.T) {
		f := newApplierFixture()
		qr := syncQR()
		status := syncstatus.New(qr.ID)
		existing := &movement.Movement{ID: 9, ReferenceID: qr.ID, Amount: qr.Amount}

		f.qrCodes.On("UpdateStatus", ctx, qr.ID, qrcode.StatusActive, qrcode.StatusPaid).Return(nil).Once()
		f.movements.On("GetByReference", ctx, qr.ID, movement.ReferenceTypeQRCode).Return(existing, nil).Once()
		f.syncStatuses.On("Upsert", ctx, mock.Anything).Return(nil).Once()

		recorded, created, err := f.applier.Apply(ctx, qr, status, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(9), recorded.ID)
		f.accounts.AssertNotCalled(t, "LockForUpdate", mock.Anything, mock.Anything)
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("LostPaidRaceAdoptsWinner", func(t *testing.T) {
		f := newApplierFixture()
		qr := syncQR()
		status := syncstatus.New(qr.ID)
		winner := *qr
		winner.Status = qrcode.StatusPaid
		existing := &movement.Movement{ID: 11, ReferenceID: qr.ID, Amount: qr.Amount}

		f.qrCodes.On("UpdateStatus", ctx, qr.ID, qrcode.StatusActive, qrcode.StatusPaid).
			Return(qrcode.ErrInvalidState{ID: qr.ID, Status: qrcode.StatusPaid, Attempted: qrcode.StatusPaid}).Once()
		f.qrCodes.On("GetByID", ctx, qr.ID).Return(&winner, nil).Once()
		f.movements.On("GetByReference", ctx, qr.ID, movement.ReferenceTypeQRCode).Return(existing, nil).Once()
		f.syncStatuses.On("Upsert", ctx, mock.MatchedBy(func(s *syncstatus.SyncStatus) bool {
			return s.FinalStatus != nil && *s.FinalStatus == qrcode.StatusPaid
		})).Return(nil).Once()

		recorded, created, err := f.applier.Apply(ctx, qr, status, nil)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(11), recorded.ID)
	})

	t.Run("TerminalNonPaidStatePropagates", func(t *testing.T) {
		f := newApplierFixture()
		qr := syncQR()
		status := syncstatus.New(qr.ID)
		expired := *qr
		expired.Status = qrcode.StatusExpired

		f.qrCodes.On("UpdateStatus", ctx, qr.ID, qrcode.StatusActive, qrcode.StatusPaid).
			Return(qrcode.ErrInvalidState{ID: qr.ID, Status: qrcode.StatusExpired, Attempted: qrcode.StatusPaid}).Once()
		f.qrCodes.On("GetByID", ctx, qr.ID).Return(&expired, nil).Once()

		_, _, err := f.applier.Apply(ctx, qr, status, nil)
		var stateErr qrcode.ErrInvalidState
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, qrcode.StatusExpired, stateErr.Status)
	})

	t.Run("ModifiableAmountUsesNotification", func(t *testing.T) {
		f := newApplierFixture()
		qr := syncQR()
		qr.ModifyAmount = true
		status := syncstatus.New(qr.ID)
		payment := &shared.PaymentNotification{QRID: qr.ID, Amount: 999, Currency: "EUR"}
		acc := &account.Account{ID: qr.AccountID, Balance: 1000, AvailableBalance: 1000, Currency: "EUR", Status: account.StatusActive}

		f.qrCodes.On("UpdateStatus", ctx, qr.ID, qrcode.StatusActive, qrcode.StatusPaid).Return(nil).Once()
		f.movements.On("GetByReference", ctx, qr.ID, movement.ReferenceTypeQRCode).
			Return(nil, movement.ErrMovementNotFound{ReferenceID: qr.ID}).Once()
		f.accounts.On("LockForUpdate", ctx, qr.AccountID).Return(acc, nil).Once()
		f.movements.On("Create", ctx, mock.MatchedBy(func(m *movement.Movement) bool {
			return m.Amount == 999
		})).Return(nil).Once()
		f.accounts.On("UpdateBalances", ctx, mock.Anything).Return(nil).Once()
		f.syncStatuses.On("Upsert", ctx, mock.Anything).Return(nil).Once()
		f.publisher.On("Publish", ctx, qr.ID, mock.Anything).Return(nil).Once()

		_, created, err := f.applier.Apply(ctx, qr, status, payment)
		require.NoError(t, err)
		assert.True(t, created)
	})
}

func TestPaymentApplier_ExistingMovement(t *testing.T) {
	ctx := context.Background()

	t.Run("NoMovementReturnsNil", func(t *testing.T) {
		f := newApplierFixture()
		f.movements.On("GetByReference", ctx, "QR-NONE", movement.ReferenceTypeQRCode).
			Return(nil, movement.ErrMovementNotFound{ReferenceID: "QR-NONE"}).Once()

		existing, err := f.applier.ExistingMovement(ctx, "QR-NONE")
		require.NoError(t, err)
		assert.Nil(t, existing)
	})

	t.Run("ReturnsRecordedMovement", func(t *testing.T) {
		f := newApplierFixture()
		recorded := &movement.Movement{ID: 3, ReferenceID: "QR-SOME"}
		f.movements.On("GetByReference", ctx, "QR-SOME", movement.ReferenceTypeQRCode).Return(recorded, nil).Once()

		existing, err := f.applier.ExistingMovement(ctx, "QR-SOME")
		require.NoError(t, err)
		assert.Equal(t, int64(3), existing.ID)
	})
}
