package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/domain/account"
	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
)

// Mock implementations of the dependencies

type MockQRCodeRepository struct {
	mock.Mock
}

func (m *MockQRCodeRepository) Create(ctx context.Context, qr *qrcode.QRCode) error {
	args := m.Called(ctx, qr)
	return args.Error(0)
}

func (m *MockQRCodeRepository) GetByID(ctx context.Context, id string) (*qrcode.QRCode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qrcode.QRCode), args.Error(1)
}

func (m *MockQRCodeRepository) GetByTransactionID(ctx context.Context, accountID uuid.UUID, transactionID string) (*qrcode.QRCode, error) {
	args := m.Called(ctx, accountID, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qrcode.QRCode), args.Error(1)
}

func (m *MockQRCodeRepository) UpdateStatus(ctx context.Context, id string, from, to qrcode.Status) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockQRCodeRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockQRCodeRepository) ListDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*qrcode.QRCode, error) {
	args := m.Called(ctx, now, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*qrcode.QRCode), args.Error(1)
}

func (m *MockQRCodeRepository) ListSyncCandidates(ctx context.Context, now time.Time, limit int) ([]*qrcode.SyncCandidate, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*qrcode.SyncCandidate), args.Error(1)
}

func (m *MockQRCodeRepository) WithTx(tx pgx.Tx) qrcode.Repository {
	return m
}

type MockSyncStatusRepository struct {
	mock.Mock
}

func (m *MockSyncStatusRepository) Upsert(ctx context.Context, status *syncstatus.SyncStatus) error {
	args := m.Called(ctx, status)
	return args.Error(0)
}

func (m *MockSyncStatusRepository) GetByQRID(ctx context.Context, qrID string) (*syncstatus.SyncStatus, error) {
	args := m.Called(ctx, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncstatus.SyncStatus), args.Error(1)
}

func (m *MockSyncStatusRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSyncStatusRepository) WithTx(tx pgx.Tx) syncstatus.Repository {
	return m
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountRepository) UpdateBalances(ctx context.Context, acc *account.Account) error {
	args := m.Called(ctx, acc)
	return args.Error(0)
}

func (m *MockAccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return m
}

type MockMovementRepository struct {
	mock.Mock
}

func (m *MockMovementRepository) Create(ctx context.Context, mv *movement.Movement) error {
	args := m.Called(ctx, mv)
	return args.Error(0)
}

func (m *MockMovementRepository) GetByID(ctx context.Context, id int64) (*movement.Movement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*movement.Movement), args.Error(1)
}

func (m *MockMovementRepository) GetByReference(ctx context.Context, referenceID string, referenceType movement.ReferenceType) (*movement.Movement, error) {
	args := m.Called(ctx, referenceID, referenceType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*movement.Movement), args.Error(1)
}

func (m *MockMovementRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*movement.Movement, error) {
	args := m.Called(ctx, accountID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*movement.Movement), args.Error(1)
}

func (m *MockMovementRepository) WithTx(tx pgx.Tx) movement.Repository {
	return m
}

type MockBankGateway struct {
	mock.Mock
}

func (m *MockBankGateway) Authenticate(ctx context.Context) (bankgateway.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).(bankgateway.Token), args.Error(1)
}

func (m *MockBankGateway) GenerateQR(ctx context.Context, token bankgateway.Token, req bankgateway.GenerateRequest) (*bankgateway.GeneratedQR, error) {
	args := m.Called(ctx, token, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bankgateway.GeneratedQR), args.Error(1)
}

func (m *MockBankGateway) CancelQR(ctx context.Context, token bankgateway.Token, qrID string) error {
	args := m.Called(ctx, token, qrID)
	return args.Error(0)
}

func (m *MockBankGateway) GetStatus(ctx context.Context, token bankgateway.Token, qrID string) (*bankgateway.StatusResponse, error) {
	args := m.Called(ctx, token, qrID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bankgateway.StatusResponse), args.Error(1)
}

func (m *MockBankGateway) ListPaidByDate(ctx context.Context, token bankgateway.Token, date time.Time) ([]shared.PaymentNotification, error) {
	args := m.Called(ctx, token, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]shared.PaymentNotification), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockTx implements the pgx.Tx interface for testing
type MockTx struct {
	mock.Mock
}

func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return m, nil }

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}

func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, nil
}

func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (m *MockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (m *MockTx) Conn() *pgx.Conn { return nil }

// MockTxBeginner hands out a prepared MockTx
type MockTxBeginner struct {
	tx  *MockTx
	err error
}

func (m *MockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tx, nil
}

func newPermissiveTx() *MockTx {
	tx := new(MockTx)
	tx.On("Commit", mock.Anything).Return(nil).Maybe()
	tx.On("Rollback", mock.Anything).Return(nil).Maybe()
	return tx
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
