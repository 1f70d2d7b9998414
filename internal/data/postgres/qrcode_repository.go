// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations while maintaining
// transaction safety and proper error handling for the reconciliation engine.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

const uniqueViolationCode = "23505"

// QRCodeRepository implements the qrcode.Repository interface for PostgreSQL
type QRCodeRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewQRCodeRepository creates a new PostgreSQL QR code repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewQRCodeRepository(logger *slog.Logger, db *persistence.PostgresDB) qrcode.Repository {
	return &QRCodeRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls.
func (r *QRCodeRepository) WithTx(tx pgx.Tx) qrcode.Repository {
	return &QRCodeRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new QR code. A duplicate transaction id for the same
// account surfaces as qrcode.ErrDuplicateTransactionID.
func (r *QRCodeRepository) Create(ctx context.Context, qr *qrcode.QRCode) error {
	query := `
		INSERT INTO qr_codes (id, transaction_id, account_id, amount, currency, due_date, single_use, modify_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.querier.Exec(ctx, query,
		qr.ID,
		qr.TransactionID,
		qr.AccountID,
		qr.Amount,
		qr.Currency,
		qr.DueDate,
		qr.SingleUse,
		qr.ModifyAmount,
		qr.Status,
		qr.CreatedAt,
		qr.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return qrcode.ErrDuplicateTransactionID{TransactionID: qr.TransactionID}
		}
		r.logger.Error("Failed to create qr code", "qr_id", qr.ID, "error", err)
		return fmt.Errorf("failed to create qr code: %w", err)
	}

	return nil
}

// GetByID retrieves a QR code by its id
func (r *QRCodeRepository) GetByID(ctx context.Context, id string) (*qrcode.QRCode, error) {
	query := `
		SELECT id, transaction_id, account_id, amount, currency, due_date, single_use, modify_amount, status, created_at, updated_at
		FROM qr_codes
		WHERE id = $1
	`

	qr, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, qrcode.ErrQRCodeNotFound{ID: id}
		}
		r.logger.Error("Failed to get qr code", "qr_id", id, "error", err)
		return nil, fmt.Errorf("failed to get qr code: %w", err)
	}

	return qr, nil
}

// GetByTransactionID retrieves a QR code by the merchant transaction id,
// scoped to the owning account
func (r *QRCodeRepository) GetByTransactionID(ctx context.Context, accountID uuid.UUID, transactionID string) (*qrcode.QRCode, error) {
	query := `
		SELECT id, transaction_id, account_id, amount, currency, due_date, single_use, modify_amount, status, created_at, updated_at
		FROM qr_codes
		WHERE account_id = $1 AND transaction_id = $2
	`

	qr, err := r.scanOne(r.querier.QueryRow(ctx, query, accountID, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, qrcode.ErrQRCodeNotFound{ID: transactionID}
		}
		r.logger.Error("Failed to get qr code by transaction id",
			"account_id", accountID.String(),
			"transaction_id", transactionID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get qr code by transaction id: %w", err)
	}

	return qr, nil
}

// UpdateStatus performs a guarded single-row status write. The transition is
// validated against the lifecycle rules first, then the WHERE clause pins the
// expected current status, so a concurrent transition wins and the late writer
// observes zero affected rows, reported as ErrInvalidState.
func (r *QRCodeRepository) UpdateStatus(ctx context.Context, id string, from, to qrcode.Status) error {
	lifecycle := qrcode.QRCode{ID: id, Status: from}
	if _, err := lifecycle.Apply(to); err != nil {
		return err
	}

	query := `
		UPDATE qr_codes
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	tag, err := r.querier.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		r.logger.Error("Failed to update qr code status", "qr_id", id, "error", err)
		return fmt.Errorf("failed to update qr code status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a missing row from a lost status race
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return qrcode.ErrInvalidState{ID: id, Status: current.Status, Attempted: to}
	}

	return nil
}

// ExpireOverdue flips every ACTIVE QR whose due date precedes now to EXPIRED
// and returns the ids it touched
func (r *QRCodeRepository) ExpireOverdue(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE qr_codes
		SET status = $1, updated_at = $2
		WHERE status = $3 AND due_date < $2
		RETURNING id
	`

	rows, err := r.querier.Query(ctx, query, qrcode.StatusExpired, now, qrcode.StatusActive)
	if err != nil {
		r.logger.Error("Failed to expire overdue qr codes", "error", err)
		return nil, fmt.Errorf("failed to expire overdue qr codes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.Error("Failed to scan expired qr id", "error", err)
			return nil, fmt.Errorf("failed to scan expired qr id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over expired qr ids", "error", err)
		return nil, fmt.Errorf("error iterating over expired qr ids: %w", err)
	}

	return ids, nil
}

// ListDueWithin returns non-terminal QR codes whose due date falls inside the
// window starting at now, ordered by due date
func (r *QRCodeRepository) ListDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*qrcode.QRCode, error) {
	query := `
		SELECT id, transaction_id, account_id, amount, currency, due_date, single_use, modify_amount, status, created_at, updated_at
		FROM qr_codes
		WHERE status IN ($1, $2) AND due_date >= $3 AND due_date < $4
		ORDER BY due_date ASC
	`

	rows, err := r.querier.Query(ctx, query, qrcode.StatusPending, qrcode.StatusActive, now, now.Add(window))
	if err != nil {
		r.logger.Error("Failed to list due qr codes", "error", err)
		return nil, fmt.Errorf("failed to list due qr codes: %w", err)
	}
	defer rows.Close()

	var qrs []*qrcode.QRCode
	for rows.Next() {
		var qr qrcode.QRCode
		err := rows.Scan(
			&qr.ID,
			&qr.TransactionID,
			&qr.AccountID,
			&qr.Amount,
			&qr.Currency,
			&qr.DueDate,
			&qr.SingleUse,
			&qr.ModifyAmount,
			&qr.Status,
			&qr.CreatedAt,
			&qr.UpdatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan qr code", "error", err)
			return nil, fmt.Errorf("failed to scan qr code: %w", err)
		}
		qrs = append(qrs, &qr)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over due qr codes", "error", err)
		return nil, fmt.Errorf("error iterating over due qr codes: %w", err)
	}

	return qrs, nil
}

// ListSyncCandidates selects pollable QRs due for a reconciliation check:
// PENDING or ACTIVE with no final sync status, either never checked or with
// next_check at or before now. PENDING sorts before ACTIVE, oldest first.
func (r *QRCodeRepository) ListSyncCandidates(ctx context.Context, now time.Time, limit int) ([]*qrcode.SyncCandidate, error) {
	query := `
		SELECT q.id, q.transaction_id, q.account_id, q.amount, q.currency, q.due_date, q.single_use, q.modify_amount, q.status, q.created_at, q.updated_at, COALESCE(s.check_count, 0)
		FROM qr_codes q
		LEFT JOIN sync_statuses s ON s.qr_id = q.id
		WHERE q.status IN ($1, $2)
		  AND (s.qr_id IS NULL OR (s.final_status IS NULL AND s.next_check IS NOT NULL AND s.next_check <= $3))
		ORDER BY CASE WHEN q.status = $1 THEN 0 ELSE 1 END, q.created_at ASC
		LIMIT $4
	`

	rows, err := r.querier.Query(ctx, query, qrcode.StatusPending, qrcode.StatusActive, now, limit)
	if err != nil {
		r.logger.Error("Failed to list sync candidates", "error", err)
		return nil, fmt.Errorf("failed to list sync candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*qrcode.SyncCandidate
	for rows.Next() {
		var qr qrcode.QRCode
		var checkCount int
		err := rows.Scan(
			&qr.ID,
			&qr.TransactionID,
			&qr.AccountID,
			&qr.Amount,
			&qr.Currency,
			&qr.DueDate,
			&qr.SingleUse,
			&qr.ModifyAmount,
			&qr.Status,
			&qr.CreatedAt,
			&qr.UpdatedAt,
			&checkCount,
		)
		if err != nil {
			r.logger.Error("Failed to scan sync candidate", "error", err)
			return nil, fmt.Errorf("failed to scan sync candidate: %w", err)
		}
		candidates = append(candidates, &qrcode.SyncCandidate{QR: &qr, CheckCount: checkCount})
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over sync candidates", "error", err)
		return nil, fmt.Errorf("error iterating over sync candidates: %w", err)
	}

	return candidates, nil
}

func (r *QRCodeRepository) scanOne(row pgx.Row) (*qrcode.QRCode, error) {
	var qr qrcode.QRCode
	err := row.Scan(
		&qr.ID,
		&qr.TransactionID,
		&qr.AccountID,
		&qr.Amount,
		&qr.Currency,
		&qr.DueDate,
		&qr.SingleUse,
		&qr.ModifyAmount,
		&qr.Status,
		&qr.CreatedAt,
		&qr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &qr, nil
}
