package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qrpay-reconciler/internal/domain/account"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction, allowing for atomic
// operations across multiple repository calls.
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetByID retrieves an account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT id, balance, available_balance, currency, status, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	acc, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// LockForUpdate retrieves an account with a pessimistic row lock. It must be
// called inside a transaction; the lock is held until commit or rollback.
func (r *AccountRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT id, balance, available_balance, currency, status, created_at, updated_at
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`

	acc, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to lock account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}

	return acc, nil
}

// UpdateBalances writes both balances back. Only valid while the caller holds
// the row lock inside the same transaction.
func (r *AccountRepository) UpdateBalances(ctx context.Context, acc *account.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, available_balance = $2, updated_at = $3
		WHERE id = $4
	`

	tag, err := r.querier.Exec(ctx, query, acc.Balance, acc.AvailableBalance, time.Now(), acc.ID)
	if err != nil {
		r.logger.Error("Failed to update account balances", "id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to update account balances: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: acc.ID}
	}

	return nil
}

func (r *AccountRepository) scanOne(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.Balance,
		&acc.AvailableBalance,
		&acc.Currency,
		&acc.Status,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
