package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// MovementRepository implements the movement.Repository interface for PostgreSQL
type MovementRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewMovementRepository creates a new PostgreSQL movement repository
func NewMovementRepository(logger *slog.Logger, db *persistence.PostgresDB) movement.Repository {
	return &MovementRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction. Movements are always
// written in the same transaction as the balance they adjust.
func (r *MovementRepository) WithTx(tx pgx.Tx) movement.Repository {
	return &MovementRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts an immutable movement row. A violation of the reference
// uniqueness constraint surfaces as movement.ErrDuplicateMovement, which is
// the database-level backstop of the exactly-once crediting guarantee.
func (r *MovementRepository) Create(ctx context.Context, m *movement.Movement) error {
	query := `
		INSERT INTO account_movements (account_id, movement_type, amount, balance_before, balance_after, reference_id, reference_type, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.querier.QueryRow(ctx, query,
		m.AccountID,
		m.Type,
		m.Amount,
		m.BalanceBefore,
		m.BalanceAfter,
		m.ReferenceID,
		m.ReferenceType,
		m.Description,
		m.CreatedAt,
	).Scan(&m.ID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return movement.ErrDuplicateMovement{ReferenceID: m.ReferenceID}
		}
		r.logger.Error("Failed to create movement",
			"account_id", m.AccountID.String(),
			"reference_id", m.ReferenceID,
			"error", err,
		)
		return fmt.Errorf("failed to create movement: %w", err)
	}

	return nil
}

// GetByID retrieves a movement by its ID
func (r *MovementRepository) GetByID(ctx context.Context, id int64) (*movement.Movement, error) {
	query := `
		SELECT id, account_id, movement_type, amount, balance_before, balance_after, reference_id, reference_type, description, created_at
		FROM account_movements
		WHERE id = $1
	`

	m, err := r.scanOne(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, movement.ErrMovementNotFound{}
		}
		r.logger.Error("Failed to get movement", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get movement: %w", err)
	}

	return m, nil
}

// GetByReference returns the movement recorded for the given reference pair,
// or movement.ErrMovementNotFound. This is the idempotency guard read.
func (r *MovementRepository) GetByReference(ctx context.Context, referenceID string, referenceType movement.ReferenceType) (*movement.Movement, error) {
	query := `
		SELECT id, account_id, movement_type, amount, balance_before, balance_after, reference_id, reference_type, description, created_at
		FROM account_movements
		WHERE reference_id = $1 AND reference_type = $2
	`

	m, err := r.scanOne(r.querier.QueryRow(ctx, query, referenceID, referenceType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, movement.ErrMovementNotFound{ReferenceID: referenceID}
		}
		r.logger.Error("Failed to get movement by reference",
			"reference_id", referenceID,
			"reference_type", string(referenceType),
			"error", err,
		)
		return nil, fmt.Errorf("failed to get movement by reference: %w", err)
	}

	return m, nil
}

// ListByAccountID retrieves movements for an account, newest first
func (r *MovementRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*movement.Movement, error) {
	query := `
		SELECT id, account_id, movement_type, amount, balance_before, balance_after, reference_id, reference_type, description, created_at
		FROM account_movements
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.querier.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list movements", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	var movements []*movement.Movement
	for rows.Next() {
		var m movement.Movement
		err := rows.Scan(
			&m.ID,
			&m.AccountID,
			&m.Type,
			&m.Amount,
			&m.BalanceBefore,
			&m.BalanceAfter,
			&m.ReferenceID,
			&m.ReferenceType,
			&m.Description,
			&m.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan movement", "error", err)
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		movements = append(movements, &m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over movements", "error", err)
		return nil, fmt.Errorf("error iterating over movements: %w", err)
	}

	return movements, nil
}

func (r *MovementRepository) scanOne(row pgx.Row) (*movement.Movement, error) {
	var m movement.Movement
	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.Type,
		&m.Amount,
		&m.BalanceBefore,
		&m.BalanceAfter,
		&m.ReferenceID,
		&m.ReferenceType,
		&m.Description,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
