// Package ledger implements exactly-once movement recording. A movement is
// applied to an account balance and written as an immutable entry in a single
// transaction, keyed by its reference pair so that re-applying the same
// payment can never credit twice.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/qrpay-reconciler/internal/domain/account"
	"github.com/qrpay-reconciler/internal/domain/movement"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// MovementRequest describes a movement to record against an account
type MovementRequest struct {
	AccountID     uuid.UUID
	Type          movement.Type
	Amount        int64 // Positive magnitude in cents/minor units
	ReferenceID   string
	ReferenceType movement.ReferenceType
	Description   string
}

// Recorder applies movements with exactly-once semantics per reference pair.
// Two layers guarantee this: an in-transaction guard read, and the unique
// constraint on (reference_id, reference_type) as the backstop for races the
// guard read cannot see.
type Recorder struct {
	beginner  persistence.TxBeginner
	accounts  account.Repository
	movements movement.Repository
	logger    *slog.Logger
}

// NewRecorder creates a movement recorder
func NewRecorder(logger *slog.Logger, beginner persistence.TxBeginner, accounts account.Repository, movements movement.Repository) *Recorder {
	return &Recorder{
		beginner:  beginner,
		accounts:  accounts,
		movements: movements,
		logger:    logger,
	}
}

// Movements exposes the movement repository for idempotency lookups outside
// a recording transaction
func (r *Recorder) Movements() movement.Repository {
	return r.movements
}

// ApplyMovement records a movement in its own transaction. It returns the
// recorded movement and whether this call created it; a false second return
// with a nil error means an identical reference was already recorded and the
// existing movement is returned unchanged.
func (r *Recorder) ApplyMovement(ctx context.Context, req MovementRequest) (*movement.Movement, bool, error) {
	var recorded *movement.Movement
	var created bool

	err := persistence.ExecuteTx(ctx, r.beginner, func(tx pgx.Tx) error {
		var txErr error
		recorded, created, txErr = r.ApplyMovementTx(ctx, tx, req)
		return txErr
	})
	if err != nil {
		// The unique constraint fired inside the transaction, meaning a
		// concurrent writer won the race after our guard read. The movement
		// exists; fetch it outside the aborted transaction.
		if errors.Is(err, movement.ErrDuplicateMovement{}) {
			existing, getErr := r.movements.GetByReference(ctx, req.ReferenceID, req.ReferenceType)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to load movement after duplicate: %w", getErr)
			}
			r.logger.Info("Movement already recorded by concurrent writer",
				"reference_id", req.ReferenceID,
				"movement_id", existing.ID,
			)
			return existing, false, nil
		}
		return nil, false, err
	}

	return recorded, created, nil
}

// ApplyMovementTx records a movement inside the caller's transaction, so the
// caller can bind it atomically to other writes such as a QR status
// transition. The same idempotency rules as ApplyMovement apply, except that
// a lost insert race aborts the transaction with ErrDuplicateMovement and the
// caller decides how to recover.
func (r *Recorder) ApplyMovementTx(ctx context.Context, tx pgx.Tx, req MovementRequest) (*movement.Movement, bool, error) {
	sign, err := req.Type.Sign()
	if err != nil {
		return nil, false, err
	}
	if req.Amount <= 0 {
		return nil, false, movement.ErrInvalidAmount
	}

	accounts := r.accounts.WithTx(tx)
	movements := r.movements.WithTx(tx)

	// Idempotency guard: an existing movement for this reference means the
	// payment was already applied.
	existing, err := movements.GetByReference(ctx, req.ReferenceID, req.ReferenceType)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, movement.ErrMovementNotFound{}) {
		return nil, false, err
	}

	acc, err := accounts.LockForUpdate(ctx, req.AccountID)
	if err != nil {
		return nil, false, err
	}

	balanceBefore := acc.Balance
	if sign > 0 {
		err = acc.Credit(req.Amount)
	} else {
		err = acc.Debit(req.Amount)
	}
	if err != nil {
		return nil, false, err
	}

	m := &movement.Movement{
		AccountID:     req.AccountID,
		Type:          req.Type,
		Amount:        req.Amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  acc.Balance,
		ReferenceID:   req.ReferenceID,
		ReferenceType: req.ReferenceType,
		Description:   req.Description,
		CreatedAt:     time.Now(),
	}

	if err := movements.Create(ctx, m); err != nil {
		return nil, false, err
	}

	if err := accounts.UpdateBalances(ctx, acc); err != nil {
		return nil, false, err
	}

	r.logger.Info("Movement recorded",
		"account_id", req.AccountID.String(),
		"movement_id", m.ID,
		"movement_type", string(req.Type),
		"amount", req.Amount,
		"reference_id", req.ReferenceID,
	)

	return m, true, nil
}
