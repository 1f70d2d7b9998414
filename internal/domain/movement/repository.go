package movement

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository manages immutable account movement persistence
type Repository interface {
	Create(ctx context.Context, m *Movement) error
	GetByID(ctx context.Context, id int64) (*Movement, error)

	// GetByReference returns the movement recorded for the given reference
	// pair, or ErrMovementNotFound. This is the idempotency guard read.
	GetByReference(ctx context.Context, referenceID string, referenceType ReferenceType) (*Movement, error)

	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*Movement, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrMovementNotFound indicates missing movement
type ErrMovementNotFound struct {
	ReferenceID string
}

func (e ErrMovementNotFound) Error() string {
	return "account movement not found for reference: " + e.ReferenceID
}

// Is matches any ErrMovementNotFound when the target reference is empty
func (e ErrMovementNotFound) Is(target error) bool {
	t, ok := target.(ErrMovementNotFound)
	if !ok {
		return false
	}
	return t.ReferenceID == "" || t.ReferenceID == e.ReferenceID
}

// ErrDuplicateMovement indicates the reference uniqueness constraint fired
type ErrDuplicateMovement struct {
	ReferenceID string
	ExistingID  int64
}

func (e ErrDuplicateMovement) Error() string {
	return "duplicate movement for reference " + e.ReferenceID + " (existing id " + strconv.FormatInt(e.ExistingID, 10) + ")"
}
