package qrcode

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrEmptyQRID       = errors.New("qr id cannot be empty")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
	ErrPastDueDate     = errors.New("due date must be in the future")
)

// Status represents the lifecycle state of a QR code
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// IsTerminal reports whether the status admits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled || s == StatusExpired
}

// QRCode represents a bank-issued QR payment request and its declared terms
type QRCode struct {
	ID            string    `json:"qr_id"`          // Bank-assigned or locally generated
	TransactionID string    `json:"transaction_id"` // Merchant-assigned, unique per account
	AccountID     uuid.UUID `json:"account_id"`     // Owning ledger account
	Amount        int64     `json:"amount"`         // Stored in cents/minor units
	Currency      string    `json:"currency"`
	DueDate       time.Time `json:"due_date"`
	SingleUse     bool      `json:"single_use"`
	ModifyAmount  bool      `json:"modify_amount"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewQRCode creates a new QR code record in ACTIVE state
func NewQRCode(id, transactionID string, accountID uuid.UUID, amount int64, currency string, dueDate time.Time, singleUse, modifyAmount bool) (*QRCode, error) {
	if id == "" {
		return nil, ErrEmptyQRID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(currency) != 3 {
		return nil, ErrInvalidCurrency
	}
	if dueDate.Before(time.Now()) {
		return nil, ErrPastDueDate
	}

	now := time.Now()
	return &QRCode{
		ID:            id,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Currency:      currency,
		DueDate:       dueDate,
		SingleUse:     singleUse,
		ModifyAmount:  modifyAmount,
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// allowedTransitions maps each non-terminal status to its permitted successors
var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusPaid, StatusCancelled, StatusExpired},
	StatusActive:  {StatusPaid, StatusCancelled, StatusExpired},
}

// Apply attempts a lifecycle transition. Re-applying the current status is an
// idempotent no-op reporting success, which keeps concurrent webhook and
// polling observations of the same terminal transition harmless. A transition
// out of a terminal status, or any other disallowed move, returns
// ErrInvalidState.
func (q *QRCode) Apply(next Status) (bool, error) {
	if next == q.Status {
		return false, nil
	}

	if q.Status.IsTerminal() {
		return false, ErrInvalidState{ID: q.ID, Status: q.Status, Attempted: next}
	}

	for _, allowed := range allowedTransitions[q.Status] {
		if next == allowed {
			q.Status = next
			q.UpdatedAt = time.Now()
			return true, nil
		}
	}

	return false, ErrInvalidState{ID: q.ID, Status: q.Status, Attempted: next}
}

// Overdue reports whether the QR's due date has passed at the given instant
func (q *QRCode) Overdue(now time.Time) bool {
	return q.DueDate.Before(now)
}

// Payable reports whether a payment notification may still be applied
func (q *QRCode) Payable() bool {
	return q.Status == StatusActive || q.Status == StatusPending
}
