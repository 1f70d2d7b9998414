package account

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds for debit")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrAccountInactive   = errors.New("account is not active")
)

// Status represents the operational state of an account
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusFrozen Status = "FROZEN"
	StatusClosed Status = "CLOSED"
)

// Account represents a ledger account. Balance always equals the signed sum
// of the account's movements; the two are only ever written together inside
// one transaction.
type Account struct {
	ID               uuid.UUID `json:"id"`
	Balance          int64     `json:"balance"`           // Stored in cents/minor units
	AvailableBalance int64     `json:"available_balance"` // Balance minus holds
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Credit adds the signed delta of an incoming movement to both balances
func (a *Account) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Status != StatusActive {
		return ErrAccountInactive
	}

	a.Balance += amount
	a.AvailableBalance += amount
	a.UpdatedAt = time.Now()
	return nil
}

// Debit subtracts the magnitude of an outgoing movement from both balances
func (a *Account) Debit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if a.Status != StatusActive {
		return ErrAccountInactive
	}
	if a.AvailableBalance < amount {
		return ErrInsufficientFunds
	}

	a.Balance -= amount
	a.AvailableBalance -= amount
	a.UpdatedAt = time.Now()
	return nil
}
