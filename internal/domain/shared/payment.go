package shared

import (
	"time"

	"github.com/google/uuid"
)

// PaymentNotification is the normalized form of a bank payment push,
// consumed by the webhook ingestion path and produced by the bank gateway's
// status/listing calls.
type PaymentNotification struct {
	QRID             string    `json:"qr_id"`
	TransactionID    string    `json:"transaction_id"`
	PaymentDate      string    `json:"payment_date"` // Bank-local date, DD/MM/YYYY
	PaymentTime      string    `json:"payment_time"` // Bank-local time, HH:MM
	Currency         string    `json:"currency"`
	Amount           int64     `json:"amount"` // Cents/minor units
	SenderBankCode   string    `json:"sender_bank_code"`
	SenderName       string    `json:"sender_name"`
	SenderDocumentID string    `json:"sender_document_id"`
	SenderAccount    string    `json:"sender_account"` // Arrives pre-encrypted
	Description      string    `json:"description,omitempty"`
	BranchCode       string    `json:"branch_code,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
}

// PaymentEventSource distinguishes which reconciliation path confirmed a payment
type PaymentEventSource string

const (
	PaymentSourceWebhook PaymentEventSource = "webhook"
	PaymentSourcePolling PaymentEventSource = "polling"
)

// PaymentEvent is the post-commit Kafka message notifying downstream
// consumers that a QR was credited. It is published only after the database
// transaction pairing the QR transition with the movement has committed.
type PaymentEvent struct {
	QRID          string             `json:"qr_id"`
	AccountID     uuid.UUID          `json:"account_id"`
	MovementID    int64              `json:"movement_id"`
	Amount        int64              `json:"amount"`
	Currency      string             `json:"currency"`
	Source        PaymentEventSource `json:"source"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}
