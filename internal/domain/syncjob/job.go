package syncjob

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders jobs in the queue; lower values dequeue first
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// State tracks a job through the queue
type State string

const (
	StatePending  State = "PENDING"
	StateInFlight State = "IN_FLIGHT"
	StateDone     State = "DONE"
	StateDead     State = "DEAD" // Exhausted retries, parked for operator inspection
)

// Job is one scheduled reconciliation of a QR against the bank. The key is
// derived from the QR id so a QR can never have two live jobs at once.
type Job struct {
	Key        string     `json:"key"` // Stable dedupe key, equals the qr id
	QRID       string     `json:"qr_id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Priority   Priority   `json:"priority"`
	State      State      `json:"state"`
	Attempts   int        `json:"attempts"` // Failed attempts of the current cycle
	RunAt      time.Time  `json:"run_at"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	LeasedAt   *time.Time `json:"leased_at,omitempty"`
	DeadReason string     `json:"dead_reason,omitempty"`
}

// NewJob builds a pending job keyed by the QR id
func NewJob(qrID string, accountID uuid.UUID, priority Priority, runAt time.Time) *Job {
	return &Job{
		Key:        qrID,
		QRID:       qrID,
		AccountID:  accountID,
		Priority:   priority,
		State:      StatePending,
		RunAt:      runAt,
		EnqueuedAt: time.Now(),
	}
}
