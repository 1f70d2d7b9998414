package reconlog

import (
	"time"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
)

// Outcome classifies a reconciliation attempt
type Outcome string

const (
	OutcomeNoChange     Outcome = "NO_CHANGE"     // Remote agreed with local state
	OutcomeTransitioned Outcome = "TRANSITIONED"  // Local state caught up to remote
	OutcomeCredited     Outcome = "CREDITED"      // Payment confirmed and movement recorded
	OutcomeShortCircuit Outcome = "SHORT_CIRCUIT" // Resolved locally without a gateway call
	OutcomeConflict     Outcome = "CONFLICT"      // Remote and local disagree irreconcilably
	OutcomeDeadLettered Outcome = "DEAD_LETTERED" // Job exhausted its retry budget
)

// Entry is one immutable audit document per reconciliation attempt. Conflict
// entries record cases needing manual review, such as a bank-confirmed
// payment arriving for a QR the expiry sweep already closed.
type Entry struct {
	QRID         string         `json:"qr_id" bson:"qr_id"`
	AttemptAt    time.Time      `json:"attempt_at" bson:"attempt_at"`
	CheckCount   int            `json:"check_count" bson:"check_count"`
	LocalStatus  qrcode.Status  `json:"local_status" bson:"local_status"`
	RemoteStatus *qrcode.Status `json:"remote_status,omitempty" bson:"remote_status,omitempty"`
	Outcome      Outcome        `json:"outcome" bson:"outcome"`
	Conflict     bool           `json:"conflict" bson:"conflict"`
	Detail       string         `json:"detail,omitempty" bson:"detail,omitempty"`
}
