package scheduler

import (
	"time"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/syncjob"
)

// Check-count thresholds separating the polling intensity tiers
const (
	highPriorityCheckLimit   = 5
	mediumPriorityCheckLimit = 10
)

// Polling cadences per tier. The interval governs when the next
// reconciliation cycle starts, not retry of a failed attempt.
const (
	highPriorityInterval   = 2 * time.Minute
	mediumPriorityInterval = 5 * time.Minute
	lowPriorityInterval    = 15 * time.Minute
)

// Policy derives job priority and next-check interval from a QR's status and
// polling progress, and decides when a QR leaves the polling set for good.
type Policy struct {
	MaxCheckCount int           // Polling stops once a QR reaches this many checks
	MaxQRAge      time.Duration // QRs older than this are no longer polled
}

// Classify maps a pollable QR onto a priority tier. Fresh PENDING QRs are
// polled aggressively since the payer is likely at the terminal right now;
// interest decays as checks accumulate.
func (p Policy) Classify(status qrcode.Status, checkCount int) (syncjob.Priority, time.Duration) {
	switch {
	case status == qrcode.StatusPending && checkCount < highPriorityCheckLimit:
		return syncjob.PriorityHigh, highPriorityInterval
	case checkCount < mediumPriorityCheckLimit:
		return syncjob.PriorityMedium, mediumPriorityInterval
	default:
		return syncjob.PriorityLow, lowPriorityInterval
	}
}

// Exhausted reports whether polling must stop for the QR: either the check
// budget is spent or the QR has aged out of the polling window.
func (p Policy) Exhausted(qr *qrcode.QRCode, checkCount int, now time.Time) bool {
	if checkCount >= p.MaxCheckCount {
		return true
	}
	return now.Sub(qr.CreatedAt) > p.MaxQRAge
}
