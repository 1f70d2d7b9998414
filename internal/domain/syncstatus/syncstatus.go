package syncstatus

import (
	"time"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
)

// SyncStatus is the per-QR bookkeeping row for the polling subsystem. It is
// created lazily on the first sync attempt and updated after every attempt.
//
// Invariant: NextCheck is strictly after LastChecked unless FinalStatus is
// set (or polling was abandoned), in which case NextCheck is nil.
type SyncStatus struct {
	QRID        string         `json:"qr_id"`
	LastChecked time.Time      `json:"last_checked"`
	NextCheck   *time.Time     `json:"next_check,omitempty"` // nil means "stop polling"
	CheckCount  int            `json:"check_count"`
	Success     bool           `json:"success"`
	FinalStatus *qrcode.Status `json:"final_status,omitempty"`
}

// New creates the lazily-initialized row for a QR's first sync attempt
func New(qrID string) *SyncStatus {
	return &SyncStatus{QRID: qrID}
}

// RecordAttempt registers one reconciliation attempt and schedules the next
// check after the given interval
func (s *SyncStatus) RecordAttempt(now time.Time, success bool, next time.Duration) {
	s.LastChecked = now
	s.CheckCount++
	s.Success = success
	nextCheck := now.Add(next)
	s.NextCheck = &nextCheck
}

// Finalize terminates polling with a terminal QR outcome
func (s *SyncStatus) Finalize(now time.Time, final qrcode.Status) {
	s.LastChecked = now
	s.CheckCount++
	s.Success = true
	s.FinalStatus = &final
	s.NextCheck = nil
}

// Abandon terminates polling without a terminal outcome, leaving the QR
// flagged for manual follow-up (check count or age limit reached).
func (s *SyncStatus) Abandon(now time.Time) {
	s.LastChecked = now
	s.Success = false
	s.FinalStatus = nil
	s.NextCheck = nil
}

// Terminal reports whether polling has stopped for this QR
func (s *SyncStatus) Terminal() bool {
	return s.NextCheck == nil && !s.LastChecked.IsZero()
}
