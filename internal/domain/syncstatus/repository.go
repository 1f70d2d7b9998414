package syncstatus

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Repository manages sync status persistence
type Repository interface {
	// Upsert writes the full row, inserting on first attempt
	Upsert(ctx context.Context, status *SyncStatus) error
	GetByQRID(ctx context.Context, qrID string) (*SyncStatus, error)

	// DeleteOlderThan removes rows last checked before the cutoff (retention
	// sweep) and returns the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	WithTx(tx pgx.Tx) Repository
}

// ErrSyncStatusNotFound indicates missing sync status row
type ErrSyncStatusNotFound struct {
	QRID string
}

func (e ErrSyncStatusNotFound) Error() string {
	return "sync status not found for qr: " + e.QRID
}

// Is matches any ErrSyncStatusNotFound when the target id is empty
func (e ErrSyncStatusNotFound) Is(target error) bool {
	t, ok := target.(ErrSyncStatusNotFound)
	if !ok {
		return false
	}
	return t.QRID == "" || t.QRID == e.QRID
}
