package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/sync_processor/service"
)

type StatusTrackerImpl struct {
	syncStatuses syncstatus.Repository
	logger       *slog.Logger
}

func NewStatusTracker(syncStatuses syncstatus.Repository, logger *slog.Logger) service.StatusTracker {
	return &StatusTrackerImpl{
		syncStatuses: syncStatuses,
		logger:       logger,
	}
}

// Load returns the QR's sync status, creating the zero-value row for a QR
// that has never been checked.
func (t *StatusTrackerImpl) Load(ctx context.Context, qrID string) (*syncstatus.SyncStatus, error) {
	status, err := t.syncStatuses.GetByQRID(ctx, qrID)
	if err != nil {
		if errors.Is(err, syncstatus.ErrSyncStatusNotFound{}) {
			return syncstatus.New(qrID), nil
		}
		return nil, fmt.Errorf("failed to load sync status for qr %s: %w", qrID, err)
	}
	return status, nil
}

// Record persists the updated bookkeeping row
func (t *StatusTrackerImpl) Record(ctx context.Context, status *syncstatus.SyncStatus) error {
	if err := t.syncStatuses.Upsert(ctx, status); err != nil {
		t.logger.Error("Failed to persist sync status", "qr_id", status.QRID, "error", err)
		return fmt.Errorf("failed to persist sync status for qr %s: %w", status.QRID, err)
	}
	return nil
}
