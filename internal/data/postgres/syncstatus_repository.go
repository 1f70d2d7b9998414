package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/platform/persistence"
)

// SyncStatusRepository implements the syncstatus.Repository interface for PostgreSQL
type SyncStatusRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSyncStatusRepository creates a new PostgreSQL sync status repository
func NewSyncStatusRepository(logger *slog.Logger, db *persistence.PostgresDB) syncstatus.Repository {
	return &SyncStatusRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *SyncStatusRepository) WithTx(tx pgx.Tx) syncstatus.Repository {
	return &SyncStatusRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Upsert writes the full sync status row, inserting on the first attempt.
// The row is keyed by qr_id so repeated attempts overwrite in place.
func (r *SyncStatusRepository) Upsert(ctx context.Context, status *syncstatus.SyncStatus) error {
	query := `
		INSERT INTO sync_statuses (qr_id, last_checked, next_check, check_count, success, final_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (qr_id) DO UPDATE
		SET last_checked = EXCLUDED.last_checked,
		    next_check = EXCLUDED.next_check,
		    check_count = EXCLUDED.check_count,
		    success = EXCLUDED.success,
		    final_status = EXCLUDED.final_status
	`

	_, err := r.querier.Exec(ctx, query,
		status.QRID,
		status.LastChecked,
		status.NextCheck,
		status.CheckCount,
		status.Success,
		status.FinalStatus,
	)
	if err != nil {
		r.logger.Error("Failed to upsert sync status", "qr_id", status.QRID, "error", err)
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}

	return nil
}

// GetByQRID retrieves the sync status row for a QR code
func (r *SyncStatusRepository) GetByQRID(ctx context.Context, qrID string) (*syncstatus.SyncStatus, error) {
	query := `
		SELECT qr_id, last_checked, next_check, check_count, success, final_status
		FROM sync_statuses
		WHERE qr_id = $1
	`

	var status syncstatus.SyncStatus
	err := r.querier.QueryRow(ctx, query, qrID).Scan(
		&status.QRID,
		&status.LastChecked,
		&status.NextCheck,
		&status.CheckCount,
		&status.Success,
		&status.FinalStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, syncstatus.ErrSyncStatusNotFound{QRID: qrID}
		}
		r.logger.Error("Failed to get sync status", "qr_id", qrID, "error", err)
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}

	return &status, nil
}

// DeleteOlderThan removes rows last checked before the cutoff and returns the
// number removed. Used by the retention sweep.
func (r *SyncStatusRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM sync_statuses
		WHERE last_checked < $1
	`

	tag, err := r.querier.Exec(ctx, query, cutoff)
	if err != nil {
		r.logger.Error("Failed to delete old sync statuses", "error", err)
		return 0, fmt.Errorf("failed to delete old sync statuses: %w", err)
	}

	return tag.RowsAffected(), nil
}
