package reconlog

import "context"

// Repository manages the reconciliation audit log. Writes are best-effort
// from the engine's point of view: a failed audit write is logged but never
// fails the attempt that produced it.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByQRID(ctx context.Context, qrID string, limit int) ([]*Entry, error)

	// ListConflicts returns entries flagged for manual review, newest first.
	ListConflicts(ctx context.Context, limit int) ([]*Entry, error)
}
