// Package mongo provides the MongoDB-backed reconciliation audit log. Every
// sync attempt leaves one immutable document here, giving operators the full
// history behind a QR's current state.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/qrpay-reconciler/internal/domain/reconlog"
)

const (
	// ReconciliationLogCollectionName is the name of the audit log collection
	ReconciliationLogCollectionName = "reconciliation_log"
)

// ReconciliationLogRepository implements the reconlog.Repository interface for MongoDB
type ReconciliationLogRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewReconciliationLogRepository creates a new MongoDB reconciliation log repository
func NewReconciliationLogRepository(logger *slog.Logger, db *mongo.Database) reconlog.Repository {
	return &ReconciliationLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores one audit entry. Entries are append-only; there is no
// duplicate check because every attempt is a distinct event.
func (r *ReconciliationLogRepository) Create(ctx context.Context, entry *reconlog.Entry) error {
	collection := r.db.Collection(ReconciliationLogCollectionName)

	_, err := collection.InsertOne(ctx, entry)
	if err != nil {
		r.logger.Error("Failed to create reconciliation log entry",
			"qr_id", entry.QRID,
			"outcome", string(entry.Outcome),
			"error", err)
		return fmt.Errorf("failed to create reconciliation log entry: %w", err)
	}

	return nil
}

// ListByQRID retrieves the attempt history for a QR, newest first
func (r *ReconciliationLogRepository) ListByQRID(ctx context.Context, qrID string, limit int) ([]*reconlog.Entry, error) {
	filter := bson.M{"qr_id": qrID}
	entries, err := r.find(ctx, filter, limit)
	if err != nil {
		r.logger.Error("Failed to list reconciliation log entries", "qr_id", qrID, "error", err)
		return nil, fmt.Errorf("failed to list reconciliation log entries: %w", err)
	}

	return entries, nil
}

// ListConflicts returns entries flagged for manual review, newest first
func (r *ReconciliationLogRepository) ListConflicts(ctx context.Context, limit int) ([]*reconlog.Entry, error) {
	filter := bson.M{"conflict": true}
	entries, err := r.find(ctx, filter, limit)
	if err != nil {
		r.logger.Error("Failed to list reconciliation conflicts", "error", err)
		return nil, fmt.Errorf("failed to list reconciliation conflicts: %w", err)
	}

	return entries, nil
}

func (r *ReconciliationLogRepository) find(ctx context.Context, filter bson.M, limit int) ([]*reconlog.Entry, error) {
	collection := r.db.Collection(ReconciliationLogCollectionName)

	opts := options.Find().
		SetSort(bson.M{"attempt_at": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []*reconlog.Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}
