package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrpay-reconciler/internal/domain/reconlog"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// ReconciliationHandler exposes the reconciliation audit log to operators:
// conflicts awaiting manual review and the per-QR attempt history.
type ReconciliationHandler struct {
	logs   reconlog.Repository
	logger *slog.Logger
}

// NewReconciliationHandler creates a new reconciliation audit handler
func NewReconciliationHandler(logger *slog.Logger, logs reconlog.Repository) *ReconciliationHandler {
	return &ReconciliationHandler{
		logs:   logs,
		logger: logger,
	}
}

// ListConflicts returns audit entries flagged for manual review, newest first
func (h *ReconciliationHandler) ListConflicts(c *gin.Context) {
	limit, ok := h.pageSize(c)
	if !ok {
		return
	}

	entries, err := h.logs.ListConflicts(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list reconciliation conflicts", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEntriesToResponse(entries))
}

// ListByQRID returns the reconciliation attempt history for one QR, newest first
func (h *ReconciliationHandler) ListByQRID(c *gin.Context) {
	qrID := c.Param("id")

	limit, ok := h.pageSize(c)
	if !ok {
		return
	}

	entries, err := h.logs.ListByQRID(c.Request.Context(), qrID, limit)
	if err != nil {
		h.logger.Error("Failed to list reconciliation history", "qr_id", qrID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, mapEntriesToResponse(entries))
}

func (h *ReconciliationHandler) pageSize(c *gin.Context) (int, bool) {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultAuditPageSize))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		RespondBadRequest(c, "Invalid limit, expected a positive integer")
		return 0, false
	}
	if limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	return limit, true
}

func mapEntriesToResponse(entries []*reconlog.Entry) []ReconciliationEntryResponse {
	resp := make([]ReconciliationEntryResponse, 0, len(entries))
	for _, entry := range entries {
		item := ReconciliationEntryResponse{
			QRID:        entry.QRID,
			AttemptAt:   entry.AttemptAt.Format(time.RFC3339),
			CheckCount:  entry.CheckCount,
			LocalStatus: string(entry.LocalStatus),
			Outcome:     string(entry.Outcome),
			Conflict:    entry.Conflict,
			Detail:      entry.Detail,
		}
		if entry.RemoteStatus != nil {
			item.RemoteStatus = string(*entry.RemoteStatus)
		}
		resp = append(resp, item)
	}
	return resp
}
