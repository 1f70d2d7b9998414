package handler

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
	"github.com/qrpay-reconciler/internal/webhook_gateway/service"
)

// QRHandler handles HTTP requests for QR code administration
type QRHandler struct {
	qrService service.QRService
	logger    *slog.Logger
}

// NewQRHandler creates a new QR handler
func NewQRHandler(logger *slog.Logger, qrService service.QRService) *QRHandler {
	return &QRHandler{
		qrService: qrService,
		logger:    logger,
	}
}

// Generate issues a new QR code through the bank and registers it locally
func (h *QRHandler) Generate(c *gin.Context) {
	var req GenerateQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		RespondBadRequest(c, "Invalid account ID")
		return
	}

	dueDate, err := time.Parse(time.RFC3339, req.DueDate)
	if err != nil {
		RespondBadRequest(c, "Invalid due date, expected RFC 3339")
		return
	}

	singleUse := true
	if req.SingleUse != nil {
		singleUse = *req.SingleUse
	}

	qr, image, err := h.qrService.Generate(c.Request.Context(), service.GenerateParams{
		AccountID:     accountID,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		DueDate:       dueDate,
		SingleUse:     singleUse,
		ModifyAmount:  req.ModifyAmount,
	})
	if err != nil {
		h.respondQRError(c, err)
		return
	}

	resp := mapQRCodeToResponse(qr)
	resp.Image = base64.StdEncoding.EncodeToString(image)
	RespondCreated(c, resp)
}

// Cancel voids a QR code, bank first
func (h *QRHandler) Cancel(c *gin.Context) {
	qrID := c.Param("id")

	qr, err := h.qrService.Cancel(c.Request.Context(), qrID)
	if err != nil {
		h.respondQRError(c, err)
		return
	}

	RespondOK(c, mapQRCodeToResponse(qr))
}

// GetByID returns the registry entry together with its sync status
func (h *QRHandler) GetByID(c *gin.Context) {
	qrID := c.Param("id")

	qr, status, err := h.qrService.Get(c.Request.Context(), qrID)
	if err != nil {
		h.respondQRError(c, err)
		return
	}

	RespondOK(c, QRCodeDetailResponse{
		QRCode:     mapQRCodeToResponse(qr),
		SyncStatus: mapSyncStatusToResponse(status),
	})
}

func (h *QRHandler) respondQRError(c *gin.Context, err error) {
	var gatewayErr *bankgateway.GatewayError
	var dupErr qrcode.ErrDuplicateTransactionID

	switch {
	case errors.Is(err, qrcode.ErrQRCodeNotFound{}):
		RespondNotFound(c, "QR code not found")
	case errors.Is(err, qrcode.ErrInvalidState{}):
		RespondConflict(c, err.Error())
	case errors.As(err, &dupErr):
		RespondConflict(c, err.Error())
	case errors.As(err, &gatewayErr):
		h.logger.Error("Bank gateway failure", "error", err)
		RespondBadGateway(c, "bank gateway unavailable")
	case errors.Is(err, qrcode.ErrInvalidAmount),
		errors.Is(err, qrcode.ErrInvalidCurrency),
		errors.Is(err, qrcode.ErrPastDueDate),
		errors.Is(err, qrcode.ErrEmptyQRID):
		RespondBadRequest(c, err.Error())
	default:
		h.logger.Error("QR operation failed", "error", err)
		RespondInternalError(c)
	}
}

func mapQRCodeToResponse(qr *qrcode.QRCode) QRCodeResponse {
	return QRCodeResponse{
		QRID:          qr.ID,
		TransactionID: qr.TransactionID,
		AccountID:     qr.AccountID.String(),
		Amount:        qr.Amount,
		Currency:      qr.Currency,
		DueDate:       qr.DueDate.Format(time.RFC3339),
		SingleUse:     qr.SingleUse,
		ModifyAmount:  qr.ModifyAmount,
		Status:        string(qr.Status),
		CreatedAt:     qr.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     qr.UpdatedAt.Format(time.RFC3339),
	}
}

func mapSyncStatusToResponse(status *syncstatus.SyncStatus) *SyncStatusResponse {
	if status == nil {
		return nil
	}

	resp := &SyncStatusResponse{
		LastChecked: status.LastChecked.Format(time.RFC3339),
		CheckCount:  status.CheckCount,
		Success:     status.Success,
	}
	if status.NextCheck != nil {
		resp.NextCheck = status.NextCheck.Format(time.RFC3339)
	}
	if status.FinalStatus != nil {
		resp.FinalStatus = string(*status.FinalStatus)
	}
	return resp
}
