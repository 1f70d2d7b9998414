package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/shared"
	"github.com/qrpay-reconciler/internal/metrics"
	"github.com/qrpay-reconciler/internal/webhook_gateway/middleware"
	"github.com/qrpay-reconciler/internal/webhook_gateway/service"
)

// Bank acknowledgement codes. 0 tells the bank the delivery landed; anything
// else makes the bank flag the notification for manual follow-up.
const (
	responseCodeAccepted = 0
	responseCodeRejected = 1
)

// WebhookHandler handles bank payment notification deliveries. Unlike the
// admin endpoints it answers in the bank's acknowledgement format, not the
// API envelope.
type WebhookHandler struct {
	paymentService service.PaymentService
	logger         *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, paymentService service.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// ReceivePayment ingests one payment notification. Duplicate deliveries are
// acknowledged with the same success code as the first one.
func (h *WebhookHandler) ReceivePayment(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid webhook payload", "error", err)
		metrics.WebhookNotifications.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, WebhookResponse{
			ResponseCode: responseCodeRejected,
			Message:      "invalid payload: " + err.Error(),
		})
		return
	}

	notification := &shared.PaymentNotification{
		QRID:             req.Payment.QRID,
		TransactionID:    req.Payment.TransactionID,
		PaymentDate:      req.Payment.PaymentDate,
		PaymentTime:      req.Payment.PaymentTime,
		Currency:         req.Payment.Currency,
		Amount:           req.Payment.Amount,
		SenderBankCode:   req.Payment.SenderBankCode,
		SenderName:       req.Payment.SenderName,
		SenderDocumentID: req.Payment.SenderDocumentID,
		SenderAccount:    req.Payment.SenderAccount,
		Description:      req.Payment.Description,
		BranchCode:       req.Payment.BranchCode,
		ReceivedAt:       time.Now(),
	}

	correlationID := middleware.GetCorrelationID(c)
	result, err := h.paymentService.ProcessNotification(c.Request.Context(), notification, correlationID)
	if err != nil {
		h.respondError(c, notification.QRID, err)
		return
	}

	message := "payment applied"
	if result.AlreadyApplied {
		message = "payment already applied"
	}

	c.JSON(http.StatusOK, WebhookResponse{
		ResponseCode: responseCodeAccepted,
		Message:      message,
	})
}

func (h *WebhookHandler) respondError(c *gin.Context, qrID string, err error) {
	switch {
	case errors.Is(err, qrcode.ErrQRCodeNotFound{}):
		metrics.WebhookNotifications.WithLabelValues("not_found").Inc()
		h.logger.Warn("Payment notification for unknown qr", "qr_id", qrID)
		c.JSON(http.StatusNotFound, WebhookResponse{
			ResponseCode: responseCodeRejected,
			Message:      "qr code not found",
		})
	case errors.Is(err, qrcode.ErrInvalidState{}):
		metrics.WebhookNotifications.WithLabelValues("rejected").Inc()
		h.logger.Warn("Payment notification for terminal qr", "qr_id", qrID, "error", err)
		c.JSON(http.StatusConflict, WebhookResponse{
			ResponseCode: responseCodeRejected,
			Message:      err.Error(),
		})
	case errors.Is(err, service.ErrAmountMismatch), errors.Is(err, service.ErrCurrencyMismatch):
		metrics.WebhookNotifications.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, WebhookResponse{
			ResponseCode: responseCodeRejected,
			Message:      err.Error(),
		})
	default:
		metrics.WebhookNotifications.WithLabelValues("error").Inc()
		h.logger.Error("Failed to process payment notification", "qr_id", qrID, "error", err)
		c.JSON(http.StatusInternalServerError, WebhookResponse{
			ResponseCode: responseCodeRejected,
			Message:      "internal error",
		})
	}
}
