package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qrpay-reconciler/internal/bankgateway"
	"github.com/qrpay-reconciler/internal/domain/qrcode"
	"github.com/qrpay-reconciler/internal/domain/syncstatus"
)

// qrService fronts the bank gateway for QR administration. The bank is the
// issuing authority: generation and cancellation go bank-first, and the local
// registry only records what the bank confirmed.
type qrService struct {
	gateway      bankgateway.Client
	qrCodes      qrcode.Repository
	syncStatuses syncstatus.Repository
	accountCode  string // Pre-encrypted collecting account identifier
	logger       *slog.Logger
}

// NewQRService creates the QR administration service
func NewQRService(
	logger *slog.Logger,
	gateway bankgateway.Client,
	qrCodes qrcode.Repository,
	syncStatuses syncstatus.Repository,
	accountCode string,
) QRService {
	return &qrService{
		gateway:      gateway,
		qrCodes:      qrCodes,
		syncStatuses: syncStatuses,
		accountCode:  accountCode,
		logger:       logger,
	}
}

func (s *qrService) Generate(ctx context.Context, params GenerateParams) (*qrcode.QRCode, []byte, error) {
	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return nil, nil, err
	}

	generated, err := s.gateway.GenerateQR(ctx, token, bankgateway.GenerateRequest{
		TransactionID: params.TransactionID,
		AccountCode:   s.accountCode,
		Amount:        params.Amount,
		Currency:      params.Currency,
		Description:   params.Description,
		DueDate:       params.DueDate,
		SingleUse:     params.SingleUse,
		ModifyAmount:  params.ModifyAmount,
	})
	if err != nil {
		return nil, nil, err
	}

	qr, err := qrcode.NewQRCode(
		generated.QRID,
		params.TransactionID,
		params.AccountID,
		params.Amount,
		params.Currency,
		params.DueDate,
		params.SingleUse,
		params.ModifyAmount,
	)
	if err != nil {
		return nil, nil, err
	}

	if err := s.qrCodes.Create(ctx, qr); err != nil {
		// The bank issued a QR we could not register. Operators resolve this
		// from the log; the bank-side QR will expire on its due date.
		s.logger.Error("Failed to register bank-issued qr code",
			"qr_id", qr.ID,
			"transaction_id", params.TransactionID,
			"error", err,
		)
		return nil, nil, err
	}

	image := generated.Image
	if len(image) == 0 {
		image, err = bankgateway.RenderImage(qr.ID, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to render qr image: %w", err)
		}
	}

	s.logger.Info("QR code generated",
		"qr_id", qr.ID,
		"transaction_id", params.TransactionID,
		"amount", params.Amount,
		"due_date", params.DueDate,
	)

	return qr, image, nil
}

func (s *qrService) Cancel(ctx context.Context, qrID string) (*qrcode.QRCode, error) {
	qr, err := s.qrCodes.GetByID(ctx, qrID)
	if err != nil {
		return nil, err
	}

	if qr.Status == qrcode.StatusCancelled {
		return qr, nil
	}
	if qr.Status.IsTerminal() {
		return nil, qrcode.ErrInvalidState{ID: qr.ID, Status: qr.Status, Attempted: qrcode.StatusCancelled}
	}

	token, err := s.gateway.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	// Bank first. A local CANCELLED row for a QR the bank still honors would
	// invite exactly the webhook/registry divergence this engine exists to
	// reconcile.
	if err := s.gateway.CancelQR(ctx, token, qrID); err != nil {
		return nil, err
	}

	if err := s.qrCodes.UpdateStatus(ctx, qrID, qr.Status, qrcode.StatusCancelled); err != nil {
		var stateErr qrcode.ErrInvalidState
		if errors.As(err, &stateErr) && stateErr.Status == qrcode.StatusCancelled {
			// Concurrent cancel won; same outcome.
		} else {
			return nil, err
		}
	}
	qr.Status = qrcode.StatusCancelled

	s.logger.Info("QR code cancelled", "qr_id", qrID)
	return qr, nil
}

func (s *qrService) Get(ctx context.Context, qrID string) (*qrcode.QRCode, *syncstatus.SyncStatus, error) {
	qr, err := s.qrCodes.GetByID(ctx, qrID)
	if err != nil {
		return nil, nil, err
	}

	status, err := s.syncStatuses.GetByQRID(ctx, qrID)
	if err != nil {
		if errors.Is(err, syncstatus.ErrSyncStatusNotFound{}) {
			return qr, nil, nil
		}
		return nil, nil, err
	}

	return qr, status, nil
}
