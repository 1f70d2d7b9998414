package handler

// PaymentPayload is the bank's webhook payment body. Field names follow the
// bank's wire contract, not this codebase's conventions.
type PaymentPayload struct {
	QRID             string `json:"qrId" binding:"required"`
	TransactionID    string `json:"transactionId"`
	PaymentDate      string `json:"paymentDate"`
	PaymentTime      string `json:"paymentTime"`
	Currency         string `json:"currency" binding:"required,len=3"`
	Amount           int64  `json:"amount" binding:"required,gt=0"`
	SenderBankCode   string `json:"senderBankCode"`
	SenderName       string `json:"senderName"`
	SenderDocumentID string `json:"senderDocumentId"`
	SenderAccount    string `json:"senderAccount"` // Arrives pre-encrypted
	Description      string `json:"description"`
	BranchCode       string `json:"branchCode"`
}

// WebhookRequest wraps the payment payload the way the bank delivers it
type WebhookRequest struct {
	Payment PaymentPayload `json:"payment" binding:"required"`
}

// WebhookResponse is the acknowledgement contract the bank expects:
// responseCode 0 accepts the delivery, 1 signals the bank to alert
type WebhookResponse struct {
	ResponseCode int    `json:"responseCode"`
	Message      string `json:"message"`
}

// GenerateQRRequest represents a request to issue a new QR code
type GenerateQRRequest struct {
	AccountID     string `json:"account_id" binding:"required,uuid"`
	TransactionID string `json:"transaction_id" binding:"required"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Currency      string `json:"currency" binding:"required,len=3"`
	Description   string `json:"description"`
	DueDate       string `json:"due_date" binding:"required"` // RFC 3339
	SingleUse     *bool  `json:"single_use"`                  // Defaults to true
	ModifyAmount  bool   `json:"modify_amount"`
}

// QRCodeResponse represents a QR code in API responses
type QRCodeResponse struct {
	QRID          string `json:"qr_id"`
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	DueDate       string `json:"due_date"`
	SingleUse     bool   `json:"single_use"`
	ModifyAmount  bool   `json:"modify_amount"`
	Status        string `json:"status"`
	Image         string `json:"image,omitempty"` // Base64 PNG, generate only
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// SyncStatusResponse represents the polling bookkeeping for a QR
type SyncStatusResponse struct {
	LastChecked string `json:"last_checked"`
	NextCheck   string `json:"next_check,omitempty"`
	CheckCount  int    `json:"check_count"`
	Success     bool   `json:"success"`
	FinalStatus string `json:"final_status,omitempty"`
}

// QRCodeDetailResponse pairs the registry entry with its sync status
type QRCodeDetailResponse struct {
	QRCode     QRCodeResponse      `json:"qr_code"`
	SyncStatus *SyncStatusResponse `json:"sync_status,omitempty"`
}

// ReconciliationEntryResponse represents one audit log entry in API responses
type ReconciliationEntryResponse struct {
	QRID         string `json:"qr_id"`
	AttemptAt    string `json:"attempt_at"`
	CheckCount   int    `json:"check_count"`
	LocalStatus  string `json:"local_status"`
	RemoteStatus string `json:"remote_status,omitempty"`
	Outcome      string `json:"outcome"`
	Conflict     bool   `json:"conflict"`
	Detail       string `json:"detail,omitempty"`
}
