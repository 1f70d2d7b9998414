package bankgateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/qrpay-reconciler/internal/config"
	"github.com/qrpay-reconciler/internal/domain/shared"
)

// HTTPClient talks JSON over HTTP to the bank gateway. It caches the session
// token until shortly before its declared expiry; a 401 on any call drops the
// cache so the next attempt re-authenticates.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	token       Token
	tokenExpiry time.Time
}

// tokenSafetyMargin is subtracted from the declared expiry so a token is never
// used in the last moments of its validity window.
const tokenSafetyMargin = 30 * time.Second

// errUnauthorized marks a 401; the cached token is dropped so the next
// Authenticate call requests a fresh one.
var errUnauthorized = errors.New("bank rejected the session token")

// gatewayErr wraps an operation failure, invalidating the token cache first
// when the failure was an authorization rejection
func (c *HTTPClient) gatewayErr(op string, err error) error {
	if errors.Is(err, errUnauthorized) {
		c.invalidateToken()
	}
	return &GatewayError{Op: op, Err: err}
}

func NewHTTPClient(cfg *config.BankGatewayConfig, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger,
	}
}

// Authenticate returns the cached session token, requesting a fresh one when
// the cache is empty or about to expire.
func (c *HTTPClient) Authenticate(ctx context.Context) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expiresIn"` // Seconds
	}
	if err := c.do(ctx, http.MethodPost, "/auth/token", Token(""), nil, &resp); err != nil {
		return "", &GatewayError{Op: "authenticate", Err: err}
	}
	if resp.Token == "" {
		return "", &GatewayError{Op: "authenticate", Err: fmt.Errorf("empty token in response")}
	}

	c.token = Token(resp.Token)
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - tokenSafetyMargin)
	c.logger.Debug("Authenticated with bank gateway", "expires_in_seconds", resp.ExpiresIn)
	return c.token, nil
}

func (c *HTTPClient) GenerateQR(ctx context.Context, token Token, req GenerateRequest) (*GeneratedQR, error) {
	body := map[string]interface{}{
		"transactionId": req.TransactionID,
		"accountCode":   req.AccountCode,
		"amount":        req.Amount,
		"currency":      req.Currency,
		"description":   req.Description,
		"dueDate":       req.DueDate.Format(time.RFC3339),
		"singleUse":     req.SingleUse,
		"modifyAmount":  req.ModifyAmount,
	}

	var resp struct {
		QRID  string `json:"qrId"`
		Image string `json:"image"` // Base64 PNG, may be empty
	}
	if err := c.do(ctx, http.MethodPost, "/qr", token, body, &resp); err != nil {
		return nil, c.gatewayErr("generate", err)
	}
	if resp.QRID == "" {
		return nil, &GatewayError{Op: "generate", Err: fmt.Errorf("empty qrId in response")}
	}

	var image []byte
	if resp.Image != "" {
		decoded, err := base64.StdEncoding.DecodeString(resp.Image)
		if err != nil {
			return nil, &GatewayError{Op: "generate", Err: fmt.Errorf("invalid image encoding: %w", err)}
		}
		image = decoded
	}
	return &GeneratedQR{QRID: resp.QRID, Image: image}, nil
}

func (c *HTTPClient) CancelQR(ctx context.Context, token Token, qrID string) error {
	if err := c.do(ctx, http.MethodPost, "/qr/"+qrID+"/cancel", token, nil, nil); err != nil {
		return c.gatewayErr("cancel", err)
	}
	return nil
}

func (c *HTTPClient) GetStatus(ctx context.Context, token Token, qrID string) (*StatusResponse, error) {
	var resp struct {
		StatusQRCode int           `json:"statusQrCode"`
		Payment      []paymentWire `json:"payment"`
	}
	if err := c.do(ctx, http.MethodGet, "/qr/"+qrID+"/status", token, nil, &resp); err != nil {
		return nil, c.gatewayErr("status", err)
	}
	return &StatusResponse{
		StatusCode: StatusCode(resp.StatusQRCode),
		Payments:   toNotifications(resp.Payment),
	}, nil
}

func (c *HTTPClient) ListPaidByDate(ctx context.Context, token Token, date time.Time) ([]shared.PaymentNotification, error) {
	var resp struct {
		Payment []paymentWire `json:"payment"`
	}
	path := "/payments?date=" + date.Format("2006-01-02")
	if err := c.do(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, c.gatewayErr("list_paid", err)
	}
	return toNotifications(resp.Payment), nil
}

// paymentWire is a payment entry as the bank serializes it. Field names follow
// the bank's camelCase wire contract, not this codebase's conventions.
type paymentWire struct {
	QRID             string `json:"qrId"`
	TransactionID    string `json:"transactionId"`
	PaymentDate      string `json:"paymentDate"`
	PaymentTime      string `json:"paymentTime"`
	Currency         string `json:"currency"`
	Amount           int64  `json:"amount"`
	SenderBankCode   string `json:"senderBankCode"`
	SenderName       string `json:"senderName"`
	SenderDocumentID string `json:"senderDocumentId"`
	SenderAccount    string `json:"senderAccount"` // Arrives pre-encrypted
	Description      string `json:"description"`
	BranchCode       string `json:"branchCode"`
}

func toNotifications(payments []paymentWire) []shared.PaymentNotification {
	if len(payments) == 0 {
		return nil
	}
	now := time.Now()
	notifications := make([]shared.PaymentNotification, len(payments))
	for i, p := range payments {
		notifications[i] = shared.PaymentNotification{
			QRID:             p.QRID,
			TransactionID:    p.TransactionID,
			PaymentDate:      p.PaymentDate,
			PaymentTime:      p.PaymentTime,
			Currency:         p.Currency,
			Amount:           p.Amount,
			SenderBankCode:   p.SenderBankCode,
			SenderName:       p.SenderName,
			SenderDocumentID: p.SenderDocumentID,
			SenderAccount:    p.SenderAccount,
			Description:      p.Description,
			BranchCode:       p.BranchCode,
			ReceivedAt:       now,
		}
	}
	return notifications
}

// do performs one JSON round trip. Non-2xx responses become errors; a 401
// additionally invalidates the cached token.
func (c *HTTPClient) do(ctx context.Context, method, path string, token Token, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+string(token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", errUnauthorized, bytes.TrimSpace(data))
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *HTTPClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}
