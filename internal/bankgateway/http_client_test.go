package bankgateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrpay-reconciler/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.BankGatewayConfig{
		BaseURL:        srv.URL,
		RequestTimeout: 5 * time.Second,
	}
	return NewHTTPClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHTTPClient_Authenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("CachesTokenUntilExpiry", func(t *testing.T) {
		calls := 0
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/auth/token", r.URL.Path)
			calls++
			json.NewEncoder(w).Encode(map[string]interface{}{"token": "session-abc", "expiresIn": 3600})
		}))

		first, err := client.Authenticate(ctx)
		require.NoError(t, err)
		second, err := client.Authenticate(ctx)
		require.NoError(t, err)

		assert.Equal(t, Token("session-abc"), first)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, calls)
	})

	t.Run("EmptyTokenIsAGatewayError", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"token": "", "expiresIn": 3600})
		}))

		_, err := client.Authenticate(ctx)
		var gwErr *GatewayError
		require.ErrorAs(t, err, &gwErr)
		assert.Equal(t, "authenticate", gwErr.Op)
	})
}

func TestHTTPClient_GenerateQR(t *testing.T) {
	ctx := context.Background()
	image := []byte{0x89, 0x50, 0x4E, 0x47}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/qr", r.URL.Path)
		require.Equal(t, "Bearer session-abc", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "TX-100", body["transactionId"])
		assert.Equal(t, "ENC-ACCT-0001", body["accountCode"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"qrId":  "QR-BANK-100",
			"image": base64.StdEncoding.EncodeToString(image),
		})
	}))

	generated, err := client.GenerateQR(ctx, Token("session-abc"), GenerateRequest{
		TransactionID: "TX-100",
		AccountCode:   "ENC-ACCT-0001",
		Amount:        12550,
		Currency:      "EUR",
		DueDate:       time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "QR-BANK-100", generated.QRID)
	assert.Equal(t, image, generated.Image)
}

func TestHTTPClient_GetStatus(t *testing.T) {
	ctx := context.Background()

	// The bank serializes payments in camelCase, unlike our internal snake_case
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/qr/QR-BANK-100/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"statusQrCode": 1,
			"payment": []map[string]interface{}{
				{
					"qrId":           "QR-BANK-100",
					"transactionId":  "TX-100",
					"paymentDate":    "15/03/2025",
					"paymentTime":    "14:22",
					"amount":         12550,
					"currency":       "EUR",
					"senderBankCode": "0019",
					"senderName":     "ACME SARL",
					"description":    "invoice 42",
				},
			},
		})
	}))

	status, err := client.GetStatus(ctx, Token("session-abc"), "QR-BANK-100")
	require.NoError(t, err)
	assert.Equal(t, StatusCodePaid, status.StatusCode)
	require.Len(t, status.Payments, 1)

	payment := status.Payments[0]
	assert.Equal(t, "QR-BANK-100", payment.QRID)
	assert.Equal(t, "TX-100", payment.TransactionID)
	assert.Equal(t, "15/03/2025", payment.PaymentDate)
	assert.Equal(t, "14:22", payment.PaymentTime)
	assert.Equal(t, int64(12550), payment.Amount)
	assert.Equal(t, "EUR", payment.Currency)
	assert.Equal(t, "0019", payment.SenderBankCode)
	assert.Equal(t, "ACME SARL", payment.SenderName)
	assert.Equal(t, "invoice 42", payment.Description)
	assert.False(t, payment.ReceivedAt.IsZero())
}

func TestHTTPClient_ListPaidByDate(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments", r.URL.Path)
		require.Equal(t, "2025-03-15", r.URL.Query().Get("date"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"payment": []map[string]interface{}{
				{"qrId": "QR-1", "transactionId": "TX-1", "amount": 500, "currency": "EUR"},
				{"qrId": "QR-2", "transactionId": "TX-2", "amount": 1500, "currency": "EUR"},
			},
		})
	}))

	payments, err := client.ListPaidByDate(ctx, Token("session-abc"), day)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "QR-1", payments[0].QRID)
	assert.Equal(t, "TX-1", payments[0].TransactionID)
	assert.Equal(t, "QR-2", payments[1].QRID)
	assert.Equal(t, int64(1500), payments[1].Amount)
}

func TestHTTPClient_UnauthorizedDropsCachedToken(t *testing.T) {
	ctx := context.Background()
	tokens := []string{"session-1", "session-2"}
	authCalls := 0

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/token":
			json.NewEncoder(w).Encode(map[string]interface{}{"token": tokens[authCalls], "expiresIn": 3600})
			authCalls++
		case "/qr/QR-BANK-100/cancel":
			if r.Header.Get("Authorization") == "Bearer session-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	stale, err := client.Authenticate(ctx)
	require.NoError(t, err)

	err = client.CancelQR(ctx, stale, "QR-BANK-100")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)

	// The 401 purged the cache, so the next authenticate round trips again
	fresh, err := client.Authenticate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Token("session-2"), fresh)

	require.NoError(t, client.CancelQR(ctx, fresh, "QR-BANK-100"))
}

func TestHTTPClient_ServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
	}))

	_, err := client.GetStatus(context.Background(), Token("session-abc"), "QR-1")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "status", gwErr.Op)
}
