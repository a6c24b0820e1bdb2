package payway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

func testClient(baseURL string) *Client {
	c := newClient(context.Background(), &ClientConfig{
		BaseURL:    baseURL,
		MerchantID: "genzstore",
		APIKey:     "super-secret",
		ReturnURL:  "https://genzstore.example/webhook/payway",
	})
	c.now = func() time.Time {
		return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	}
	return c
}

func signWith(key string, parts ...string) string {
	mac := hmac.New(sha512.New, []byte(key))
	for _, p := range parts {
		mac.Write([]byte(p))
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestPurchase_SignsRequestAndReturnsQR(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payment-gateway/v1/payments/purchase", r.URL.Path)
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "20260830100000", r.Form.Get("req_time"))
		assert.Equal(t, "genzstore", r.Form.Get("merchant_id"))
		assert.Equal(t, "a3d8f0e24b7c4d9e8f10", r.Form.Get("tran_id"))
		assert.Equal(t, "12.50", r.Form.Get("amount"))
		assert.Equal(t, "abapay_khqr", r.Form.Get("payment_option"))

		// Hash covers the field values in send order.
		want := signWith("super-secret",
			r.Form.Get("req_time"), r.Form.Get("merchant_id"), r.Form.Get("tran_id"),
			r.Form.Get("amount"), r.Form.Get("payment_option"), r.Form.Get("return_url"),
			r.Form.Get("currency"))
		assert.Equal(t, want, r.Form.Get("hash"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": {"code": "00", "message": "success"},
			"qr_string": "00020101021230400016abaakhppxxx@abaa",
			"abapay_deeplink": "abamobilebank://pay?x=1",
			"checkout_qr_url": "https://checkout.payway.example/qr/1"
		}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	reply, err := c.purchase(context.Background(), "a3d8f0e24b7c4d9e8f10", &khqr.PaymentRequest{
		OrderID:  "a3d8f0e2-4b7c-4d9e-8f10-123456789abc",
		Amount:   decimal.RequireFromString("12.50"),
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "00020101021230400016abaakhppxxx@abaa", reply.QRString)
	assert.Equal(t, "abamobilebank://pay?x=1", reply.Deeplink)
	assert.Equal(t, "https://checkout.payway.example/qr/1", reply.CheckoutURL)
}

func TestPurchase_MissingQRStringFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": {"code": "00", "message": "success"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	_, err := c.purchase(context.Background(), "a3d8f0e24b7c4d9e8f10", &khqr.PaymentRequest{
		Amount:   decimal.RequireFromString("12.50"),
		Currency: "USD",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qr_string")
}

func TestPurchase_DeclinedStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": {"code": "11", "message": "wrong hash"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	_, err := c.purchase(context.Background(), "a3d8f0e24b7c4d9e8f10", &khqr.PaymentRequest{
		Amount:   decimal.RequireFromString("12.50"),
		Currency: "USD",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong hash")
}

func TestCheckTransaction_StatusMapping(t *testing.T) {
	tests := []struct {
		name          string
		paymentStatus string
		paid          bool
	}{
		{"approved is paid", "APPROVED", true},
		{"pre-auth is paid", "PRE-AUTH", true},
		{"pending is not found", "PENDING", false},
		{"declined is not found", "DECLINED", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/payment-gateway/v1/payments/check-transaction-2", r.URL.Path)
				require.NoError(t, r.ParseForm())

				want := signWith("super-secret",
					r.Form.Get("req_time"), r.Form.Get("merchant_id"), r.Form.Get("tran_id"))
				assert.Equal(t, want, r.Form.Get("hash"))

				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{
					"status": {"code": "00", "message": "success"},
					"data": {
						"payment_status": "` + tt.paymentStatus + `",
						"payment_amount": 12.50,
						"payment_currency": "USD",
						"payer_account": "012345678",
						"transaction_date": "20260830100100"
					}
				}`))
			}))
			defer srv.Close()

			c := testClient(srv.URL)

			tran, err := c.checkTransaction(context.Background(), "a3d8f0e24b7c4d9e8f10")
			if !tt.paid {
				assert.ErrorIs(t, err, status.ErrTransactionNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a3d8f0e24b7c4d9e8f10", tran.RefID)
			assert.Equal(t, "payway", tran.Provider)
			assert.Equal(t, "012345678", tran.Payer)
		})
	}
}

func TestCheckTransaction_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL)

	_, err := c.checkTransaction(context.Background(), "a3d8f0e24b7c4d9e8f10")
	assert.ErrorIs(t, err, status.ErrGatewayUnavailable)
}
