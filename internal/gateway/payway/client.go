package payway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"genzstore/internal/gateway"
	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

const (
	// paymentOption pins the purchase to a KHQR checkout.
	paymentOption = "abapay_khqr"

	// reqTimeLayout is the request timestamp format PayWay hashes over.
	reqTimeLayout = "20060102150405"
)

type ClientConfig struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
	APIKey     string `json:"apiKey" mapstructure:"api_key"`
	ReturnURL  string `json:"returnUrl" mapstructure:"return_url"`
}

type Client struct {
	// baseURL is the base url of the PayWay backend.
	baseURL string

	// merchantID is the merchant profile id of the PayWay backend.
	merchantID string

	// apiKey is the hmac key every request hash is computed with.
	apiKey string

	// returnURL receives the server-to-server pushback when a payment settles.
	returnURL string

	// now is swapped out in tests for a fixed clock.
	now func() time.Time

	// hc is the http client.
	hc *http.Client
}

// newClient creates a new instance of the PayWay client.
func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:    c.BaseURL,
		merchantID: c.MerchantID,
		apiKey:     c.APIKey,
		returnURL:  c.ReturnURL,

		now: time.Now,

		// set http client with timeout.
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// hash signs the request. PayWay verifies a base64 HMAC-SHA512 over the
// field values concatenated in the exact order they were sent.
func (c *Client) hash(parts ...string) string {
	mac := hmac.New(sha512.New, []byte(c.apiKey))
	mac.Write([]byte(strings.Join(parts, "")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// purchaseReply is the typed purchase response. qr_string is mandatory: a
// checkout without a scannable payload is useless, so its absence is an
// error, not an empty Checkout.
type purchaseReply struct {
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	QRString    string `json:"qr_string"`
	Deeplink    string `json:"abapay_deeplink"`
	CheckoutURL string `json:"checkout_qr_url"`
}

// purchase creates a KHQR checkout for tranID on the PayWay backend.
func (c *Client) purchase(ctx context.Context, tranID string, f *khqr.PaymentRequest) (*purchaseReply, error) {
	reqTime := c.now().UTC().Format(reqTimeLayout)
	amount := f.Amount.StringFixed(2)
	returnURL := base64.StdEncoding.EncodeToString([]byte(c.returnURL))

	form := url.Values{}
	form.Set("req_time", reqTime)
	form.Set("merchant_id", c.merchantID)
	form.Set("tran_id", tranID)
	form.Set("amount", amount)
	form.Set("payment_option", paymentOption)
	form.Set("currency", f.Currency)
	form.Set("return_url", returnURL)
	form.Set("hash", c.hash(reqTime, c.merchantID, tranID, amount, paymentOption, returnURL, f.Currency))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/payment-gateway/v1/payments/purchase"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("purchase: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("purchase: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("purchase: resp.StatusCode: %v: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}

	var reply purchaseReply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("purchase: json.Decode: %v", err)
	}
	if reply.Status.Code != "00" {
		return nil, fmt.Errorf("purchase: reply.Status.Code: %v, reply.Status.Message: %v", reply.Status.Code, reply.Status.Message)
	}
	if reply.QRString == "" {
		return nil, fmt.Errorf("purchase: reply missing qr_string for tran %s", tranID)
	}

	return &reply, nil
}

// checkTransaction polls the settlement status for tranID. PENDING maps to
// status.ErrTransactionNotFound so the reconciler treats it as not-yet-paid.
func (c *Client) checkTransaction(ctx context.Context, tranID string) (*status.Transaction, error) {
	reqTime := c.now().UTC().Format(reqTimeLayout)

	form := url.Values{}
	form.Set("req_time", reqTime)
	form.Set("merchant_id", c.merchantID)
	form.Set("tran_id", tranID)
	form.Set("hash", c.hash(reqTime, c.merchantID, tranID))

	_baseURL, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s%s", _baseURL.String(), "/api/payment-gateway/v1/payments/check-transaction-2"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: http.Do: %w", status.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checkTransaction: resp.StatusCode: %v: %w", resp.StatusCode, status.ErrGatewayUnavailable)
	}

	var reply struct {
		Status struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"status"`
		Data struct {
			PaymentStatus   string          `json:"payment_status"`
			PaymentAmount   decimal.Decimal `json:"payment_amount"`
			PaymentCurrency string          `json:"payment_currency"`
			PayerAccount    string          `json:"payer_account"`
			ApprovalCode    string          `json:"apv"`
			TransactionDate string          `json:"transaction_date"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransaction: json.Decode: %v", err)
	}
	if reply.Status.Code != "00" {
		return nil, fmt.Errorf("checkTransaction: reply.Status.Code: %v, reply.Status.Message: %v", reply.Status.Code, reply.Status.Message)
	}

	switch reply.Data.PaymentStatus {
	case "APPROVED", "PRE-AUTH":
		// settled
	case "PENDING":
		return nil, status.ErrTransactionNotFound
	default:
		return nil, fmt.Errorf("checkTransaction: payment_status %q: %w", reply.Data.PaymentStatus, status.ErrTransactionNotFound)
	}

	paidAt, err := time.ParseInLocation("20060102150405", reply.Data.TransactionDate, time.Local)
	if err != nil {
		paidAt = c.now()
	}

	return &status.Transaction{
		RefID:      tranID,
		BillNumber: tranID,
		Amount:     reply.Data.PaymentAmount,
		Ccy:        reply.Data.PaymentCurrency,
		Payer:      reply.Data.PayerAccount,
		Provider:   string(gateway.ProviderPayWay),
		PaidAt:     paidAt,
	}, nil
}
