package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

// Provider identifies a payment gateway implementation.
type Provider string

const (
	ProviderBakong Provider = "bakong"
	ProviderPayWay Provider = "payway"
)

// Checkout is everything a caller needs to present a payment QR and to look
// the payment up afterwards.
type Checkout struct {
	Provider Provider `json:"provider"`
	OrderID  string   `json:"order_id"`

	// QRString is the raw KHQR payload. It must reach the renderer and the
	// client unmodified.
	QRString string `json:"qr_string"`

	// Reference is the handle used for status checks: the payload md5 for
	// Bakong, the tran id for PayWay.
	Reference string `json:"reference"`

	// BillNumber is the truncated order reference embedded in the payload.
	BillNumber string `json:"bill_number"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Deeplink and CheckoutURL are optional provider extras.
	Deeplink    string `json:"deeplink,omitempty"`
	CheckoutURL string `json:"checkout_url,omitempty"`

	ExpiresAt time.Time `json:"expires_at"`
}

// Gateway is the common interface all payment providers implement.
type Gateway interface {
	// GetProvider returns the gateway provider type.
	GetProvider() Provider

	// CreateTransaction produces a payable QR checkout for the request.
	CreateTransaction(ctx context.Context, req *khqr.PaymentRequest) (*Checkout, error)

	// CheckTransaction looks up a settled transaction by reference.
	// status.ErrTransactionNotFound means "not paid yet".
	CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error)

	// SetTransactionChannel sets the channel pushed notifications are
	// delivered on. Providers without a push path may ignore it.
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}
