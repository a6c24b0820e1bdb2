package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentSession is the cached checkout for an order. It lives in Redis for
// the lifetime of the payment window so repeated status calls and webhook
// lookups never have to regenerate the QR.
type PaymentSession struct {
	OrderID    string          `json:"order_id"`
	Provider   string          `json:"provider"`
	QRString   string          `json:"qr_string"`
	QRImage    string          `json:"qr_image,omitempty"` // PNG data URI
	Reference  string          `json:"reference"`
	BillNumber string          `json:"bill_number"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Deeplink   string          `json:"deeplink,omitempty"`
	Status     string          `json:"status"` // unknown, awaiting_payment, paid
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// Expired reports whether the payment window has closed.
func (s *PaymentSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// PaymentCallback is the webhook body a provider posts when a payment
// settles.
type PaymentCallback struct {
	Reference  string          `json:"reference"`
	BillNumber string          `json:"bill_number"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Payer      string          `json:"payer"`
	Provider   string          `json:"provider"`
	PaidAt     time.Time       `json:"paid_at"`
}
