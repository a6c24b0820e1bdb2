package status

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound means the gateway has no settled transaction
	// for the reference yet. Callers keep polling.
	ErrTransactionNotFound = errors.New("payment: transaction not found")

	// ErrOrderNotFound means a callback referenced an order we do not know.
	ErrOrderNotFound = errors.New("payment: order not found")

	ErrGatewayUnavailable = errors.New("payment: gateway unavailable")
)

// Transaction is a settled payment as reported by a gateway, either from a
// status poll or from a pushed notification.
type Transaction struct {
	// RefID is the gateway's own transaction reference.
	RefID string `json:"ref_id"`

	// BillNumber is the reference we embedded in the QR payload
	// (truncated order id), echoed back by the gateway.
	BillNumber string `json:"bill_number"`

	Amount decimal.Decimal `json:"amount"`
	Ccy    string          `json:"ccy"`
	Payer  string          `json:"payer,omitempty"`

	Provider string    `json:"provider"`
	PaidAt   time.Time `json:"paid_at"`
}
