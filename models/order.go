package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. Payment reconciliation only ever performs the
// pending-to-paid transition; fulfilment owns the rest.
const (
	OrderStatusPending    = "Pending"
	OrderStatusPaid       = "Paid"
	OrderStatusDelivering = "Delivering"
	OrderStatusDone       = "Done"
	OrderStatusCancelled  = "Cancelled"
)

type Order struct {
	ID        string          `json:"id"`
	Customer  string          `json:"customer"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Provider  string          `json:"provider,omitempty"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Paid reports whether the order has settled.
func (o *Order) Paid() bool {
	return o.Status == OrderStatusPaid ||
		o.Status == OrderStatusDelivering ||
		o.Status == OrderStatusDone
}
