package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"genzstore/internal/khqr"
	"genzstore/internal/status"
	"genzstore/models"
)

// OrderStore persists orders through the app database. It is the single
// writer for the pending-to-paid transition.
type OrderStore struct {
	app core.App
}

func NewOrderStore(app core.App) *OrderStore {
	return &OrderStore{app: app}
}

// Create inserts a pending order. The id is a UUID so the dash-stripped
// prefix used as the QR bill number has enough entropy to stay unambiguous.
func (s *OrderStore) Create(ctx context.Context, customer string, amount decimal.Decimal, currency string) (*models.Order, error) {
	collection, err := s.app.FindCollectionByNameOrId("orders")
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("id", uuid.NewString())
	record.Set("customer", customer)
	record.Set("amount", amount.StringFixed(2))
	record.Set("currency", currency)
	record.Set("status", models.OrderStatusPending)

	if err := s.app.Save(record); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	return &models.Order{
		ID:        record.Id,
		Customer:  customer,
		Amount:    amount,
		Currency:  currency,
		Status:    models.OrderStatusPending,
		CreatedAt: record.GetDateTime("created").Time(),
	}, nil
}

func (s *OrderStore) Find(ctx context.Context, orderID string) (*models.Order, error) {
	record, err := s.app.FindRecordById("orders", orderID)
	if err != nil {
		return nil, fmt.Errorf("find: %s: %w", orderID, status.ErrOrderNotFound)
	}

	amount, err := decimal.NewFromString(record.GetString("amount"))
	if err != nil {
		return nil, fmt.Errorf("find: %s: bad amount: %v", orderID, err)
	}

	order := &models.Order{
		ID:        record.Id,
		Customer:  record.GetString("customer"),
		Amount:    amount,
		Currency:  record.GetString("currency"),
		Status:    record.GetString("status"),
		Provider:  record.GetString("provider"),
		CreatedAt: record.GetDateTime("created").Time(),
	}
	if paidAt := record.GetDateTime("paidAt").Time(); !paidAt.IsZero() {
		order.PaidAt = &paidAt
	}
	return order, nil
}

// MarkPaid flips the order to paid with a guarded UPDATE. The WHERE clause
// is the whole idempotence story: only one caller ever sees a row count of
// one, everyone else observed a payment that was already applied.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID string, tran *status.Transaction) (bool, error) {
	result, err := s.app.DB().NewQuery(
		"UPDATE orders SET status = {:paid}, provider = {:provider}, paidAt = {:paidAt} WHERE id = {:id} AND status != {:paid}",
	).Bind(dbx.Params{
		"paid":     models.OrderStatusPaid,
		"provider": tran.Provider,
		"paidAt":   tran.PaidAt.UTC().Format(time.RFC3339),
		"id":       orderID,
	}).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("markPaid: %s: %w", orderID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("markPaid: %s: %w", orderID, err)
	}
	if rows == 0 {
		return false, nil
	}

	if err := s.recordTransaction(orderID, tran); err != nil {
		// The settlement already happened, losing the audit row must not
		// roll it back.
		slog.Error("markPaid: record transaction", "orderID", orderID, "error", err)
	}
	return true, nil
}

// recordTransaction keeps an audit row per settled payment.
func (s *OrderStore) recordTransaction(orderID string, tran *status.Transaction) error {
	collection, err := s.app.FindCollectionByNameOrId("transactions")
	if err != nil {
		return fmt.Errorf("recordTransaction: %w", err)
	}

	record := core.NewRecord(collection)
	record.Set("order", orderID)
	record.Set("reference", tran.RefID)
	record.Set("billNumber", tran.BillNumber)
	record.Set("amount", tran.Amount.String())
	record.Set("currency", tran.Ccy)
	record.Set("payer", tran.Payer)
	record.Set("provider", tran.Provider)
	record.Set("paidAt", tran.PaidAt.UTC().Format(time.RFC3339))

	if err := s.app.Save(record); err != nil {
		return fmt.Errorf("recordTransaction: %w", err)
	}
	return nil
}

// FindByBillNumber resolves an order from the truncated reference embedded
// in a QR payload. The bill number is a dash-stripped id prefix, so the
// lookup is a prefix match. More than one hit means the prefix is ambiguous
// and the callback cannot be applied safely.
func (s *OrderStore) FindByBillNumber(ctx context.Context, billNumber string) (string, error) {
	if billNumber == "" || len(billNumber) > khqr.ReferenceLen {
		return "", status.ErrOrderNotFound
	}

	var records []dbx.NullStringMap
	if err := s.app.DB().NewQuery(
		"SELECT id FROM orders WHERE REPLACE(id, '-', '') LIKE {:prefix} LIMIT 2",
	).Bind(dbx.Params{
		"prefix": billNumber + "%",
	}).WithContext(ctx).All(&records); err != nil {
		return "", fmt.Errorf("findByBillNumber: %s: %w", billNumber, err)
	}

	switch len(records) {
	case 0:
		return "", status.ErrOrderNotFound
	case 1:
		return records[0]["id"].String, nil
	default:
		return "", fmt.Errorf("findByBillNumber: ambiguous bill number %s: %w", billNumber, status.ErrOrderNotFound)
	}
}
