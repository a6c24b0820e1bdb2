// Package reconcile decides when an order becomes paid and makes sure it
// becomes paid exactly once, no matter how many times and over which path
// the settlement is observed.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"genzstore/internal/gateway"
	"genzstore/internal/status"
)

// State is the reconciliation view of an order's payment.
type State int

const (
	// StateUnknown means the last lookup failed and nothing can be
	// concluded either way.
	StateUnknown State = iota

	// StateAwaitingPayment means the gateway confirmed it has not seen a
	// settlement for the reference yet.
	StateAwaitingPayment

	// StatePaid means a settled transaction exists for the reference.
	StatePaid
)

func (s State) String() string {
	switch s {
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StatePaid:
		return "paid"
	default:
		return "unknown"
	}
}

// Event is emitted once per order, on the observation that actually flipped
// it to paid. Duplicate observations produce no event.
type Event struct {
	OrderID     string
	Transaction *status.Transaction
}

// OrderStore is the persistence the reconciler settles orders against.
// MarkPaid must be a compare-and-set: it reports true only for the caller
// that performed the pending-to-paid transition.
type OrderStore interface {
	MarkPaid(ctx context.Context, orderID string, tran *status.Transaction) (bool, error)
	FindByBillNumber(ctx context.Context, billNumber string) (string, error)
}

type Reconciler struct {
	store OrderStore

	// events is buffered so a slow notifier cannot stall settlement.
	events chan *Event
}

func New(store OrderStore) *Reconciler {
	return &Reconciler{
		store:  store,
		events: make(chan *Event, 64),
	}
}

// Events returns the paid-event stream notifiers consume.
func (r *Reconciler) Events() <-chan *Event {
	return r.events
}

// CheckStatus interprets a single gateway lookup. A found transaction is
// paid, a clean not-found is still awaiting payment, and anything else is
// unknown: the caller must not conclude "unpaid" from a failed lookup.
func (r *Reconciler) CheckStatus(ctx context.Context, gw gateway.Gateway, reference string) (State, *status.Transaction, error) {
	tran, err := gw.CheckTransaction(ctx, reference)
	switch {
	case err == nil:
		return StatePaid, tran, nil

	case errors.Is(err, status.ErrTransactionNotFound):
		return StateAwaitingPayment, nil, nil

	default:
		return StateUnknown, nil, fmt.Errorf("checkStatus: %s: %w", reference, err)
	}
}

// Reconcile applies an observed settlement to the order. It reports whether
// this call performed the transition. Replays and races return false with a
// nil error, so every delivery path can call it blindly.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string, tran *status.Transaction) (bool, error) {
	settled, err := r.store.MarkPaid(ctx, orderID, tran)
	if err != nil {
		return false, fmt.Errorf("reconcile: %s: %w", orderID, err)
	}
	if !settled {
		return false, nil
	}

	select {
	case r.events <- &Event{OrderID: orderID, Transaction: tran}:
	default:
		log.Printf("reconcile: event buffer full, dropping paid event for %s", orderID)
	}
	return true, nil
}

// HandleCallback settles a transaction that arrived over a push path. The
// order is resolved through the bill number embedded in the payload.
func (r *Reconciler) HandleCallback(ctx context.Context, tran *status.Transaction) error {
	orderID, err := r.store.FindByBillNumber(ctx, tran.BillNumber)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return fmt.Errorf("handleCallback: bill %s: %w", tran.BillNumber, status.ErrOrderNotFound)
		}
		return fmt.Errorf("handleCallback: bill %s: %w", tran.BillNumber, err)
	}

	if _, err := r.Reconcile(ctx, orderID, tran); err != nil {
		return err
	}
	return nil
}

// Listen consumes pushed transactions from a gateway notification channel
// until ctx is done. Unresolvable references are logged and dropped, never
// fatal: a push for a foreign or stale payload must not kill the consumer.
func (r *Reconciler) Listen(ctx context.Context, ch <-chan *status.Transaction) {
	for {
		select {
		case <-ctx.Done():
			return

		case tran, ok := <-ch:
			if !ok {
				return
			}
			if err := r.HandleCallback(ctx, tran); err != nil {
				log.Printf("reconcile: %v", err)
			}
		}
	}
}
