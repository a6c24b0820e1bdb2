package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genzstore/internal/gateway"
	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

// memStore is an in-memory OrderStore with the same compare-and-set
// semantics the database implementation has.
type memStore struct {
	mu    sync.Mutex
	paid  map[string]bool
	bills map[string]string

	markCalls int
}

func newMemStore() *memStore {
	return &memStore{
		paid:  make(map[string]bool),
		bills: make(map[string]string),
	}
}

func (s *memStore) MarkPaid(_ context.Context, orderID string, _ *status.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if s.paid[orderID] {
		return false, nil
	}
	s.paid[orderID] = true
	return true, nil
}

func (s *memStore) FindByBillNumber(_ context.Context, billNumber string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bills[billNumber]
	if !ok {
		return "", status.ErrOrderNotFound
	}
	return id, nil
}

// stubGateway serves CheckTransaction from a canned response.
type stubGateway struct {
	tran *status.Transaction
	err  error

	mu    sync.Mutex
	calls int
}

func (g *stubGateway) GetProvider() gateway.Provider { return "stub" }

func (g *stubGateway) CreateTransaction(context.Context, *khqr.PaymentRequest) (*gateway.Checkout, error) {
	return nil, errors.New("not implemented")
}

func (g *stubGateway) CheckTransaction(context.Context, string) (*status.Transaction, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.tran, nil
}

func (g *stubGateway) SetTransactionChannel(chan *status.Transaction) {}
func (g *stubGateway) Close(context.Context) error                   { return nil }

func paidTran() *status.Transaction {
	return &status.Transaction{
		RefID:      "ddc93ce5519cbbef649c29201c934b06",
		BillNumber: "a3d8f0e24b7c4d9e8f10",
		Amount:     decimal.RequireFromString("12.50"),
		Ccy:        "USD",
		Payer:      "customer@bank",
		Provider:   "bakong",
		PaidAt:     time.Now(),
	}
}

func TestCheckStatus_Mapping(t *testing.T) {
	r := New(newMemStore())
	ctx := context.Background()

	st, tran, err := r.CheckStatus(ctx, &stubGateway{tran: paidTran()}, "ref")
	require.NoError(t, err)
	assert.Equal(t, StatePaid, st)
	require.NotNil(t, tran)

	st, tran, err = r.CheckStatus(ctx, &stubGateway{err: status.ErrTransactionNotFound}, "ref")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, st)
	assert.Nil(t, tran)

	st, _, err = r.CheckStatus(ctx, &stubGateway{err: status.ErrGatewayUnavailable}, "ref")
	require.Error(t, err)
	assert.Equal(t, StateUnknown, st)
	assert.ErrorIs(t, err, status.ErrGatewayUnavailable)
}

func TestReconcile_FirstObservationWins(t *testing.T) {
	store := newMemStore()
	r := New(store)
	ctx := context.Background()

	settled, err := r.Reconcile(ctx, "order-1", paidTran())
	require.NoError(t, err)
	assert.True(t, settled)

	// Replay of the same settlement is a no-op.
	settled, err = r.Reconcile(ctx, "order-1", paidTran())
	require.NoError(t, err)
	assert.False(t, settled)

	// Exactly one paid event was emitted.
	assert.Len(t, r.events, 1)
	ev := <-r.Events()
	assert.Equal(t, "order-1", ev.OrderID)
}

func TestReconcile_ConcurrentObservers(t *testing.T) {
	store := newMemStore()
	r := New(store)
	ctx := context.Background()

	// Poller and callback race for the same order.
	const observers = 16
	var wg sync.WaitGroup
	won := make(chan bool, observers)
	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled, err := r.Reconcile(ctx, "order-1", paidTran())
			assert.NoError(t, err)
			won <- settled
		}()
	}
	wg.Wait()
	close(won)

	winners := 0
	for w := range won {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Len(t, r.events, 1)
}

func TestHandleCallback_ResolvesBillNumber(t *testing.T) {
	store := newMemStore()
	store.bills["a3d8f0e24b7c4d9e8f10"] = "order-1"
	r := New(store)

	require.NoError(t, r.HandleCallback(context.Background(), paidTran()))
	assert.True(t, store.paid["order-1"])
}

func TestHandleCallback_UnknownReference(t *testing.T) {
	r := New(newMemStore())

	err := r.HandleCallback(context.Background(), paidTran())
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrOrderNotFound)
}

func TestListen_ConsumesPushedTransactions(t *testing.T) {
	store := newMemStore()
	store.bills["a3d8f0e24b7c4d9e8f10"] = "order-1"
	r := New(store)

	ch := make(chan *status.Transaction, 2)
	ch <- paidTran()
	ch <- paidTran() // duplicate push must be harmless
	close(ch)

	r.Listen(context.Background(), ch)

	assert.True(t, store.paid["order-1"])
	assert.Len(t, r.events, 1)
}

func TestPoller_SettlesOnPaid(t *testing.T) {
	store := newMemStore()
	r := New(store)
	gw := &stubGateway{tran: paidTran()}

	p := NewPoller(r, gw, 5*time.Millisecond)

	st, err := p.Poll(context.Background(), "order-1", "ref", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, StatePaid, st)
	assert.True(t, store.paid["order-1"])
}

func TestPoller_StopsAtDeadline(t *testing.T) {
	store := newMemStore()
	r := New(store)
	gw := &stubGateway{err: status.ErrTransactionNotFound}

	p := NewPoller(r, gw, 5*time.Millisecond)

	st, err := p.Poll(context.Background(), "order-1", "ref", time.Now().Add(30*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingPayment, st)
	assert.False(t, store.paid["order-1"])
	assert.Greater(t, gw.calls, 0)
}

func TestPoller_GatewayErrorsAreTransient(t *testing.T) {
	store := newMemStore()
	r := New(store)
	gw := &stubGateway{err: status.ErrGatewayUnavailable}

	p := NewPoller(r, gw, 5*time.Millisecond)

	st, err := p.Poll(context.Background(), "order-1", "ref", time.Now().Add(30*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, StateUnknown, st)
	assert.False(t, store.paid["order-1"])
}

func TestPoller_ContextCancel(t *testing.T) {
	r := New(newMemStore())
	gw := &stubGateway{err: status.ErrTransactionNotFound}

	p := NewPoller(r, gw, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Poll(ctx, "order-1", "ref", time.Time{})
	assert.ErrorIs(t, err, context.Canceled)
}
