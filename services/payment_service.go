package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"

	"genzstore/internal/gateway"
	"genzstore/internal/khqr"
	"genzstore/internal/reconcile"
	"genzstore/internal/status"
	"genzstore/models"
	"genzstore/monitoring"
	"genzstore/utils"
)

var (
	ErrOrderAlreadyPaid = errors.New("order is already paid")
	ErrNoActiveSession  = errors.New("no active payment session for order")
)

// Orders is the slice of the order store the payment flow needs.
type Orders interface {
	reconcile.OrderStore
	Create(ctx context.Context, customer string, amount decimal.Decimal, currency string) (*models.Order, error)
	Find(ctx context.Context, orderID string) (*models.Order, error)
}

// PaymentService glues checkout creation, the session cache and both
// settlement delivery paths together.
type PaymentService struct {
	redis    *redis.Client
	registry *gateway.Registry
	rec      *reconcile.Reconciler
	orders   Orders
	pn       *pubnub.PubNub

	// paidChannel is the PubNub channel storefront clients listen on.
	paidChannel string

	timeout time.Duration

	// one poller per provider so breaker state is shared across orders.
	pollers map[gateway.Provider]*reconcile.Poller
}

func NewPaymentService(
	ctx context.Context,
	redisClient *redis.Client,
	registry *gateway.Registry,
	rec *reconcile.Reconciler,
	orders Orders,
	pn *pubnub.PubNub,
	paidChannel string,
	timeout time.Duration,
	pollInterval time.Duration,
) *PaymentService {
	s := &PaymentService{
		redis:       redisClient,
		registry:    registry,
		rec:         rec,
		orders:      orders,
		pn:          pn,
		paidChannel: paidChannel,
		timeout:     timeout,
		pollers:     make(map[gateway.Provider]*reconcile.Poller),
	}

	for _, provider := range registry.Providers() {
		gw, err := registry.Get(provider)
		if err != nil {
			continue
		}
		s.pollers[provider] = reconcile.NewPoller(rec, gw, pollInterval)
	}

	go s.notifyPaidOrders(ctx)

	return s
}

func sessionKey(orderID string) string {
	return fmt.Sprintf("payment:%s", orderID)
}

func refKey(reference string) string {
	return fmt.Sprintf("payref:%s", reference)
}

// CreatePayment produces (or replays) the checkout for an order. Calling it
// twice for the same pending order returns the cached session, so clients
// can refresh the payment page without minting a new QR.
func (s *PaymentService) CreatePayment(ctx context.Context, order *models.Order, provider gateway.Provider) (*models.PaymentSession, error) {
	if order.Paid() {
		return nil, fmt.Errorf("createPayment: %s: %w", order.ID, ErrOrderAlreadyPaid)
	}

	if existing, err := s.GetSession(ctx, order.ID); err == nil &&
		!existing.Expired(time.Now()) &&
		(provider == "" || existing.Provider == string(provider)) {
		return existing, nil
	}

	var (
		gw  gateway.Gateway
		err error
	)
	if provider == "" {
		gw, err = s.registry.Primary()
	} else {
		gw, err = s.registry.Get(provider)
	}
	if err != nil {
		return nil, fmt.Errorf("createPayment: %s: %w", order.ID, err)
	}

	expiresAt := time.Now().Add(s.timeout)
	checkout, err := gw.CreateTransaction(ctx, &khqr.PaymentRequest{
		OrderID:   order.ID,
		Amount:    order.Amount,
		Currency:  order.Currency,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		monitoring.RecordPaymentError(string(gw.GetProvider()))
		return nil, fmt.Errorf("createPayment: %s: %w", order.ID, err)
	}

	qrImage, err := encodeQRImage(checkout.QRString)
	if err != nil {
		return nil, fmt.Errorf("createPayment: %s: %w", order.ID, err)
	}

	session := &models.PaymentSession{
		OrderID:    order.ID,
		Provider:   string(checkout.Provider),
		QRString:   checkout.QRString,
		QRImage:    qrImage,
		Reference:  checkout.Reference,
		BillNumber: checkout.BillNumber,
		Amount:     checkout.Amount,
		Currency:   checkout.Currency,
		Deeplink:   checkout.Deeplink,
		Status:     reconcile.StateAwaitingPayment.String(),
		CreatedAt:  time.Now(),
		ExpiresAt:  checkout.ExpiresAt,
	}
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = expiresAt
	}

	if err := s.cacheSession(ctx, session); err != nil {
		return nil, fmt.Errorf("createPayment: %s: %w", order.ID, err)
	}

	monitoring.RecordPaymentCreated(session.Provider)

	// Safety net behind the push path. The poller outlives the request.
	if poller, ok := s.pollers[checkout.Provider]; ok {
		go func() {
			pollCtx, cancel := context.WithDeadline(context.Background(), session.ExpiresAt.Add(30*time.Second))
			defer cancel()
			if _, err := poller.Poll(pollCtx, session.OrderID, session.Reference, session.ExpiresAt); err != nil &&
				!errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				log.Printf("poll %s: %v", session.OrderID, err)
			}
		}()
	}

	return session, nil
}

// CheckPayment is the client-facing status call: one gateway lookup,
// reconciled on the spot when it turns out the order settled.
func (s *PaymentService) CheckPayment(ctx context.Context, orderID string) (*models.PaymentSession, reconcile.State, error) {
	session, err := s.GetSession(ctx, orderID)
	if err != nil {
		// No session left. The order itself still knows if it was paid.
		order, ferr := s.orders.Find(ctx, orderID)
		if ferr != nil {
			return nil, reconcile.StateUnknown, ferr
		}
		if order.Paid() {
			return nil, reconcile.StatePaid, nil
		}
		return nil, reconcile.StateUnknown, fmt.Errorf("checkPayment: %s: %w", orderID, ErrNoActiveSession)
	}

	if session.Status == reconcile.StatePaid.String() {
		return session, reconcile.StatePaid, nil
	}

	gw, err := s.registry.Get(gateway.Provider(session.Provider))
	if err != nil {
		return session, reconcile.StateUnknown, fmt.Errorf("checkPayment: %s: %w", orderID, err)
	}

	start := time.Now()
	state, tran, err := s.rec.CheckStatus(ctx, gw, session.Reference)
	monitoring.TrackStatusCheck(session.Provider, time.Since(start))
	if err != nil {
		monitoring.RecordPaymentError(session.Provider)
		return session, reconcile.StateUnknown, err
	}

	if state == reconcile.StatePaid {
		if _, err := s.rec.Reconcile(ctx, orderID, tran); err != nil {
			return session, reconcile.StateUnknown, err
		}
		session.Status = reconcile.StatePaid.String()
	}
	return session, state, nil
}

// HandleCallback settles a payment delivered by a provider webhook. The
// redis reference index is the fast path; the bill-number prefix lookup in
// the database covers sessions that already expired from the cache.
func (s *PaymentService) HandleCallback(ctx context.Context, cb *models.PaymentCallback) error {
	tran := &status.Transaction{
		RefID:      cb.Reference,
		BillNumber: cb.BillNumber,
		Amount:     cb.Amount,
		Ccy:        cb.Currency,
		Payer:      cb.Payer,
		Provider:   cb.Provider,
		PaidAt:     cb.PaidAt,
	}
	if tran.PaidAt.IsZero() {
		tran.PaidAt = time.Now()
	}
	if tran.BillNumber == "" && tran.RefID != "" {
		tran.BillNumber = khqr.Reference(tran.RefID)
	}

	if cb.Reference != "" {
		orderID, err := s.redis.Get(ctx, refKey(cb.Reference)).Result()
		if err == nil && orderID != "" {
			if _, err := s.rec.Reconcile(ctx, orderID, tran); err != nil {
				return err
			}
			return nil
		}
	}

	return s.rec.HandleCallback(ctx, tran)
}

// SimulatePayment settles an order without a provider, for development only.
func (s *PaymentService) SimulatePayment(ctx context.Context, orderID string) error {
	session, err := s.GetSession(ctx, orderID)
	if err != nil {
		return fmt.Errorf("simulatePayment: %s: %w", orderID, err)
	}

	// A fresh reference keeps simulated settlements out of the way of a
	// real one that may still arrive for the same session.
	code, err := utils.GenerateCode(8)
	if err != nil {
		return fmt.Errorf("simulatePayment: %w", err)
	}

	tran := &status.Transaction{
		RefID:      "SIM" + code,
		BillNumber: session.BillNumber,
		Amount:     session.Amount,
		Ccy:        session.Currency,
		Payer:      "simulator",
		Provider:   session.Provider,
		PaidAt:     time.Now(),
	}

	if _, err := s.rec.Reconcile(ctx, orderID, tran); err != nil {
		return err
	}
	return nil
}

func (s *PaymentService) GetSession(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	data, err := s.redis.Get(ctx, sessionKey(orderID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("getSession: %s: %w", orderID, err)
	}

	var session models.PaymentSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("getSession: %s: %w", orderID, err)
	}
	return &session, nil
}

func (s *PaymentService) cacheSession(ctx context.Context, session *models.PaymentSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("cacheSession: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}
	// Keep the session around a bit past expiry so late status calls can
	// still see what the payment window was.
	ttl += 5 * time.Minute

	if err := s.redis.Set(ctx, sessionKey(session.OrderID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cacheSession: %w", err)
	}
	if err := s.redis.Set(ctx, refKey(session.Reference), session.OrderID, ttl).Err(); err != nil {
		return fmt.Errorf("cacheSession: %w", err)
	}
	return nil
}

// markSessionPaid rewrites the cached session status without touching the
// remaining TTL.
func (s *PaymentService) markSessionPaid(ctx context.Context, orderID string) {
	session, err := s.GetSession(ctx, orderID)
	if err != nil {
		return
	}
	session.Status = reconcile.StatePaid.String()

	data, err := json.Marshal(session)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, sessionKey(orderID), data, redis.KeepTTL).Err(); err != nil {
		slog.Error("markSessionPaid", "orderID", orderID, "error", err)
	}
}

// notifyPaidOrders consumes the reconciler's paid events: flip the cached
// session, bump the metric and tell the storefront over PubNub.
func (s *PaymentService) notifyPaidOrders(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-s.rec.Events():
			if !ok {
				return
			}

			s.markSessionPaid(ctx, ev.OrderID)
			monitoring.RecordPaymentSettled(ev.Transaction.Provider)

			if s.pn == nil {
				continue
			}
			_, _, err := s.pn.Publish().
				Channel(s.paidChannel).
				Message(map[string]interface{}{
					"type":     "payment_success",
					"order_id": ev.OrderID,
					"provider": ev.Transaction.Provider,
					"amount":   ev.Transaction.Amount.String(),
					"currency": ev.Transaction.Ccy,
				}).
				Execute()
			if err != nil {
				slog.Error("notifyPaidOrders: publish", "orderID", ev.OrderID, "error", err)
			}
		}
	}
}

// encodeQRImage renders the payload as a PNG data URI that clients can drop
// straight into an img src.
func encodeQRImage(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encodeQRImage: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
