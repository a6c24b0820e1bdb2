package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"genzstore/internal/gateway"
	"genzstore/internal/reconcile"
	"genzstore/internal/status"
	"genzstore/models"
	"genzstore/monitoring"
	"genzstore/security"
	"genzstore/services"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	orders         services.Orders

	webhookSecret    string
	webhookTokenHash string
	limiter          *security.RateLimiter
}

func NewPaymentHandler(
	app *pocketbase.PocketBase,
	paymentService *services.PaymentService,
	orders services.Orders,
	webhookSecret string,
	webhookTokenHash string,
	limiter *security.RateLimiter,
) *PaymentHandler {
	return &PaymentHandler{
		app:              app,
		paymentService:   paymentService,
		orders:           orders,
		webhookSecret:    webhookSecret,
		webhookTokenHash: webhookTokenHash,
		limiter:          limiter,
	}
}

// GenerateKHQR - Create (or replay) the payment QR for an order
func (h *PaymentHandler) GenerateKHQR(e *core.RequestEvent) error {
	var req struct {
		OrderID  string `json:"order_id"`
		Provider string `json:"provider"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if req.OrderID == "" {
		return apis.NewBadRequestError("order_id is required", nil)
	}

	ctx := e.Request.Context()

	order, err := h.orders.Find(ctx, req.OrderID)
	if err != nil {
		return apis.NewNotFoundError("Order not found", nil)
	}

	session, err := h.paymentService.CreatePayment(ctx, order, gateway.Provider(req.Provider))
	if err != nil {
		if errors.Is(err, services.ErrOrderAlreadyPaid) {
			return apis.NewBadRequestError("Order is already paid", nil)
		}
		if errors.Is(err, status.ErrGatewayUnavailable) {
			slog.Error("generate khqr: gateway unavailable", "orderID", req.OrderID, "error", err)
			return e.JSON(http.StatusServiceUnavailable, map[string]any{
				"message": "Payment provider is unavailable, try again shortly",
			})
		}
		slog.Error("generate khqr", "orderID", req.OrderID, "error", err)
		return apis.NewBadRequestError("Could not create payment", nil)
	}

	return e.JSON(http.StatusOK, session)
}

// CheckPaymentStatus - One reconciled status lookup for an order
func (h *PaymentHandler) CheckPaymentStatus(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")
	ctx := e.Request.Context()

	session, state, err := h.paymentService.CheckPayment(ctx, orderID)
	if err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			return apis.NewNotFoundError("Order not found", nil)
		}
		if errors.Is(err, services.ErrNoActiveSession) {
			return apis.NewNotFoundError("No active payment session", nil)
		}
		// A failed lookup is "unknown", never "unpaid".
		slog.Error("check payment status", "orderID", orderID, "error", err)
		return e.JSON(http.StatusOK, map[string]any{
			"order_id": orderID,
			"status":   reconcile.StateUnknown.String(),
		})
	}

	resp := map[string]any{
		"order_id": orderID,
		"status":   state.String(),
	}
	if session != nil {
		resp["provider"] = session.Provider
		resp["expires_at"] = session.ExpiresAt
	}
	return e.JSON(http.StatusOK, resp)
}

// GetPaymentSession - Return the cached checkout (QR image included)
func (h *PaymentHandler) GetPaymentSession(e *core.RequestEvent) error {
	orderID := e.Request.PathValue("orderId")

	session, err := h.paymentService.GetSession(e.Request.Context(), orderID)
	if err != nil {
		return apis.NewNotFoundError("No active payment session", nil)
	}
	return e.JSON(http.StatusOK, session)
}

// HandleWebhook - Settle a payment pushed by a provider
//
// Three gates before the body is trusted: bearer token, request signature
// and the per-provider rate limit. The response is 200 even for unknown
// references so providers stop retrying deliveries we can never apply.
func (h *PaymentHandler) HandleWebhook(e *core.RequestEvent) error {
	provider := e.Request.PathValue("provider")
	ctx := e.Request.Context()

	if h.limiter != nil && !h.limiter.Allow(ctx, provider) {
		monitoring.RecordWebhook("rate_limited")
		return e.JSON(http.StatusTooManyRequests, map[string]any{"message": "Too many requests"})
	}

	token := e.Request.Header.Get("X-Webhook-Token")
	if !security.VerifyToken(token, h.webhookTokenHash) {
		monitoring.RecordWebhook("bad_token")
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		monitoring.RecordWebhook("bad_body")
		return apis.NewBadRequestError("Invalid request body", err)
	}
	e.Request.Body = io.NopCloser(bytes.NewReader(body))

	signature := e.Request.Header.Get("X-Webhook-Signature")
	if !security.VerifySignature(body, signature, h.webhookSecret) {
		monitoring.RecordWebhook("bad_signature")
		return apis.NewUnauthorizedError("Invalid signature", nil)
	}

	var cb models.PaymentCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		monitoring.RecordWebhook("bad_body")
		return apis.NewBadRequestError("Invalid request body", err)
	}
	if cb.Provider == "" {
		cb.Provider = provider
	}

	if err := h.paymentService.HandleCallback(ctx, &cb); err != nil {
		if errors.Is(err, status.ErrOrderNotFound) {
			slog.Warn("webhook: unknown reference", "provider", provider, "reference", cb.Reference, "bill", cb.BillNumber)
			monitoring.RecordWebhook("unknown_reference")
			return e.JSON(http.StatusOK, map[string]any{"message": "ignored"})
		}
		slog.Error("webhook", "provider", provider, "error", err)
		monitoring.RecordWebhook("error")
		return apis.NewApiError(http.StatusInternalServerError, "Could not apply callback", nil)
	}

	monitoring.RecordWebhook("applied")
	return e.JSON(http.StatusOK, map[string]any{"message": "ok"})
}

// CreateTestOrder - Seed a pending order (for testing)
func (h *PaymentHandler) CreateTestOrder(e *core.RequestEvent) error {
	var req struct {
		Customer string `json:"customer"`
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return apis.NewBadRequestError("Invalid amount", err)
	}
	if req.Currency == "" {
		req.Currency = "840"
	}

	order, err := h.orders.Create(e.Request.Context(), req.Customer, amount, req.Currency)
	if err != nil {
		slog.Error("create test order", "error", err)
		return apis.NewBadRequestError("Could not create order", nil)
	}

	return e.JSON(http.StatusOK, order)
}

// SimulatePayment - Simulate payment success (for testing)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	if err := h.paymentService.SimulatePayment(e.Request.Context(), req.OrderID); err != nil {
		slog.Error("simulate payment", "orderID", req.OrderID, "error", err)
		return apis.NewBadRequestError("Could not simulate payment", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulated"})
}
