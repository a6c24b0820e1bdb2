package payway

import (
	"context"

	"genzstore/internal/gateway"
	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

type Config struct {
	BaseURL    string `json:"baseUrl" mapstructure:"base_url"`
	MerchantID string `json:"merchantId" mapstructure:"merchant_id"`

	// APIKey is the shared secret every request hash is computed with.
	APIKey string `json:"apiKey" mapstructure:"api_key"`

	ReturnURL string `json:"returnUrl" mapstructure:"return_url"`
}

// PayWay is the hosted-checkout gateway. The QR payload is produced by the
// provider, not assembled locally, so CreateTransaction is a network call.
type PayWay struct {
	client *Client

	ch chan *status.Transaction
}

var _ gateway.Gateway = (*PayWay)(nil)

// New returns a new PayWay gateway instance.
func New(ctx context.Context, cfg *Config) (*PayWay, error) {
	return &PayWay{
		client: newClient(ctx, &ClientConfig{
			BaseURL:    cfg.BaseURL,
			MerchantID: cfg.MerchantID,
			APIKey:     cfg.APIKey,
			ReturnURL:  cfg.ReturnURL,
		}),
	}, nil
}

func (p *PayWay) GetProvider() gateway.Provider {
	return gateway.ProviderPayWay
}

// CreateTransaction purchases a KHQR checkout from PayWay. The tran id sent
// upstream doubles as the reference later status checks use.
func (p *PayWay) CreateTransaction(ctx context.Context, req *khqr.PaymentRequest) (*gateway.Checkout, error) {
	if req.OrderID == "" {
		return nil, khqr.ErrEmptyOrderID
	}

	tranID := khqr.Reference(req.OrderID)

	reply, err := p.client.purchase(ctx, tranID, req)
	if err != nil {
		return nil, err
	}

	return &gateway.Checkout{
		Provider:    gateway.ProviderPayWay,
		OrderID:     req.OrderID,
		QRString:    reply.QRString,
		Reference:   tranID,
		BillNumber:  tranID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Deeplink:    reply.Deeplink,
		CheckoutURL: reply.CheckoutURL,
		ExpiresAt:   req.ExpiresAt,
	}, nil
}

func (p *PayWay) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	return p.client.checkTransaction(ctx, reference)
}

// SetTransactionChannel is kept for interface symmetry. PayWay has no push
// path of its own; settled payments arrive through the webhook handler.
func (p *PayWay) SetTransactionChannel(ch chan *status.Transaction) {
	p.ch = ch
}

func (p *PayWay) Close(ctx context.Context) error {
	return nil
}
