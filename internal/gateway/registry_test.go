package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genzstore/internal/khqr"
	"genzstore/internal/status"
)

type nopGateway struct {
	provider Provider
	closed   bool
}

func (g *nopGateway) GetProvider() Provider { return g.provider }

func (g *nopGateway) CreateTransaction(context.Context, *khqr.PaymentRequest) (*Checkout, error) {
	return &Checkout{Provider: g.provider}, nil
}

func (g *nopGateway) CheckTransaction(context.Context, string) (*status.Transaction, error) {
	return nil, status.ErrTransactionNotFound
}

func (g *nopGateway) SetTransactionChannel(chan *status.Transaction) {}

func (g *nopGateway) Close(context.Context) error {
	g.closed = true
	return nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	_, err := r.Primary()
	assert.Error(t, err)

	bakong := &nopGateway{provider: ProviderBakong}
	payway := &nopGateway{provider: ProviderPayWay}
	r.Register(bakong)
	r.Register(payway)

	// First registered gateway is the default primary.
	primary, err := r.Primary()
	require.NoError(t, err)
	assert.Equal(t, ProviderBakong, primary.GetProvider())

	require.NoError(t, r.SetPrimary(ProviderPayWay))
	primary, err = r.Primary()
	require.NoError(t, err)
	assert.Equal(t, ProviderPayWay, primary.GetProvider())

	assert.Error(t, r.SetPrimary("stripe"))

	_, err = r.Get("stripe")
	assert.Error(t, err)

	assert.ElementsMatch(t, []Provider{ProviderBakong, ProviderPayWay}, r.Providers())

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, bakong.closed)
	assert.True(t, payway.closed)
}
