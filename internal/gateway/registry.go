package gateway

import (
	"context"
	"fmt"
	"log"
)

// Registry manages the configured gateway instances and tracks which one is
// the primary checkout provider.
type Registry struct {
	gateways map[Provider]Gateway
	primary  Provider
}

func NewRegistry() *Registry {
	return &Registry{
		gateways: make(map[Provider]Gateway),
	}
}

// Register adds a gateway instance. The first registered gateway becomes the
// primary until SetPrimary says otherwise.
func (r *Registry) Register(gw Gateway) {
	r.gateways[gw.GetProvider()] = gw
	if r.primary == "" {
		r.primary = gw.GetProvider()
	}
}

func (r *Registry) Get(provider Provider) (Gateway, error) {
	gw, exists := r.gateways[provider]
	if !exists {
		return nil, fmt.Errorf("gateway provider %s not registered", provider)
	}
	return gw, nil
}

func (r *Registry) Primary() (Gateway, error) {
	if r.primary == "" {
		return nil, fmt.Errorf("no primary gateway configured")
	}
	return r.Get(r.primary)
}

func (r *Registry) SetPrimary(provider Provider) error {
	if _, exists := r.gateways[provider]; !exists {
		return fmt.Errorf("gateway provider %s not registered", provider)
	}
	r.primary = provider
	return nil
}

func (r *Registry) Providers() []Provider {
	providers := make([]Provider, 0, len(r.gateways))
	for provider := range r.gateways {
		providers = append(providers, provider)
	}
	return providers
}

// Close closes all registered gateways, logging failures rather than
// aborting so every gateway gets its chance to shut down.
func (r *Registry) Close(ctx context.Context) error {
	for provider, gw := range r.gateways {
		if err := gw.Close(ctx); err != nil {
			log.Printf("error closing %s gateway: %v", provider, err)
		}
	}
	return nil
}
