package payproc

import (
	"context"
	"fmt"

	"ticket-market/internal/services/payproc/stripeish"
)

// Factory creates processor instances based on provider type
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

// CreateProcessor creates a processor instance based on provider type and
// configuration
func (f *Factory) CreateProcessor(ctx context.Context, provider Provider, config any) (Processor, error) {
	switch provider {
	case ProviderStripeish:
		cfg, ok := config.(*stripeish.Config)
		if !ok {
			return nil, fmt.Errorf("invalid stripeish config type, expected *stripeish.Config")
		}
		return NewStripeishAdapter(ctx, cfg)

	case ProviderMock:
		return NewMockProcessor(), nil

	default:
		return nil, fmt.Errorf("unsupported payment provider: %s", provider)
	}
}

// GetSupportedProviders returns list of supported payment providers
func (f *Factory) GetSupportedProviders() []Provider {
	return []Provider{ProviderStripeish, ProviderMock}
}
