package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) CreatePayment(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	return nil, nil
}

func (f *fakeAdapter) GetSession(ctx context.Context, query domain.SessionQuery) (*domain.Session, error) {
	return nil, nil
}

func (f *fakeAdapter) HandleWebhook(ctx context.Context, payload []byte, headers map[string]string) (*domain.WebhookEvent, error) {
	return nil, nil
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry("stripe", &fakeAdapter{name: "Stripe"}, &fakeAdapter{name: "paypal"})
	require.NoError(t, err)

	adapter, err := registry.Get("STRIPE")
	require.NoError(t, err)
	require.Equal(t, "Stripe", adapter.Name())

	require.Equal(t, "Stripe", registry.Default().Name())
	require.Equal(t, []string{"paypal", "stripe"}, registry.Providers())

	_, err = registry.Get("creem")
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestNewRegistryRejectsUnconfiguredDefault(t *testing.T) {
	_, err := NewRegistry("creem", &fakeAdapter{name: "stripe"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNewRegistryRequiresProviders(t *testing.T) {
	_, err := NewRegistry("stripe")
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = NewRegistry("", &fakeAdapter{name: "stripe"})
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}
