package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/payflow/internal/payment/domain"
)

// Registry holds the payment adapters constructed at startup. Only
// providers with complete credentials are registered, so a Get hit means
// the adapter is usable.
type Registry struct {
	adapters        map[string]domain.Adapter
	defaultProvider string
}

// NewRegistry builds a registry from the given adapters. defaultProvider
// must name one of them; a default pointing at an unconfigured provider is
// a startup error, not something to discover on the first checkout.
func NewRegistry(defaultProvider string, adapters ...domain.Adapter) (*Registry, error) {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(adapter.Name()))
		if name == "" {
			continue
		}
		registry.adapters[name] = adapter
	}

	if len(registry.adapters) == 0 {
		return nil, fmt.Errorf("payment: no providers configured: %w", domain.ErrInvalidConfig)
	}

	defaultProvider = strings.ToLower(strings.TrimSpace(defaultProvider))
	if defaultProvider == "" {
		return nil, fmt.Errorf("payment: default provider not set: %w", domain.ErrInvalidConfig)
	}
	if _, ok := registry.adapters[defaultProvider]; !ok {
		return nil, fmt.Errorf("payment: default provider %q is not configured: %w", defaultProvider, domain.ErrInvalidConfig)
	}
	registry.defaultProvider = defaultProvider

	return registry, nil
}

// Get returns the adapter for the given provider name.
func (r *Registry) Get(provider string) (domain.Adapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

// Default returns the adapter used when a checkout request does not name a
// provider.
func (r *Registry) Default() domain.Adapter {
	return r.adapters[r.defaultProvider]
}

// Providers lists the configured provider names in stable order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
