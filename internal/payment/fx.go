package payment

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/payment/adapters"
	"github.com/smallbiznis/payflow/internal/payment/adapters/creem"
	"github.com/smallbiznis/payflow/internal/payment/adapters/paypal"
	"github.com/smallbiznis/payflow/internal/payment/adapters/stripe"
	"github.com/smallbiznis/payflow/internal/payment/domain"
)

// Module constructs every adapter with complete credentials and registers
// them. Providers with missing credentials are skipped with a log line; the
// registry itself rejects a default provider that ended up unconfigured.
var Module = fx.Module("payment",
	fx.Provide(newRegistry),
)

func newRegistry(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
	log = log.Named("payment")
	available := []domain.Adapter{}

	if cfg.Stripe.SecretKey != "" {
		adapter, err := stripe.New(stripe.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
		})
		if err != nil {
			return nil, err
		}
		available = append(available, adapter)
	} else {
		log.Info("stripe not configured, skipping")
	}

	if cfg.PayPal.ClientID != "" {
		adapter, err := paypal.New(paypal.Config{
			ClientID:     cfg.PayPal.ClientID,
			ClientSecret: cfg.PayPal.ClientSecret,
			WebhookID:    cfg.PayPal.WebhookID,
			Environment:  cfg.PayPal.Environment,
		})
		if err != nil {
			return nil, err
		}
		available = append(available, adapter)
	} else {
		log.Info("paypal not configured, skipping")
	}

	if cfg.Creem.APIKey != "" {
		adapter, err := creem.New(creem.Config{
			APIKey:        cfg.Creem.APIKey,
			WebhookSecret: cfg.Creem.WebhookSecret,
			Environment:   cfg.Creem.Environment,
		})
		if err != nil {
			return nil, err
		}
		available = append(available, adapter)
	} else {
		log.Info("creem not configured, skipping")
	}

	registry, err := adapters.NewRegistry(cfg.DefaultPaymentProvider, available...)
	if err != nil {
		return nil, err
	}

	log.Info("payment providers registered",
		zap.Strings("providers", registry.Providers()),
		zap.String("default", cfg.DefaultPaymentProvider),
	)
	return registry, nil
}
