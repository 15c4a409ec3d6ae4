package pricing

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ErrItemNotFound = errors.New("pricing: item not found")

// Item is a purchasable entry from the pricing catalog. Amounts are in the
// currency's smallest unit.
type Item struct {
	ProductID   string `mapstructure:"product_id"`
	ProductName string `mapstructure:"product_name"`
	Description string `mapstructure:"description"`
	Amount      int64  `mapstructure:"amount"`
	Currency    string `mapstructure:"currency"`

	// Interval is empty for one-time purchases, otherwise "month" or "year".
	Interval      string `mapstructure:"interval"`
	IntervalCount int64  `mapstructure:"interval_count"`
	TrialDays     int64  `mapstructure:"trial_days"`

	PlanName  string `mapstructure:"plan_name"`
	Credits   int64  `mapstructure:"credits"`
	ValidDays int64  `mapstructure:"valid_days"`

	// ProviderProductIDs maps a payment provider to its native product or
	// price identifier, for providers that require pre-created catalog
	// objects.
	ProviderProductIDs map[string]string `mapstructure:"provider_product_ids"`
}

// IsSubscription reports whether the item bills on a recurring interval.
func (i Item) IsSubscription() bool {
	return strings.TrimSpace(i.Interval) != ""
}

// Catalog holds the pricing items and supports hot reload of the backing
// file without restarting checkout.
type Catalog struct {
	current atomic.Value // holds []Item
}

// NewCatalog loads the pricing catalog from pricing.yml in the given search
// paths and watches it for changes.
func NewCatalog(paths []string, log *zap.Logger) (*Catalog, error) {
	v := viper.New()
	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("pricing: read catalog: %w", err)
	}

	items, err := unmarshalItems(v)
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	catalog.current.Store(items)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalItems(v)
		if err != nil {
			log.Warn("pricing catalog reload ignored", zap.Error(err), zap.String("file", e.Name))
			return
		}
		catalog.current.Store(updated)
		log.Info("pricing catalog reloaded", zap.String("file", e.Name), zap.Int("items", len(updated)))
	})

	log.Info("pricing catalog loaded", zap.String("file", v.ConfigFileUsed()), zap.Int("items", len(items)))
	return catalog, nil
}

func unmarshalItems(v *viper.Viper) ([]Item, error) {
	var items []Item
	if err := v.UnmarshalKey("items", &items); err != nil {
		return nil, fmt.Errorf("pricing: unmarshal catalog: %w", err)
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return errors.New("pricing: items cannot be empty")
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return errors.New("pricing: item missing product_id")
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("pricing: duplicate product_id %q", id)
		}
		seen[id] = struct{}{}
		if item.Amount < 0 {
			return fmt.Errorf("pricing: item %q has negative amount", id)
		}
		if strings.TrimSpace(item.Currency) == "" {
			return fmt.Errorf("pricing: item %q missing currency", id)
		}
		if item.IsSubscription() && item.Credits > 0 && item.ValidDays <= 0 {
			return fmt.Errorf("pricing: item %q grants credits without valid_days", id)
		}
	}
	return nil
}

// Items returns the current catalog snapshot.
func (c *Catalog) Items() []Item {
	return c.current.Load().([]Item)
}

// Find returns the item with the given product id.
func (c *Catalog) Find(productID string) (Item, error) {
	productID = strings.TrimSpace(productID)
	for _, item := range c.Items() {
		if item.ProductID == productID {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}
