package pricing

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/payflow/internal/config"
)

// Module provides the pricing catalog.
var Module = fx.Module("pricing",
	fx.Provide(newCatalogFromConfig),
)

func newCatalogFromConfig(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	paths := []string{"."}
	if p := strings.TrimSpace(cfg.PricingPath); p != "" {
		paths = append([]string{p}, paths...)
	}
	return NewCatalog(paths, log.Named("pricing"))
}
