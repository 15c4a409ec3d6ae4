package checkout

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/payflow/internal/checkout/service"
)

var Module = fx.Module("checkout",
	fx.Provide(service.NewService),
)
