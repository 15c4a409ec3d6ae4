package order

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/payflow/internal/order/repository"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
)
