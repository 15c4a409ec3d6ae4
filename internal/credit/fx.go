package credit

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/payflow/internal/credit/repository"
)

var Module = fx.Module("credit",
	fx.Provide(repository.Provide),
)
