package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/smallbiznis/payflow/internal/auth"
	"github.com/smallbiznis/payflow/internal/checkout"
	"github.com/smallbiznis/payflow/internal/config"
	"github.com/smallbiznis/payflow/internal/credit"
	"github.com/smallbiznis/payflow/internal/migration"
	"github.com/smallbiznis/payflow/internal/observability"
	"github.com/smallbiznis/payflow/internal/order"
	"github.com/smallbiznis/payflow/internal/payment"
	"github.com/smallbiznis/payflow/internal/pricing"
	"github.com/smallbiznis/payflow/internal/server"
	"github.com/smallbiznis/payflow/internal/subscription"
	"github.com/smallbiznis/payflow/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		auth.Module,
		pricing.Module,
		order.Module,
		subscription.Module,
		credit.Module,
		payment.Module,
		checkout.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
