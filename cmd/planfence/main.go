package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/planfence/planfence/internal/assignment"
	"github.com/planfence/planfence/internal/callback"
	"github.com/planfence/planfence/internal/clock"
	"github.com/planfence/planfence/internal/config"
	"github.com/planfence/planfence/internal/enforcement"
	"github.com/planfence/planfence/internal/logger"
	"github.com/planfence/planfence/internal/migration"
	"github.com/planfence/planfence/internal/observability"
	"github.com/planfence/planfence/internal/period"
	"github.com/planfence/planfence/internal/plan"
	"github.com/planfence/planfence/internal/ratelimit"
	"github.com/planfence/planfence/internal/server"
	"github.com/planfence/planfence/internal/subscription"
	"github.com/planfence/planfence/internal/usage"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
	"github.com/planfence/planfence/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		plan.Module,
		callback.Module,
		fx.Provide(usagedomain.NewRegistry),
		subscription.Module,
		period.Module,
		usage.Module,
		enforcement.Module,
		assignment.Module,
		ratelimit.Module,
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
