package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/joblane/joblane/internal/clock"
	"github.com/joblane/joblane/internal/config"
	"github.com/joblane/joblane/internal/migration"
	"github.com/joblane/joblane/internal/observability"
	"github.com/joblane/joblane/internal/server"
	"github.com/joblane/joblane/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
