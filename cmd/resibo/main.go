package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/resibo-ph/resibo/internal/clock"
	"github.com/resibo-ph/resibo/internal/migration"
	"github.com/resibo-ph/resibo/internal/observability"
	"github.com/resibo-ph/resibo/internal/server"
	"github.com/resibo-ph/resibo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
