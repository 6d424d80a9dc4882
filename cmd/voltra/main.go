package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/voltra-energy/voltra/internal/block"
	"github.com/voltra-energy/voltra/internal/catalog"
	"github.com/voltra-energy/voltra/internal/clock"
	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/idempotency"
	"github.com/voltra-energy/voltra/internal/logger"
	"github.com/voltra-energy/voltra/internal/metrics"
	"github.com/voltra-energy/voltra/internal/migration"
	"github.com/voltra-energy/voltra/internal/order"
	"github.com/voltra-energy/voltra/internal/party"
	"github.com/voltra-energy/voltra/internal/protocol"
	"github.com/voltra-energy/voltra/internal/server"
	"github.com/voltra-energy/voltra/internal/trust"
	"github.com/voltra-energy/voltra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		// Trading domains
		trust.Module,
		block.Module,
		catalog.Module,
		order.Module,
		party.Module,
		idempotency.Module,
		protocol.Module,

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
