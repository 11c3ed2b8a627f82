package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/strataops/ledgerline/internal/billingcycle"
	"github.com/strataops/ledgerline/internal/cache"
	"github.com/strataops/ledgerline/internal/clock"
	"github.com/strataops/ledgerline/internal/config"
	"github.com/strataops/ledgerline/internal/invoice"
	"github.com/strataops/ledgerline/internal/logger"
	"github.com/strataops/ledgerline/internal/migration"
	"github.com/strataops/ledgerline/internal/observability"
	"github.com/strataops/ledgerline/internal/payment"
	"github.com/strataops/ledgerline/internal/pricing"
	"github.com/strataops/ledgerline/internal/providers"
	"github.com/strataops/ledgerline/internal/reminder"
	"github.com/strataops/ledgerline/internal/scheduler"
	"github.com/strataops/ledgerline/internal/server"
	"github.com/strataops/ledgerline/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		clock.Module,
		cache.Module,
		providers.Module,

		// Billing domains
		pricing.Module,
		invoice.Module,
		payment.Module,
		reminder.Module,
		billingcycle.Module,

		// Background jobs and HTTP surface
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func newSnowflakeNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
