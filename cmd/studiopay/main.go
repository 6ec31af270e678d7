package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"studiopay/internal/config"
	"studiopay/internal/httpapi"
	"studiopay/internal/logger"
	"studiopay/internal/server"
	"studiopay/pkg/db"
	"studiopay/pkg/task"
	"studiopay/services/audit"
	"studiopay/services/bonus"
	"studiopay/services/catalog"
	"studiopay/services/payout"
	"studiopay/services/wallet"
	"studiopay/services/withdrawal"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		task.Client,
		fx.Provide(provideSnowflakeNode),
		catalog.Module,
		bonus.Module,
		audit.Module,
		wallet.Module,
		payout.Module,
		withdrawal.Module,
		httpapi.Module,
		server.Module,
		fx.Invoke(migrate, db.Otel, db.Metric),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&catalog.TierRate{},
		&catalog.SkuConfig{},
		&bonus.BonusRule{},
		&payout.Editor{},
		&payout.Project{},
		&payout.ProjectEditor{},
		&payout.Milestone{},
		&payout.PayoutBreakdown{},
		&wallet.Wallet{},
		&withdrawal.PayoutRequest{},
		&audit.Entry{},
	)
}
