package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"studiopay/internal/config"
	"studiopay/internal/logger"
	"studiopay/pkg/db"
	"studiopay/pkg/task"
	"studiopay/services/audit"
	"studiopay/services/bonus"
	"studiopay/services/catalog"
	"studiopay/services/payout"
	"studiopay/services/wallet"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(provideSnowflakeNode),
		catalog.Module,
		bonus.Module,
		audit.Module,
		wallet.Module,
		payout.Module,
		task.Server,
		fx.Invoke(registerHandlers),
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

func registerHandlers(mux *asynq.ServeMux, h *payout.TaskHandler) {
	mux.HandleFunc(payout.TaskProjectPayoutUnlock, h.HandleProjectPayoutUnlock)
}
