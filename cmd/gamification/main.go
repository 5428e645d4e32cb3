package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"minepool-gamification/pkg/config"
	"minepool-gamification/pkg/db"
	"minepool-gamification/pkg/logger"
	"minepool-gamification/pkg/redis"
	"minepool-gamification/pkg/task"
	"minepool-gamification/services/badge"
	"minepool-gamification/services/intake"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/notify"
	"minepool-gamification/services/schedule"
	"minepool-gamification/services/streak"
	"minepool-gamification/services/trigger"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		task.Server,
		fx.Provide(provideSnowflakeNode),
		notify.Module,
		badge.Module,
		ledger.Module,
		trigger.Module,
		streak.Module,
		intake.Module,
		schedule.Module,
		fx.Invoke(migrate),
		fx.Invoke(db.Otel, db.Metric),
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

func migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&ledger.XPEntry{},
		&ledger.UserProjection{},
		&badge.Definition{},
		&badge.Award{},
		&streak.WeekRecord{},
	)
}
