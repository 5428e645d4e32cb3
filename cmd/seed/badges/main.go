package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"minepool-gamification/pkg/config"
	"minepool-gamification/pkg/db"
	"minepool-gamification/pkg/logger"
	"minepool-gamification/services/badge"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		fx.Provide(badge.NewService),
		fx.Invoke(seedCatalog),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

func seedCatalog(lc fx.Lifecycle, gdb *gorm.DB, svc *badge.Service, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := gdb.AutoMigrate(&badge.Definition{}); err != nil {
				return err
			}
			if err := svc.Seed(ctx); err != nil {
				zap.L().Error("badge catalog seed failed", zap.Error(err))
				return err
			}
			return shutdowner.Shutdown()
		},
	})
}
