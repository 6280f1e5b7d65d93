package migration

import (
	"context"

	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module migrates the schema and bootstraps the plan catalog before the server starts.
var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, plans *config.PlanCatalogHolder, log *zap.Logger) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		if err := seed.EnsurePlans(context.Background(), conn, plans.Get()); err != nil {
			return err
		}
		log.Named("migration").Info("schema ready")
		return nil
	}),
)
