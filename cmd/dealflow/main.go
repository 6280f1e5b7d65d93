package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/dealflow/internal/clock"
	"github.com/smallbiznis/dealflow/internal/config"
	"github.com/smallbiznis/dealflow/internal/migration"
	"github.com/smallbiznis/dealflow/internal/observability"
	"github.com/smallbiznis/dealflow/internal/scheduler"
	"github.com/smallbiznis/dealflow/internal/seed"
	"github.com/smallbiznis/dealflow/internal/server"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "dealflow",
	Short:        "dealflow is a multi-tenant sales pipeline API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations, then serve the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			config.Module,
			observability.Module,
			fx.Provide(RegisterSnowflake),
			db.Module,
			clock.Module,
			migration.Module,
			server.Module,
			scheduler.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the plan catalog, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), migration.Module)
	},
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Manage the subscription plan catalog",
}

var plansSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert the configured plan catalog into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context(), fx.Invoke(func(conn *gorm.DB, plans *config.PlanCatalogHolder, log *zap.Logger) error {
			catalog := plans.Get()
			if err := seed.EnsurePlans(context.Background(), conn, catalog); err != nil {
				return err
			}
			log.Info("plan catalog synced", zap.Int("plans", len(catalog.Plans)))
			return nil
		}))
	},
}

func init() {
	plansCmd.AddCommand(plansSyncCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, plansCmd)
}

// runOnce boots the infrastructure modules plus opts, lets the invokes run and
// shuts down again.
func runOnce(ctx context.Context, opts ...fx.Option) error {
	if ctx == nil {
		ctx = context.Background()
	}
	app := fx.New(append([]fx.Option{
		config.Module,
		observability.Module,
		db.Module,
		fx.NopLogger,
	}, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, cancelStop := context.WithTimeout(ctx, 10*time.Second)
	defer cancelStop()
	return app.Stop(stopCtx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
