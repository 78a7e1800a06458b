package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	"github.com/safar/dealership/internal/app"
	"github.com/safar/dealership/internal/config"
	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/logger"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "dealerctl",
		Short: "Operate the dealership database and regenerate documents",
		Long: `dealerctl runs schema migrations and renders contracts, invoices and
sale sheets from the rows already stored in the database.

Connection and document settings are read from the environment (and a .env
file when present), the same variables the API server uses.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(cfg),
		newRenderCmd(cfg),
		newInvoicesCmd(cfg),
	)
	return root
}

// withDB opens the database for the duration of one command. The context
// ends on SIGINT or SIGTERM.
func withDB(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &cfg.Database, logger.WithComponent("database"))
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db)
}

func withServices(cmd *cobra.Command, cfg *config.Config, fn func(ctx context.Context, svc *app.Services) error) error {
	return withDB(cmd, cfg, func(ctx context.Context, db *sql.DB) error {
		svc, err := app.New(cfg, db, logger.WithComponent("dealerctl"))
		if err != nil {
			return err
		}
		return fn(ctx, svc)
	})
}
