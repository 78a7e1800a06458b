package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/dealership/internal/config"
	"github.com/safar/dealership/internal/logger"
	"github.com/safar/dealership/internal/store"
	"github.com/spf13/cobra"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or revert the embedded schema migrations",
		Example:   "  dealerctl migrate up\n  dealerctl migrate down",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(store.Up), string(store.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := store.ParseDirection(args[0])
			if err != nil {
				return err
			}
			return withDB(cmd, cfg, func(ctx context.Context, db *sql.DB) error {
				ran, err := store.Migrate(ctx, db, dir, logger.WithComponent("migrate"))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ran %d migration(s) %s\n", ran, dir)
				return nil
			})
		},
	}
}
