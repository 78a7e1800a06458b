package main

import (
	"context"
	"fmt"

	"github.com/safar/dealership/internal/app"
	"github.com/safar/dealership/internal/config"
	"github.com/spf13/cobra"
)

func newInvoicesCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Invoice maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh-overdue",
		Short: "Mark pending invoices past their due date as overdue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, cfg, func(ctx context.Context, svc *app.Services) error {
				n, err := svc.Invoices.RefreshOverdue(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d invoice(s) marked overdue\n", n)
				return nil
			})
		},
	})
	return cmd
}
