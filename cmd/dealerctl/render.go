package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/safar/dealership/internal/app"
	"github.com/safar/dealership/internal/config"
	"github.com/safar/dealership/internal/document"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	outDir string
}

func newRenderCmd(cfg *config.Config) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a stored contract, invoice or sale sheet to PDF",
		Long: `Render regenerates a document from the stored row and writes it as
<Kind>_<reference>_<date>.pdf into the output directory. Rendering the same
row twice produces the same bytes.`,
	}
	cmd.PersistentFlags().StringVarP(&opts.outDir, "output", "o", cfg.Documents.OutputDir, "directory to write the PDF into")

	cmd.AddCommand(
		&cobra.Command{
			Use:     "contract [id]",
			Short:   "Render a contract",
			Example: "  dealerctl render contract 42 -o ./out",
			Args:    cobra.ExactArgs(1),
			RunE: renderByID(cfg, opts, func(ctx context.Context, svc *app.Services, id int64) (*document.Artifact, error) {
				return svc.Contracts.Render(ctx, id)
			}),
		},
		&cobra.Command{
			Use:   "invoice [id]",
			Short: "Render an invoice",
			Args:  cobra.ExactArgs(1),
			RunE: renderByID(cfg, opts, func(ctx context.Context, svc *app.Services, id int64) (*document.Artifact, error) {
				return svc.Invoices.Render(ctx, id)
			}),
		},
		newRenderSaleCmd(cfg, opts),
	)
	return cmd
}

func newRenderSaleCmd(cfg *config.Config, opts *renderOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "sale [sale-record-id]",
		Short:   "Render the internal sale sheet of a closed sale",
		Example: "  dealerctl render sale 7",
		Args:    cobra.ExactArgs(1),
		RunE: renderByID(cfg, opts, func(ctx context.Context, svc *app.Services, id int64) (*document.Artifact, error) {
			return svc.Sales.Render(ctx, id)
		}),
	}
}

func renderByID(cfg *config.Config, opts *renderOptions, render func(context.Context, *app.Services, int64) (*document.Artifact, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid id %q", args[0])
		}

		return withServices(cmd, cfg, func(ctx context.Context, svc *app.Services) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.Documents.RenderTimeout)
			defer cancel()

			a, err := render(ctx, svc, id)
			if err != nil {
				return err
			}
			path, err := a.Save(opts.outDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d page(s))\n", path, a.Pages)
			return nil
		})
	}
}
