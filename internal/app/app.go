// Package app assembles the services both binaries run on top of one
// database connection.
package app

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/config"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/issuance"
	"github.com/safar/dealership/internal/numbering"
	"github.com/safar/dealership/internal/opportunity"
	"github.com/safar/dealership/internal/store"
)

type Services struct {
	Store     *store.Store
	Numbers   *numbering.Service
	Machine   *opportunity.Machine
	Projector *document.Projector
	Contracts *issuance.ContractService
	Invoices  *issuance.InvoiceService
	Sales     *issuance.SaleService
}

func New(cfg *config.Config, db *sql.DB, log zerolog.Logger) (*Services, error) {
	defaultRate, err := finance.RateFromString(cfg.Documents.DefaultTaxPercent)
	if err != nil {
		return nil, fmt.Errorf("DOCUMENTS_DEFAULT_TAX_PERCENT: %w", err)
	}
	if err := finance.ValidateTaxRate(defaultRate); err != nil {
		return nil, fmt.Errorf("DOCUMENTS_DEFAULT_TAX_PERCENT: %w", err)
	}

	st := store.New(db)
	numbers := numbering.New(st, numbering.Options{
		ContractPrefix: cfg.Numbering.ContractPrefix,
		InvoicePrefix:  cfg.Numbering.InvoicePrefix,
		MaxAttempts:    cfg.Numbering.MaxAttempts,
		BaseBackoff:    cfg.Numbering.BaseBackoff,
	}, log)

	format := document.NewFormatter(
		cfg.Documents.DecimalSeparator,
		cfg.Documents.ThousandsSep,
		cfg.Documents.CurrencySymbol,
	)
	projector := document.NewProjector(document.NewPDFRenderer(), format, log)

	return &Services{
		Store:     st,
		Numbers:   numbers,
		Machine:   opportunity.NewMachine(st, log),
		Projector: projector,
		Contracts: issuance.NewContractService(st, numbers, projector, issuance.ContractOptions{
			DefaultTaxRate: defaultRate,
		}, log),
		Invoices: issuance.NewInvoiceService(st, numbers, projector, issuance.InvoiceOptions{
			DueDays:        cfg.Documents.InvoiceDueDays,
			DefaultTaxRate: defaultRate,
		}, log),
		Sales: issuance.NewSaleService(st, projector),
	}, nil
}
