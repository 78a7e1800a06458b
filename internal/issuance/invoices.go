package issuance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
	"github.com/safar/dealership/internal/numbering"
	"github.com/shopspring/decimal"
)

type InvoiceStore interface {
	References
	GetContract(ctx context.Context, id int64) (*models.Contract, error)
	GetContractsForVehicle(ctx context.Context, vehicleID int64) ([]models.Contract, error)
	CreateInvoice(ctx context.Context, inv models.Invoice) (*models.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*models.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, from, to models.InvoiceStatus) error
	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error)
}

// InvoiceRequest describes an invoice to issue. When ContractID is set the
// contract fills every field left empty: buyer, vehicle, amounts, tax rate
// and payment method. The link is for inheritance only.
type InvoiceRequest struct {
	CompanyID     int64                `json:"company_id"`
	ContractID    *int64               `json:"contract_id,omitempty"`
	VehicleID     *int64               `json:"vehicle_id,omitempty"`
	BuyerID       int64                `json:"buyer_id"`
	IssueDate     time.Time            `json:"issue_date"`
	DueDate       time.Time            `json:"due_date"`
	Concept       string               `json:"concept"`
	BaseAmount    decimal.Decimal      `json:"base_amount"`
	Discount      decimal.Decimal      `json:"discount"`
	TaxRate       *finance.TaxRate     `json:"tax_rate,omitempty"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes,omitempty"`
}

type InvoiceOptions struct {
	DueDays        int
	DefaultTaxRate finance.TaxRate
	Now            func() time.Time
}

type InvoiceService struct {
	store     InvoiceStore
	numbers   Numberer
	projector *document.Projector
	opts      InvoiceOptions
	log       zerolog.Logger
}

func NewInvoiceService(store InvoiceStore, numbers Numberer, projector *document.Projector, opts InvoiceOptions, log zerolog.Logger) *InvoiceService {
	if opts.DueDays <= 0 {
		opts.DueDays = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &InvoiceService{
		store:     store,
		numbers:   numbers,
		projector: projector,
		opts:      opts,
		log:       log.With().Str("component", "invoices").Logger(),
	}
}

func (s *InvoiceService) today() time.Time {
	y, m, d := s.opts.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *InvoiceService) Create(ctx context.Context, req InvoiceRequest) (*models.Invoice, error) {
	inv := models.Invoice{
		IssueDate:     req.IssueDate,
		DueDate:       req.DueDate,
		ContractID:    req.ContractID,
		VehicleID:     req.VehicleID,
		BuyerID:       req.BuyerID,
		Concept:       strings.TrimSpace(req.Concept),
		BaseAmount:    req.BaseAmount,
		Discount:      req.Discount,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Status:        models.InvoicePending,
	}

	rate := s.opts.DefaultTaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}

	if req.ContractID != nil {
		c, err := s.store.GetContract(ctx, *req.ContractID)
		if err != nil {
			return nil, lookupError("contract_id", "load contract", err)
		}
		inherit(&inv, c)
		if req.TaxRate == nil {
			rate = c.TaxRate
		}
		if req.CompanyID == 0 {
			inv.Company = c.Company
		}
	}

	if req.CompanyID != 0 {
		company, err := s.store.GetCompany(ctx, req.CompanyID)
		if err != nil {
			return nil, lookupError("company_id", "load company", err)
		}
		inv.Company = company.Snapshot()
	}
	if inv.Buyer.FullName == "" && inv.BuyerID != 0 {
		buyer, err := s.store.GetPerson(ctx, inv.BuyerID)
		if err != nil {
			return nil, lookupError("buyer_id", "load buyer", err)
		}
		inv.Buyer = buyer.Snapshot()
	}
	if inv.VehicleDescription == "" && inv.VehicleID != nil {
		vehicle, err := s.store.GetVehicle(ctx, *inv.VehicleID)
		if err != nil {
			return nil, lookupError("vehicle_id", "load vehicle", err)
		}
		inv.VehicleDescription = vehicle.Snapshot().Description()
	}

	if inv.IssueDate.IsZero() {
		inv.IssueDate = s.today()
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 0, s.opts.DueDays)
	}
	if inv.Concept == "" && inv.VehicleDescription != "" {
		inv.Concept = "Sale of vehicle " + inv.VehicleDescription
	}

	if err := validateInvoice(inv, rate); err != nil {
		return nil, err
	}

	fig := finance.Invoice(inv.BaseAmount, inv.Discount, rate)
	inv.TaxRate, inv.TaxAmount, inv.Total = fig.TaxRate, fig.TaxAmount, fig.Total

	var saved *models.Invoice
	_, err := s.numbers.Issue(ctx, numbering.ScopeInvoice, func(ctx context.Context, number string) error {
		inv.Number = number
		out, err := s.store.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		saved = out
		return nil
	})
	if err != nil {
		return nil, apperr.Persistence("create invoice", err)
	}

	s.log.Info().
		Str("number", saved.Number).
		Int64("invoice_id", saved.ID).
		Str("total", saved.Total.String()).
		Str("tax_rate", saved.TaxRate.Label()).
		Msg("invoice created")
	return saved, nil
}

// inherit copies contract facts into fields the request left empty.
func inherit(inv *models.Invoice, c *models.Contract) {
	if inv.BuyerID == 0 || inv.BuyerID == c.BuyerID {
		inv.BuyerID = c.BuyerID
		inv.Buyer = c.Buyer
	}
	if inv.VehicleID == nil {
		vid := c.VehicleID
		inv.VehicleID = &vid
	}
	if *inv.VehicleID == c.VehicleID {
		inv.VehicleDescription = c.Vehicle.Description()
	}
	if inv.BaseAmount.IsZero() {
		inv.BaseAmount = c.PriceExclTax
	}
	if inv.PaymentMethod == "" {
		inv.PaymentMethod = c.PaymentMethod
	}
}

// PrefillFromVehicle drafts an invoice request for a vehicle from its most
// recent contract that is not cancelled. Nothing is written.
func (s *InvoiceService) PrefillFromVehicle(ctx context.Context, vehicleID int64) (InvoiceRequest, error) {
	contracts, err := s.store.GetContractsForVehicle(ctx, vehicleID)
	if err != nil {
		return InvoiceRequest{}, apperr.Persistence("load contracts", err)
	}

	live := contracts[:0:0]
	for _, c := range contracts {
		if c.Status != models.ContractCancelled {
			live = append(live, c)
		}
	}
	if len(live) > 0 {
		sort.Slice(live, func(i, j int) bool { return live[i].ID > live[j].ID })
		c := live[0]
		id, vid, rate := c.ID, c.VehicleID, c.TaxRate
		return InvoiceRequest{
			ContractID:    &id,
			VehicleID:     &vid,
			BuyerID:       c.BuyerID,
			Concept:       "Sale of vehicle " + c.Vehicle.Description(),
			BaseAmount:    c.PriceExclTax,
			TaxRate:       &rate,
			PaymentMethod: c.PaymentMethod,
		}, nil
	}

	vehicle, err := s.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return InvoiceRequest{}, lookupError("vehicle_id", "load vehicle", err)
	}
	rate := s.opts.DefaultTaxRate
	return InvoiceRequest{
		VehicleID: &vehicle.ID,
		Concept:   "Sale of vehicle " + vehicle.Snapshot().Description(),
		BaseAmount: finance.FinalPrice(finance.Pricing{
			ListPrice: vehicle.ListPrice,
			Discount:  vehicle.Discount,
		}),
		TaxRate: &rate,
	}, nil
}

func (s *InvoiceService) Get(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := s.store.GetInvoice(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("load invoice", err)
	}
	return inv, nil
}

func (s *InvoiceService) MarkPaid(ctx context.Context, id int64) (*models.Invoice, error) {
	return s.move(ctx, id, models.InvoicePaid, models.InvoicePending, models.InvoiceOverdue)
}

func (s *InvoiceService) Cancel(ctx context.Context, id int64) (*models.Invoice, error) {
	return s.move(ctx, id, models.InvoiceCancelled, models.InvoicePending, models.InvoiceOverdue)
}

// RefreshOverdue marks pending invoices past their due date as overdue.
func (s *InvoiceService) RefreshOverdue(ctx context.Context) (int64, error) {
	n, err := s.store.MarkOverdueInvoices(ctx, s.today())
	if err != nil {
		return 0, apperr.Persistence("mark overdue invoices", err)
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("invoices marked overdue")
	}
	return n, nil
}

func (s *InvoiceService) move(ctx context.Context, id int64, to models.InvoiceStatus, allowed ...models.InvoiceStatus) (*models.Invoice, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !containsStatus(allowed, inv.Status) {
		return nil, apperr.NewValidationError("status", "cannot_move_"+string(inv.Status)+"_to_"+string(to))
	}
	if err := s.store.UpdateInvoiceStatus(ctx, id, inv.Status, to); err != nil {
		return nil, apperr.Persistence("update invoice status", err)
	}
	s.log.Info().Str("number", inv.Number).Str("from", string(inv.Status)).Str("to", string(to)).Msg("invoice status changed")
	inv.Status = to
	return inv, nil
}

// Render regenerates the invoice document from the stored row.
func (s *InvoiceService) Render(ctx context.Context, id int64) (*document.Artifact, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.projector.RenderInvoice(ctx, *inv)
}

func validateInvoice(inv models.Invoice, rate finance.TaxRate) error {
	v := apperr.Violations{}
	if inv.Company.LegalName == "" {
		v.Add("company_id", "required")
	}
	if err := validateBuyer(inv.Buyer); err != nil {
		mergeViolations(v, "", err)
	}
	if inv.Concept == "" {
		v.Add("concept", "required")
	}
	if !inv.PaymentMethod.Valid() {
		v.Add("payment_method", "invalid")
	}
	if inv.DueDate.Before(inv.IssueDate) {
		v.Add("due_date", "before_issue_date")
	}
	if err := finance.ValidateInvoice(inv.BaseAmount, inv.Discount, rate); err != nil {
		mergeViolations(v, "", err)
	}
	if !inv.BaseAmount.IsPositive() {
		v.Add("base_amount", "required")
	}
	return v.Err()
}
