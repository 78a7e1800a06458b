// Package issuance creates numbered contracts and invoices.
//
// A document number is allocated only once a request has passed validation
// and every referenced record has been loaded, immediately before the insert.
// A request abandoned earlier consumes nothing.
package issuance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
	"github.com/safar/dealership/internal/numbering"
	"github.com/shopspring/decimal"
)

// Numberer allocates a number and retries persist when the number is taken.
type Numberer interface {
	Issue(ctx context.Context, scope numbering.Scope, persist func(ctx context.Context, number string) error) (string, error)
}

// References are the read-only records documents take snapshots of.
type References interface {
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
}

type ContractStore interface {
	References
	GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error)
	CreateContract(ctx context.Context, c models.Contract) (*models.Contract, error)
	GetContract(ctx context.Context, id int64) (*models.Contract, error)
	UpdateContractStatus(ctx context.Context, id int64, from, to models.ContractStatus) error
}

// ContractRequest describes a contract to issue. PriceExclTax defaults to the
// sale record's final price when zero. A nil TaxRate takes the configured
// default; an exempt contract must say "not_applicable".
type ContractRequest struct {
	CompanyID         int64                `json:"company_id"`
	BuyerID           int64                `json:"buyer_id"`
	VehicleID         int64                `json:"vehicle_id"`
	SaleRecordID      *int64               `json:"sale_record_id,omitempty"`
	PriceExclTax      decimal.Decimal      `json:"price_excl_tax"`
	TaxRate           *finance.TaxRate     `json:"tax_rate,omitempty"`
	PaymentMethod     models.PaymentMethod `json:"payment_method"`
	Warranty          models.Warranty      `json:"warranty"`
	SignedOn          time.Time            `json:"signed_on"`
	SignedPlace       string               `json:"signed_place"`
	Documentation     models.Checklist     `json:"documentation,omitempty"`
	AdditionalClauses string               `json:"additional_clauses,omitempty"`
	Notes             string               `json:"notes,omitempty"`
}

type ContractOptions struct {
	DefaultTaxRate finance.TaxRate
}

type ContractService struct {
	store     ContractStore
	numbers   Numberer
	projector *document.Projector
	opts      ContractOptions
	log       zerolog.Logger
}

func NewContractService(store ContractStore, numbers Numberer, projector *document.Projector, opts ContractOptions, log zerolog.Logger) *ContractService {
	return &ContractService{
		store:     store,
		numbers:   numbers,
		projector: projector,
		opts:      opts,
		log:       log.With().Str("component", "contracts").Logger(),
	}
}

func (s *ContractService) Create(ctx context.Context, req ContractRequest) (*models.Contract, error) {
	rate := s.opts.DefaultTaxRate
	if req.TaxRate != nil {
		rate = *req.TaxRate
	}
	if err := validateContractRequest(req, rate); err != nil {
		return nil, err
	}

	company, err := s.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, lookupError("company_id", "load company", err)
	}
	buyer, err := s.store.GetPerson(ctx, req.BuyerID)
	if err != nil {
		return nil, lookupError("buyer_id", "load buyer", err)
	}
	if err := validateBuyer(buyer.Snapshot()); err != nil {
		return nil, err
	}
	vehicle, err := s.store.GetVehicle(ctx, req.VehicleID)
	if err != nil {
		return nil, lookupError("vehicle_id", "load vehicle", err)
	}

	price := req.PriceExclTax
	if req.SaleRecordID != nil {
		sale, err := s.store.GetSaleRecord(ctx, *req.SaleRecordID)
		if err != nil {
			return nil, lookupError("sale_record_id", "load sale record", err)
		}
		if sale.VehicleID != vehicle.ID {
			return nil, apperr.NewValidationError("sale_record_id", "different_vehicle")
		}
		if price.IsZero() {
			price = sale.FinalPrice
		}
	}
	if !price.IsPositive() {
		return nil, apperr.NewValidationError("price_excl_tax", "required")
	}

	docs := req.Documentation
	if len(docs) == 0 {
		docs = models.DefaultDocumentation()
	}

	terms := finance.Contract(price, rate)
	c := models.Contract{
		VehicleID:         vehicle.ID,
		BuyerID:           buyer.ID,
		SaleRecordID:      req.SaleRecordID,
		Company:           company.Snapshot(),
		Buyer:             buyer.Snapshot(),
		Vehicle:           vehicle.Snapshot(),
		PriceExclTax:      terms.PriceExclTax,
		TaxRate:           terms.TaxRate,
		TaxAmount:         terms.TaxAmount,
		Total:             terms.Total,
		PaymentMethod:     req.PaymentMethod,
		Warranty:          req.Warranty,
		SignedOn:          req.SignedOn,
		SignedPlace:       strings.TrimSpace(req.SignedPlace),
		Documentation:     docs,
		AdditionalClauses: req.AdditionalClauses,
		Notes:             req.Notes,
		Status:            models.ContractDraft,
	}

	var saved *models.Contract
	_, err = s.numbers.Issue(ctx, numbering.ScopeContract, func(ctx context.Context, number string) error {
		c.Number = number
		out, err := s.store.CreateContract(ctx, c)
		if err != nil {
			return err
		}
		saved = out
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNumberingConflict) {
			s.log.Warn().Err(err).Int64("vehicle_id", vehicle.ID).Msg("contract not created")
		}
		return nil, apperr.Persistence("create contract", err)
	}

	s.log.Info().
		Str("number", saved.Number).
		Int64("contract_id", saved.ID).
		Int64("vehicle_id", saved.VehicleID).
		Str("total", saved.Total.String()).
		Msg("contract created")
	return saved, nil
}

func (s *ContractService) Get(ctx context.Context, id int64) (*models.Contract, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("load contract", err)
	}
	return c, nil
}

func (s *ContractService) Sign(ctx context.Context, id int64) (*models.Contract, error) {
	return s.move(ctx, id, models.ContractSigned, models.ContractDraft)
}

func (s *ContractService) Cancel(ctx context.Context, id int64) (*models.Contract, error) {
	return s.move(ctx, id, models.ContractCancelled, models.ContractDraft, models.ContractSigned)
}

func (s *ContractService) move(ctx context.Context, id int64, to models.ContractStatus, allowed ...models.ContractStatus) (*models.Contract, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !containsStatus(allowed, c.Status) {
		return nil, apperr.NewValidationError("status", "cannot_move_"+string(c.Status)+"_to_"+string(to))
	}
	if err := s.store.UpdateContractStatus(ctx, id, c.Status, to); err != nil {
		return nil, apperr.Persistence("update contract status", err)
	}
	s.log.Info().Str("number", c.Number).Str("from", string(c.Status)).Str("to", string(to)).Msg("contract status changed")
	c.Status = to
	return c, nil
}

// Render regenerates the contract document from the stored row.
func (s *ContractService) Render(ctx context.Context, id int64) (*document.Artifact, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.projector.RenderContract(ctx, *c)
}

func validateContractRequest(req ContractRequest, rate finance.TaxRate) error {
	v := apperr.Violations{}
	if req.CompanyID == 0 {
		v.Add("company_id", "required")
	}
	if req.BuyerID == 0 {
		v.Add("buyer_id", "required")
	}
	if req.VehicleID == 0 {
		v.Add("vehicle_id", "required")
	}
	if !req.PaymentMethod.Valid() {
		v.Add("payment_method", "invalid")
	}
	if req.Warranty.Months < 0 {
		v.Add("warranty.months", "must_not_be_negative")
	}
	if err := finance.ValidateContract(req.PriceExclTax, rate); err != nil {
		mergeViolations(v, "", err)
	}
	return v.Err()
}

// validateBuyer enforces the fields a numbered document cannot go without.
func validateBuyer(b models.BuyerSnapshot) error {
	v := apperr.Violations{}
	if strings.TrimSpace(b.FullName) == "" {
		v.Add("buyer.full_name", "required")
	}
	if strings.TrimSpace(b.TaxID) == "" {
		v.Add("buyer.tax_id", "required")
	}
	return v.Err()
}

func lookupError(field, op string, err error) error {
	if database.IsNotFound(err) {
		return apperr.NewValidationError(field, "not_found")
	}
	return apperr.Persistence(op, err)
}

func mergeViolations(v apperr.Violations, prefix string, err error) {
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		for field, code := range ve.Violations {
			v.Add(prefix+field, code)
		}
	}
}

func containsStatus[S ~string](set []S, s S) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
