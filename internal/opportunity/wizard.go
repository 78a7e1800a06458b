package opportunity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
	"github.com/shopspring/decimal"
)

type Stage int

const (
	StagePricing Stage = iota
	StagePayment
	StageDelivery
	StageReview
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StagePricing:
		return "pricing"
	case StagePayment:
		return "payment"
	case StageDelivery:
		return "delivery"
	case StageReview:
		return "review"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

var ErrWrongStage = errors.New("wizard is not at that stage")

type PaymentInput struct {
	Method    models.PaymentMethod `json:"method"`
	Financing *models.Financing    `json:"financing,omitempty"`
}

// DeliveryInput closes the capture. CompanyID is the selling company the
// sale is recorded under.
type DeliveryInput struct {
	CompanyID    int64           `json:"company_id"`
	DeliveryDate time.Time       `json:"delivery_date"`
	Warranty     models.Warranty `json:"warranty"`
	Notes        string          `json:"notes,omitempty"`
}

// SaleWizard collects a sale in three stages. It holds everything in memory
// and writes nothing until Confirm.
type SaleWizard struct {
	m       *Machine
	opp     models.Opportunity
	vehicle models.Vehicle

	stage    Stage
	pricing  finance.Pricing
	payment  PaymentInput
	delivery DeliveryInput
	saved    *models.SaleRecord
}

func newSaleWizard(m *Machine, opp models.Opportunity, vehicle models.Vehicle) *SaleWizard {
	return &SaleWizard{
		m:       m,
		opp:     opp,
		vehicle: vehicle,
		stage:   StagePricing,
		pricing: finance.Pricing{
			ListPrice: vehicle.ListPrice,
			Discount:  vehicle.Discount,
		},
		payment: PaymentInput{Method: models.PaymentCash},
	}
}

func (w *SaleWizard) Stage() Stage { return w.stage }

func (w *SaleWizard) Opportunity() models.Opportunity { return w.opp }

func (w *SaleWizard) Vehicle() models.Vehicle { return w.vehicle }

func (w *SaleWizard) at(s Stage) error {
	if w.stage != s {
		return fmt.Errorf("%w: at %s, want %s", ErrWrongStage, w.stage, s)
	}
	return nil
}

// Figures recomputes the sale figures from the current inputs.
func (w *SaleWizard) Figures() finance.SaleFigures {
	return finance.Sale(w.pricing, w.vehicle.Costs())
}

// Financing returns the installment estimate for the captured financing
// detail. ok is false for cash sales.
func (w *SaleWizard) Financing() (plan finance.FinancingPlan, ok bool) {
	if !w.payment.Method.NeedsFinancing() || w.payment.Financing == nil {
		return finance.FinancingPlan{}, false
	}
	f := w.payment.Financing
	return finance.Finance(finance.FinalPrice(w.pricing), f.DownPayment, f.InstallmentCount), true
}

func (w *SaleWizard) SetPricing(p finance.Pricing) (finance.SaleFigures, error) {
	if err := w.at(StagePricing); err != nil {
		return finance.SaleFigures{}, err
	}
	if err := finance.ValidatePricing(p); err != nil {
		return finance.SaleFigures{}, err
	}
	w.pricing = p
	w.stage = StagePayment
	return w.Figures(), nil
}

func (w *SaleWizard) SetPayment(in PaymentInput) error {
	if err := w.at(StagePayment); err != nil {
		return err
	}
	if err := validatePayment(finance.FinalPrice(w.pricing), in.Method, in.Financing); err != nil {
		return err
	}
	if !in.Method.NeedsFinancing() {
		in.Financing = nil
	}
	w.payment = in
	w.stage = StageDelivery
	return nil
}

func (w *SaleWizard) SetDelivery(in DeliveryInput) error {
	if err := w.at(StageDelivery); err != nil {
		return err
	}
	if err := validateDelivery(in); err != nil {
		return err
	}
	w.delivery = in
	w.stage = StageReview
	return nil
}

// Back returns to the previous stage keeping the inputs already entered.
func (w *SaleWizard) Back() Stage {
	if w.stage > StagePricing && w.stage < StageDone {
		w.stage--
	}
	return w.stage
}

// Record is the sale record Confirm would write.
func (w *SaleWizard) Record() models.SaleRecord {
	figures := w.Figures()
	return models.SaleRecord{
		OpportunityID:      w.opp.ID,
		VehicleID:          w.vehicle.ID,
		BuyerID:            w.opp.BuyerID,
		CompanyID:          w.delivery.CompanyID,
		ListPrice:          w.pricing.ListPrice,
		Discount:           w.pricing.Discount,
		AdditionalExpenses: w.pricing.AdditionalExpenses,
		FinalPrice:         figures.FinalPrice,
		CostTotal:          figures.CostTotal,
		PaymentMethod:      w.payment.Method,
		Financing:          w.payment.Financing,
		DeliveryDate:       w.delivery.DeliveryDate,
		Warranty:           w.delivery.Warranty,
		Notes:              w.delivery.Notes,
	}
}

// Confirm closes the sale. Confirming a wizard a second time goes through
// the same guard and is rejected.
func (w *SaleWizard) Confirm(ctx context.Context) (*models.SaleRecord, error) {
	if w.stage < StageReview {
		return nil, fmt.Errorf("%w: at %s, want %s", ErrWrongStage, w.stage, StageReview)
	}
	saved, err := w.m.CloseSale(ctx, w.Record())
	if err != nil {
		return nil, err
	}
	w.saved = saved
	w.stage = StageDone
	return saved, nil
}

func validatePayment(finalPrice decimal.Decimal, method models.PaymentMethod, f *models.Financing) error {
	if !method.ForSale() {
		return apperr.NewValidationError("payment_method", "invalid")
	}
	if !method.NeedsFinancing() {
		return nil
	}
	if f == nil {
		return apperr.NewValidationError("financing", "required")
	}
	v := apperr.Violations{}
	if f.Lender == "" {
		v.Add("financing.lender", "required")
	}
	if err := finance.ValidateFinancing(finalPrice, f.DownPayment, f.InstallmentCount); err != nil {
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			for field, code := range ve.Violations {
				v.Add("financing."+field, code)
			}
		}
	}
	return v.Err()
}

func validateDelivery(in DeliveryInput) error {
	v := apperr.Violations{}
	if in.CompanyID == 0 {
		v.Add("company_id", "required")
	}
	if in.DeliveryDate.IsZero() {
		v.Add("delivery_date", "required")
	}
	w := in.Warranty
	if w.Months < 0 {
		v.Add("warranty.months", "must_not_be_negative")
	}
	if w.Extended && w.Months == 0 {
		v.Add("warranty.months", "required")
	}
	return v.Err()
}

func validateRecord(rec models.SaleRecord) error {
	if rec.OpportunityID == 0 {
		return apperr.NewValidationError("opportunity_id", "required")
	}
	if rec.VehicleID == 0 {
		return apperr.NewValidationError("vehicle_id", "required")
	}
	if err := finance.ValidatePricing(rec.Pricing()); err != nil {
		return err
	}
	if err := validatePayment(finance.FinalPrice(rec.Pricing()), rec.PaymentMethod, rec.Financing); err != nil {
		return err
	}
	return validateDelivery(DeliveryInput{
		CompanyID:    rec.CompanyID,
		DeliveryDate: rec.DeliveryDate,
		Warranty:     rec.Warranty,
	})
}
