package opportunity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
)

// ErrSaleNotCompleted wraps every failure that happens after a sale began
// to be written. Earlier writes have been undone when it is returned.
var ErrSaleNotCompleted = errors.New("sale not completed")

// Store is what the machine needs from the persistence collaborator. The
// stepwise methods back the compensating close-sale path.
type Store interface {
	GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error)
	SetOpportunityState(ctx context.Context, id int64, from, to models.OpportunityState) error
	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	GetCompany(ctx context.Context, id int64) (*models.Company, error)
	GetPerson(ctx context.Context, id int64) (*models.Person, error)
	SetVehicleState(ctx context.Context, id int64, from, to models.VehicleState) error
	CreateSaleRecord(ctx context.Context, rec models.SaleRecord) (*models.SaleRecord, error)
	GetSaleRecordByOpportunity(ctx context.Context, opportunityID int64) (*models.SaleRecord, error)
	DeleteSaleRecord(ctx context.Context, id int64) error
}

// TxCloser is implemented by stores that can write the sale record, the
// vehicle state and the opportunity state in one transaction. It must reject
// an opportunity that is already sold or has a sale record with
// database.ErrSaleAlreadyRecorded, a sold vehicle with
// database.ErrVehicleAlreadySold, and any other row that moved under it with
// database.ErrStateConflict.
type TxCloser interface {
	CloseSale(ctx context.Context, rec models.SaleRecord, opportunityFrom models.OpportunityState) (*models.SaleRecord, error)
}

type Machine struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(store Store, log zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "opportunity").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) load(ctx context.Context, id int64) (*models.Opportunity, error) {
	opp, err := m.store.GetOpportunity(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("load opportunity", err)
	}
	return opp, nil
}

// Transition applies a plain table transition. Sold is never reachable here.
func (m *Machine) Transition(ctx context.Context, id int64, to models.OpportunityState) (*models.Opportunity, error) {
	if !to.Valid() {
		return nil, apperr.NewValidationError("state", "unknown")
	}

	opp, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if to == models.StateSold {
		return nil, &TransitionError{From: opp.State, To: to, Reason: "sold is reached only by closing a sale"}
	}
	if !CanTransition(opp.State, to) {
		reason := "not in the transition table"
		if opp.State.Terminal() {
			reason = "opportunity is " + string(opp.State)
		}
		return nil, &TransitionError{From: opp.State, To: to, Reason: reason}
	}

	return m.move(ctx, opp, to)
}

// Reactivate reopens a lost opportunity at ReactivationTarget.
func (m *Machine) Reactivate(ctx context.Context, id int64) (*models.Opportunity, error) {
	opp, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp.State != models.StateLost {
		return nil, &TransitionError{From: opp.State, To: ReactivationTarget, Reason: "only lost opportunities can be reactivated"}
	}
	return m.move(ctx, opp, ReactivationTarget)
}

func (m *Machine) move(ctx context.Context, opp *models.Opportunity, to models.OpportunityState) (*models.Opportunity, error) {
	from := opp.State
	if err := m.store.SetOpportunityState(ctx, opp.ID, from, to); err != nil {
		return nil, apperr.Persistence("set opportunity state", err)
	}

	m.log.Info().Int64("opportunity_id", opp.ID).Str("from", string(from)).Str("to", string(to)).Msg("opportunity moved")

	updated := *opp
	updated.State = to
	updated.LastInteractionAt = m.now()
	return &updated, nil
}

// StartSale opens the sale-closing wizard. Nothing is written until the
// wizard is confirmed; dropping it has no effect. vehicleID may be zero to
// use the opportunity's vehicle of interest.
func (m *Machine) StartSale(ctx context.Context, opportunityID, vehicleID int64) (*SaleWizard, error) {
	opp, err := m.load(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if err := closable(opp); err != nil {
		return nil, m.invariant(err)
	}

	if vehicleID == 0 && opp.VehicleID != nil {
		vehicleID = *opp.VehicleID
	}
	if vehicleID == 0 {
		return nil, apperr.NewValidationError("vehicle_id", "required")
	}

	vehicle, err := m.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, apperr.Persistence("load vehicle", err)
	}
	if vehicle.State == models.VehicleSold {
		return nil, m.invariant(apperr.NewInvariantViolation("start_sale", fmt.Sprintf("vehicle %d is already sold", vehicle.ID)))
	}

	return newSaleWizard(m, *opp, *vehicle), nil
}

func closable(opp *models.Opportunity) error {
	switch opp.State {
	case models.StateSold:
		return apperr.NewInvariantViolation("close_sale", fmt.Sprintf("opportunity %d is already sold", opp.ID))
	case models.StateLost:
		return apperr.NewInvariantViolation("close_sale", fmt.Sprintf("opportunity %d is lost; reactivate it first", opp.ID))
	}
	return nil
}

func (m *Machine) invariant(err error) error {
	m.log.Error().Err(err).Msg("invariant violation")
	return err
}

// CloseSale is the only way into sold. It re-reads current state so a wizard
// confirmed twice, or two wizards on the same opportunity, cannot record two
// sales. The final price is recomputed from rec's pricing and frozen, and the
// seller, buyer and vehicle are snapshotted onto the record.
func (m *Machine) CloseSale(ctx context.Context, rec models.SaleRecord) (*models.SaleRecord, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	rec.FinalPrice = finance.FinalPrice(rec.Pricing())
	if !rec.PaymentMethod.NeedsFinancing() {
		rec.Financing = nil
	}

	opp, err := m.load(ctx, rec.OpportunityID)
	if err != nil {
		return nil, err
	}
	if err := closable(opp); err != nil {
		return nil, m.invariant(err)
	}

	vehicle, err := m.store.GetVehicle(ctx, rec.VehicleID)
	if err != nil {
		return nil, apperr.Persistence("load vehicle", err)
	}
	if vehicle.State == models.VehicleSold {
		return nil, m.invariant(apperr.NewInvariantViolation("close_sale", fmt.Sprintf("vehicle %d is already sold", vehicle.ID)))
	}
	if rec.BuyerID == 0 {
		rec.BuyerID = opp.BuyerID
	}
	rec.CostTotal = finance.CostTotal(vehicle.Costs())

	company, err := m.store.GetCompany(ctx, rec.CompanyID)
	if err != nil {
		return nil, apperr.Persistence("load company", err)
	}
	buyer, err := m.store.GetPerson(ctx, rec.BuyerID)
	if err != nil {
		return nil, apperr.Persistence("load buyer", err)
	}
	rec.Company = company.Snapshot()
	rec.Buyer = buyer.Snapshot()
	rec.Vehicle = vehicle.Snapshot()

	var saved *models.SaleRecord
	if tx, ok := m.store.(TxCloser); ok {
		saved, err = m.closeInTx(ctx, tx, rec, opp.State)
	} else {
		saved, err = m.closeStepwise(ctx, rec, opp.State, vehicle.State)
	}
	if err != nil {
		return nil, err
	}

	m.log.Info().
		Int64("opportunity_id", rec.OpportunityID).
		Int64("vehicle_id", rec.VehicleID).
		Int64("sale_record_id", saved.ID).
		Str("final_price", saved.FinalPrice.String()).
		Msg("sale closed")
	return saved, nil
}

func (m *Machine) closeInTx(ctx context.Context, tx TxCloser, rec models.SaleRecord, from models.OpportunityState) (*models.SaleRecord, error) {
	saved, err := tx.CloseSale(ctx, rec, from)
	switch {
	case err == nil:
		return saved, nil
	case errors.Is(err, database.ErrSaleAlreadyRecorded):
		return nil, m.invariant(apperr.NewInvariantViolation("close_sale",
			fmt.Sprintf("opportunity %d already has a sale record", rec.OpportunityID)))
	case errors.Is(err, database.ErrVehicleAlreadySold):
		return nil, m.invariant(apperr.NewInvariantViolation("close_sale",
			fmt.Sprintf("vehicle %d is already sold", rec.VehicleID)))
	default:
		return nil, fmt.Errorf("%w: %w", ErrSaleNotCompleted, apperr.Persistence("close sale", err))
	}
}

// closeStepwise writes in a fixed order, sale record first, and undoes the
// earlier writes when a later one fails.
func (m *Machine) closeStepwise(ctx context.Context, rec models.SaleRecord, oppFrom models.OpportunityState, vehicleFrom models.VehicleState) (*models.SaleRecord, error) {
	existing, err := m.store.GetSaleRecordByOpportunity(ctx, rec.OpportunityID)
	if err == nil && existing != nil {
		return nil, m.invariant(apperr.NewInvariantViolation("close_sale",
			fmt.Sprintf("opportunity %d already has sale record %d", rec.OpportunityID, existing.ID)))
	}
	if err != nil && !errors.Is(err, database.ErrSaleRecordNotFound) {
		return nil, apperr.Persistence("check existing sale", err)
	}

	saved, err := m.store.CreateSaleRecord(ctx, rec)
	if err != nil {
		if errors.Is(err, database.ErrSaleAlreadyRecorded) {
			return nil, m.invariant(apperr.NewInvariantViolation("close_sale",
				fmt.Sprintf("opportunity %d already has a sale record", rec.OpportunityID)))
		}
		return nil, fmt.Errorf("%w: %w", ErrSaleNotCompleted, apperr.Persistence("create sale record", err))
	}

	if err := m.store.SetVehicleState(ctx, rec.VehicleID, vehicleFrom, models.VehicleSold); err != nil {
		m.compensate(ctx, "delete sale record", func(ctx context.Context) error {
			return m.store.DeleteSaleRecord(ctx, saved.ID)
		})
		return nil, fmt.Errorf("%w: %w", ErrSaleNotCompleted, apperr.Persistence("mark vehicle sold", err))
	}

	if err := m.store.SetOpportunityState(ctx, rec.OpportunityID, oppFrom, models.StateSold); err != nil {
		m.compensate(ctx, "restore vehicle state", func(ctx context.Context) error {
			return m.store.SetVehicleState(ctx, rec.VehicleID, models.VehicleSold, vehicleFrom)
		})
		m.compensate(ctx, "delete sale record", func(ctx context.Context) error {
			return m.store.DeleteSaleRecord(ctx, saved.ID)
		})
		return nil, fmt.Errorf("%w: %w", ErrSaleNotCompleted, apperr.Persistence("mark opportunity sold", err))
	}

	return saved, nil
}

const compensationAttempts = 3

// compensate retries an undo step. It runs detached from ctx cancellation so
// an abandoned request still cleans up after itself.
func (m *Machine) compensate(ctx context.Context, what string, undo func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		if err = undo(ctx); err == nil {
			m.log.Warn().Str("step", what).Msg("close-sale write compensated")
			return
		}
		_ = database.Sleep(ctx, database.Backoff(attempt, 25*time.Millisecond))
	}
	m.log.Error().Err(err).Str("step", what).Msg("compensation failed, manual repair required")
}
