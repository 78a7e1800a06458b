package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/models"
	"github.com/shopspring/decimal"
)

const opportunityColumns = `
	id, buyer_id, vehicle_id, state, priority, notes, created_at, last_interaction_at, row_version`

func scanOpportunity(row interface{ Scan(...any) error }) (*models.Opportunity, error) {
	o := &models.Opportunity{}
	err := row.Scan(
		&o.ID,
		&o.BuyerID,
		&o.VehicleID,
		&o.State,
		&o.Priority,
		&o.Notes,
		&o.CreatedAt,
		&o.LastInteractionAt,
		&o.RowVersion,
	)
	return o, err
}

func (s *Store) CreateOpportunity(ctx context.Context, o models.Opportunity) (*models.Opportunity, error) {
	if o.State == "" {
		o.State = models.StateNew
	}
	if o.Priority == "" {
		o.Priority = "medium"
	}

	query := `
		INSERT INTO opportunities (buyer_id, vehicle_id, state, priority, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING` + opportunityColumns

	out, err := scanOpportunity(s.db.QueryRowContext(ctx, query,
		o.BuyerID, o.VehicleID, o.State, o.Priority, o.Notes))
	if err != nil {
		return nil, fmt.Errorf("create opportunity: %w", err)
	}
	return out, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id int64) (*models.Opportunity, error) {
	return getOpportunity(ctx, s.db, id, "")
}

func getOpportunity(ctx context.Context, q queryer, id int64, lock string) (*models.Opportunity, error) {
	o, err := scanOpportunity(q.QueryRowContext(ctx,
		"SELECT"+opportunityColumns+" FROM opportunities WHERE id = $1 "+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOpportunityNotFound
		}
		return nil, fmt.Errorf("get opportunity: %w", err)
	}
	return o, nil
}

// SetOpportunityState moves an opportunity and stamps its last interaction.
// It fails with ErrStateConflict when the row is no longer in from.
func (s *Store) SetOpportunityState(ctx context.Context, id int64, from, to models.OpportunityState) error {
	return setOpportunityState(ctx, s.db, id, from, to)
}

func setOpportunityState(ctx context.Context, e execer, id int64, from, to models.OpportunityState) error {
	result, err := e.ExecContext(ctx,
		`UPDATE opportunities
		 SET state = $1, last_interaction_at = NOW(), row_version = row_version + 1
		 WHERE id = $2 AND state = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update opportunity state: %w", err)
	}
	return expectOne(result, database.ErrStateConflict)
}

// ListOpportunitiesCursor pages through opportunities by most recent
// interaction. An empty state lists every state.
func (s *Store) ListOpportunitiesCursor(ctx context.Context, state models.OpportunityState, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT` + opportunityColumns + `
		FROM opportunities
		WHERE ($1 = '' OR state = $1)
		  AND (last_interaction_at, id) < ($2, $3)
		ORDER BY last_interaction_at DESC, id DESC
		LIMIT $4`

	rows, err := s.db.QueryContext(ctx, query, state, cursorData.At, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list opportunities: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		opps = append(opps, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(opps) > limit
	if hasMore {
		opps = opps[:limit]
	}

	var nextCursor string
	if hasMore && len(opps) > 0 {
		last := opps[len(opps)-1]
		nextCursor = EncodeCursor(Cursor{At: last.LastInteractionAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      opps,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

const saleRecordColumns = `
	id, opportunity_id, vehicle_id, buyer_id, company_id, company, buyer, vehicle,
	list_price, discount, additional_expenses, final_price, cost_total, payment_method, down_payment, installment_count, lender,
	delivery_date, warranty_extended, warranty_months, notes, created_at`

func scanSaleRecord(row interface{ Scan(...any) error }) (*models.SaleRecord, error) {
	var (
		rec         models.SaleRecord
		downPayment decimal.NullDecimal
		count       sql.NullInt64
		lender      sql.NullString
	)
	err := row.Scan(
		&rec.ID,
		&rec.OpportunityID,
		&rec.VehicleID,
		&rec.BuyerID,
		&rec.CompanyID,
		&rec.Company,
		&rec.Buyer,
		&rec.Vehicle,
		&rec.ListPrice,
		&rec.Discount,
		&rec.AdditionalExpenses,
		&rec.FinalPrice,
		&rec.CostTotal,
		&rec.PaymentMethod,
		&downPayment,
		&count,
		&lender,
		&rec.DeliveryDate,
		&rec.Warranty.Extended,
		&rec.Warranty.Months,
		&rec.Notes,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if downPayment.Valid || count.Valid || lender.Valid {
		rec.Financing = &models.Financing{
			DownPayment:      downPayment.Decimal,
			InstallmentCount: int(count.Int64),
			Lender:           lender.String,
		}
	}
	return &rec, nil
}

func financingArgs(f *models.Financing) (decimal.NullDecimal, sql.NullInt64, sql.NullString) {
	if f == nil {
		return decimal.NullDecimal{}, sql.NullInt64{}, sql.NullString{}
	}
	return decimal.NullDecimal{Decimal: f.DownPayment, Valid: true},
		sql.NullInt64{Int64: int64(f.InstallmentCount), Valid: true},
		sql.NullString{String: f.Lender, Valid: true}
}

// CreateSaleRecord inserts a sale record. A second record for the same
// opportunity fails with ErrSaleAlreadyRecorded.
func (s *Store) CreateSaleRecord(ctx context.Context, rec models.SaleRecord) (*models.SaleRecord, error) {
	return createSaleRecord(ctx, s.db, rec)
}

func createSaleRecord(ctx context.Context, q queryer, rec models.SaleRecord) (*models.SaleRecord, error) {
	downPayment, count, lender := financingArgs(rec.Financing)

	query := `
		INSERT INTO sale_records (opportunity_id, vehicle_id, buyer_id, company_id, company,
		                          buyer, vehicle, list_price, discount, additional_expenses,
		                          final_price, cost_total, payment_method, down_payment,
		                          installment_count, lender, delivery_date, warranty_extended,
		                          warranty_months, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
		        $17, $18, $19, $20)
		RETURNING` + saleRecordColumns

	out, err := scanSaleRecord(q.QueryRowContext(ctx, query,
		rec.OpportunityID, rec.VehicleID, rec.BuyerID, rec.CompanyID, rec.Company,
		rec.Buyer, rec.Vehicle, rec.ListPrice, rec.Discount,
		rec.AdditionalExpenses, rec.FinalPrice, rec.CostTotal, rec.PaymentMethod,
		downPayment, count, lender, rec.DeliveryDate,
		rec.Warranty.Extended, rec.Warranty.Months, rec.Notes,
	))
	if err != nil {
		if database.IsUniqueViolation(err, "sale_records_opportunity_id_key") {
			return nil, database.ErrSaleAlreadyRecorded
		}
		return nil, fmt.Errorf("create sale record: %w", err)
	}
	return out, nil
}

func (s *Store) GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error) {
	rec, err := scanSaleRecord(s.db.QueryRowContext(ctx,
		"SELECT"+saleRecordColumns+" FROM sale_records WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSaleRecordNotFound
		}
		return nil, fmt.Errorf("get sale record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetSaleRecordByOpportunity(ctx context.Context, opportunityID int64) (*models.SaleRecord, error) {
	rec, err := scanSaleRecord(s.db.QueryRowContext(ctx,
		"SELECT"+saleRecordColumns+" FROM sale_records WHERE opportunity_id = $1", opportunityID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrSaleRecordNotFound
		}
		return nil, fmt.Errorf("get sale record: %w", err)
	}
	return rec, nil
}

func (s *Store) DeleteSaleRecord(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sale_records WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete sale record: %w", err)
	}
	return expectOne(result, database.ErrSaleRecordNotFound)
}

// CloseSale writes the sale record and marks both the vehicle and the
// opportunity sold in one serializable transaction, retried on
// serialization failures and deadlocks.
func (s *Store) CloseSale(ctx context.Context, rec models.SaleRecord, opportunityFrom models.OpportunityState) (*models.SaleRecord, error) {
	var saved *models.SaleRecord

	err := database.WithRetry(ctx, s.db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		opp, err := getOpportunity(ctx, tx, rec.OpportunityID, "FOR UPDATE")
		if err != nil {
			return err
		}
		// A close that lost the race finds the opportunity sold once the
		// winner commits.
		if opp.State == models.StateSold {
			return database.ErrSaleAlreadyRecorded
		}

		var recorded bool
		err = tx.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM sale_records WHERE opportunity_id = $1)",
			rec.OpportunityID).Scan(&recorded)
		if err != nil {
			return fmt.Errorf("check sale record exists: %w", err)
		}
		if recorded {
			return database.ErrSaleAlreadyRecorded
		}
		if opp.State != opportunityFrom {
			return database.ErrStateConflict
		}

		vehicle, err := getVehicle(ctx, tx, rec.VehicleID, "FOR UPDATE")
		if err != nil {
			return err
		}
		if vehicle.State == models.VehicleSold {
			return database.ErrVehicleAlreadySold
		}

		rec.Vehicle = vehicle.Snapshot()
		saved, err = createSaleRecord(ctx, tx, rec)
		if err != nil {
			return err
		}
		if err := setVehicleState(ctx, tx, vehicle.ID, vehicle.State, models.VehicleSold); err != nil {
			return err
		}
		return setOpportunityState(ctx, tx, opp.ID, opp.State, models.StateSold)
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}
