package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/models"
)

// NextSequence increments the (scope, year) counter in a single statement
// and returns the new value. The first call of a year starts at 1.
func (s *Store) NextSequence(ctx context.Context, scope string, year int) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO document_sequences (scope, year, value)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (scope, year) DO UPDATE SET value = document_sequences.value + 1
		 RETURNING value`,
		scope, year).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next %s sequence for %d: %w", scope, year, err)
	}
	return value, nil
}

const contractColumns = `
	id, number, vehicle_id, buyer_id, sale_record_id, company, buyer, vehicle,
	price_excl_tax, tax_rate, tax_amount, total, payment_method, warranty_extended,
	warranty_months, signed_on, signed_place, documentation, additional_clauses, notes,
	status, created_at, updated_at`

func scanContract(row interface{ Scan(...any) error }) (*models.Contract, error) {
	var (
		c        models.Contract
		signedOn sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.Number,
		&c.VehicleID,
		&c.BuyerID,
		&c.SaleRecordID,
		&c.Company,
		&c.Buyer,
		&c.Vehicle,
		&c.PriceExclTax,
		&c.TaxRate,
		&c.TaxAmount,
		&c.Total,
		&c.PaymentMethod,
		&c.Warranty.Extended,
		&c.Warranty.Months,
		&signedOn,
		&c.SignedPlace,
		&c.Documentation,
		&c.AdditionalClauses,
		&c.Notes,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if signedOn.Valid {
		c.SignedOn = signedOn.Time
	}
	return &c, nil
}

// CreateContract inserts a numbered contract. A number already in use fails
// with ErrDuplicateNumber so the caller can allocate another.
func (s *Store) CreateContract(ctx context.Context, c models.Contract) (*models.Contract, error) {
	if c.Documentation == nil {
		c.Documentation = models.Checklist{}
	}

	query := `
		INSERT INTO contracts (number, vehicle_id, buyer_id, sale_record_id, company, buyer, vehicle,
		                       price_excl_tax, tax_rate, tax_amount, total, payment_method,
		                       warranty_extended, warranty_months, signed_on, signed_place,
		                       documentation, additional_clauses, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING` + contractColumns

	out, err := scanContract(s.db.QueryRowContext(ctx, query,
		c.Number, c.VehicleID, c.BuyerID, c.SaleRecordID, c.Company, c.Buyer, c.Vehicle,
		c.PriceExclTax, c.TaxRate, c.TaxAmount, c.Total, c.PaymentMethod,
		c.Warranty.Extended, c.Warranty.Months, nullTime(c.SignedOn), c.SignedPlace,
		c.Documentation, c.AdditionalClauses, c.Notes, c.Status,
	))
	if err != nil {
		if database.IsUniqueViolation(err, "contracts_number_key") {
			return nil, fmt.Errorf("contract %s: %w", c.Number, database.ErrDuplicateNumber)
		}
		return nil, fmt.Errorf("create contract: %w", err)
	}
	return out, nil
}

func (s *Store) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	c, err := scanContract(s.db.QueryRowContext(ctx,
		"SELECT"+contractColumns+" FROM contracts WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrContractNotFound
		}
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// GetContractsForVehicle returns every contract of a vehicle, newest first.
func (s *Store) GetContractsForVehicle(ctx context.Context, vehicleID int64) ([]models.Contract, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+contractColumns+" FROM contracts WHERE vehicle_id = $1 ORDER BY id DESC", vehicleID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return contracts, nil
}

func (s *Store) UpdateContractStatus(ctx context.Context, id int64, from, to models.ContractStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE contracts SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	return expectOne(result, database.ErrStateConflict)
}

const invoiceColumns = `
	id, number, issue_date, due_date, company, contract_id, vehicle_id, buyer_id, buyer,
	vehicle_description, concept, base_amount, discount, tax_rate, tax_amount, total,
	payment_method, status, notes, created_at, updated_at`

func scanInvoice(row interface{ Scan(...any) error }) (*models.Invoice, error) {
	inv := &models.Invoice{}
	err := row.Scan(
		&inv.ID,
		&inv.Number,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.Company,
		&inv.ContractID,
		&inv.VehicleID,
		&inv.BuyerID,
		&inv.Buyer,
		&inv.VehicleDescription,
		&inv.Concept,
		&inv.BaseAmount,
		&inv.Discount,
		&inv.TaxRate,
		&inv.TaxAmount,
		&inv.Total,
		&inv.PaymentMethod,
		&inv.Status,
		&inv.Notes,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	return inv, err
}

// CreateInvoice inserts a numbered invoice. A number already in use fails
// with ErrDuplicateNumber so the caller can allocate another.
func (s *Store) CreateInvoice(ctx context.Context, inv models.Invoice) (*models.Invoice, error) {
	query := `
		INSERT INTO invoices (number, issue_date, due_date, company, contract_id, vehicle_id,
		                      buyer_id, buyer, vehicle_description, concept, base_amount, discount,
		                      tax_rate, tax_amount, total, payment_method, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING` + invoiceColumns

	out, err := scanInvoice(s.db.QueryRowContext(ctx, query,
		inv.Number, inv.IssueDate, inv.DueDate, inv.Company, inv.ContractID, inv.VehicleID,
		inv.BuyerID, inv.Buyer, inv.VehicleDescription, inv.Concept, inv.BaseAmount, inv.Discount,
		inv.TaxRate, inv.TaxAmount, inv.Total, inv.PaymentMethod, inv.Status, inv.Notes,
	))
	if err != nil {
		if database.IsUniqueViolation(err, "invoices_number_key") {
			return nil, fmt.Errorf("invoice %s: %w", inv.Number, database.ErrDuplicateNumber)
		}
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return out, nil
}

func (s *Store) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx,
		"SELECT"+invoiceColumns+" FROM invoices WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices returns one page of invoices, newest issue date first. An
// empty status lists every status.
func (s *Store) ListInvoices(ctx context.Context, status models.InvoiceStatus, page, pageSize int) (*OffsetPage, error) {
	page, pageSize = normalizePage(page, pageSize)

	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices WHERE ($1 = '' OR status = $1)`, status).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT` + invoiceColumns + `
		FROM invoices
		WHERE ($1 = '' OR status = $1)
		ORDER BY issue_date DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, status, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      invoices,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func (s *Store) UpdateInvoiceStatus(ctx context.Context, id int64, from, to models.InvoiceStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	return expectOne(result, database.ErrStateConflict)
}

// MarkOverdueInvoices flags every pending invoice whose due date is before
// asOf and returns how many changed.
func (s *Store) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = $1, updated_at = NOW()
		 WHERE status = $2 AND due_date < $3`,
		models.InvoiceOverdue, models.InvoicePending, asOf)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}
