// Package store is the PostgreSQL persistence layer. Every write that must
// not race uses a compare-and-set predicate or a serializable transaction;
// unique constraints surface as the sentinels in internal/database.
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

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB { return s.db }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateCompany(ctx context.Context, c models.Company) (*models.Company, error) {
	query := `
		INSERT INTO companies (legal_name, trade_name, tax_id, address, city, postal_code,
		                       phone, email, bank_name, iban, registry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		c.LegalName, c.TradeName, c.TaxID, c.Address, c.City, c.Postal,
		c.Phone, c.Email, c.BankName, c.IBAN, c.Registry,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create company: %w", err)
	}
	return &c, nil
}

func (s *Store) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	c := &models.Company{}

	query := `
		SELECT id, legal_name, trade_name, tax_id, address, city, postal_code,
		       phone, email, bank_name, iban, registry, created_at
		FROM companies
		WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.LegalName,
		&c.TradeName,
		&c.TaxID,
		&c.Address,
		&c.City,
		&c.Postal,
		&c.Phone,
		&c.Email,
		&c.BankName,
		&c.IBAN,
		&c.Registry,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return c, nil
}

func (s *Store) CreatePerson(ctx context.Context, p models.Person) (*models.Person, error) {
	query := `
		INSERT INTO people (full_name, tax_id, address, city, postal_code, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		p.FullName, p.TaxID, p.Address, p.City, p.Postal, p.Phone, p.Email,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return &p, nil
}

func (s *Store) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	p := &models.Person{}

	query := `
		SELECT id, full_name, tax_id, address, city, postal_code, phone, email, created_at
		FROM people
		WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.FullName,
		&p.TaxID,
		&p.Address,
		&p.City,
		&p.Postal,
		&p.Phone,
		&p.Email,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPersonNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

const vehicleColumns = `
	id, make, model, version, plate, vin, first_registration, mileage,
	acquisition_cost, acquisition_expenses, repair_cost, list_price, discount,
	state, created_at, updated_at, row_version`

func scanVehicle(row interface{ Scan(...any) error }) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := row.Scan(
		&v.ID,
		&v.Make,
		&v.Model,
		&v.Version,
		&v.Plate,
		&v.VIN,
		&v.FirstRegistration,
		&v.Mileage,
		&v.AcquisitionCost,
		&v.AcquisitionExpenses,
		&v.RepairCost,
		&v.ListPrice,
		&v.Discount,
		&v.State,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.RowVersion,
	)
	return v, err
}

func (s *Store) CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	if v.State == "" {
		v.State = models.VehicleAvailable
	}

	query := `
		INSERT INTO vehicles (make, model, version, plate, vin, first_registration, mileage,
		                      acquisition_cost, acquisition_expenses, repair_cost, list_price,
		                      discount, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING` + vehicleColumns

	out, err := scanVehicle(s.db.QueryRowContext(ctx, query,
		v.Make, v.Model, v.Version, v.Plate, v.VIN, v.FirstRegistration, v.Mileage,
		v.AcquisitionCost, v.AcquisitionExpenses, v.RepairCost, v.ListPrice,
		v.Discount, v.State,
	))
	if err != nil {
		return nil, fmt.Errorf("create vehicle: %w", err)
	}
	return out, nil
}

func (s *Store) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	return getVehicle(ctx, s.db, id, "")
}

func getVehicle(ctx context.Context, q queryer, id int64, lock string) (*models.Vehicle, error) {
	v, err := scanVehicle(q.QueryRowContext(ctx,
		"SELECT"+vehicleColumns+" FROM vehicles WHERE id = $1 "+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrVehicleNotFound
		}
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

// SetVehicleState moves a vehicle from one state to another. It fails with
// ErrStateConflict when the row is no longer in from.
func (s *Store) SetVehicleState(ctx context.Context, id int64, from, to models.VehicleState) error {
	return setVehicleState(ctx, s.db, id, from, to)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setVehicleState(ctx context.Context, e execer, id int64, from, to models.VehicleState) error {
	result, err := e.ExecContext(ctx,
		`UPDATE vehicles
		 SET state = $1, row_version = row_version + 1, updated_at = NOW()
		 WHERE id = $2 AND state = $3`,
		to, id, from)
	if err != nil {
		return fmt.Errorf("update vehicle state: %w", err)
	}
	return expectOne(result, database.ErrStateConflict)
}

// UpdateVehiclePricing changes the asking price under optimistic locking.
func (s *Store) UpdateVehiclePricing(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	query := `
		UPDATE vehicles
		SET list_price = $1, discount = $2, repair_cost = $3,
		    row_version = row_version + 1, updated_at = NOW()
		WHERE id = $4 AND row_version = $5
		RETURNING` + vehicleColumns

	out, err := scanVehicle(s.db.QueryRowContext(ctx, query,
		v.ListPrice, v.Discount, v.RepairCost, v.ID, v.RowVersion))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update vehicle pricing: %w", err)
	}
	return out, nil
}

func expectOne(result sql.Result, none error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return none
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
