package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/apperr"
	"github.com/safar/dealership/internal/database"
	"github.com/safar/dealership/internal/document"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
	"github.com/safar/dealership/internal/numbering"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, time.March, 2, 11, 30, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	companies map[int64]*models.Company
	people    map[int64]*models.Person
	vehicles  map[int64]*models.Vehicle
	sales     map[int64]*models.SaleRecord
	contracts []models.Contract
	invoices  []models.Invoice

	// duplicates makes the next n inserts fail with a taken number.
	duplicates int
	insertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		companies: map[int64]*models.Company{
			1: {ID: 1, LegalName: "Autos Safar SL", TaxID: "B12345678", City: "Valencia", IBAN: "ES91 2100 0418 4502 0005 1332"},
		},
		people: map[int64]*models.Person{
			3: {ID: 3, FullName: "Lucía Pérez", TaxID: "12345678Z", City: "Valencia"},
			4: {ID: 4, FullName: "Sin NIF"},
		},
		vehicles: map[int64]*models.Vehicle{
			7: {
				ID:        7,
				Make:      "Seat",
				Model:     "Leon",
				Plate:     "1234ABC",
				ListPrice: decimal.NewFromInt(24900),
				Discount:  decimal.NewFromInt(500),
				State:     models.VehicleSold,
			},
		},
		sales: map[int64]*models.SaleRecord{
			5: {
				ID:            5,
				OpportunityID: 1,
				VehicleID:     7,
				BuyerID:       3,
				CompanyID:     1,
				Company:       models.CompanySnapshot{LegalName: "Autos Safar SL", TaxID: "B12345678"},
				Buyer:         models.BuyerSnapshot{FullName: "Lucía Pérez", TaxID: "12345678Z"},
				Vehicle:       models.VehicleSnapshot{Make: "Seat", Model: "Leon", Plate: "1234ABC"},
				ListPrice:     decimal.NewFromInt(20000),
				FinalPrice:    decimal.NewFromInt(20000),
				PaymentMethod: models.PaymentCash,
				DeliveryDate:  today,
			},
		},
	}
}

func (f *fakeStore) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.companies[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, database.ErrCompanyNotFound
}

func (f *fakeStore) GetPerson(ctx context.Context, id int64) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.people[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, database.ErrPersonNotFound
}

func (f *fakeStore) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.vehicles[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, database.ErrVehicleNotFound
}

func (f *fakeStore) GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sales[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, database.ErrSaleRecordNotFound
}

func (f *fakeStore) insertFailure() error {
	if f.duplicates > 0 {
		f.duplicates--
		return database.ErrDuplicateNumber
	}
	return f.insertErr
}

func (f *fakeStore) CreateContract(ctx context.Context, c models.Contract) (*models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertFailure(); err != nil {
		return nil, err
	}
	c.ID = int64(len(f.contracts) + 1)
	c.CreatedAt = today
	f.contracts = append(f.contracts, c)
	return &c, nil
}

func (f *fakeStore) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contracts {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, database.ErrContractNotFound
}

func (f *fakeStore) GetContractsForVehicle(ctx context.Context, vehicleID int64) ([]models.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Contract
	for _, c := range f.contracts {
		if c.VehicleID == vehicleID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateContractStatus(ctx context.Context, id int64, from, to models.ContractStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.contracts {
		if f.contracts[i].ID == id {
			if f.contracts[i].Status != from {
				return database.ErrStateConflict
			}
			f.contracts[i].Status = to
			return nil
		}
	}
	return database.ErrContractNotFound
}

func (f *fakeStore) CreateInvoice(ctx context.Context, inv models.Invoice) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insertFailure(); err != nil {
		return nil, err
	}
	inv.ID = int64(len(f.invoices) + 1)
	f.invoices = append(f.invoices, inv)
	return &inv, nil
}

func (f *fakeStore) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invoices {
		if inv.ID == id {
			return &inv, nil
		}
	}
	return nil, database.ErrInvoiceNotFound
}

func (f *fakeStore) UpdateInvoiceStatus(ctx context.Context, id int64, from, to models.InvoiceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.invoices {
		if f.invoices[i].ID == id {
			if f.invoices[i].Status != from {
				return database.ErrStateConflict
			}
			f.invoices[i].Status = to
			return nil
		}
	}
	return database.ErrInvoiceNotFound
}

func (f *fakeStore) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i := range f.invoices {
		if f.invoices[i].Status == models.InvoicePending && f.invoices[i].DueDate.Before(asOf) {
			f.invoices[i].Status = models.InvoiceOverdue
			n++
		}
	}
	return n, nil
}

type fixture struct {
	store     *fakeStore
	alloc     *numbering.MemoryAllocator
	contracts *ContractService
	invoices  *InvoiceService
	sales     *SaleService
}

func newFixture() *fixture {
	store := newFakeStore()
	alloc := numbering.NewMemoryAllocator()
	numbers := numbering.New(alloc, numbering.Options{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		Now:         func() time.Time { return today },
	}, zerolog.Nop())
	projector := document.NewProjector(document.NewPDFRenderer(), document.DefaultFormatter(), zerolog.Nop())

	return &fixture{
		store:     store,
		alloc:     alloc,
		contracts: NewContractService(store, numbers, projector, ContractOptions{
			DefaultTaxRate: finance.Rate(decimal.NewFromInt(21)),
		}, zerolog.Nop()),
		invoices: NewInvoiceService(store, numbers, projector, InvoiceOptions{
			DueDays:        30,
			DefaultTaxRate: finance.Rate(decimal.NewFromInt(21)),
			Now:            func() time.Time { return today },
		}, zerolog.Nop()),
		sales: NewSaleService(store, projector),
	}
}

func percentRate(percent int64) *finance.TaxRate {
	r := finance.Rate(decimal.NewFromInt(percent))
	return &r
}

func contractRequest() ContractRequest {
	return ContractRequest{
		CompanyID:     1,
		BuyerID:       3,
		VehicleID:     7,
		PriceExclTax:  decimal.NewFromInt(20000),
		TaxRate:       percentRate(21),
		PaymentMethod: models.PaymentBankTransfer,
		Warranty:      models.Warranty{Months: 12},
		SignedOn:      today,
		SignedPlace:   "Valencia",
	}
}

func TestCreateContract(t *testing.T) {
	fx := newFixture()

	c, err := fx.contracts.Create(context.Background(), contractRequest())
	require.NoError(t, err)
	assert.Equal(t, "CTR-2026-000001", c.Number)
	assert.Equal(t, models.ContractDraft, c.Status)
	assert.True(t, c.TaxAmount.Equal(decimal.NewFromInt(4200)))
	assert.True(t, c.Total.Equal(decimal.NewFromInt(24200)))
	assert.Equal(t, "Lucía Pérez", c.Buyer.FullName)
	assert.Equal(t, "Autos Safar SL", c.Company.LegalName)
	assert.Equal(t, "1234ABC", c.Vehicle.Plate)
	assert.Len(t, c.Documentation, len(models.DefaultDocumentation()))

	// later edits to the buyer do not reach the issued contract
	fx.store.people[3].FullName = "Someone Else"
	stored, err := fx.contracts.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lucía Pérez", stored.Buyer.FullName)

	second, err := fx.contracts.Create(context.Background(), contractRequest())
	require.NoError(t, err)
	assert.Equal(t, "CTR-2026-000002", second.Number)
}

func TestContractPriceFromSaleRecord(t *testing.T) {
	fx := newFixture()
	req := contractRequest()
	req.PriceExclTax = decimal.Zero
	saleID := int64(5)
	req.SaleRecordID = &saleID

	c, err := fx.contracts.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, c.PriceExclTax.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, &saleID, c.SaleRecordID)
}

func TestContractWithoutBuyerTaxIDAllocatesNothing(t *testing.T) {
	fx := newFixture()
	req := contractRequest()
	req.BuyerID = 4

	_, err := fx.contracts.Create(context.Background(), req)
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	code, _ := ve.Field("buyer.tax_id")
	assert.Equal(t, "required", code)

	assert.Empty(t, fx.store.contracts)
	assert.Zero(t, fx.alloc.Issued(string(numbering.ScopeContract), 2026))
}

func TestContractValidation(t *testing.T) {
	fx := newFixture()

	_, err := fx.contracts.Create(context.Background(), ContractRequest{PaymentMethod: "cheque"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	for _, field := range []string{"company_id", "buyer_id", "vehicle_id", "payment_method"} {
		_, ok := ve.Field(field)
		assert.True(t, ok, field)
	}

	req := contractRequest()
	req.BuyerID = 99
	_, err = fx.contracts.Create(context.Background(), req)
	require.ErrorAs(t, err, &ve)
	code, _ := ve.Field("buyer_id")
	assert.Equal(t, "not_found", code)

	req = contractRequest()
	req.TaxRate = percentRate(150)
	_, err = fx.contracts.Create(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Zero(t, fx.alloc.Issued(string(numbering.ScopeContract), 2026))
}

func TestContractTaxRateDefaultsLikeInvoices(t *testing.T) {
	fx := newFixture()
	body := `{"company_id":1,"buyer_id":3,"vehicle_id":7,"price_excl_tax":"20000","payment_method":"cash"}`

	var req ContractRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Nil(t, req.TaxRate)

	c, err := fx.contracts.Create(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, c.TaxRate.Applicable())
	assert.True(t, c.TaxAmount.Equal(decimal.NewFromInt(4200)), c.TaxAmount.String())
	assert.True(t, c.Total.Equal(decimal.NewFromInt(24200)))

	inv, err := fx.invoices.Create(context.Background(), InvoiceRequest{
		CompanyID:     1,
		BuyerID:       3,
		Concept:       "Sale of vehicle",
		BaseAmount:    decimal.NewFromInt(20000),
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)
	assert.True(t, inv.TaxRate.Equal(c.TaxRate))
	assert.True(t, inv.Total.Equal(c.Total))

	exempt := `{"company_id":1,"buyer_id":3,"vehicle_id":7,"price_excl_tax":"20000","payment_method":"cash","tax_rate":"not_applicable"}`
	req = ContractRequest{}
	require.NoError(t, json.Unmarshal([]byte(exempt), &req))
	c, err = fx.contracts.Create(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, c.TaxRate.Applicable())
	assert.True(t, c.Total.Equal(decimal.NewFromInt(20000)))
}

func TestContractReallocatesTakenNumber(t *testing.T) {
	fx := newFixture()
	fx.store.duplicates = 1

	c, err := fx.contracts.Create(context.Background(), contractRequest())
	require.NoError(t, err)
	assert.Equal(t, "CTR-2026-000002", c.Number)
	assert.Len(t, fx.store.contracts, 1)
}

func TestContractNumberingGivesUp(t *testing.T) {
	fx := newFixture()
	fx.store.duplicates = 10

	_, err := fx.contracts.Create(context.Background(), contractRequest())
	assert.ErrorIs(t, err, apperr.ErrNumberingConflict)
	assert.Empty(t, fx.store.contracts)
}

func TestContractStoreFailure(t *testing.T) {
	fx := newFixture()
	fx.store.insertErr = errors.New("connection refused")

	_, err := fx.contracts.Create(context.Background(), contractRequest())
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, fx.store.contracts)
}

func TestContractStatus(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	c, err := fx.contracts.Create(ctx, contractRequest())
	require.NoError(t, err)

	signed, err := fx.contracts.Sign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractSigned, signed.Status)

	_, err = fx.contracts.Sign(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cancelled, err := fx.contracts.Cancel(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContractCancelled, cancelled.Status)

	_, err = fx.contracts.Cancel(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRenderContractFromStoredRow(t *testing.T) {
	fx := newFixture()
	c, err := fx.contracts.Create(context.Background(), contractRequest())
	require.NoError(t, err)

	a, err := fx.contracts.Render(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Contract_CTR-2026-000001_2026-03-02.pdf", a.Name)

	again, err := fx.contracts.Render(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Data, again.Data)
}

func TestSaleSheetIgnoresLaterEdits(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	before, err := fx.sales.Render(ctx, 5)
	require.NoError(t, err)

	fx.store.people[3].FullName = "Someone Else"
	fx.store.vehicles[7].Plate = "9999ZZZ"
	fx.store.companies[1].LegalName = "Renamed SL"

	sheet, err := fx.sales.Sheet(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Lucía Pérez", sheet.Buyer.FullName)
	assert.Equal(t, "1234ABC", sheet.Vehicle.Plate)
	assert.Equal(t, "Autos Safar SL", sheet.Company.LegalName)

	after, err := fx.sales.Render(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, before.Name, after.Name)
	assert.Equal(t, before.Data, after.Data)

	_, err = fx.sales.Render(ctx, 404)
	assert.ErrorIs(t, err, database.ErrSaleRecordNotFound)
}

func TestInvoiceInheritsFromContract(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	c, err := fx.contracts.Create(ctx, contractRequest())
	require.NoError(t, err)

	inv, err := fx.invoices.Create(ctx, InvoiceRequest{ContractID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", inv.Number)
	assert.Equal(t, c.Buyer, inv.Buyer)
	assert.Equal(t, c.Company, inv.Company)
	assert.Equal(t, c.VehicleID, *inv.VehicleID)
	assert.Equal(t, models.PaymentBankTransfer, inv.PaymentMethod)
	assert.True(t, inv.TaxAmount.Equal(decimal.NewFromInt(4200)))
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(24200)))
	assert.Equal(t, "Sale of vehicle Seat Leon (1234ABC)", inv.Concept)
	assert.Equal(t, time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, models.InvoicePending, inv.Status)
}

func TestInvoiceNotApplicableTax(t *testing.T) {
	fx := newFixture()
	rate := finance.NotApplicable

	inv, err := fx.invoices.Create(context.Background(), InvoiceRequest{
		CompanyID:     1,
		BuyerID:       3,
		Concept:       "Sale of used vehicle",
		BaseAmount:    decimal.NewFromInt(20000),
		TaxRate:       &rate,
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)
	assert.False(t, inv.TaxRate.Applicable())
	assert.True(t, inv.TaxAmount.IsZero())
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(20000)))
	assert.Equal(t, "not applicable", inv.TaxRate.Label())
}

func TestInvoiceValidation(t *testing.T) {
	fx := newFixture()

	_, err := fx.invoices.Create(context.Background(), InvoiceRequest{
		CompanyID:     1,
		BuyerID:       4,
		BaseAmount:    decimal.NewFromInt(100),
		Discount:      decimal.NewFromInt(200),
		PaymentMethod: models.PaymentCash,
		IssueDate:     today,
		DueDate:       today.AddDate(0, 0, -1),
	})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	for field, want := range map[string]string{
		"buyer.tax_id": "required",
		"concept":      "required",
		"due_date":     "before_issue_date",
		"discount":     "exceeds_base_amount",
	} {
		got, _ := ve.Field(field)
		assert.Equal(t, want, got, field)
	}
	assert.Zero(t, fx.alloc.Issued(string(numbering.ScopeInvoice), 2026))
}

func TestInvoiceAndContractNumbersAreIndependent(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fx.contracts.Create(ctx, contractRequest())
		require.NoError(t, err)
	}
	inv, err := fx.invoices.Create(ctx, InvoiceRequest{ContractID: &fx.store.contracts[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-000001", inv.Number)
}

func TestPrefillFromVehicle(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	req, err := fx.invoices.PrefillFromVehicle(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, req.ContractID)
	assert.True(t, req.BaseAmount.Equal(decimal.NewFromInt(24400)))

	first, err := fx.contracts.Create(ctx, contractRequest())
	require.NoError(t, err)
	second, err := fx.contracts.Create(ctx, contractRequest())
	require.NoError(t, err)
	_, err = fx.contracts.Cancel(ctx, second.ID)
	require.NoError(t, err)

	req, err = fx.invoices.PrefillFromVehicle(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, req.ContractID)
	assert.Equal(t, first.ID, *req.ContractID)
	assert.Equal(t, int64(3), req.BuyerID)
	assert.True(t, req.BaseAmount.Equal(decimal.NewFromInt(20000)))

	req.CompanyID = 1
	inv, err := fx.invoices.Create(ctx, req)
	require.NoError(t, err)
	assert.True(t, inv.Total.Equal(decimal.NewFromInt(24200)))
}

func TestInvoiceStatusAndOverdue(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	base := InvoiceRequest{
		CompanyID:     1,
		BuyerID:       3,
		Concept:       "Workshop",
		BaseAmount:    decimal.NewFromInt(300),
		PaymentMethod: models.PaymentCard,
	}
	late := base
	late.IssueDate = today.AddDate(0, -2, 0)
	late.DueDate = today.AddDate(0, -1, 0)

	current, err := fx.invoices.Create(ctx, base)
	require.NoError(t, err)
	overdue, err := fx.invoices.Create(ctx, late)
	require.NoError(t, err)

	n, err := fx.invoices.RefreshOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := fx.invoices.Get(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceOverdue, got.Status)

	paid, err := fx.invoices.MarkPaid(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, paid.Status)

	_, err = fx.invoices.Cancel(ctx, overdue.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cancelled, err := fx.invoices.Cancel(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, cancelled.Status)
}

func TestRenderInvoice(t *testing.T) {
	fx := newFixture()
	inv, err := fx.invoices.Create(context.Background(), InvoiceRequest{
		CompanyID:     1,
		BuyerID:       3,
		Concept:       "Sale of used vehicle",
		BaseAmount:    decimal.NewFromInt(20000),
		PaymentMethod: models.PaymentBankTransfer,
	})
	require.NoError(t, err)

	a, err := fx.invoices.Render(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Invoice_INV-2026-000001_2026-03-02.pdf", a.Name)
	assert.GreaterOrEqual(t, a.Pages, 1)

	_, err = fx.invoices.Render(context.Background(), 42)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.ErrorIs(t, err, database.ErrInvoiceNotFound)
}
