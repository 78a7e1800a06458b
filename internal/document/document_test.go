package document

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signed = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)

func sampleContract() models.Contract {
	reg := time.Date(2019, time.May, 14, 0, 0, 0, 0, time.UTC)
	return models.Contract{
		ID:     1,
		Number: "CTR-2026-000001",
		Company: models.CompanySnapshot{
			LegalName: "Autos Safar SL",
			TaxID:     "B12345678",
			Address:   "Calle Mayor 1",
			City:      "Valencia",
			Postal:    "46001",
			BankName:  "Banco Norte",
			IBAN:      "ES91 2100 0418 4502 0005 1332",
		},
		Buyer: models.BuyerSnapshot{FullName: "Lucía Pérez", TaxID: "12345678Z", City: "Valencia"},
		Vehicle: models.VehicleSnapshot{
			Make:              "Seat",
			Model:             "León",
			Version:           "1.5 TSI",
			Plate:             "1234 ABC",
			VIN:               "VSSZZZ5FZKR000001",
			FirstRegistration: &reg,
			Mileage:           85000,
		},
		PriceExclTax:  decimal.NewFromInt(20000),
		TaxRate:       finance.Rate(decimal.NewFromInt(21)),
		TaxAmount:     decimal.NewFromInt(4200),
		Total:         decimal.NewFromInt(24200),
		PaymentMethod: models.PaymentCash,
		Warranty:      models.Warranty{Months: 12},
		SignedOn:      signed,
		SignedPlace:   "Valencia",
		Status:        models.ContractSigned,
	}
}

func sampleInvoice() models.Invoice {
	contractID := int64(1)
	return models.Invoice{
		ID:                 1,
		Number:             "INV-2026-000001",
		IssueDate:          signed,
		DueDate:            signed.AddDate(0, 0, 30),
		Company:            sampleContract().Company,
		ContractID:         &contractID,
		Buyer:              models.BuyerSnapshot{FullName: "Lucía Pérez", TaxID: "12345678Z"},
		VehicleDescription: "Seat León 1.5 TSI (1234 ABC)",
		Concept:            "Sale of used vehicle",
		BaseAmount:         decimal.NewFromInt(20000),
		TaxRate:            finance.Rate(decimal.NewFromInt(21)),
		TaxAmount:          decimal.NewFromInt(4200),
		Total:              decimal.NewFromInt(24200),
		PaymentMethod:      models.PaymentCash,
		Status:             models.InvoicePending,
	}
}

func allTexts(d Document) string {
	var parts []string
	for _, s := range d.Sections {
		parts = append(parts, s.Texts()...)
	}
	return strings.Join(parts, "\n")
}

func fieldsOf(t *testing.T, d Document, key string) Fields {
	t.Helper()
	s, ok := d.Section(key)
	require.True(t, ok, key)
	var out Fields
	for _, b := range s.Blocks {
		if f, ok := b.(Fields); ok {
			out.Rows = append(out.Rows, f.Rows...)
		}
	}
	return out
}

func TestContractSectionOrder(t *testing.T) {
	doc := ContractLayout(sampleContract(), DefaultFormatter())
	assert.Equal(t, ContractSections, doc.Keys())
	assert.Equal(t, KindContract, doc.Kind)
	assert.Equal(t, "CTR-2026-000001", doc.Reference)
}

func TestEmptyContractKeepsEverySection(t *testing.T) {
	doc := ContractLayout(models.Contract{}, DefaultFormatter())
	assert.Equal(t, ContractSections, doc.Keys())

	for _, key := range []string{SectionAdditional, SectionNotes} {
		s, _ := doc.Section(key)
		assert.Contains(t, s.Texts(), Placeholder, key)
	}
	buyer := fieldsOf(t, doc, SectionParties)
	name, _ := buyer.Value("Name")
	assert.Equal(t, Placeholder, name)

	docs, _ := doc.Section(SectionDocumentation)
	list := docs.Blocks[0].(Checklist)
	assert.Len(t, list.Items, len(models.DefaultDocumentation()))

	warranty, _ := doc.Section(SectionWarranty)
	assert.Contains(t, warranty.Texts(), NoWarrantyText)
}

func TestContractTerms(t *testing.T) {
	doc := ContractLayout(sampleContract(), DefaultFormatter())
	terms := fieldsOf(t, doc, SectionTerms)

	tax, ok := terms.Value("VAT 21%")
	require.True(t, ok)
	assert.Equal(t, "4.200,00 €", tax)
	total, _ := terms.Value(LabelTotal)
	assert.Equal(t, "24.200,00 €", total)
	method, _ := terms.Value("Payment method")
	assert.Equal(t, "Cash", method)

	vehicle := fieldsOf(t, doc, SectionVehicle)
	mileage, _ := vehicle.Value("Mileage")
	assert.Equal(t, "85.000 km", mileage)
	first, _ := vehicle.Value("First registration")
	assert.Equal(t, "14/05/2019", first)
}

func TestNotApplicableTaxNeverPrintsZeroPercent(t *testing.T) {
	c := sampleContract()
	c.TaxRate = finance.NotApplicable
	terms := finance.Contract(c.PriceExclTax, c.TaxRate)
	c.TaxAmount, c.Total = terms.TaxAmount, terms.Total

	doc := ContractLayout(c, DefaultFormatter())
	fields := fieldsOf(t, doc, SectionTerms)
	label, ok := fields.Value(LabelTax)
	require.True(t, ok)
	assert.Equal(t, "not applicable", label)
	total, _ := fields.Value(LabelTotal)
	assert.Equal(t, "20.000,00 €", total)
	assert.NotContains(t, allTexts(doc), "0%")

	inv := sampleInvoice()
	fig := finance.Invoice(inv.BaseAmount, inv.Discount, finance.NotApplicable)
	inv.TaxRate, inv.TaxAmount, inv.Total = fig.TaxRate, fig.TaxAmount, fig.Total
	idoc := InvoiceLayout(inv, DefaultFormatter())
	summary := fieldsOf(t, idoc, SectionTaxSummary)
	label, _ = summary.Value(LabelTax)
	assert.Equal(t, "not applicable", label)
	total, _ = summary.Value(LabelTotal)
	assert.Equal(t, "20.000,00 €", total)
	assert.NotContains(t, allTexts(idoc), "0%")
}

func TestInvoiceSectionOrder(t *testing.T) {
	doc := InvoiceLayout(sampleInvoice(), DefaultFormatter())
	assert.Equal(t, InvoiceSections, doc.Keys())
	assert.Equal(t, InvoiceSections, InvoiceLayout(models.Invoice{}, DefaultFormatter()).Keys())

	title := fieldsOf(t, doc, SectionTitle)
	due, _ := title.Value("Due date")
	assert.Equal(t, "01/04/2026", due)
}

func TestInvoiceDiscountLineOnlyWhenPositive(t *testing.T) {
	inv := sampleInvoice()
	doc := InvoiceLayout(inv, DefaultFormatter())
	concept, _ := doc.Section(SectionConcept)
	assert.Len(t, concept.Blocks[0].(Table).Rows, 1)

	inv.Discount = decimal.NewFromInt(500)
	doc = InvoiceLayout(inv, DefaultFormatter())
	concept, _ = doc.Section(SectionConcept)
	rows := concept.Blocks[0].(Table).Rows
	require.Len(t, rows, 2)
	assert.Equal(t, []string{LabelDiscount, "-500,00 €"}, rows[1])
}

func TestInvoiceBankDetailsOnlyForTransfers(t *testing.T) {
	inv := sampleInvoice()
	payment := fieldsOf(t, InvoiceLayout(inv, DefaultFormatter()), SectionPayment)
	_, ok := payment.Value("IBAN")
	assert.False(t, ok)

	inv.PaymentMethod = models.PaymentBankTransfer
	payment = fieldsOf(t, InvoiceLayout(inv, DefaultFormatter()), SectionPayment)
	iban, ok := payment.Value("IBAN")
	assert.True(t, ok)
	assert.Equal(t, inv.Company.IBAN, iban)
}

func TestSaleSheetLabelsInstallmentAsEstimate(t *testing.T) {
	sheet := SaleSheet{
		Sale: models.SaleRecord{
			ID:                 4,
			OpportunityID:      1,
			ListPrice:          decimal.NewFromInt(24900),
			Discount:           decimal.NewFromInt(500),
			AdditionalExpenses: decimal.NewFromInt(150),
			FinalPrice:         decimal.NewFromInt(24550),
			CostTotal:          decimal.NewFromInt(18500),
			PaymentMethod:      models.PaymentFinancing,
			Financing: &models.Financing{
				DownPayment:      decimal.NewFromInt(2000),
				InstallmentCount: 48,
				Lender:           "Banco Norte",
			},
			DeliveryDate: signed,
		},
		Vehicle: sampleContract().Vehicle,
	}

	doc := SaleLayout(sheet, DefaultFormatter())
	assert.Equal(t, SaleSections, doc.Keys())
	assert.Equal(t, "1234 ABC", doc.Reference)

	fin := fieldsOf(t, doc, SectionFinance)
	installment, _ := fin.Value("Installment")
	assert.Equal(t, "469,79 € (estimate, no interest)", installment)
	amount, _ := fin.Value("Amount to finance")
	assert.Equal(t, "22.550,00 €", amount)

	pricing := fieldsOf(t, doc, SectionPricing)
	margin, _ := pricing.Value("Margin")
	assert.Equal(t, "6.050,00 €", margin)
	pct, _ := pricing.Value("Margin %")
	assert.Equal(t, "24,6%", pct)
}

func TestRenderIsReproducible(t *testing.T) {
	r := NewPDFRenderer()
	doc := ContractLayout(sampleContract(), DefaultFormatter())

	first, pages, err := r.Render(doc)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pages, 1)
	assert.True(t, bytes.HasPrefix(first, []byte("%PDF-")))

	second, _, err := r.Render(ContractLayout(sampleContract(), DefaultFormatter()))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second), "re-rendering the same contract changed the output")

	inv1, _, err := r.Render(InvoiceLayout(sampleInvoice(), DefaultFormatter()))
	require.NoError(t, err)
	inv2, _, err := r.Render(InvoiceLayout(sampleInvoice(), DefaultFormatter()))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(inv1, inv2))
}

func TestLongClausesFlowOntoMorePages(t *testing.T) {
	r := NewPDFRenderer()

	_, shortPages, err := r.Render(ContractLayout(sampleContract(), DefaultFormatter()))
	require.NoError(t, err)

	c := sampleContract()
	c.AdditionalClauses = strings.Repeat("The buyer accepts the vehicle with the tyres replaced before delivery. ", 400)
	c.Notes = strings.Repeat("Pending second key.\n", 60)
	doc := ContractLayout(c, DefaultFormatter())

	_, longPages, err := r.Render(doc)
	require.NoError(t, err)
	assert.Greater(t, longPages, shortPages)
	assert.Equal(t, ContractSections, doc.Keys())
}

func TestRenderEmptyRecordsDoesNotFail(t *testing.T) {
	r := NewPDFRenderer()
	for _, doc := range []Document{
		ContractLayout(models.Contract{}, DefaultFormatter()),
		InvoiceLayout(models.Invoice{}, DefaultFormatter()),
		SaleLayout(SaleSheet{}, DefaultFormatter()),
	} {
		data, pages, err := r.Render(doc)
		require.NoError(t, err, doc.Kind)
		assert.NotEmpty(t, data)
		assert.GreaterOrEqual(t, pages, 1)
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "Contract_CTR-2026-000001_2026-03-02.pdf", FileName(KindContract, "CTR-2026-000001", signed))
	assert.Equal(t, "Sale_1234-ABC_2026-03-02.pdf", FileName(KindSale, "1234 ABC", signed))
	assert.Equal(t, "Invoice_unnumbered_2000-01-01.pdf", FileName(KindInvoice, "", time.Time{}))
}

type blockingRenderer struct {
	release chan struct{}
}

func (b blockingRenderer) Render(doc Document) ([]byte, int, error) {
	<-b.release
	return []byte("x"), 1, nil
}

func TestProjectorStopsWaitingOnCancel(t *testing.T) {
	br := blockingRenderer{release: make(chan struct{})}
	defer close(br.release)
	p := NewProjector(br, DefaultFormatter(), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.RenderContract(ctx, sampleContract())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProjectorSavesArtifact(t *testing.T) {
	p := NewProjector(NewPDFRenderer(), DefaultFormatter(), zerolog.Nop())

	a, err := p.RenderInvoice(context.Background(), sampleInvoice())
	require.NoError(t, err)
	assert.Equal(t, "Invoice_INV-2026-000001_2026-03-02.pdf", a.Name)
	assert.Equal(t, KindInvoice, a.Kind)

	dir := filepath.Join(t.TempDir(), "out")
	path, err := a.Save(dir)
	require.NoError(t, err)

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.Data, saved)
}
