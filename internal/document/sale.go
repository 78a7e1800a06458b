package document

import (
	"fmt"
	"strconv"

	"github.com/safar/dealership/internal/finance"
	"github.com/safar/dealership/internal/models"
)

const (
	SectionBuyer    = "buyer"
	SectionPricing  = "pricing"
	SectionFinance  = "financing"
	SectionDelivery = "delivery"
)

// SaleSections is the fixed order of the internal sale sheet.
var SaleSections = []string{
	SectionHeader,
	SectionVehicle,
	SectionBuyer,
	SectionPricing,
	SectionFinance,
	SectionDelivery,
	SectionNotes,
}

// SaleSheet is a closed sale with the facts it was closed against.
type SaleSheet struct {
	Sale    models.SaleRecord
	Company models.CompanySnapshot
	Buyer   models.BuyerSnapshot
	Vehicle models.VehicleSnapshot
}

// SheetFor builds the sheet from the snapshots frozen on the record.
func SheetFor(rec models.SaleRecord) SaleSheet {
	return SaleSheet{
		Sale:    rec,
		Company: rec.Company,
		Buyer:   rec.Buyer,
		Vehicle: rec.Vehicle,
	}
}

func (s SaleSheet) reference() string {
	if s.Vehicle.Plate != "" {
		return s.Vehicle.Plate
	}
	return strconv.FormatInt(s.Sale.ID, 10)
}

func SaleLayout(s SaleSheet, f Formatter) Document {
	rec := s.Sale
	date := rec.DeliveryDate
	if date.IsZero() {
		date = rec.CreatedAt
	}

	return Document{
		Kind:      KindSale,
		Title:     "Sale sheet " + s.reference(),
		Reference: s.reference(),
		Date:      date,
		Footer:    joinNonEmpty(" · ", s.Company.LegalName, s.Company.TaxID),
		Sections: []Section{
			{Key: SectionHeader, Blocks: []Block{
				Paragraph{Text: "SALE SHEET", Bold: true, Large: true, Align: AlignCenter},
				Fields{Rows: []Field{
					{Label: "Sale", Value: fmt.Sprintf("#%d", rec.ID)},
					{Label: "Opportunity", Value: fmt.Sprintf("#%d", rec.OpportunityID)},
					{Label: "Closed on", Value: f.Date(rec.CreatedAt)},
					{Label: "Seller", Value: Text(s.Company.LegalName)},
				}},
			}},
			vehicleSection(s.Vehicle, f),
			{Key: SectionBuyer, Heading: "Buyer", Blocks: []Block{Fields{Rows: buyerRows(s.Buyer)}}},
			salePricing(rec, f),
			saleFinancing(rec, f),
			{Key: SectionDelivery, Heading: "Delivery and warranty", Blocks: []Block{
				Fields{Rows: []Field{
					{Label: "Delivery date", Value: f.Date(rec.DeliveryDate)},
					{Label: "Warranty", Value: warrantyLabel(rec.Warranty)},
				}},
			}},
			freeText(SectionNotes, "Notes", rec.Notes),
		},
	}
}

func salePricing(rec models.SaleRecord, f Formatter) Section {
	margin := finance.Margin(rec.FinalPrice, rec.CostTotal)
	return Section{Key: SectionPricing, Heading: "Pricing", Blocks: []Block{
		Fields{Rows: []Field{
			{Label: "List price", Value: f.Money(rec.ListPrice)},
			{Label: LabelDiscount, Value: f.Money(rec.Discount)},
			{Label: "Additional expenses", Value: f.Money(rec.AdditionalExpenses)},
			{Label: "Final price", Value: f.Money(rec.FinalPrice)},
			{Label: "Cost total", Value: f.Money(rec.CostTotal)},
			{Label: "Margin", Value: f.Money(margin)},
			{Label: "Margin %", Value: f.Percent(finance.MarginPercent(rec.FinalPrice, margin).Round(1))},
		}},
	}}
}

// saleFinancing labels every installment figure as an estimate.
func saleFinancing(rec models.SaleRecord, f Formatter) Section {
	rows := []Field{{Label: "Payment method", Value: paymentLabel(rec.PaymentMethod)}}
	if fin := rec.Financing; fin != nil && rec.PaymentMethod.NeedsFinancing() {
		plan := finance.Finance(rec.FinalPrice, fin.DownPayment, fin.InstallmentCount)
		installment := Placeholder
		if plan.Installment.Valid {
			installment = fmt.Sprintf("%s (%s)", f.Money(plan.Installment.Amount), plan.Installment.Label())
		}
		rows = append(rows,
			Field{Label: "Lender", Value: Text(fin.Lender)},
			Field{Label: "Down payment", Value: f.Money(fin.DownPayment)},
			Field{Label: "Amount to finance", Value: f.Money(plan.AmountToFinance)},
			Field{Label: "Installments", Value: strconv.Itoa(fin.InstallmentCount)},
			Field{Label: "Installment", Value: installment},
		)
	}
	return Section{Key: SectionFinance, Heading: "Payment", Blocks: []Block{Fields{Rows: rows}}}
}

func warrantyLabel(w models.Warranty) string {
	if !w.Covered() {
		return NoWarrantyText
	}
	return fmt.Sprintf("%d months, %s", w.Months, w.Kind())
}
