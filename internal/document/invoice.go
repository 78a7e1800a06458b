package document

import (
	"github.com/safar/dealership/internal/models"
)

const (
	SectionIssuer     = "issuer"
	SectionTitle      = "title"
	SectionBillTo     = "bill_to"
	SectionVehicleRef = "vehicle_description"
	SectionConcept    = "concept"
	SectionTaxSummary = "tax_summary"
	SectionPayment    = "payment"
	SectionFooter     = "footer"
)

// InvoiceSections is the fixed order of an invoice.
var InvoiceSections = []string{
	SectionIssuer,
	SectionTitle,
	SectionBillTo,
	SectionVehicleRef,
	SectionConcept,
	SectionTaxSummary,
	SectionPayment,
	SectionNotes,
	SectionFooter,
}

const LabelDiscount = "Discount"

func InvoiceLayout(inv models.Invoice, f Formatter) Document {
	co := inv.Company
	return Document{
		Kind:      KindInvoice,
		Title:     "Invoice " + inv.Number,
		Reference: inv.Number,
		Date:      inv.IssueDate,
		Footer:    joinNonEmpty(" · ", co.LegalName, co.TaxID),
		Sections: []Section{
			{Key: SectionIssuer, Blocks: []Block{
				Paragraph{Text: Text(co.LegalName), Bold: true},
				Paragraph{Text: Text(joinNonEmpty(" · ", co.TradeName, "Tax ID "+Text(co.TaxID)))},
				Paragraph{Text: Text(joinNonEmpty(", ", co.Address, co.Postal, co.City))},
				Paragraph{Text: Text(joinNonEmpty(" · ", co.Phone, co.Email))},
			}},
			{Key: SectionTitle, Blocks: []Block{
				Paragraph{Text: "INVOICE", Bold: true, Large: true, Align: AlignRight},
				Fields{Rows: []Field{
					{Label: "Number", Value: Text(inv.Number)},
					{Label: "Issue date", Value: f.Date(inv.IssueDate)},
					{Label: "Due date", Value: f.Date(inv.DueDate)},
				}},
			}},
			{Key: SectionBillTo, Heading: "Bill to", Blocks: []Block{
				Fields{Rows: buyerRows(inv.Buyer)[:3]},
			}},
			{Key: SectionVehicleRef, Heading: "Vehicle", Blocks: []Block{
				Paragraph{Text: Text(inv.VehicleDescription)},
			}},
			invoiceConcept(inv, f),
			invoiceTaxSummary(inv, f),
			invoicePayment(inv),
			freeText(SectionNotes, "Notes", inv.Notes),
			{Key: SectionFooter, Blocks: []Block{
				Paragraph{
					Text:  Text(joinNonEmpty(" · ", co.LegalName, "Tax ID "+Text(co.TaxID), co.Registry)),
					Align: AlignCenter,
				},
			}},
		},
	}
}

func invoiceConcept(inv models.Invoice, f Formatter) Section {
	t := Table{
		Columns: []Column{
			{Header: "Description", Width: 0.75, Align: AlignLeft},
			{Header: "Amount", Width: 0.25, Align: AlignRight},
		},
		Rows: [][]string{{Text(inv.Concept), f.Money(inv.BaseAmount)}},
	}
	if inv.Discount.IsPositive() {
		t.Rows = append(t.Rows, []string{LabelDiscount, f.Money(inv.Discount.Neg())})
	}
	return Section{Key: SectionConcept, Heading: "Concept", Blocks: []Block{t}}
}

func invoiceTaxSummary(inv models.Invoice, f Formatter) Section {
	fig := inv.Figures()
	rows := []Field{{Label: "Taxable base", Value: f.Money(fig.BaseAmount)}}
	if fig.Discount.IsPositive() {
		rows = append(rows, Field{Label: LabelDiscount, Value: f.Money(fig.Discount.Neg())})
	}
	rows = append(rows,
		taxRow(fig.TaxRate.Applicable(), f.TaxRate(fig.TaxRate), f.Money(fig.TaxAmount)),
		Field{Label: LabelTotal, Value: f.Money(fig.Total)},
	)
	return Section{Key: SectionTaxSummary, Heading: "Summary", Blocks: []Block{Fields{Rows: rows}}}
}

// invoicePayment shows bank details only for bank transfers.
func invoicePayment(inv models.Invoice) Section {
	rows := []Field{{Label: "Payment method", Value: paymentLabel(inv.PaymentMethod)}}
	if inv.PaymentMethod == models.PaymentBankTransfer {
		rows = append(rows,
			Field{Label: "Bank", Value: Text(inv.Company.BankName)},
			Field{Label: "IBAN", Value: Text(inv.Company.IBAN)},
		)
	}
	return Section{Key: SectionPayment, Heading: "Payment", Blocks: []Block{Fields{Rows: rows}}}
}
