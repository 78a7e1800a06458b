package document

import (
	"fmt"
	"strings"

	"github.com/safar/dealership/internal/models"
)

const (
	SectionHeader        = "header"
	SectionParties       = "parties"
	SectionVehicle       = "vehicle"
	SectionTerms         = "terms"
	SectionWarranty      = "warranty"
	SectionDocumentation = "documentation"
	SectionClauses       = "clauses"
	SectionAdditional    = "additional_clauses"
	SectionNotes         = "notes"
	SectionSignatures    = "signatures"
)

// ContractSections is the fixed order of a contract.
var ContractSections = []string{
	SectionHeader,
	SectionParties,
	SectionVehicle,
	SectionTerms,
	SectionWarranty,
	SectionDocumentation,
	SectionClauses,
	SectionAdditional,
	SectionNotes,
	SectionSignatures,
}

const (
	LabelTax       = "VAT"
	LabelTotal     = "Total"
	NoWarrantyText = "The vehicle is sold without warranty."
)

var contractClauses = []string{
	"OWNERSHIP TRANSFER. The seller transfers to the buyer full ownership of the vehicle described above, " +
		"free of charges, liens and encumbrances, upon payment of the agreed price.",
	"CONDITION OF THE VEHICLE. The buyer declares having inspected the vehicle, knowing its condition, " +
		"mileage and use, and accepts it in the state in which it is delivered.",
	"TITLE WARRANTY. The seller warrants that it is the lawful owner of the vehicle and that no third " +
		"party holds any right over it that could prevent or limit this sale.",
	"TRANSFER COSTS. The costs of registering the change of ownership are borne by the buyer unless " +
		"otherwise agreed in writing; taxes arising before signing are borne by the seller.",
	"TRANSFER OF RISK. From the moment of signing, the buyer assumes all liability arising from the " +
		"possession and use of the vehicle, including fines and accidents.",
}

func ContractLayout(c models.Contract, f Formatter) Document {
	date := c.SignedOn
	if date.IsZero() {
		date = c.CreatedAt
	}

	return Document{
		Kind:      KindContract,
		Title:     "Vehicle Sale Contract " + c.Number,
		Reference: c.Number,
		Date:      date,
		Footer:    joinNonEmpty(" · ", c.Company.LegalName, c.Company.TaxID),
		Sections: []Section{
			contractHeader(c, f),
			contractParties(c),
			vehicleSection(c.Vehicle, f),
			contractTerms(c, f),
			warrantySection(c.Warranty),
			documentationSection(c.Documentation),
			{Key: SectionClauses, Heading: "Clauses", Blocks: clauseBlocks()},
			freeText(SectionAdditional, "Additional clauses", c.AdditionalClauses),
			freeText(SectionNotes, "Notes", c.Notes),
			{Key: SectionSignatures, Heading: "Signatures", Blocks: []Block{
				Signatures{Parties: []Signatory{
					{Role: "The seller", Name: Text(c.Company.LegalName)},
					{Role: "The buyer", Name: Text(c.Buyer.FullName)},
				}},
			}},
		},
	}
}

func contractHeader(c models.Contract, f Formatter) Section {
	return Section{Key: SectionHeader, Blocks: []Block{
		Paragraph{Text: "VEHICLE SALE CONTRACT", Bold: true, Large: true, Align: AlignCenter},
		Paragraph{Text: fmt.Sprintf("In %s, on %s", Text(c.SignedPlace), f.Date(c.SignedOn)), Align: AlignRight},
		Fields{Rows: []Field{{Label: "Contract number", Value: Text(c.Number)}}},
	}}
}

func contractParties(c models.Contract) Section {
	co, b := c.Company, c.Buyer
	return Section{Key: SectionParties, Heading: "Parties", Blocks: []Block{
		Paragraph{Text: "Seller", Bold: true},
		Fields{Rows: []Field{
			{Label: "Company", Value: Text(co.LegalName)},
			{Label: "Trade name", Value: Text(co.TradeName)},
			{Label: "Tax ID", Value: Text(co.TaxID)},
			{Label: "Address", Value: Text(joinNonEmpty(", ", co.Address, co.Postal, co.City))},
			{Label: "Registry", Value: Text(co.Registry)},
		}},
		Paragraph{Text: "Buyer", Bold: true},
		Fields{Rows: buyerRows(b)},
	}}
}

func buyerRows(b models.BuyerSnapshot) []Field {
	return []Field{
		{Label: "Name", Value: Text(b.FullName)},
		{Label: "Tax ID", Value: Text(b.TaxID)},
		{Label: "Address", Value: Text(joinNonEmpty(", ", b.Address, b.Postal, b.City))},
		{Label: "Phone", Value: Text(b.Phone)},
		{Label: "Email", Value: Text(b.Email)},
	}
}

func vehicleSection(v models.VehicleSnapshot, f Formatter) Section {
	return Section{Key: SectionVehicle, Heading: "Vehicle", Blocks: []Block{
		Fields{Rows: []Field{
			{Label: "Make / model", Value: Text(joinNonEmpty(" ", v.Make, v.Model, v.Version))},
			{Label: "Plate", Value: Text(v.Plate)},
			{Label: "VIN", Value: Text(v.VIN)},
			{Label: "First registration", Value: f.DatePtr(v.FirstRegistration)},
			{Label: "Mileage", Value: f.Kilometres(v.Mileage)},
		}},
	}}
}

func contractTerms(c models.Contract, f Formatter) Section {
	terms := c.Terms()
	rows := []Field{{Label: "Price excl. tax", Value: f.Money(terms.PriceExclTax)}}
	rows = append(rows, taxRow(terms.TaxRate.Applicable(), f.TaxRate(terms.TaxRate), f.Money(terms.TaxAmount)))
	rows = append(rows,
		Field{Label: LabelTotal, Value: f.Money(terms.Total)},
		Field{Label: "Amount in words", Value: f.MoneyWords(terms.Total)},
		Field{Label: "Payment method", Value: paymentLabel(c.PaymentMethod)},
	)
	return Section{Key: SectionTerms, Heading: "Economic terms", Blocks: []Block{Fields{Rows: rows}}}
}

// taxRow prints the rate and amount, or only the not-applicable label.
func taxRow(applicable bool, rate, amount string) Field {
	if !applicable {
		return Field{Label: LabelTax, Value: rate}
	}
	return Field{Label: LabelTax + " " + rate, Value: amount}
}

func paymentLabel(m models.PaymentMethod) string {
	if m == "" {
		return Placeholder
	}
	return m.Label()
}

func warrantySection(w models.Warranty) Section {
	text := NoWarrantyText
	if w.Covered() {
		text = fmt.Sprintf("The seller grants a %s warranty of %d months from delivery, covering the engine, "+
			"gearbox and electrical system under the terms required by law.", w.Kind(), w.Months)
	}
	return Section{Key: SectionWarranty, Heading: "Warranty", Blocks: []Block{Paragraph{Text: text}}}
}

func documentationSection(items models.Checklist) Section {
	if len(items) == 0 {
		items = models.DefaultDocumentation()
	}
	list := Checklist{Items: make([]CheckItem, len(items))}
	for i, it := range items {
		list.Items[i] = CheckItem{Label: Text(it.Label), Checked: it.Delivered}
	}
	return Section{Key: SectionDocumentation, Heading: "Documentation delivered", Blocks: []Block{list}}
}

func clauseBlocks() []Block {
	blocks := make([]Block, len(contractClauses))
	for i, c := range contractClauses {
		blocks[i] = Paragraph{Text: fmt.Sprintf("%d. %s", i+1, c)}
	}
	return blocks
}

func freeText(key, heading, text string) Section {
	return Section{Key: key, Heading: heading, Blocks: []Block{
		Paragraph{Text: Text(strings.ReplaceAll(text, "\r\n", "\n"))},
	}}
}
