package models

import (
	"time"

	"github.com/safar/dealership/internal/finance"
	"github.com/shopspring/decimal"
)

type VehicleState string

const (
	VehicleAvailable VehicleState = "available"
	VehicleReserved  VehicleState = "reserved"
	VehicleSold      VehicleState = "sold"
)

type Vehicle struct {
	ID                  int64           `json:"id"`
	Make                string          `json:"make"`
	Model               string          `json:"model"`
	Version             string          `json:"version,omitempty"`
	Plate               string          `json:"plate,omitempty"`
	VIN                 string          `json:"vin,omitempty"`
	FirstRegistration   *time.Time      `json:"first_registration,omitempty"`
	Mileage             int             `json:"mileage"`
	AcquisitionCost     decimal.Decimal `json:"acquisition_cost"`
	AcquisitionExpenses decimal.Decimal `json:"acquisition_expenses"`
	RepairCost          decimal.Decimal `json:"repair_cost"`
	ListPrice           decimal.Decimal `json:"list_price"`
	Discount            decimal.Decimal `json:"discount"`
	State               VehicleState    `json:"state"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	RowVersion          int             `json:"row_version"`
}

func (v Vehicle) Costs() finance.Costs {
	return finance.Costs{
		AcquisitionCost:     v.AcquisitionCost,
		AcquisitionExpenses: v.AcquisitionExpenses,
		RepairCost:          v.RepairCost,
	}
}

func (v Vehicle) Snapshot() VehicleSnapshot {
	return VehicleSnapshot{
		Make:              v.Make,
		Model:             v.Model,
		Version:           v.Version,
		Plate:             v.Plate,
		VIN:               v.VIN,
		FirstRegistration: v.FirstRegistration,
		Mileage:           v.Mileage,
	}
}

type Company struct {
	ID        int64     `json:"id"`
	LegalName string    `json:"legal_name"`
	TradeName string    `json:"trade_name,omitempty"`
	TaxID     string    `json:"tax_id"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Postal    string    `json:"postal_code"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	BankName  string    `json:"bank_name,omitempty"`
	IBAN      string    `json:"iban,omitempty"`
	Registry  string    `json:"registry,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Company) Snapshot() CompanySnapshot {
	return CompanySnapshot{
		LegalName: c.LegalName,
		TradeName: c.TradeName,
		TaxID:     c.TaxID,
		Address:   c.Address,
		City:      c.City,
		Postal:    c.Postal,
		Phone:     c.Phone,
		Email:     c.Email,
		BankName:  c.BankName,
		IBAN:      c.IBAN,
		Registry:  c.Registry,
	}
}

// Person is a buyer's identity and fiscal data.
type Person struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	TaxID     string    `json:"tax_id"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Postal    string    `json:"postal_code"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Person) Snapshot() BuyerSnapshot {
	return BuyerSnapshot{
		FullName: p.FullName,
		TaxID:    p.TaxID,
		Address:  p.Address,
		City:     p.City,
		Postal:   p.Postal,
		Phone:    p.Phone,
		Email:    p.Email,
	}
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentFinancing    PaymentMethod = "financing"
	PaymentLeasing      PaymentMethod = "leasing"
	PaymentRenting      PaymentMethod = "renting"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
)

var paymentLabels = map[PaymentMethod]string{
	PaymentCash:         "Cash",
	PaymentFinancing:    "Financing",
	PaymentLeasing:      "Leasing",
	PaymentRenting:      "Renting",
	PaymentBankTransfer: "Bank transfer",
	PaymentCard:         "Card",
}

func (p PaymentMethod) Valid() bool {
	_, ok := paymentLabels[p]
	return ok
}

// ForSale reports whether p can settle a vehicle sale.
func (p PaymentMethod) ForSale() bool {
	switch p {
	case PaymentCash, PaymentFinancing, PaymentLeasing, PaymentRenting:
		return true
	}
	return false
}

// NeedsFinancing reports whether a sale paid with p carries financing detail.
func (p PaymentMethod) NeedsFinancing() bool {
	return p.ForSale() && p != PaymentCash
}

func (p PaymentMethod) Label() string {
	if l, ok := paymentLabels[p]; ok {
		return l
	}
	return string(p)
}

type Financing struct {
	DownPayment      decimal.Decimal `json:"down_payment"`
	InstallmentCount int             `json:"installment_count"`
	Lender           string          `json:"lender"`
}

type Warranty struct {
	Extended bool `json:"extended"`
	Months   int  `json:"months"`
}

// Covered is false for a vehicle sold without warranty.
func (w Warranty) Covered() bool { return w.Months > 0 }

func (w Warranty) Kind() string {
	if w.Extended {
		return "extended"
	}
	return "standard"
}

// SaleRecord freezes the figures agreed when an opportunity was closed,
// together with the seller, buyer and vehicle as they were at that moment.
type SaleRecord struct {
	ID                 int64           `json:"id"`
	OpportunityID      int64           `json:"opportunity_id"`
	VehicleID          int64           `json:"vehicle_id"`
	BuyerID            int64           `json:"buyer_id"`
	CompanyID          int64           `json:"company_id"`
	Company            CompanySnapshot `json:"company"`
	Buyer              BuyerSnapshot   `json:"buyer"`
	Vehicle            VehicleSnapshot `json:"vehicle"`
	ListPrice          decimal.Decimal `json:"list_price"`
	Discount           decimal.Decimal `json:"discount"`
	AdditionalExpenses decimal.Decimal `json:"additional_expenses"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	CostTotal          decimal.Decimal `json:"cost_total"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	Financing          *Financing      `json:"financing,omitempty"`
	DeliveryDate       time.Time       `json:"delivery_date"`
	Warranty           Warranty        `json:"warranty"`
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (s SaleRecord) Pricing() finance.Pricing {
	return finance.Pricing{
		ListPrice:          s.ListPrice,
		Discount:           s.Discount,
		AdditionalExpenses: s.AdditionalExpenses,
	}
}

type ContractStatus string

const (
	ContractDraft     ContractStatus = "draft"
	ContractSigned    ContractStatus = "signed"
	ContractCancelled ContractStatus = "cancelled"
)

type Contract struct {
	ID                int64           `json:"id"`
	Number            string          `json:"number"`
	VehicleID         int64           `json:"vehicle_id"`
	BuyerID           int64           `json:"buyer_id"`
	SaleRecordID      *int64          `json:"sale_record_id,omitempty"`
	Company           CompanySnapshot `json:"company"`
	Buyer             BuyerSnapshot   `json:"buyer"`
	Vehicle           VehicleSnapshot `json:"vehicle"`
	PriceExclTax      decimal.Decimal `json:"price_excl_tax"`
	TaxRate           finance.TaxRate `json:"tax_rate"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	Total             decimal.Decimal `json:"total"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Warranty          Warranty        `json:"warranty"`
	SignedOn          time.Time       `json:"signed_on"`
	SignedPlace       string          `json:"signed_place"`
	Documentation     Checklist       `json:"documentation"`
	AdditionalClauses string          `json:"additional_clauses,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Status            ContractStatus  `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (c Contract) Terms() finance.ContractTerms {
	return finance.ContractTerms{
		PriceExclTax: c.PriceExclTax,
		TaxRate:      c.TaxRate,
		TaxAmount:    c.TaxAmount,
		Total:        c.Total,
	}
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceOverdue   InvoiceStatus = "overdue"
)

type Invoice struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	IssueDate          time.Time       `json:"issue_date"`
	DueDate            time.Time       `json:"due_date"`
	Company            CompanySnapshot `json:"company"`
	ContractID         *int64          `json:"contract_id,omitempty"`
	VehicleID          *int64          `json:"vehicle_id,omitempty"`
	BuyerID            int64           `json:"buyer_id"`
	Buyer              BuyerSnapshot   `json:"buyer"`
	VehicleDescription string          `json:"vehicle_description,omitempty"`
	Concept            string          `json:"concept"`
	BaseAmount         decimal.Decimal `json:"base_amount"`
	Discount           decimal.Decimal `json:"discount"`
	TaxRate            finance.TaxRate `json:"tax_rate"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	Total              decimal.Decimal `json:"total"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	Status             InvoiceStatus   `json:"status"`
	Notes              string          `json:"notes,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (i Invoice) Figures() finance.InvoiceFigures {
	return finance.InvoiceFigures{
		BaseAmount: i.BaseAmount,
		Discount:   i.Discount,
		TaxRate:    i.TaxRate,
		TaxAmount:  i.TaxAmount,
		Total:      i.Total,
	}
}
