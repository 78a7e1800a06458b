// Package finance is the single pricing, tax, margin and financing model used
// by the sale wizard, the contract generator and the invoice generator.
//
// Every figure is carried at full decimal precision. Rounding happens only when
// a value is formatted for a document. Nothing here returns an error: invalid
// input degrades to zero or to an absent value, and callers run the Validate
// functions before confirming anything.
package finance

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InstallmentLabel qualifies every installment figure shown to a user.
const InstallmentLabel = "estimate, no interest"

type Pricing struct {
	ListPrice          decimal.Decimal `json:"list_price"`
	Discount           decimal.Decimal `json:"discount"`
	AdditionalExpenses decimal.Decimal `json:"additional_expenses"`
}

type Costs struct {
	AcquisitionCost     decimal.Decimal `json:"acquisition_cost"`
	AcquisitionExpenses decimal.Decimal `json:"acquisition_expenses"`
	RepairCost          decimal.Decimal `json:"repair_cost"`
}

func FinalPrice(p Pricing) decimal.Decimal {
	return p.ListPrice.Sub(p.Discount).Add(p.AdditionalExpenses)
}

func CostTotal(c Costs) decimal.Decimal {
	return c.AcquisitionCost.Add(c.AcquisitionExpenses).Add(c.RepairCost)
}

func Margin(finalPrice, costTotal decimal.Decimal) decimal.Decimal {
	return finalPrice.Sub(costTotal)
}

// MarginPercent is zero when finalPrice is not positive.
func MarginPercent(finalPrice, margin decimal.Decimal) decimal.Decimal {
	if !finalPrice.IsPositive() {
		return decimal.Zero
	}
	return margin.Div(finalPrice).Mul(hundred)
}

// TaxAmount is zero for the not-applicable rate.
func TaxAmount(base decimal.Decimal, rate TaxRate) decimal.Decimal {
	if !rate.Applicable() {
		return decimal.Zero
	}
	return base.Mul(rate.Percent()).Div(hundred)
}

func Total(base, discount, tax decimal.Decimal) decimal.Decimal {
	return base.Sub(discount).Add(tax)
}

// Installment is an optional flat-division estimate.
type Installment struct {
	Amount decimal.Decimal `json:"amount"`
	Valid  bool            `json:"valid"`
}

func (i Installment) Label() string { return InstallmentLabel }

type FinancingPlan struct {
	AmountToFinance  decimal.Decimal `json:"amount_to_finance"`
	InstallmentCount int             `json:"installment_count"`
	Installment      Installment     `json:"installment"`
}

// Finance splits finalPrice into a down payment and equal installments. This
// is not an amortization schedule; no interest is applied.
func Finance(finalPrice, downPayment decimal.Decimal, installmentCount int) FinancingPlan {
	plan := FinancingPlan{
		AmountToFinance:  finalPrice.Sub(downPayment),
		InstallmentCount: installmentCount,
	}
	if installmentCount > 0 {
		plan.Installment = Installment{
			Amount: plan.AmountToFinance.Div(decimal.NewFromInt(int64(installmentCount))),
			Valid:  true,
		}
	}
	return plan
}

// SaleFigures is what the sale wizard shows while the user edits inputs.
type SaleFigures struct {
	FinalPrice    decimal.Decimal `json:"final_price"`
	CostTotal     decimal.Decimal `json:"cost_total"`
	Margin        decimal.Decimal `json:"margin"`
	MarginPercent decimal.Decimal `json:"margin_percent"`
}

func Sale(p Pricing, c Costs) SaleFigures {
	final := FinalPrice(p)
	cost := CostTotal(c)
	margin := Margin(final, cost)
	return SaleFigures{
		FinalPrice:    final,
		CostTotal:     cost,
		Margin:        margin,
		MarginPercent: MarginPercent(final, margin),
	}
}

// ContractTerms are the economic terms printed on a contract. The agreed
// price already includes any discount, so Total has no discount line.
type ContractTerms struct {
	PriceExclTax decimal.Decimal `json:"price_excl_tax"`
	TaxRate      TaxRate         `json:"tax_rate"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Total        decimal.Decimal `json:"total"`
}

func Contract(priceExclTax decimal.Decimal, rate TaxRate) ContractTerms {
	tax := TaxAmount(priceExclTax, rate)
	return ContractTerms{
		PriceExclTax: priceExclTax,
		TaxRate:      rate,
		TaxAmount:    tax,
		Total:        Total(priceExclTax, decimal.Zero, tax),
	}
}

type InvoiceFigures struct {
	BaseAmount decimal.Decimal `json:"base_amount"`
	Discount   decimal.Decimal `json:"discount"`
	TaxRate    TaxRate         `json:"tax_rate"`
	TaxAmount  decimal.Decimal `json:"tax_amount"`
	Total      decimal.Decimal `json:"total"`
}

// Invoice computes tax on the base amount and subtracts the discount from the
// total.
func Invoice(base, discount decimal.Decimal, rate TaxRate) InvoiceFigures {
	tax := TaxAmount(base, rate)
	return InvoiceFigures{
		BaseAmount: base,
		Discount:   discount,
		TaxRate:    rate,
		TaxAmount:  tax,
		Total:      Total(base, discount, tax),
	}
}
