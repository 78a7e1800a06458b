package finance

import (
	"errors"

	"github.com/safar/dealership/internal/apperr"
	"github.com/shopspring/decimal"
)

// moneyPlaces is the precision amounts are captured and stored at.
const moneyPlaces = 2

func nonNegative(v apperr.Violations, field string, d decimal.Decimal) {
	if d.IsNegative() {
		v.Add(field, "must_not_be_negative")
		return
	}
	if !d.Equal(d.Round(moneyPlaces)) {
		v.Add(field, "too_many_decimals")
	}
}

// ValidatePricing rejects negative inputs and discounts that would push the
// final price below zero.
func ValidatePricing(p Pricing) error {
	v := apperr.Violations{}
	nonNegative(v, "list_price", p.ListPrice)
	nonNegative(v, "discount", p.Discount)
	nonNegative(v, "additional_expenses", p.AdditionalExpenses)
	if p.Discount.GreaterThan(p.ListPrice.Add(p.AdditionalExpenses)) {
		v.Add("discount", "exceeds_price")
	}
	return v.Err()
}

func ValidateCosts(c Costs) error {
	v := apperr.Violations{}
	nonNegative(v, "acquisition_cost", c.AcquisitionCost)
	nonNegative(v, "acquisition_expenses", c.AcquisitionExpenses)
	nonNegative(v, "repair_cost", c.RepairCost)
	return v.Err()
}

func ValidateFinancing(finalPrice, downPayment decimal.Decimal, installmentCount int) error {
	v := apperr.Violations{}
	nonNegative(v, "down_payment", downPayment)
	if downPayment.GreaterThan(finalPrice) {
		v.Add("down_payment", "exceeds_final_price")
	}
	if installmentCount < 0 {
		v.Add("installment_count", "must_not_be_negative")
	}
	return v.Err()
}

func ValidateTaxRate(r TaxRate) error {
	if !r.Applicable() {
		return nil
	}
	p := r.Percent()
	if p.IsNegative() || p.GreaterThan(hundred) {
		return apperr.NewValidationError("tax_rate", "out_of_range")
	}
	if !p.Equal(p.Round(moneyPlaces)) {
		return apperr.NewValidationError("tax_rate", "too_many_decimals")
	}
	return nil
}

// rateViolation copies the tax rate code into v.
func rateViolation(v apperr.Violations, r TaxRate) {
	var ve *apperr.ValidationError
	if err := ValidateTaxRate(r); errors.As(err, &ve) {
		code, _ := ve.Field("tax_rate")
		v.Add("tax_rate", code)
	}
}

func ValidateInvoice(base, discount decimal.Decimal, rate TaxRate) error {
	v := apperr.Violations{}
	nonNegative(v, "base_amount", base)
	nonNegative(v, "discount", discount)
	if discount.GreaterThan(base) {
		v.Add("discount", "exceeds_base_amount")
	}
	rateViolation(v, rate)
	return v.Err()
}

func ValidateContract(priceExclTax decimal.Decimal, rate TaxRate) error {
	v := apperr.Violations{}
	nonNegative(v, "price_excl_tax", priceExclTax)
	rateViolation(v, rate)
	return v.Err()
}
