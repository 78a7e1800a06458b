package finance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// NotApplicableLabel is printed wherever a document would otherwise show a
// tax percentage for an exempt operation.
const NotApplicableLabel = "not applicable"

// NotApplicableCode is the wire form of the exempt rate.
const NotApplicableCode = "not_applicable"

// TaxRate is a VAT percentage or the "not applicable" sentinel. The zero
// value is the sentinel, so an exempt rate never prints as "0%".
type TaxRate struct {
	percent    decimal.Decimal
	applicable bool
}

// NotApplicable is the exempt rate.
var NotApplicable = TaxRate{}

// Rate builds an applicable percentage, 21 means 21%.
func Rate(percent decimal.Decimal) TaxRate {
	return TaxRate{percent: percent, applicable: true}
}

// RateFromString parses "21", "10.5" or "n/a". An empty string is an error:
// the exempt rate is never implied.
func RateFromString(s string) (TaxRate, error) {
	switch s {
	case "n/a", "na", NotApplicableCode, NotApplicableLabel:
		return NotApplicable, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return NotApplicable, fmt.Errorf("parse tax rate %q: %w", s, err)
	}
	return Rate(d), nil
}

func (r TaxRate) Applicable() bool { return r.applicable }

// Percent is zero for the sentinel.
func (r TaxRate) Percent() decimal.Decimal {
	if !r.applicable {
		return decimal.Zero
	}
	return r.percent
}

func (r TaxRate) Label() string {
	if !r.applicable {
		return NotApplicableLabel
	}
	return r.percent.String() + "%"
}

func (r TaxRate) String() string { return r.Label() }

func (r TaxRate) Equal(o TaxRate) bool {
	if r.applicable != o.applicable {
		return false
	}
	return !r.applicable || r.percent.Equal(o.percent)
}

// Value stores the sentinel as NULL.
func (r TaxRate) Value() (driver.Value, error) {
	if !r.applicable {
		return nil, nil
	}
	return r.percent.String(), nil
}

func (r *TaxRate) Scan(src any) error {
	var nd decimal.NullDecimal
	if err := nd.Scan(src); err != nil {
		return fmt.Errorf("scan tax rate: %w", err)
	}
	if !nd.Valid {
		*r = NotApplicable
		return nil
	}
	*r = Rate(nd.Decimal)
	return nil
}

// MarshalJSON writes a number, or "not_applicable" for the sentinel.
func (r TaxRate) MarshalJSON() ([]byte, error) {
	if !r.applicable {
		return json.Marshal(NotApplicableCode)
	}
	return json.Marshal(r.percent)
}

func (r *TaxRate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = NotApplicable
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := RateFromString(s)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode tax rate: %w", err)
	}
	*r = Rate(d)
	return nil
}
