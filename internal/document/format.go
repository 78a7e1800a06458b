package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/divan/num2words"
	"github.com/safar/dealership/internal/finance"
	"github.com/shopspring/decimal"
)

// Placeholder is printed for any value that is empty.
const Placeholder = "—"

const dateLayout = "02/01/2006"

// Formatter renders values the way documents print them. Money is rounded
// half away from zero to two places here and nowhere else.
type Formatter struct {
	DecimalSep   string
	ThousandsSep string
	Currency     string
}

func DefaultFormatter() Formatter {
	return Formatter{DecimalSep: ",", ThousandsSep: ".", Currency: "€"}
}

func NewFormatter(decimalSep, thousandsSep, currency string) Formatter {
	f := DefaultFormatter()
	if decimalSep != "" {
		f.DecimalSep = decimalSep
	}
	if thousandsSep != "" {
		f.ThousandsSep = thousandsSep
	}
	f.Currency = currency
	return f
}

func (f Formatter) Number(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	b.WriteString(sign)
	for i, c := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(f.ThousandsSep)
		}
		b.WriteRune(c)
	}
	if frac != "" {
		b.WriteString(f.DecimalSep)
		b.WriteString(frac)
	}
	return b.String()
}

func (f Formatter) Money(d decimal.Decimal) string {
	s := f.Number(d, 2)
	if f.Currency == "" {
		return s
	}
	return s + " " + f.Currency
}

// MoneyWords spells out the whole currency units and appends the cents, as
// contracts print the agreed total.
func (f Formatter) MoneyWords(d decimal.Decimal) string {
	rounded := d.Round(2).Abs()
	units := rounded.IntPart()
	cents := rounded.Sub(decimal.NewFromInt(units)).Mul(decimal.NewFromInt(100)).IntPart()

	words := num2words.Convert(int(units))
	if d.IsNegative() && !rounded.IsZero() {
		words = "minus " + words
	}
	unit := "euros"
	if units == 1 {
		unit = "euro"
	}
	return fmt.Sprintf("%s %s and %02d cents", words, unit, cents)
}

func (f Formatter) Percent(d decimal.Decimal) string {
	return strings.Replace(d.Round(2).String(), ".", f.DecimalSep, 1) + "%"
}

// TaxRate never prints 0% for the not-applicable rate.
func (f Formatter) TaxRate(r finance.TaxRate) string {
	if !r.Applicable() {
		return finance.NotApplicableLabel
	}
	return f.Percent(r.Percent())
}

func (f Formatter) Date(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.Format(dateLayout)
}

func (f Formatter) DatePtr(t *time.Time) string {
	if t == nil {
		return Placeholder
	}
	return f.Date(*t)
}

func (f Formatter) Kilometres(km int) string {
	if km <= 0 {
		return Placeholder
	}
	return f.Number(decimal.NewFromInt(int64(km)), 0) + " km"
}

// Text trims s and substitutes the placeholder when nothing is left.
func Text(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return s
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
