// Package feecalc holds the single authoritative implementation of the
// community tax computation and the settlement amount resolution. Every
// caller, including the public preview endpoint, goes through these
// functions.
package feecalc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// BasicTax is charged on every certificate regardless of inputs.
	BasicTax = decimal.RequireFromString("5.00")
	// StatutoryCap bounds the property group and the business sub-tax separately.
	StatutoryCap = decimal.RequireFromString("5000.00")
)

// ErrInvalidInput is returned (wrapped in *InputError) for unusable tax inputs.
var ErrInvalidInput = errors.New("invalid tax input")

// InputError names the offending field.
type InputError struct {
	Field string
	Value decimal.Decimal
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s must not be negative (got %s)", e.Field, e.Value.String())
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }

// TaxInputs are the applicant-supplied financial attributes.
type TaxInputs struct {
	Income                decimal.Decimal `json:"income"`
	RealPropertyValue     decimal.Decimal `json:"real_property_value"`
	PersonalPropertyValue decimal.Decimal `json:"personal_property_value"`
	BusinessReceipts      decimal.Decimal `json:"business_receipts"`
}

// TaxBreakdown keeps every component in full precision.
type TaxBreakdown struct {
	Basic            decimal.Decimal `json:"basic"`
	Income           decimal.Decimal `json:"income"`
	RealProperty     decimal.Decimal `json:"real_property"`
	PersonalProperty decimal.Decimal `json:"personal_property"`
	PropertyCapped   decimal.Decimal `json:"property_capped"`
	BusinessRaw      decimal.Decimal `json:"business_raw"`
	BusinessCapped   decimal.Decimal `json:"business_capped"`
	Total            decimal.Decimal `json:"total"`
}

// Rounded returns a copy with every component rounded to 2 decimal places
// for presentation. Total is rounded from the full-precision sum.
func (b TaxBreakdown) Rounded() TaxBreakdown {
	return TaxBreakdown{
		Basic:            Round2(b.Basic),
		Income:           Round2(b.Income),
		RealProperty:     Round2(b.RealProperty),
		PersonalProperty: Round2(b.PersonalProperty),
		PropertyCapped:   Round2(b.PropertyCapped),
		BusinessRaw:      Round2(b.BusinessRaw),
		BusinessCapped:   Round2(b.BusinessCapped),
		Total:            Round2(b.Total),
	}
}

// ComputeTax computes the community tax for the given inputs.
func ComputeTax(in TaxInputs) (TaxBreakdown, error) {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"income", in.Income},
		{"real_property_value", in.RealPropertyValue},
		{"personal_property_value", in.PersonalPropertyValue},
		{"business_receipts", in.BusinessReceipts},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return TaxBreakdown{}, &InputError{Field: f.name, Value: f.value}
		}
	}

	b := TaxBreakdown{
		Basic:            BasicTax,
		Income:           IncomeTiers.Apply(in.Income),
		RealProperty:     RealPropertyTiers.Apply(in.RealPropertyValue),
		PersonalProperty: PersonalPropertyTiers.Apply(in.PersonalPropertyValue),
		BusinessRaw:      BusinessReceiptTiers.Apply(in.BusinessReceipts),
	}
	b.PropertyCapped = decimal.Min(b.RealProperty.Add(b.PersonalProperty), StatutoryCap)
	b.BusinessCapped = decimal.Min(b.BusinessRaw, StatutoryCap)
	b.Total = b.Basic.Add(b.Income).Add(b.PropertyCapped).Add(b.BusinessCapped)
	return b, nil
}

// Round2 rounds half away from zero to 2 decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
