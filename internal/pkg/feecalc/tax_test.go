package feecalc

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestComputeTaxScenario(t *testing.T) {
	b, err := ComputeTax(TaxInputs{
		Income:                d("30000"),
		RealPropertyValue:     d("1000000"),
		PersonalPropertyValue: d("1500000"),
		BusinessReceipts:      d("100000"),
	})
	require.NoError(t, err)

	assertDecimal(t, "5.00", b.Basic)
	assertDecimal(t, "300", b.Income)
	assertDecimal(t, "3000", b.RealProperty)
	assertDecimal(t, "6000", b.PersonalProperty)
	assertDecimal(t, "5000", b.PropertyCapped)
	assertDecimal(t, "1000", b.BusinessCapped)
	assertDecimal(t, "6305", b.Total)
	assert.Equal(t, "6305.00", b.Rounded().Total.StringFixed(2))
}

func TestComputeTaxZeroInputsChargesBasicOnly(t *testing.T) {
	b, err := ComputeTax(TaxInputs{})
	require.NoError(t, err)
	assertDecimal(t, "5.00", b.Total)
}

func TestTierBoundaryUsesLowerRate(t *testing.T) {
	tests := []struct {
		name  string
		table TierTable
		value string
		rate  string
	}{
		{"income at 10000", IncomeTiers, "10000", "0.5"},
		{"income above 10000", IncomeTiers, "10000.01", "1.0"},
		{"income at 100000", IncomeTiers, "100000", "1.5"},
		{"income above 100000", IncomeTiers, "100000.01", "2.0"},
		{"real property at 500000", RealPropertyTiers, "500000", "0.2"},
		{"real property above 500000", RealPropertyTiers, "500000.01", "0.3"},
		{"personal property at 1000000", PersonalPropertyTiers, "1000000", "0.3"},
		{"personal property above 1000000", PersonalPropertyTiers, "1000000.01", "0.4"},
		{"business at 50000", BusinessReceiptTiers, "50000", "0.5"},
		{"business above 50000", BusinessReceiptTiers, "50000.01", "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertDecimal(t, tt.rate, tt.table.RateFor(d(tt.value)))
		})
	}
}

func TestPropertyGroupCappedAtCeiling(t *testing.T) {
	b, err := ComputeTax(TaxInputs{
		RealPropertyValue:     d("5000000"),
		PersonalPropertyValue: d("5000000"),
	})
	require.NoError(t, err)
	assertDecimal(t, "25000", b.RealProperty)
	assertDecimal(t, "20000", b.PersonalProperty)
	assertDecimal(t, "5000", b.PropertyCapped)
	assertDecimal(t, "5005", b.Total)
}

func TestBusinessCappedIndependently(t *testing.T) {
	b, err := ComputeTax(TaxInputs{
		RealPropertyValue: d("1000000"),
		BusinessReceipts:  d("1000000"),
	})
	require.NoError(t, err)
	assertDecimal(t, "3000", b.PropertyCapped)
	assertDecimal(t, "20000", b.BusinessRaw)
	assertDecimal(t, "5000", b.BusinessCapped)
	assertDecimal(t, "8005", b.Total)
}

func TestIncomeIsNotCapped(t *testing.T) {
	b, err := ComputeTax(TaxInputs{Income: d("1000000")})
	require.NoError(t, err)
	assertDecimal(t, "20000", b.Income)
	assertDecimal(t, "20005", b.Total)
}

func TestComputeTaxRejectsNegativeInput(t *testing.T) {
	_, err := ComputeTax(TaxInputs{BusinessReceipts: d("-1")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "business_receipts", inputErr.Field)
}

func TestComputeTaxKeepsFullPrecision(t *testing.T) {
	b, err := ComputeTax(TaxInputs{Income: d("333.33"), RealPropertyValue: d("333.33")})
	require.NoError(t, err)
	// 1.66665 + 0.33333 + 5
	assertDecimal(t, "7.99998", b.Total)
	assertDecimal(t, "8.00", b.Rounded().Total)
}
