package feecalc

import "github.com/shopspring/decimal"

// Tier is a closed-upper-bound bracket: values up to and including UpTo use
// Rate (a percentage). The last tier of a table has Unbounded set.
type Tier struct {
	UpTo      decimal.Decimal
	Rate      decimal.Decimal
	Unbounded bool
}

// TierTable is an ordered list of tiers with increasing UpTo.
type TierTable []Tier

func tier(upTo, rate string) Tier {
	return Tier{UpTo: decimal.RequireFromString(upTo), Rate: decimal.RequireFromString(rate)}
}

func topTier(rate string) Tier {
	return Tier{Rate: decimal.RequireFromString(rate), Unbounded: true}
}

var (
	IncomeTiers = TierTable{
		tier("10000", "0.5"),
		tier("50000", "1.0"),
		tier("100000", "1.5"),
		topTier("2.0"),
	}
	RealPropertyTiers = TierTable{
		tier("100000", "0.1"),
		tier("500000", "0.2"),
		tier("1000000", "0.3"),
		topTier("0.5"),
	}
	PersonalPropertyTiers = TierTable{
		tier("100000", "0.1"),
		tier("500000", "0.2"),
		tier("1000000", "0.3"),
		topTier("0.4"),
	}
	BusinessReceiptTiers = TierTable{
		tier("50000", "0.5"),
		tier("100000", "1.0"),
		tier("500000", "1.5"),
		topTier("2.0"),
	}
)

var hundred = decimal.NewFromInt(100)

// RateFor returns the percentage rate that applies to value.
func (t TierTable) RateFor(value decimal.Decimal) decimal.Decimal {
	for _, tr := range t {
		if tr.Unbounded || value.LessThanOrEqual(tr.UpTo) {
			return tr.Rate
		}
	}
	if len(t) == 0 {
		return decimal.Zero
	}
	return t[len(t)-1].Rate
}

// Apply computes value * rate for the bracket the value falls into.
func (t TierTable) Apply(value decimal.Decimal) decimal.Decimal {
	return value.Mul(t.RateFor(value)).Div(hundred)
}
