package feecalc

import "github.com/shopspring/decimal"

// Settlement is the itemised payable amount. Surcharge is a payment-rail
// artifact and is never part of DocumentFee or ProcessingFee.
type Settlement struct {
	DocumentFee   decimal.Decimal `json:"document_fee"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	Base          decimal.Decimal `json:"base"`
	Surcharge     decimal.Decimal `json:"surcharge"`
	Payable       decimal.Decimal `json:"payable"`
}

// ResolveAmount combines the document fee (computed tax or flat schedule
// amount) with the processing fee and tops the result up to the provider's
// minimum payable amount.
func ResolveAmount(documentFee, processingFee, providerMinimum decimal.Decimal) Settlement {
	base := documentFee.Add(processingFee)
	surcharge := decimal.Zero
	if base.LessThan(providerMinimum) {
		surcharge = providerMinimum.Sub(base)
	}
	return Settlement{
		DocumentFee:   documentFee,
		ProcessingFee: processingFee,
		Base:          base,
		Surcharge:     surcharge,
		Payable:       base.Add(surcharge),
	}
}

// Net is the amount that belongs to the government side of the ledger.
func (s Settlement) Net() decimal.Decimal {
	return s.Payable.Sub(s.Surcharge)
}

// Rounded returns the settlement with every field rounded to 2dp.
func (s Settlement) Rounded() Settlement {
	return Settlement{
		DocumentFee:   Round2(s.DocumentFee),
		ProcessingFee: Round2(s.ProcessingFee),
		Base:          Round2(s.Base),
		Surcharge:     Round2(s.Surcharge),
		Payable:       Round2(s.Payable),
	}
}

// ToMinorUnits converts a major-unit amount into integer minor units
// (centavos/cents), rounding to 2dp first.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return Round2(amount).Shift(2).IntPart()
}

// FromMinorUnits converts provider minor units back into a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
