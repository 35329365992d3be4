package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feecalc"
)

// TaxInputsInput carries the applicant's financial attributes.
type TaxInputsInput struct {
	Income                decimal.Decimal `json:"income"`
	RealPropertyValue     decimal.Decimal `json:"realPropertyValue"`
	PersonalPropertyValue decimal.Decimal `json:"personalPropertyValue"`
	BusinessReceipts      decimal.Decimal `json:"businessReceipts"`
}

func (in TaxInputsInput) calcInputs() feecalc.TaxInputs {
	return feecalc.TaxInputs{
		Income:                in.Income,
		RealPropertyValue:     in.RealPropertyValue,
		PersonalPropertyValue: in.PersonalPropertyValue,
		BusinessReceipts:      in.BusinessReceipts,
	}
}

// normalize rounds every input to the two decimals stored on
// request_tax_inputs, so previews and total_fee use exactly what Initiate
// reads back. Negative values are rejected before rounding can hide them.
func (in TaxInputsInput) normalize() (TaxInputsInput, error) {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"income", in.Income},
		{"realPropertyValue", in.RealPropertyValue},
		{"personalPropertyValue", in.PersonalPropertyValue},
		{"businessReceipts", in.BusinessReceipts},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return in, validationError("%s must not be negative", f.name)
		}
	}
	return TaxInputsInput{
		Income:                feecalc.Round2(in.Income),
		RealPropertyValue:     feecalc.Round2(in.RealPropertyValue),
		PersonalPropertyValue: feecalc.Round2(in.PersonalPropertyValue),
		BusinessReceipts:      feecalc.Round2(in.BusinessReceipts),
	}, nil
}

// Preview is the tax breakdown and settlement amounts for a set of inputs,
// computed with the same functions and configuration as Initiate.
type Preview struct {
	Breakdown  feecalc.TaxBreakdown `json:"breakdown"`
	Settlement feecalc.Settlement   `json:"settlement"`
	Currency   string               `json:"currency"`
}

// TaxInputsResult is returned after tax inputs were stored.
type TaxInputsResult struct {
	Inputs   models.RequestTaxInputs `json:"inputs"`
	Preview  Preview                 `json:"preview"`
	TotalFee decimal.Decimal         `json:"totalFee"`
}

// PreviewTax computes what a regulated request with these inputs would pay.
func (s *Service) PreviewTax(in TaxInputsInput) (*Preview, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	breakdown, err := feecalc.ComputeTax(in.calcInputs())
	if err != nil {
		return nil, newError(KindValidation, err.Error(), err)
	}
	settlement := feecalc.ResolveAmount(
		feecalc.Round2(breakdown.Total),
		feecalc.Round2(s.cfg.ProcessingFee),
		s.cfg.ProviderMinimum,
	).Rounded()
	return &Preview{
		Breakdown:  breakdown.Rounded(),
		Settlement: settlement,
		Currency:   s.cfg.Currency,
	}, nil
}

// UpdateTaxInputs stores the inputs of a regulated request and recomputes its
// total_fee. Inputs are frozen once the request is paid and cannot change
// while a checkout is pending.
func (s *Service) UpdateTaxInputs(ctx context.Context, requestID uint, in TaxInputsInput) (*TaxInputsResult, error) {
	if requestID == 0 {
		return nil, validationError("requestId is required")
	}

	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	preview, err := s.PreviewTax(in)
	if err != nil {
		return nil, err
	}

	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, lookupError("request", err)
	}
	if !req.DocumentType.Regulated {
		return nil, validationError("document type %s does not take tax inputs", req.DocumentType.Code)
	}

	row := &models.RequestTaxInputs{
		RequestID:             requestID,
		Income:                in.Income,
		RealPropertyValue:     in.RealPropertyValue,
		PersonalPropertyValue: in.PersonalPropertyValue,
		BusinessReceipts:      in.BusinessReceipts,
	}
	totalFee := preview.Settlement.Base

	if err := s.repo.SaveTaxInputs(ctx, row, totalFee); err != nil {
		switch {
		case errors.Is(err, ErrTaxInputsLocked):
			return nil, validationError("tax inputs are locked once the request is paid")
		case errors.Is(err, ErrPaymentInProgress):
			return nil, validationError("tax inputs cannot change while a payment is in progress")
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, notFound("request", err)
		}
		return nil, fmt.Errorf("save tax inputs for request %d: %w", requestID, err)
	}

	log.Infof("[Settlement] Tax inputs stored for request %d, total_fee=%s", requestID, totalFee.StringFixed(2))
	return &TaxInputsResult{Inputs: *row, Preview: *preview, TotalFee: totalFee}, nil
}
