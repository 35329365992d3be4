package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feecalc"
)

// Initiate starts an online payment for an approved document request.
//
// A pending transaction is reserved before the provider is called. The
// reservation's unique active slot is what keeps two concurrent initiations
// for one request apart, across instances. No DB transaction is open while
// the provider call runs.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	in.PayerEmail = strings.TrimSpace(in.PayerEmail)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("invalid payment request: %v", err)
	}

	req, err := s.repo.GetRequest(ctx, in.RequestID)
	if err != nil {
		return nil, lookupError("document request", err)
	}
	if req.PaymentStatus == models.PaymentStatusPaid {
		return nil, newError(KindAlreadySettled, "request is already paid", nil)
	}
	if req.Status != models.RequestStatusApproved {
		return nil, notPayable(fmt.Sprintf("request is %s, only approved requests can be paid", req.Status))
	}

	method, err := s.repo.GetPaymentMethod(ctx, in.PaymentMethodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notPayable("unknown payment method")
		}
		return nil, fmt.Errorf("load payment method: %w", err)
	}
	if !method.CanSettleOnline() {
		return nil, notPayable("payment method does not support online settlement")
	}

	live, err := s.repo.FindLiveTransaction(ctx, req.ID)
	switch {
	case err == nil:
		return s.resultForLive(live)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load live transaction: %w", err)
	}

	documentFee, err := s.authoritativeFee(ctx, req)
	if err != nil {
		return nil, err
	}
	amount := feecalc.ResolveAmount(documentFee, feecalc.Round2(s.cfg.ProcessingFee), s.cfg.ProviderMinimum)

	if stored := req.TotalFee; stored.Sub(amount.Base).Abs().GreaterThan(s.cfg.FeeEpsilon) {
		log.Warnf("[Settlement] Correcting total_fee of request %s from %s to %s",
			req.ReferenceNo, stored.StringFixed(2), amount.Base.StringFixed(2))
		if err := s.repo.CorrectTotalFee(ctx, req.ID, amount.Base); err != nil {
			return nil, fmt.Errorf("correct total fee: %w", err)
		}
	}

	tx := &models.Transaction{
		ID:              s.newID(),
		RequestID:       req.ID,
		PaymentMethodID: method.ID,
		Provider:        s.providerName(),
		Amount:          amount.Payable,
		Surcharge:       amount.Surcharge,
		NetAmount:       amount.Net(),
		Currency:        s.cfg.Currency,
		PayerEmail:      in.PayerEmail,
	}
	if err := s.repo.ReserveTransaction(ctx, tx); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			winner, ferr := s.repo.FindLiveTransaction(ctx, req.ID)
			if ferr != nil {
				return nil, notPayable("payment initiation already in progress")
			}
			return s.resultForLive(winner)
		}
		return nil, fmt.Errorf("reserve transaction: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	link, err := s.provider.CreateLink(pctx, LinkRequest{
		TransactionID: tx.ID,
		RequestID:     req.ID,
		ReferenceNo:   req.ReferenceNo,
		AmountMinor:   feecalc.ToMinorUnits(tx.Amount),
		Currency:      tx.Currency,
		Description:   linkDescription(req),
		PayerEmail:    in.PayerEmail,
	})
	cancel()

	// The caller may be gone by now; the outcome must still be recorded.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		log.Errorf("[Settlement] Provider %s failed to create link for request %s (transaction %s): %v",
			tx.Provider, req.ReferenceNo, tx.ID, err)
		if rerr := s.repo.ReleaseReservation(bg, tx.ID, "provider error: "+err.Error(), restoreStatus(req.PaymentStatus)); rerr != nil {
			log.Errorf("[Settlement] Failed to release reservation %s: %v", tx.ID, rerr)
		}
		return nil, providerUnavailable(err)
	}

	if err := s.repo.AttachProviderLink(bg, tx.ID, link.ID, link.CheckoutURL); err != nil {
		// Reconciliation attaches the link from the provider's side.
		log.Errorf("[Settlement] Failed to record link %s for transaction %s: %v", link.ID, tx.ID, err)
		return nil, fmt.Errorf("record provider link: %w", err)
	}
	s.metrics.Incr(MetricPaymentInitiated)
	log.Infof("[Settlement] Initiated transaction %s for request %s: payable %s %s (surcharge %s)",
		tx.ID, req.ReferenceNo, tx.Amount.StringFixed(2), tx.Currency, tx.Surcharge.StringFixed(2))

	return &InitiateResult{
		TransactionID:     tx.ID,
		CheckoutReference: link.CheckoutURL,
		PayableAmount:     tx.Amount,
		Surcharge:         tx.Surcharge,
		NetAmount:         tx.NetAmount,
		Currency:          tx.Currency,
		Status:            tx.Status,
	}, nil
}

// resultForLive handles a request that already holds a live transaction.
func (s *Service) resultForLive(live *models.Transaction) (*InitiateResult, error) {
	if live.Status == models.TransactionStatusSucceeded {
		return nil, newError(KindAlreadySettled, "request is already paid", nil)
	}
	if live.CheckoutURL == "" {
		return nil, notPayable("payment initiation already in progress")
	}
	return &InitiateResult{
		TransactionID:     live.ID,
		CheckoutReference: live.CheckoutURL,
		PayableAmount:     live.Amount,
		Surcharge:         live.Surcharge,
		NetAmount:         live.NetAmount,
		Currency:          live.Currency,
		Status:            live.Status,
		Reused:            true,
	}, nil
}

// authoritativeFee recomputes the document fee from stored data, rounded to
// 2dp. Regulated types use the tax calculator, others the active schedule.
func (s *Service) authoritativeFee(ctx context.Context, req *models.DocumentRequest) (decimal.Decimal, error) {
	if req.DocumentType.Regulated {
		inputs, err := s.repo.GetTaxInputs(ctx, req.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return decimal.Zero, notPayable("tax inputs are missing for this request")
			}
			return decimal.Zero, fmt.Errorf("load tax inputs: %w", err)
		}
		breakdown, err := feecalc.ComputeTax(feecalc.TaxInputs{
			Income:                inputs.Income,
			RealPropertyValue:     inputs.RealPropertyValue,
			PersonalPropertyValue: inputs.PersonalPropertyValue,
			BusinessReceipts:      inputs.BusinessReceipts,
		})
		if err != nil {
			return decimal.Zero, newError(KindValidation, err.Error(), err)
		}
		return feecalc.Round2(breakdown.Total), nil
	}

	if s.fees == nil {
		return decimal.Zero, errors.New("no fee source configured")
	}
	amount, err := s.fees.ActiveAmount(ctx, req.DocumentTypeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrNotFound) {
			return decimal.Zero, notPayable("no active fee is configured for this document type")
		}
		return decimal.Zero, fmt.Errorf("load active fee: %w", err)
	}
	return feecalc.Round2(amount), nil
}

func linkDescription(req *models.DocumentRequest) string {
	name := strings.TrimSpace(req.DocumentType.Name)
	if name == "" {
		name = "Document request"
	}
	return fmt.Sprintf("%s %s", name, req.ReferenceNo)
}

// restoreStatus is the payment status a request goes back to when its
// reservation is released without a provider link.
func restoreStatus(prev string) string {
	if prev == "" || prev == models.PaymentStatusPending {
		return models.PaymentStatusNone
	}
	return prev
}
