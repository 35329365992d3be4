package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocuPay/app/models"
)

func TestInitiate_SurchargeUpToProviderMinimum(t *testing.T) {
	f := newFixture()
	f.repo.addRequest(flatRequest(10))

	res, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 10, PaymentMethodID: 1, PayerEmail: "payer@example.test"})
	require.NoError(t, err)

	assert.Equal(t, "100.00", res.PayableAmount.StringFixed(2))
	assert.Equal(t, "55.00", res.Surcharge.StringFixed(2))
	assert.Equal(t, "45.00", res.NetAmount.StringFixed(2))
	assert.Equal(t, "PHP", res.Currency)
	assert.Equal(t, models.TransactionStatusPending, res.Status)
	assert.Equal(t, "https://pay.example.test/link_a", res.CheckoutReference)

	require.Equal(t, 1, f.provider.callCount())
	call := f.provider.calls[0]
	assert.Equal(t, int64(10000), call.AmountMinor)
	assert.Equal(t, res.TransactionID, call.TransactionID)
	assert.Equal(t, uint(10), call.RequestID)

	tx := f.repo.tx(res.TransactionID)
	assert.Equal(t, "link_a", tx.ProviderResourceID)
	assert.Equal(t, "55.00", tx.Surcharge.StringFixed(2))
	require.NotNil(t, tx.ActiveSlot)
	assert.Equal(t, uint(10), *tx.ActiveSlot)

	req := f.repo.request(10)
	assert.Equal(t, models.PaymentStatusPending, req.PaymentStatus)
	assert.Equal(t, "45.00", req.TotalFee.StringFixed(2), "total fee never includes the surcharge")
	assert.Equal(t, 1, f.metrics.get(MetricPaymentInitiated))
}

func TestInitiate_RegulatedFeeComesFromCalculator(t *testing.T) {
	f := newFixture()
	req := flatRequest(11)
	req.DocumentTypeID = 2
	req.DocumentType = models.DocumentType{ID: 2, Code: "cedula", Name: "Community Tax Certificate", Regulated: true, Active: true}
	req.TotalFee = decimal.RequireFromString("6000.00")
	f.repo.addRequest(req)
	f.repo.taxInputs[11] = &models.RequestTaxInputs{
		RequestID:             11,
		Income:                decimal.RequireFromString("30000"),
		RealPropertyValue:     decimal.RequireFromString("1000000"),
		PersonalPropertyValue: decimal.RequireFromString("1500000"),
		BusinessReceipts:      decimal.RequireFromString("100000"),
	}

	res, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 11, PaymentMethodID: 1})
	require.NoError(t, err)

	assert.Equal(t, "6305.00", res.PayableAmount.StringFixed(2))
	assert.True(t, res.Surcharge.IsZero())
	assert.Equal(t, int64(630500), f.provider.calls[0].AmountMinor)
	assert.Equal(t, "6305.00", f.repo.request(11).TotalFee.StringFixed(2), "stale stored fee is corrected")
}

func TestInitiate_RejectsUnpayableRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.DocumentRequest)
		method uint
		want   error
	}{
		{name: "submitted", mutate: func(r *models.DocumentRequest) { r.Status = models.RequestStatusSubmitted }, method: 1, want: ErrNotPayable},
		{name: "rejected", mutate: func(r *models.DocumentRequest) { r.Status = models.RequestStatusRejected }, method: 1, want: ErrNotPayable},
		{name: "offline method", mutate: func(*models.DocumentRequest) {}, method: 2, want: ErrNotPayable},
		{name: "unknown method", mutate: func(*models.DocumentRequest) {}, method: 9, want: ErrNotPayable},
		{name: "already paid", mutate: func(r *models.DocumentRequest) {
			r.Status = models.RequestStatusPaymentConfirmed
			r.PaymentStatus = models.PaymentStatusPaid
		}, method: 1, want: ErrAlreadySettled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := flatRequest(20)
			tt.mutate(req)
			f.repo.addRequest(req)

			_, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 20, PaymentMethodID: tt.method})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.provider.callCount())
		})
	}
}

func TestInitiate_ValidationAndNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 0, PaymentMethodID: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Initiate(context.Background(), InitiateInput{RequestID: 1, PaymentMethodID: 1, PayerEmail: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Initiate(context.Background(), InitiateInput{RequestID: 404, PaymentMethodID: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInitiate_ReturnsExistingPendingLink(t *testing.T) {
	f := newFixture()
	f.repo.addRequest(flatRequest(30))

	first, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 30, PaymentMethodID: 1})
	require.NoError(t, err)
	second, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 30, PaymentMethodID: 1})
	require.NoError(t, err)

	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, first.CheckoutReference, second.CheckoutReference)
	assert.True(t, second.Reused)
	assert.Equal(t, 1, f.provider.callCount())
	assert.Equal(t, 1, f.repo.txCount())
}

func TestInitiate_AlreadySettledWhenSucceededTransactionExists(t *testing.T) {
	f := newFixture()
	f.repo.addRequest(flatRequest(31))
	f.repo.putTx(&models.Transaction{
		ID: testTxID(900), RequestID: 31, Provider: "paymongo", Status: models.TransactionStatusSucceeded,
		ActiveSlot: slotFor(31), Amount: decimal.RequireFromString("100"), CheckoutURL: "https://pay.example.test/x",
	})

	_, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 31, PaymentMethodID: 1})
	assert.ErrorIs(t, err, ErrAlreadySettled)
	assert.Equal(t, 0, f.provider.callCount())
}

func TestInitiate_ProviderFailureReleasesReservation(t *testing.T) {
	f := newFixture()
	f.repo.addRequest(flatRequest(40))
	f.provider.err = errors.New("502 bad gateway")

	_, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 40, PaymentMethodID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotContains(t, PublicMessage(err), "502")

	tx := f.repo.tx(testTxID(1))
	assert.Equal(t, models.TransactionStatusFailed, tx.Status)
	assert.Nil(t, tx.ActiveSlot)

	req := f.repo.request(40)
	assert.Equal(t, models.RequestStatusApproved, req.Status)
	assert.Equal(t, models.PaymentStatusNone, req.PaymentStatus)

	// The request stays payable.
	f.provider.err = nil
	res, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 40, PaymentMethodID: 1})
	require.NoError(t, err)
	assert.Equal(t, testTxID(2), res.TransactionID)
}

func TestInitiate_ProviderCallIsBounded(t *testing.T) {
	f := newFixture()
	f.svc.cfg.ProviderTimeout = 20 * time.Millisecond
	f.provider.delay = time.Second
	f.repo.addRequest(flatRequest(41))

	start := time.Now()
	_, err := f.svc.Initiate(context.Background(), InitiateInput{RequestID: 41, PaymentMethodID: 1})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestInitiate_ConcurrentCallsCreateOneTransaction(t *testing.T) {
	f := newFixture()
	f.repo.addRequest(flatRequest(50))
	f.provider.delay = 30 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	results := make([]*InitiateResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Initiate(context.Background(), InitiateInput{RequestID: 50, PaymentMethodID: 1})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.ErrorIs(t, errs[i], ErrNotPayable)
			continue
		}
		succeeded++
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 1, f.provider.callCount())
	assert.Equal(t, 1, f.repo.txCount())
}
