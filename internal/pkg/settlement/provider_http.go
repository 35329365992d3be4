package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

const (
	defaultProviderAPIBaseURL = "https://api.paymongo.com/v1"
	providerPageSize          = 100
	maxProviderPages          = 50
)

// HTTPProvider talks to a links/payments style REST API (PayMongo compatible)
// using basic auth with the secret key.
type HTTPProvider struct {
	ProviderName string
	SecretKey    string
	APIBaseURL   string

	HTTPClient *http.Client
}

type linkCreateBody struct {
	Data struct {
		Attributes struct {
			Amount      int64             `json:"amount"`
			Currency    string            `json:"currency"`
			Description string            `json:"description"`
			Remarks     string            `json:"remarks"`
			Metadata    map[string]string `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
}

type linkResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			CheckoutURL string `json:"checkout_url"`
			Status      string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

type paymentListResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Amount    int64             `json:"amount"`
			Currency  string            `json:"currency"`
			Status    string            `json:"status"`
			LinkID    string            `json:"link_id"`
			UpdatedAt int64             `json:"updated_at"`
			Metadata  map[string]string `json:"metadata"`
		} `json:"attributes"`
	} `json:"data"`
	HasMore bool `json:"has_more"`
}

// NewHTTPProviderFromEnv builds the provider client from environment variables.
func NewHTTPProviderFromEnv(timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		ProviderName: strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", "paymongo"))),
		SecretKey:    strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER_SECRET_KEY", "")),
		APIBaseURL:   strings.TrimRight(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER_API_BASE_URL", defaultProviderAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *HTTPProvider) Name() string {
	return p.ProviderName
}

func (p *HTTPProvider) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	if strings.TrimSpace(p.SecretKey) == "" {
		return nil, errors.New("PAYMENT_PROVIDER_SECRET_KEY is not configured")
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("link amount must be positive, got %d", req.AmountMinor)
	}

	var body linkCreateBody
	body.Data.Attributes.Amount = req.AmountMinor
	body.Data.Attributes.Currency = req.Currency
	body.Data.Attributes.Description = req.Description
	body.Data.Attributes.Remarks = req.TransactionID
	body.Data.Attributes.Metadata = map[string]string{
		"transaction_id": req.TransactionID,
		"request_id":     strconv.FormatUint(uint64(req.RequestID), 10),
		"reference_no":   req.ReferenceNo,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	respBody, err := p.do(ctx, http.MethodPost, p.APIBaseURL+"/links", raw)
	if err != nil {
		return nil, err
	}

	var out linkResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode link response: %w", err)
	}
	if strings.TrimSpace(out.Data.ID) == "" || strings.TrimSpace(out.Data.Attributes.CheckoutURL) == "" {
		return nil, errors.New("provider returned a link without id or checkout_url")
	}
	return &Link{
		ID:          out.Data.ID,
		CheckoutURL: out.Data.Attributes.CheckoutURL,
		Status:      out.Data.Attributes.Status,
	}, nil
}

func (p *HTTPProvider) ListPayments(ctx context.Context, since, until time.Time) ([]ProviderPayment, error) {
	if strings.TrimSpace(p.SecretKey) == "" {
		return nil, errors.New("PAYMENT_PROVIDER_SECRET_KEY is not configured")
	}

	var payments []ProviderPayment
	cursor := ""
	for page := 0; page < maxProviderPages; page++ {
		u, err := url.Parse(p.APIBaseURL + "/payments")
		if err != nil {
			return nil, fmt.Errorf("invalid PAYMENT_PROVIDER_API_BASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("limit", strconv.Itoa(providerPageSize))
		q.Set("updated_after", strconv.FormatInt(since.Unix(), 10))
		q.Set("updated_before", strconv.FormatInt(until.Unix(), 10))
		if cursor != "" {
			q.Set("after", cursor)
		}
		u.RawQuery = q.Encode()

		body, err := p.do(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		var out paymentListResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode payment list: %w", err)
		}

		for _, item := range out.Data {
			a := item.Attributes
			payments = append(payments, ProviderPayment{
				ID:            item.ID,
				ResourceID:    a.LinkID,
				TransactionID: a.Metadata["transaction_id"],
				Status:        a.Status,
				AmountMinor:   a.Amount,
				Currency:      strings.ToUpper(a.Currency),
				UpdatedAt:     time.Unix(a.UpdatedAt, 0).UTC(),
			})
		}
		if !out.HasMore || len(out.Data) == 0 {
			return payments, nil
		}
		cursor = out.Data[len(out.Data)-1].ID
	}
	return payments, fmt.Errorf("payment list exceeded %d pages", maxProviderPages)
}

func (p *HTTPProvider) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider %s %s failed: status=%d body=%s", method, req.URL.Path, resp.StatusCode, string(body))
	}
	return body, nil
}
