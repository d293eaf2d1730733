// Package catalog implements the catalog providers the scorer pulls raw
// product records from.
package catalog

import (
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

	"github.com/cenkalti/backoff/v4"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

const (
	defaultTimeout = 20 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxBodyBytes   = 8 << 20
)

// HTTPProvider reads product records from a JSON API. The response may be a
// bare array or an object with a "products", "data" or "items" array, and
// numeric fields may be numbers or strings.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    uint64
	interval   time.Duration
}

func NewHTTPProvider(name, baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    maxRetries,
		interval:   initialBackoff,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// List fetches up to limit records for category. Rate limits and server
// errors are retried with exponential backoff; other client errors are not.
func (p *HTTPProvider) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := p.baseURL + "/products"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.interval
	var out []domain.RawProduct
	op := func() error {
		recs, err := p.fetch(ctx, endpoint)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = recs
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.retries), ctx)); err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *HTTPProvider) fetch(ctx context.Context, endpoint string) ([]domain.RawProduct, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", p.name, err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, StatusError(p.name, resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: reading body: %v: %w", p.name, err, domain.ErrProviderUnavailable)
	}
	recs, err := DecodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	return recs, nil
}

// StatusError maps an unexpected HTTP status to the error taxonomy: 429 is
// a quota problem, other 4xx invalid input, everything else unavailability.
func StatusError(provider string, status int, body string) error {
	body = strings.TrimSpace(body)
	var kind error
	switch {
	case status == http.StatusTooManyRequests:
		kind = domain.ErrQuotaExceeded
	case status >= 400 && status < 500:
		kind = domain.ErrInvalidInput
	default:
		kind = domain.ErrProviderUnavailable
	}
	if body == "" {
		return fmt.Errorf("%s: unexpected status %d: %w", provider, status, kind)
	}
	return fmt.Errorf("%s: unexpected status %d: %s: %w", provider, status, body, kind)
}

// fieldAliases lists the keys providers use for each RawProduct field.
var fieldAliases = map[string][]string{
	"name":          {"name", "title", "product_name"},
	"description":   {"description", "desc", "summary"},
	"category":      {"category", "category_name"},
	"price":         {"price", "sale_price", "price_usd"},
	"commission":    {"commission", "commission_rate", "commission_pct"},
	"rating":        {"rating", "stars", "review_score"},
	"monthly_sales": {"monthly_sales", "sales", "sold_count", "units_sold"},
	"growth_rate":   {"growth_rate", "growth", "sales_growth"},
	"trend_score":   {"trend_score", "trend"},
	"competition":   {"competition", "competition_level"},
	"url":           {"url", "link", "product_url"},
}

// DecodeRecords parses a provider response body into raw products.
func DecodeRecords(body []byte) ([]domain.RawProduct, error) {
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(body, &list); err != nil {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decoding products: %v: %w", err, domain.ErrProviderUnavailable)
		}
		for _, key := range []string{"products", "data", "items"} {
			if raw, ok := wrapped[key]; ok {
				if err := json.Unmarshal(raw, &list); err != nil {
					return nil, fmt.Errorf("decoding %s: %v: %w", key, err, domain.ErrProviderUnavailable)
				}
				break
			}
		}
	}

	out := make([]domain.RawProduct, 0, len(list))
	for _, rec := range list {
		get := func(field string) string {
			for _, k := range fieldAliases[field] {
				if v, ok := rec[k]; ok {
					if s := scalar(v); s != "" {
						return s
					}
				}
			}
			return ""
		}
		out = append(out, domain.RawProduct{
			Name:         get("name"),
			Description:  get("description"),
			Category:     get("category"),
			Price:        get("price"),
			Commission:   get("commission"),
			Rating:       get("rating"),
			MonthlySales: get("monthly_sales"),
			GrowthRate:   get("growth_rate"),
			TrendScore:   get("trend_score"),
			Competition:  get("competition"),
			URL:          get("url"),
		})
	}
	return out, nil
}

// scalar renders a JSON string or number as text; anything else is empty.
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
