package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

func fastProvider(url string) *HTTPProvider {
	p := NewHTTPProvider("fastmoss", url, "key-123")
	p.interval = time.Millisecond
	return p
}

func TestHTTPProviderDecodesMixedTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" || r.URL.Query().Get("category") != "health" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer key-123" {
			t.Errorf("missing auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":[
			{"title":"CoQ10 Ubiquinol","price":45.99,"commission_rate":"25%","stars":4.7,"sold_count":"12.5k"},
			{"name":"Magnesium Glycinate","price":"$19.99","commission":18,"link":"https://shop.example/mg"}
		]}`))
	}))
	defer srv.Close()

	recs, err := fastProvider(srv.URL).List(context.Background(), "health", 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	first := recs[0]
	if first.Name != "CoQ10 Ubiquinol" || first.Price != "45.99" || first.Commission != "25%" ||
		first.Rating != "4.7" || first.MonthlySales != "12.5k" {
		t.Errorf("first record = %+v", first)
	}
	if recs[1].URL != "https://shop.example/mg" || recs[1].Commission != "18" {
		t.Errorf("second record = %+v", recs[1])
	}
}

func TestHTTPProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"name":"Desk Kit","price":"179.99"}]`))
	}))
	defer srv.Close()

	recs, err := fastProvider(srv.URL).List(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || calls.Load() != 3 {
		t.Errorf("records = %d after %d calls, want 1 after 3", len(recs), calls.Load())
	}
}

func TestHTTPProviderClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad category", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := fastProvider(srv.URL).List(context.Background(), "???", 0)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := fastProvider(srv.URL)
	p.retries = 1
	if _, err := p.List(context.Background(), "", 0); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestStatusError(t *testing.T) {
	cases := map[int]error{
		429: domain.ErrQuotaExceeded,
		404: domain.ErrInvalidInput,
		500: domain.ErrProviderUnavailable,
		302: domain.ErrProviderUnavailable,
	}
	for status, want := range cases {
		if err := StatusError("p", status, ""); !errors.Is(err, want) {
			t.Errorf("StatusError(%d) = %v, want %v", status, err, want)
		}
	}
}

func TestHTMLProviderLegacyCharset(t *testing.T) {
	page := "<html><body>" +
		"<div class=\"product\"><a href=\"/p/1\"><span class=\"product-name\">Caf\xe9 Collagen  Blend</span></a>" +
		"<span class=\"price\">$29.99</span><span class=\"commission\">20%</span>" +
		"<span class=\"rating\">9.2</span><span class=\"sales\">3.4k</span></div>" +
		"<div class=\"product\"><span class=\"product-name\">Turmeric Gummies</span><span class=\"price\">14</span></div>" +
		"<div class=\"product\"><span class=\"product-name\">Third</span></div>" +
		"</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("category") != "beauty" {
			t.Errorf("category not passed: %s", r.URL)
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	p := NewHTMLProvider("listing", srv.URL+"/top", Selectors{})
	recs, err := p.List(context.Background(), "beauty", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want limit 2", len(recs))
	}
	r := recs[0]
	if r.Name != "Café Collagen Blend" {
		t.Errorf("name = %q", r.Name)
	}
	if r.Price != "$29.99" || r.Commission != "20%" || r.Rating != "9.2" || r.MonthlySales != "3.4k" {
		t.Errorf("record = %+v", r)
	}
	if r.URL != srv.URL+"/p/1" || r.Category != "beauty" {
		t.Errorf("url = %q category = %q", r.URL, r.Category)
	}
}

type mockProvider struct {
	calls  atomic.Int32
	listFn func(ctx context.Context, category string, limit int) ([]domain.RawProduct, error)
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	m.calls.Add(1)
	return m.listFn(ctx, category, limit)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	inner := &mockProvider{listFn: func(context.Context, string, int) ([]domain.RawProduct, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	b := NewBreaker(inner, 2, time.Hour)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.List(ctx, "", 0); !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}
	if _, err := b.List(ctx, "", 0); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("open breaker: %v", err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls.Load())
	}
}

func TestBreakerIgnoresInvalidInput(t *testing.T) {
	inner := &mockProvider{listFn: func(context.Context, string, int) ([]domain.RawProduct, error) {
		return nil, domain.ErrInvalidInput
	}}
	b := NewBreaker(inner, 1, time.Hour)
	for i := 0; i < 3; i++ {
		b.List(context.Background(), "", 0)
	}
	if b.State() != "closed" || inner.calls.Load() != 3 {
		t.Errorf("state = %s after %d calls, want closed", b.State(), inner.calls.Load())
	}
}

func TestBreakerPassesRecords(t *testing.T) {
	inner := &mockProvider{listFn: func(context.Context, string, int) ([]domain.RawProduct, error) {
		return []domain.RawProduct{{Name: "LED Mirror", Price: "299.99"}}, nil
	}}
	recs, err := NewBreaker(inner, 0, time.Minute).List(context.Background(), "tech", 1)
	if err != nil || len(recs) != 1 || recs[0].Name != "LED Mirror" {
		t.Fatalf("List = %+v, %v", recs, err)
	}
}
