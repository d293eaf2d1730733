package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Selectors locate product fields on a listing page. Field selectors are
// evaluated inside each Item match.
type Selectors struct {
	Item        string `json:"item" yaml:"item"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Price       string `json:"price" yaml:"price"`
	Commission  string `json:"commission" yaml:"commission"`
	Rating      string `json:"rating" yaml:"rating"`
	Sales       string `json:"sales" yaml:"sales"`
	Growth      string `json:"growth" yaml:"growth"`
	Link        string `json:"link" yaml:"link"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		Item:        ".product",
		Name:        ".product-name",
		Description: ".product-description",
		Price:       ".price",
		Commission:  ".commission",
		Rating:      ".rating",
		Sales:       ".sales",
		Growth:      ".growth",
		Link:        "a[href]",
	}
}

// HTMLProvider scrapes product cards from a listing page. Pages in legacy
// encodings are decoded using the Content-Type header or meta charset.
type HTMLProvider struct {
	name       string
	pageURL    string
	sel        Selectors
	httpClient *http.Client
}

func NewHTMLProvider(name, pageURL string, sel Selectors) *HTMLProvider {
	if sel.Item == "" {
		sel = DefaultSelectors()
	}
	return &HTMLProvider{
		name:       name,
		pageURL:    pageURL,
		sel:        sel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (p *HTMLProvider) Name() string { return p.name }

func (p *HTMLProvider) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	base, err := url.Parse(p.pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: page url: %v: %w", p.name, err, domain.ErrInvalidInput)
	}
	if category != "" {
		q := base.Query()
		q.Set("category", category)
		base.RawQuery = q.Encode()
	}

	doc, err := p.fetchDocument(ctx, base.String())
	if err != nil {
		return nil, err
	}

	var out []domain.RawProduct
	doc.Find(p.sel.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rec := domain.RawProduct{
			Name:         text(s, p.sel.Name),
			Description:  text(s, p.sel.Description),
			Category:     category,
			Price:        text(s, p.sel.Price),
			Commission:   text(s, p.sel.Commission),
			Rating:       text(s, p.sel.Rating),
			MonthlySales: text(s, p.sel.Sales),
			GrowthRate:   text(s, p.sel.Growth),
		}
		if href, ok := s.Find(p.sel.Link).First().Attr("href"); ok {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				rec.URL = base.ResolveReference(ref).String()
			}
		}
		out = append(out, rec)
		return limit <= 0 || len(out) < limit
	})
	return out, nil
}

func (p *HTMLProvider) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "ghost/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", p.name, err, domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, StatusError(p.name, resp.StatusCode, string(body))
	}

	r, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%s: decoding page: %v: %w", p.name, err, domain.ErrProviderUnavailable)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%s: parse document: %v: %w", p.name, err, domain.ErrProviderUnavailable)
	}
	return doc, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}
