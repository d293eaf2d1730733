package domain

import (
	"math"
	"time"
)

// RawProduct is a catalog record as a provider returns it. Numeric fields
// are kept as strings because providers disagree on units and formatting.
type RawProduct struct {
	Provider     string    `json:"provider"`
	ScrapedAt    time.Time `json:"scraped_at"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category,omitempty"`
	Price        string    `json:"price"`
	Commission   string    `json:"commission,omitempty"`
	Rating       string    `json:"rating,omitempty"`
	MonthlySales string    `json:"monthly_sales,omitempty"`
	GrowthRate   string    `json:"growth_rate,omitempty"`
	TrendScore   string    `json:"trend_score,omitempty"`
	Competition  string    `json:"competition,omitempty"`
	URL          string    `json:"url,omitempty"`
}

type Product struct {
	ID            string    `json:"id"`
	MergeKey      string    `json:"merge_key"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Category      string    `json:"category"`
	Price         float64   `json:"price"`
	CommissionPct float64   `json:"commission_pct"`
	Rating        float64   `json:"rating"`
	MonthlySales  int64     `json:"monthly_sales"`
	GrowthRate    float64   `json:"growth_rate"`
	TrendScore    float64   `json:"trend_score"`
	Competition   string    `json:"competition,omitempty"`
	URL           string    `json:"url,omitempty"`
	Sources       []string  `json:"sources"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// ProfitPerSale is the affiliate payout for one sale.
func (p Product) ProfitPerSale() float64 {
	return p.Price * p.CommissionPct / 100
}

func (p Product) Validate() error {
	switch {
	case p.ID == "":
		return invariant("product", "missing id")
	case p.MergeKey == "":
		return invariant("product", "missing merge key")
	case !finite(p.Price) || p.Price < 0:
		return invariant("product", "price %v out of range", p.Price)
	case !finite(p.CommissionPct) || p.CommissionPct < 0 || p.CommissionPct > 100:
		return invariant("product", "commission %v out of range", p.CommissionPct)
	case !finite(p.Rating) || p.Rating < 0 || p.Rating > 5:
		return invariant("product", "rating %v out of range", p.Rating)
	case len(p.Sources) == 0:
		return invariant("product", "no source provider")
	}
	return nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
