// Package scorer turns raw catalog records into ranked content opportunities.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Criteria filters products before scoring. Zero bounds are not applied;
// sales and rating bounds only apply when the product reports a value.
type Criteria struct {
	MaxPrice            float64  `yaml:"max_price"`
	MinCommission       float64  `yaml:"min_commission"`
	MinRating           float64  `yaml:"min_rating"`
	MinMonthlySales     int64    `yaml:"min_monthly_sales"`
	MaxMonthlySales     int64    `yaml:"max_monthly_sales"`
	MinProfitPerSale    float64  `yaml:"min_profit_per_sale"`
	BlacklistedKeywords []string `yaml:"blacklisted_keywords"`
	PreferredCategories []string `yaml:"preferred_categories"`
	// FilterExpr is an optional boolean expression over product fields, e.g.
	// "price < 100 && rating >= 4.2".
	FilterExpr string `yaml:"filter_expr"`
}

func DefaultCriteria() Criteria {
	return Criteria{
		MaxPrice:            500,
		MinCommission:       5,
		MinRating:           3.5,
		MinMonthlySales:     100,
		MaxMonthlySales:     1_000_000,
		MinProfitPerSale:    5,
		BlacklistedKeywords: []string{"replica", "counterfeit", "weapon", "vape", "cbd"},
		PreferredCategories: []string{"health", "beauty", "tech"},
	}
}

// Budget bounds HUMAN_AVATAR recommendations.
type Budget struct {
	MonthlyHumanAvatarLimit int64    `yaml:"monthly_human_avatar_limit"`
	TargetHumanAvatarRatio  float64  `yaml:"target_human_avatar_ratio"`
	TrustCategories         []string `yaml:"trust_categories"`
}

func DefaultBudget() Budget {
	return Budget{
		MonthlyHumanAvatarLimit: 10,
		TargetHumanAvatarRatio:  0.25,
		TrustCategories:         []string{"health", "beauty", "tech"},
	}
}

// Counter is the store's atomic counter.
type Counter interface {
	IncrementCounter(ctx context.Context, key string, limit int64) (int64, bool, error)
}

type Scorer struct {
	criteria Criteria
	budget   Budget
	counter  Counter
	filter   *vm.Program
	now      func() time.Time
}

// New compiles the criteria filter expression and returns a scorer that
// draws HUMAN_AVATAR slots from counter.
func New(c Criteria, b Budget, counter Counter) (*Scorer, error) {
	s := &Scorer{criteria: c, budget: b, counter: counter, now: time.Now}
	if strings.TrimSpace(c.FilterExpr) != "" {
		prog, err := expr.Compile(c.FilterExpr, expr.Env(productEnv(domain.Product{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compiling filter expression: %w", err)
		}
		s.filter = prog
	}
	return s, nil
}

// SetClock replaces the clock used for budget months.
func (s *Scorer) SetClock(now func() time.Time) { s.now = now }

// Diagnostics counts what happened to records that did not become opportunities.
type Diagnostics struct {
	Received       int            `json:"received"`
	Dropped        int            `json:"dropped"`
	Merged         int            `json:"merged"`
	Filtered       map[string]int `json:"filtered"`
	ProviderErrors []string       `json:"provider_errors,omitempty"`
	BudgetUsed     int            `json:"budget_used"`
}

type Result struct {
	Products      []domain.Product     `json:"products"`
	Opportunities []domain.Opportunity `json:"opportunities"`
	Diagnostics   Diagnostics          `json:"diagnostics"`
}

// ProductFor returns the scored product an opportunity refers to.
func (r Result) ProductFor(o domain.Opportunity) (domain.Product, bool) {
	for _, p := range r.Products {
		if p.ID == o.ProductID {
			return p, true
		}
	}
	return domain.Product{}, false
}

// Score normalizes, merges, filters, scores and ranks raws, then assigns
// production tiers in rank order.
func (s *Scorer) Score(ctx context.Context, raws []domain.RawProduct, runID string) (Result, error) {
	res := Result{Diagnostics: Diagnostics{Received: len(raws), Filtered: map[string]int{}}}

	products := s.merge(raws, &res.Diagnostics)

	for _, p := range products {
		if reason := s.rejectReason(p); reason != "" {
			res.Diagnostics.Filtered[reason]++
			continue
		}
		res.Products = append(res.Products, p)
	}

	now := s.now()
	for _, p := range res.Products {
		b := Breakdown(p, s.criteria)
		score := b.Weighted()
		res.Opportunities = append(res.Opportunities, domain.Opportunity{
			ID:        uuid.NewString(),
			ProductID: p.ID,
			RunID:     runID,
			Score:     score,
			Breakdown: b,
			Priority:  domain.PriorityForScore(score),
			CreatedAt: now,
		})
	}
	Rank(res.Opportunities, res.Products)

	used, err := s.assignTiers(ctx, res.Opportunities, res.Products, now)
	if err != nil {
		return Result{}, err
	}
	res.Diagnostics.BudgetUsed = used
	return res, nil
}

func (s *Scorer) merge(raws []domain.RawProduct, d *Diagnostics) []domain.Product {
	var out []domain.Product
	index := map[string]int{}
	for _, raw := range raws {
		p, err := Normalize(raw)
		if err != nil {
			d.Dropped++
			continue
		}
		if i, ok := index[p.MergeKey]; ok {
			enrich(&out[i], p)
			d.Merged++
			continue
		}
		index[p.MergeKey] = len(out)
		out = append(out, p)
	}
	return out
}

// rejectReason names the first criterion p fails, or "" when it passes.
func (s *Scorer) rejectReason(p domain.Product) string {
	c := s.criteria
	switch {
	case c.MaxPrice > 0 && p.Price > c.MaxPrice:
		return "max_price"
	case p.CommissionPct < c.MinCommission:
		return "min_commission"
	case p.Rating > 0 && p.Rating < c.MinRating:
		return "min_rating"
	case p.MonthlySales > 0 && p.MonthlySales < c.MinMonthlySales:
		return "min_monthly_sales"
	case c.MaxMonthlySales > 0 && p.MonthlySales > c.MaxMonthlySales:
		return "max_monthly_sales"
	case p.ProfitPerSale() < c.MinProfitPerSale:
		return "min_profit_per_sale"
	}
	for _, kw := range c.BlacklistedKeywords {
		if kw != "" && strings.Contains(p.MergeKey, strings.ToLower(kw)) {
			return "blacklisted_keyword"
		}
	}
	if s.filter != nil {
		out, err := expr.Run(s.filter, productEnv(p))
		if err != nil {
			slog.Warn("filter expression failed", "product", p.Name, "error", err)
			return "filter_expr"
		}
		if ok, _ := out.(bool); !ok {
			return "filter_expr"
		}
	}
	return ""
}

func productEnv(p domain.Product) map[string]any {
	return map[string]any{
		"name":          p.Name,
		"category":      p.Category,
		"price":         p.Price,
		"commission":    p.CommissionPct,
		"rating":        p.Rating,
		"monthly_sales": p.MonthlySales,
		"growth_rate":   p.GrowthRate,
		"trend_score":   p.TrendScore,
		"competition":   p.Competition,
		"profit":        p.ProfitPerSale(),
		"sources":       len(p.Sources),
	}
}

// Rank sorts opportunities by score, then trend momentum, then lower price,
// then name.
func Rank(opps []domain.Opportunity, products []domain.Product) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Breakdown.TrendMomentum != b.Breakdown.TrendMomentum {
			return a.Breakdown.TrendMomentum > b.Breakdown.TrendMomentum
		}
		pa, pb := byID[a.ProductID], byID[b.ProductID]
		if pa.Price != pb.Price {
			return pa.Price < pb.Price
		}
		return pa.Name < pb.Name
	})
}

// assignTiers walks ranked opportunities and grants HUMAN_AVATAR to eligible
// ones while both the run ratio and the monthly budget allow it.
func (s *Scorer) assignTiers(ctx context.Context, opps []domain.Opportunity, products []domain.Product, now time.Time) (int, error) {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	runCap := int(math.Ceil(s.budget.TargetHumanAvatarRatio * float64(len(opps))))
	key := BudgetKey(now)
	used := 0
	exhausted := false

	for i := range opps {
		opps[i].RecommendedTier = domain.TierImageMontage
		if exhausted || used >= runCap || !s.eligible(opps[i], byID[opps[i].ProductID]) {
			continue
		}
		_, ok, err := s.counter.IncrementCounter(ctx, key, s.budget.MonthlyHumanAvatarLimit)
		if err != nil {
			return used, fmt.Errorf("reserving avatar budget: %w", err)
		}
		if !ok {
			exhausted = true
			slog.Info("human avatar budget exhausted", "month", key)
			continue
		}
		opps[i].RecommendedTier = domain.TierHumanAvatar
		used++
	}
	return used, nil
}

func (s *Scorer) eligible(o domain.Opportunity, p domain.Product) bool {
	if o.Priority != domain.PriorityUrgent && o.Priority != domain.PriorityHigh {
		return false
	}
	return slices.Contains(s.budget.TrustCategories, p.Category)
}

// BudgetKey names the monthly avatar counter for t.
func BudgetKey(t time.Time) string {
	return "human_avatar:" + t.UTC().Format("2006-01")
}
