// Package planner matches products to audience pain points and produces
// script plans with viral and revenue estimates.
package planner

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scorer"
)

const (
	minMatchScore   = 30.0
	primaryBonus    = 20.0
	maxPrimaryBonus = 3
	baseViews       = 1_000_000.0
	clickThrough    = 0.08
)

// Match is one pain point candidate for a product.
type Match struct {
	PainPoint          PainPoint
	Score              float64
	MatchedIngredients []string
	PrimaryMatches     int
}

type Planner struct {
	catalog  []PainPoint
	variants map[string][]string
	now      func() time.Time
}

// New returns a planner over catalog, or the built-in catalog when nil.
func New(catalog []PainPoint) *Planner {
	if catalog == nil {
		catalog = Catalog
	}
	return &Planner{catalog: catalog, variants: buildVariants(), now: time.Now}
}

// SetClock replaces the clock used for plan timestamps.
func (p *Planner) SetClock(now func() time.Time) { p.now = now }

// buildVariants expands every canonical ingredient into the normalized
// spellings that should count as a mention.
func buildVariants() map[string][]string {
	out := make(map[string][]string, len(ingredientAliases))
	for canonical, aliases := range ingredientAliases {
		seen := map[string]bool{}
		for _, a := range append([]string{canonical}, aliases...) {
			n := scorer.NormalizeText(a)
			for _, v := range []string{n, strings.ReplaceAll(n, " ", "")} {
				if v != "" && !seen[v] {
					seen[v] = true
					out[canonical] = append(out[canonical], v)
				}
			}
		}
	}
	return out
}

// ExtractIngredients returns the canonical ingredients mentioned in text,
// sorted by name.
func (p *Planner) ExtractIngredients(text string) []string {
	padded := " " + scorer.NormalizeText(text) + " "
	var found []string
	for canonical, variants := range p.variants {
		for _, v := range variants {
			if strings.Contains(padded, " "+v+" ") {
				found = append(found, canonical)
				break
			}
		}
	}
	sort.Strings(found)
	return found
}

// Matches scores every pain point against the product and returns those at
// or above the minimum, best first. Ties go to higher demographic impact.
func (p *Planner) Matches(product domain.Product) []Match {
	ingredients := p.ExtractIngredients(product.Name + " " + product.Description)
	var out []Match
	for _, pp := range p.catalog {
		m := Match{PainPoint: pp}
		for _, ing := range pp.Ingredients {
			if slices.Contains(ingredients, ing) {
				m.MatchedIngredients = append(m.MatchedIngredients, ing)
			}
		}
		for _, ing := range pp.PrimaryIngredients {
			if slices.Contains(ingredients, ing) {
				m.PrimaryMatches++
			}
		}
		if len(pp.Ingredients) == 0 || len(m.MatchedIngredients) == 0 {
			continue
		}
		score := float64(len(m.MatchedIngredients))/float64(len(pp.Ingredients))*100 +
			primaryBonus*float64(min(m.PrimaryMatches, maxPrimaryBonus))
		m.Score = min(100, score)
		if m.Score >= minMatchScore {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PainPoint.DemographicImpact > out[j].PainPoint.DemographicImpact
	})
	return out
}

// ViralScore blends pain point potential, ingredient strength and buying
// friction into a 0–100 estimate.
func ViralScore(m Match, product domain.Product) float64 {
	strength := min(100, 34*float64(m.PrimaryMatches)+15*float64(len(m.MatchedIngredients)-m.PrimaryMatches))
	impulse := 60.0
	if product.Price <= 80 {
		impulse = 100
	}
	motivation := 70.0
	if product.CommissionPct >= 20 {
		motivation = 100
	}
	saturation := 50.0
	if product.MonthlySales < 30_000 {
		saturation = 100
	}
	v := 0.35*(m.PainPoint.ViralPotential*m.Score/100) +
		0.25*strength +
		0.20*impulse +
		0.15*motivation +
		0.05*saturation
	return max(0, min(100, v))
}

// EstimateRevenue projects affiliate revenue from the viral score, capped
// at domain.RevenueCap.
func EstimateRevenue(viral float64, product domain.Product, multiplier float64) float64 {
	views := viral / 100 * baseViews
	rev := views * clickThrough * product.ProfitPerSale() * multiplier
	return max(0, min(domain.RevenueCap, rev))
}

// PlanPriority combines viral score and revenue into a plan priority.
func PlanPriority(viral, revenue float64) domain.PlanPriority {
	combined := 0.6*viral + 0.4*min(revenue/1000, 60)
	switch {
	case combined >= 80:
		return domain.PlanUrgent
	case combined >= 65:
		return domain.PlanHigh
	case combined >= 50:
		return domain.PlanMedium
	default:
		return domain.PlanLow
	}
}

// Plan builds a script plan for an opportunity on product.
func (p *Planner) Plan(opp domain.Opportunity, product domain.Product) (domain.ScriptPlan, error) {
	matches := p.Matches(product)
	if len(matches) == 0 {
		return domain.ScriptPlan{}, fmt.Errorf("product %q: %w", product.Name, domain.ErrNoPainPointMatch)
	}
	best := matches[0]
	pp := best.PainPoint

	viral := ViralScore(best, product)
	revenue := EstimateRevenue(viral, product, pp.RevenueMultiplier)

	plan := domain.ScriptPlan{
		ID:                   uuid.NewString(),
		OpportunityID:        opp.ID,
		ProductID:            product.ID,
		ProductName:          product.Name,
		Tier:                 opp.RecommendedTier,
		PainPoint:            pp.ID,
		MatchScore:           best.Score,
		MatchedIngredients:   best.MatchedIngredients,
		Hook:                 first(pp.EmotionalHooks),
		EmotionalTriggers:    firstN(pp.EmotionalAmplification, 2),
		StatisticalHook:      pp.StatisticalHook,
		MechanismExplanation: mechanismFor(best.MatchedIngredients),
		EstimatedRevenue:     revenue,
		ViralScore:           viral,
		Priority:             PlanPriority(viral, revenue),
		RequiredDisclosures:  append([]string(nil), domain.MandatoryDisclosures...),
		CreatedAt:            p.now(),
	}
	if err := plan.Validate(); err != nil {
		return domain.ScriptPlan{}, err
	}
	return plan, nil
}

func mechanismFor(ingredients []string) string {
	for _, ing := range ingredients {
		if m, ok := mechanisms[ing]; ok {
			return m
		}
	}
	return genericMechanism
}

func first(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

func firstN(s []string, n int) []string {
	return append([]string(nil), s[:min(n, len(s))]...)
}
