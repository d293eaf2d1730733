package scorer

import (
	"slices"
	"strings"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

var viralKeywords = []string{
	"viral", "trending", "tiktok", "led", "smart", "glow", "aesthetic", "hack",
	"must have", "satisfying", "portable", "wireless", "magnetic", "instant", "transform",
}

var controversyKeywords = []string{
	"secret", "banned", "shocking", "truth", "myth", "exposed", "before and after",
	"they don t want", "doctors hate", "hack",
}

// Breakdown computes the six sub-scores for p. It is pure: the same product
// and criteria always give the same breakdown.
func Breakdown(p domain.Product, c Criteria) domain.ScoreBreakdown {
	text := " " + NormalizeText(p.Name+" "+p.Description) + " "
	return domain.ScoreBreakdown{
		ProfitPotential:      min(1, p.ProfitPerSale()/50),
		ViralIndicators:      min(1, float64(countKeywords(text, viralKeywords))/5),
		MarketOpportunity:    clip(0.5 + competitionBonus(p.Competition) + salesBandBonus(p.MonthlySales)),
		TrendMomentum:        clip(0.5 + growthBonus(p.GrowthRate) + p.TrendScore/100*0.2),
		ContentAngles:        min(1, float64(countKeywords(text, controversyKeywords))*0.2),
		ConversionLikelihood: clip(0.5 + priceBandBonus(p.Price) + ratingBonus(p.Rating) + categoryBonus(p.Category, c)),
	}
}

// countKeywords counts distinct keywords present as whole words in text,
// which must be normalized and padded with spaces.
func countKeywords(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, " "+kw+" ") {
			n++
		}
	}
	return n
}

func competitionBonus(level string) float64 {
	switch level {
	case "low":
		return 0.3
	case "medium":
		return 0.1
	case "high":
		return -0.2
	}
	return 0
}

func salesBandBonus(sales int64) float64 {
	switch {
	case sales <= 0:
		return 0
	case sales < 1000:
		return 0.05
	case sales <= 50_000:
		return 0.2
	case sales <= 200_000:
		return 0.1
	default:
		return -0.1
	}
}

func growthBonus(pct float64) float64 {
	switch {
	case pct >= 50:
		return 0.3
	case pct >= 20:
		return 0.2
	case pct >= 5:
		return 0.1
	case pct < 0:
		return -0.2
	}
	return 0
}

func priceBandBonus(price float64) float64 {
	switch {
	case price <= 30:
		return 0.2
	case price <= 80:
		return 0.15
	case price <= 200:
		return 0.05
	}
	return 0
}

func ratingBonus(r float64) float64 {
	switch {
	case r >= 4.5:
		return 0.2
	case r >= 4.0:
		return 0.1
	}
	return 0
}

func categoryBonus(category string, c Criteria) float64 {
	if slices.Contains(c.PreferredCategories, category) {
		return 0.1
	}
	return 0
}

func clip(v float64) float64 {
	return max(0, min(1, v))
}
