package domain

import (
	"math"
	"time"
)

type Tier string

const (
	TierHumanAvatar  Tier = "HUMAN_AVATAR"
	TierImageMontage Tier = "IMAGE_MONTAGE"
)

type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ScoreBreakdown holds the six sub-scores, each in [0,1].
type ScoreBreakdown struct {
	ProfitPotential      float64 `json:"profit_potential"`
	ViralIndicators      float64 `json:"viral_indicators"`
	MarketOpportunity    float64 `json:"market_opportunity"`
	TrendMomentum        float64 `json:"trend_momentum"`
	ContentAngles        float64 `json:"content_angles"`
	ConversionLikelihood float64 `json:"conversion_likelihood"`
}

// ScoreWeights are fixed; they must sum to 1.
var ScoreWeights = ScoreBreakdown{
	ProfitPotential:      0.25,
	ViralIndicators:      0.20,
	MarketOpportunity:    0.20,
	TrendMomentum:        0.15,
	ContentAngles:        0.10,
	ConversionLikelihood: 0.10,
}

func (b ScoreBreakdown) values() [6]float64 {
	return [6]float64{b.ProfitPotential, b.ViralIndicators, b.MarketOpportunity,
		b.TrendMomentum, b.ContentAngles, b.ConversionLikelihood}
}

// Weighted returns Σ weight·sub.
func (b ScoreBreakdown) Weighted() float64 {
	w := ScoreWeights.values()
	var sum float64
	for i, v := range b.values() {
		sum += w[i] * v
	}
	return sum
}

// Sum of the components, used to verify the weight vector.
func (b ScoreBreakdown) Sum() float64 {
	var s float64
	for _, v := range b.values() {
		s += v
	}
	return s
}

// PriorityForScore maps a score to a priority; thresholds are inclusive.
func PriorityForScore(score float64) Priority {
	switch {
	case score >= 0.90:
		return PriorityUrgent
	case score >= 0.80:
		return PriorityHigh
	case score >= 0.70:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type Opportunity struct {
	ID              string         `json:"id"`
	ProductID       string         `json:"product_id"`
	RunID           string         `json:"run_id"`
	Score           float64        `json:"score"`
	Breakdown       ScoreBreakdown `json:"score_breakdown"`
	RecommendedTier Tier           `json:"recommended_tier"`
	Priority        Priority       `json:"priority"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (o Opportunity) Validate() error {
	if o.ID == "" || o.ProductID == "" {
		return invariant("opportunity", "missing id or product reference")
	}
	for _, v := range o.Breakdown.values() {
		if !finite(v) || v < 0 || v > 1 {
			return invariant("opportunity", "sub-score %v outside [0,1]", v)
		}
	}
	if math.Abs(o.Score-o.Breakdown.Weighted()) > 1e-9 {
		return invariant("opportunity", "score %v does not match weighted breakdown", o.Score)
	}
	if o.Priority != PriorityForScore(o.Score) {
		return invariant("opportunity", "priority %s inconsistent with score %v", o.Priority, o.Score)
	}
	if o.RecommendedTier != TierHumanAvatar && o.RecommendedTier != TierImageMontage {
		return invariant("opportunity", "unknown tier %q", o.RecommendedTier)
	}
	return nil
}
