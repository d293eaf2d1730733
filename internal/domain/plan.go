package domain

import (
	"slices"
	"time"
)

type PainPointID string

const (
	ChronicFatigue      PainPointID = "CHRONIC_FATIGUE"
	SleepEpidemic       PainPointID = "SLEEP_EPIDEMIC"
	BrainFogMemory      PainPointID = "BRAIN_FOG_MEMORY"
	MetabolicDamage     PainPointID = "METABOLIC_DAMAGE"
	AnxietyDepression   PainPointID = "ANXIETY_DEPRESSION"
	ChronicInflammation PainPointID = "CHRONIC_INFLAMMATION"
	HormonalImbalance   PainPointID = "HORMONAL_IMBALANCE"
)

// Disclosure identifiers every plan and queue item must carry.
const (
	DisclosureAdvertising = "advertising_disclosure"
	DisclosureAffiliate   = "affiliate_disclosure"
)

// MandatoryDisclosures is the set every ScriptPlan must include.
var MandatoryDisclosures = []string{DisclosureAdvertising, DisclosureAffiliate}

// RevenueCap bounds every revenue estimate, in dollars.
const RevenueCap = 60000.0

type PlanPriority string

const (
	PlanUrgent PlanPriority = "urgent"
	PlanHigh   PlanPriority = "high"
	PlanMedium PlanPriority = "medium"
	PlanLow    PlanPriority = "low"
)

type ScriptPlan struct {
	ID                   string       `json:"id"`
	OpportunityID        string       `json:"opportunity_id"`
	ProductID            string       `json:"product_id"`
	ProductName          string       `json:"product_name"`
	Tier                 Tier         `json:"tier"`
	PainPoint            PainPointID  `json:"pain_point"`
	MatchScore           float64      `json:"match_score"`
	MatchedIngredients   []string     `json:"matched_ingredients"`
	Hook                 string       `json:"hook"`
	EmotionalTriggers    []string     `json:"emotional_triggers"`
	StatisticalHook      string       `json:"statistical_hook,omitempty"`
	MechanismExplanation string       `json:"mechanism_explanation"`
	EstimatedRevenue     float64      `json:"estimated_revenue"`
	ViralScore           float64      `json:"viral_score"`
	Priority             PlanPriority `json:"priority"`
	RequiredDisclosures  []string     `json:"required_disclosures"`
	CreatedAt            time.Time    `json:"created_at"`
}

func (p ScriptPlan) Validate() error {
	switch {
	case p.ID == "":
		return invariant("script plan", "missing id")
	case !finite(p.ViralScore) || p.ViralScore < 0 || p.ViralScore > 100:
		return invariant("script plan", "viral score %v outside [0,100]", p.ViralScore)
	case !finite(p.EstimatedRevenue) || p.EstimatedRevenue < 0 || p.EstimatedRevenue > RevenueCap:
		return invariant("script plan", "estimated revenue %v outside [0,%v]", p.EstimatedRevenue, RevenueCap)
	case len(p.EmotionalTriggers) < 2:
		return invariant("script plan", "needs at least two emotional triggers")
	}
	for _, d := range MandatoryDisclosures {
		if !slices.Contains(p.RequiredDisclosures, d) {
			return invariant("script plan", "missing required disclosure %s", d)
		}
	}
	return nil
}
