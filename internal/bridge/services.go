package bridge

import (
	"sort"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Account types.
const (
	AccountBusiness = "business"
	AccountCreator  = "creator"
	AccountPersonal = "personal"
)

var accountTypes = []string{AccountBusiness, AccountCreator, AccountPersonal}

// Engagement types, assigned round-robin.
const (
	EngagementComment      = "comment"
	EngagementProfileVisit = "profile_visit"
	EngagementLinkClick    = "link_click"
)

var engagementTypes = []string{EngagementComment, EngagementProfileVisit, EngagementLinkClick}

// Lead categories.
const (
	CategoryBusinessOwner = "business_owner"
	CategoryCreator       = "high_engagement_creator"
	CategoryAgency        = "agency_prospect"
	CategoryInfluencer    = "influencer"
)

var categoryServices = map[string][]string{
	CategoryBusinessOwner: {"ai_content_automation", "custom_automation_build", "viral_video_package"},
	CategoryAgency:        {"white_label_content", "custom_automation_build", "ai_content_automation"},
	CategoryCreator:       {"viral_video_package", "content_strategy_consulting", "ai_content_automation"},
	CategoryInfluencer:    {"viral_video_package", "brand_partnership_setup", "content_strategy_consulting"},
}

var intentSignals = map[string][]string{
	AccountBusiness: {"business_profile", "asked_about_pricing", "link_in_bio_click", "mentioned_team"},
	AccountCreator:  {"creator_profile", "asked_about_tools", "collab_interest"},
	AccountPersonal: {"personal_interest"},
}

// Category maps an account type and qualification score to a lead category.
func Category(accountType string, score float64) string {
	switch accountType {
	case AccountBusiness:
		if score >= 0.7 {
			return CategoryBusinessOwner
		}
		return CategoryAgency
	case AccountCreator:
		if score >= 0.75 {
			return CategoryCreator
		}
	}
	return CategoryInfluencer
}

// serviceDelta adjusts a service's fit for the lead it is offered to.
func serviceDelta(service, accountType, category string) float64 {
	switch {
	case service == "ai_content_automation" && accountType == AccountBusiness:
		return 0.15
	case service == "custom_automation_build" && accountType == AccountBusiness:
		return 0.1
	case service == "viral_video_package" && accountType == AccountCreator:
		return 0.2
	case service == "white_label_content" && category == CategoryAgency:
		return 0.1
	}
	return 0
}

// Recommend returns the lead category and its services ranked by fit.
func Recommend(accountType string, score float64) (string, []domain.ServiceRecommendation) {
	category := Category(accountType, score)
	var out []domain.ServiceRecommendation
	for _, svc := range categoryServices[category] {
		fit := clip(score + serviceDelta(svc, accountType, category))
		out = append(out, domain.ServiceRecommendation{Service: svc, FitScore: fit, Priority: fitPriority(fit)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FitScore > out[j].FitScore })
	return category, out
}

func fitPriority(fit float64) string {
	switch {
	case fit >= 0.8:
		return "high"
	case fit >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// Nurture returns the nurture sequence and priority for a tier.
func Nurture(tier domain.LeadTier) (string, string) {
	switch tier {
	case domain.LeadHot:
		return "hot_lead_sequence", "urgent"
	case domain.LeadWarm:
		return "warm_lead_sequence", "high"
	default:
		return "qualified_lead_sequence", "normal"
	}
}

func clip(v float64) float64 { return max(0, min(1, v)) }
