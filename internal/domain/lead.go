package domain

import (
	"fmt"
	"sort"
	"time"
)

type EngagementEvent struct {
	VideoID          string    `json:"video_id"`
	Views            int64     `json:"views"`
	Likes            int64     `json:"likes"`
	Comments         int64     `json:"comments"`
	Shares           int64     `json:"shares"`
	LinkClicks       int64     `json:"link_clicks,omitempty"`
	EngagementRate   float64   `json:"engagement_rate"`
	ViralCoefficient float64   `json:"viral_coefficient"`
	Timestamp        time.Time `json:"timestamp"`
}

// Normalize recomputes the engagement rate from counters when they are
// present; a bare snapshot keeps the rate the source reported.
func (e EngagementEvent) Normalize() EngagementEvent {
	if e.Likes+e.Comments+e.Shares > 0 {
		e.EngagementRate = float64(e.Likes+e.Comments+e.Shares) / float64(max(e.Views, 1))
	}
	if e.EngagementRate > 1 {
		e.EngagementRate = 1
	}
	return e
}

func (e EngagementEvent) Validate() error {
	if e.VideoID == "" {
		return fmt.Errorf("engagement event without video id: %w", ErrInvalidInput)
	}
	if e.Views < 0 || e.Likes < 0 || e.Comments < 0 || e.Shares < 0 || e.LinkClicks < 0 {
		return fmt.Errorf("negative counter on video %s: %w", e.VideoID, ErrInvalidInput)
	}
	if !finite(e.EngagementRate) || e.EngagementRate < 0 || e.EngagementRate > 1 {
		return fmt.Errorf("engagement rate %v: %w", e.EngagementRate, ErrInvalidInput)
	}
	return nil
}

// CheckSuccessor rejects a snapshot whose counters go backwards from prev.
func (e EngagementEvent) CheckSuccessor(prev EngagementEvent) error {
	if e.Views < prev.Views || e.Likes < prev.Likes || e.Comments < prev.Comments ||
		e.Shares < prev.Shares || e.LinkClicks < prev.LinkClicks {
		return invariant("engagement event", "counters for video %s decreased", e.VideoID)
	}
	return nil
}

type LeadTier string

const (
	LeadHot       LeadTier = "HOT"
	LeadWarm      LeadTier = "WARM"
	LeadQualified LeadTier = "QUALIFIED"
	LeadCold      LeadTier = "COLD"
)

type ServiceRecommendation struct {
	Service  string  `json:"service"`
	FitScore float64 `json:"fit_score"`
	Priority string  `json:"priority"`
}

type Lead struct {
	ID                  string                  `json:"id"`
	SourceVideoID       string                  `json:"source_video_id"`
	ItemID              string                  `json:"item_id,omitempty"`
	EngagementType      string                  `json:"engagement_type"`
	AccountType         string                  `json:"account_type"`
	Category            string                  `json:"category"`
	IntentSignals       []string                `json:"intent_signals"`
	QualificationScore  float64                 `json:"qualification_score"`
	Tier                LeadTier                `json:"tier"`
	RecommendedServices []ServiceRecommendation `json:"recommended_services"`
	NurtureType         string                  `json:"nurture_type"`
	NurturePriority     string                  `json:"nurture_priority"`
	CreatedAt           time.Time               `json:"created_at"`
}

func (l Lead) Validate() error {
	if l.ID == "" || l.SourceVideoID == "" {
		return invariant("lead", "missing id or source video")
	}
	if !finite(l.QualificationScore) || l.QualificationScore < 0 || l.QualificationScore > 1 {
		return invariant("lead", "qualification score %v outside [0,1]", l.QualificationScore)
	}
	sorted := sort.SliceIsSorted(l.RecommendedServices, func(i, j int) bool {
		return l.RecommendedServices[i].FitScore > l.RecommendedServices[j].FitScore
	})
	if !sorted {
		return invariant("lead", "recommended services not sorted by fit score")
	}
	return nil
}
