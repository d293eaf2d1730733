// Package bridge turns engagement on published videos into qualified leads
// with service recommendations and hands them to a nurture sink.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

// Conversion indicators.
const (
	IndicatorClickThrough = "high_click_through_rate"
	IndicatorShareRate    = "high_share_rate"
	IndicatorComments     = "high_comment_engagement"
)

type Store interface {
	RecordEngagement(ctx context.Context, e domain.EngagementEvent) error
	ItemByVideoID(ctx context.Context, videoID string) (domain.QueueItem, error)
	PutLead(ctx context.Context, l domain.Lead) error
}

// NurtureSink receives emitted leads. Duplicates are allowed.
type NurtureSink interface {
	Enqueue(ctx context.Context, lead domain.Lead, nurtureType, priority string) error
}

// Pattern classifies one engagement snapshot.
type Pattern struct {
	Quality        string   `json:"engagement_quality"`
	ViralPotential string   `json:"viral_potential"`
	Indicators     []string `json:"conversion_indicators"`
}

// Analyze classifies the engagement quality, viral potential and conversion
// indicators of e. e should already be normalized.
func Analyze(e domain.EngagementEvent) Pattern {
	p := Pattern{Quality: "low", ViralPotential: "low"}
	switch {
	case e.EngagementRate > 0.05:
		p.Quality = "high"
	case e.EngagementRate > 0.02:
		p.Quality = "medium"
	}
	switch {
	case e.ViralCoefficient > 0.1:
		p.ViralPotential = "high"
	case e.ViralCoefficient > 0.05:
		p.ViralPotential = "medium"
	}
	views := float64(max(e.Views, 1))
	if float64(e.LinkClicks)/views > 0.01 {
		p.Indicators = append(p.Indicators, IndicatorClickThrough)
	}
	if float64(e.Shares)/views > 0.02 {
		p.Indicators = append(p.Indicators, IndicatorShareRate)
	}
	if float64(e.Comments)/views > 0.05 {
		p.Indicators = append(p.Indicators, IndicatorComments)
	}
	return p
}

// PotentialLeads is floor(views × rate), capped.
func (c Config) PotentialLeads(views int64) int {
	n := int(math.Floor(float64(views) * c.LeadsPerView))
	return max(0, min(c.MaxLeadsPerEvent, n))
}

var (
	engagementScores = map[string]float64{EngagementComment: 0.8, EngagementLinkClick: 0.9, EngagementProfileVisit: 0.6}
	qualityFactor    = map[string]float64{"high": 1.0, "medium": 0.85, "low": 0.7}
	resonanceScores  = map[string]float64{"high": 0.9, "medium": 0.7, "low": 0.5}
	demographicMatch = map[string]float64{AccountBusiness: 0.9, AccountCreator: 0.8, AccountPersonal: 0.5}
)

// Qualify scores one potential lead.
func (c Config) Qualify(p Pattern, engagementType, accountType string, signals int) float64 {
	w := c.Weights
	score := w.Engagement*engagementScores[engagementType]*qualityFactor[p.Quality] +
		w.Resonance*resonanceScores[p.ViralPotential] +
		w.Demographic*demographicMatch[accountType] +
		w.Intent*min(1, float64(signals)*0.2) +
		w.Traffic*c.TrafficQuality +
		w.Conversion*min(1, float64(len(p.Indicators))*0.3)
	return clip(score)
}

// Tier maps a score to its lead tier; thresholds are inclusive.
func (c Config) Tier(score float64) domain.LeadTier {
	t := c.Thresholds
	switch {
	case score >= t.Hot:
		return domain.LeadHot
	case score >= t.Warm:
		return domain.LeadWarm
	case score >= t.Qualified:
		return domain.LeadQualified
	default:
		return domain.LeadCold
	}
}

// Report summarizes one processed engagement event.
type Report struct {
	VideoID      string                  `json:"video_id"`
	ItemID       string                  `json:"item_id,omitempty"`
	Pattern      Pattern                 `json:"pattern"`
	Potential    int                     `json:"potential_leads"`
	Leads        []domain.Lead           `json:"leads"`
	ByTier       map[domain.LeadTier]int `json:"by_tier"`
	SinkFailures int                     `json:"sink_failures"`
}

type Bridge struct {
	store Store
	sink  NurtureSink
	cfg   Config
	now   func() time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New returns a bridge drawing account types from rng.
func New(store Store, sink NurtureSink, cfg Config, rng *rand.Rand) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("bridge needs a random source: %w", domain.ErrInvalidInput)
	}
	return &Bridge{store: store, sink: sink, cfg: cfg, rng: rng, now: time.Now}, nil
}

func (b *Bridge) SetClock(now func() time.Time) { b.now = now }

func (b *Bridge) accountType() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return accountTypes[b.rng.IntN(len(accountTypes))]
}

// Process records e and emits every potential lead scoring at least the
// qualified threshold. The snapshot is recorded before any lead is stored,
// and each lead is handed to the sink as soon as it is stored. A store error
// partway through therefore leaves the snapshot and the earlier leads in
// place; the returned report lists those leads alongside the error.
// Replaying the same snapshot is accepted and emits a fresh set of leads.
func (b *Bridge) Process(ctx context.Context, e domain.EngagementEvent) (Report, error) {
	e = e.Normalize()
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if err := b.store.RecordEngagement(ctx, e); err != nil {
		return Report{}, err
	}

	rep := Report{VideoID: e.VideoID, Pattern: Analyze(e), ByTier: map[domain.LeadTier]int{}}
	if item, err := b.store.ItemByVideoID(ctx, e.VideoID); err == nil {
		rep.ItemID = item.ID
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Report{}, err
	}

	rep.Potential = b.cfg.PotentialLeads(e.Views)
	for i := 0; i < rep.Potential; i++ {
		lead := b.synthesize(rep, i)
		if lead.QualificationScore < b.cfg.Thresholds.Qualified {
			continue
		}
		if err := b.store.PutLead(ctx, lead); err != nil {
			return rep, err
		}
		rep.Leads = append(rep.Leads, lead)
		rep.ByTier[lead.Tier]++
		if b.sink == nil {
			continue
		}
		if err := b.sink.Enqueue(ctx, lead, lead.NurtureType, lead.NurturePriority); err != nil {
			rep.SinkFailures++
			slog.Warn("nurture sink failed", "lead", lead.ID, "video", e.VideoID, "error", err)
		}
	}
	slog.Info("engagement processed", "video", e.VideoID, "potential", rep.Potential,
		"leads", len(rep.Leads), "hot", rep.ByTier[domain.LeadHot])
	return rep, nil
}

func (b *Bridge) synthesize(rep Report, i int) domain.Lead {
	engagement := engagementTypes[i%len(engagementTypes)]
	account := b.accountType()
	signals := append([]string(nil), intentSignals[account]...)
	score := b.cfg.Qualify(rep.Pattern, engagement, account, len(signals))
	tier := b.cfg.Tier(score)
	category, services := Recommend(account, score)
	nurtureType, priority := Nurture(tier)
	return domain.Lead{
		ID:                  uuid.NewString(),
		SourceVideoID:       rep.VideoID,
		ItemID:              rep.ItemID,
		EngagementType:      engagement,
		AccountType:         account,
		Category:            category,
		IntentSignals:       signals,
		QualificationScore:  score,
		Tier:                tier,
		RecommendedServices: services,
		NurtureType:         nurtureType,
		NurturePriority:     priority,
		CreatedAt:           b.now(),
	}
}

// BatchResult pairs an event with its outcome.
type BatchResult struct {
	Event  domain.EngagementEvent
	Report Report
	Err    error
}

// ProcessBatch processes events for different videos concurrently and
// events for the same video in the order given. A failure on one video
// does not stop the others.
func (b *Bridge) ProcessBatch(ctx context.Context, events []domain.EngagementEvent) []BatchResult {
	results := make([]BatchResult, len(events))
	byVideo := map[string][]int{}
	var order []string
	for i, e := range events {
		results[i].Event = e
		if _, ok := byVideo[e.VideoID]; !ok {
			order = append(order, e.VideoID)
		}
		byVideo[e.VideoID] = append(byVideo[e.VideoID], i)
	}

	var g errgroup.Group
	g.SetLimit(4)
	for _, video := range order {
		idxs := byVideo[video]
		g.Go(func() error {
			for _, i := range idxs {
				rep, err := b.Process(ctx, events[i])
				results[i].Report, results[i].Err = rep, err
				if err != nil {
					slog.Warn("engagement event failed", "video", video, "error", err)
				}
			}
			return nil
		})
	}
	g.Wait()
	return results
}
