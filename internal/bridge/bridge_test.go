package bridge

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

type mockSink struct {
	mu        sync.Mutex
	calls     []string
	enqueueFn func(ctx context.Context, lead domain.Lead, nurtureType, priority string) error
}

func (m *mockSink) Enqueue(ctx context.Context, lead domain.Lead, nurtureType, priority string) error {
	m.mu.Lock()
	m.calls = append(m.calls, nurtureType+"/"+priority)
	m.mu.Unlock()
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, lead, nurtureType, priority)
	}
	return nil
}

func newTestBridge(t *testing.T, cfg Config, sink NurtureSink) (*Bridge, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	b, err := New(store, sink, cfg, rand.New(rand.NewPCG(7, 11)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b.SetClock(func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) })
	return b, store
}

func viralEvent(video string) domain.EngagementEvent {
	return domain.EngagementEvent{
		VideoID:          video,
		Views:            100000,
		Comments:         6000,
		Shares:           3000,
		EngagementRate:   0.08,
		ViralCoefficient: 0.15,
	}
}

func TestViralToLeads(t *testing.T) {
	sink := &mockSink{}
	b, store := newTestBridge(t, DefaultConfig(), sink)
	ctx := context.Background()

	rep, err := b.Process(ctx, viralEvent("vid-1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.Potential != 50 {
		t.Fatalf("potential = %d, want capped at 50", rep.Potential)
	}
	if len(rep.Leads) == 0 || rep.ByTier[domain.LeadHot] == 0 {
		t.Fatalf("leads = %d, hot = %d; want hot leads", len(rep.Leads), rep.ByTier[domain.LeadHot])
	}

	sawBusiness := false
	for _, l := range rep.Leads {
		if l.QualificationScore < DefaultConfig().Thresholds.Qualified {
			t.Errorf("emitted lead below threshold: %v", l.QualificationScore)
		}
		if err := l.Validate(); err != nil {
			t.Errorf("invalid lead: %v", err)
		}
		if l.AccountType != AccountBusiness {
			continue
		}
		sawBusiness = true
		top := l.RecommendedServices[0].Service
		if top != "ai_content_automation" && top != "custom_automation_build" {
			t.Errorf("business lead top service = %s", top)
		}
	}
	if !sawBusiness {
		t.Fatal("no business leads among 50 draws")
	}

	stored, err := store.ListLeads(ctx, storage.LeadFilter{VideoID: "vid-1"})
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(stored) != len(rep.Leads) || len(sink.calls) != len(rep.Leads) {
		t.Errorf("stored %d, sink %d, emitted %d", len(stored), len(sink.calls), len(rep.Leads))
	}
}

func TestEngagementTypesRoundRobin(t *testing.T) {
	b, _ := newTestBridge(t, DefaultConfig(), nil)
	rep, err := b.Process(context.Background(), viralEvent("vid-1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	counts := map[string]int{}
	for _, l := range rep.Leads {
		counts[l.EngagementType]++
	}
	// Every engagement type qualifies under this pattern, so all 50 are emitted.
	if len(rep.Leads) != 50 || counts[EngagementComment] != 17 || counts[EngagementProfileVisit] != 17 || counts[EngagementLinkClick] != 16 {
		t.Errorf("engagement type counts = %v over %d leads", counts, len(rep.Leads))
	}
}

func TestPotentialLeads(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[int64]int{100000: 50, 20000: 20, 999: 0, 0: 0}
	for views, want := range cases {
		if got := cfg.PotentialLeads(views); got != want {
			t.Errorf("PotentialLeads(%d) = %d, want %d", views, got, want)
		}
	}
}

func TestAnalyze(t *testing.T) {
	p := Analyze(viralEvent("v").Normalize())
	if p.Quality != "high" || p.ViralPotential != "high" {
		t.Errorf("pattern = %+v, want high/high", p)
	}
	if len(p.Indicators) != 2 {
		t.Errorf("indicators = %v, want share rate and comments", p.Indicators)
	}

	edge := Analyze(domain.EngagementEvent{Views: 1000, EngagementRate: 0.05, ViralCoefficient: 0.05, LinkClicks: 11})
	if edge.Quality != "medium" || edge.ViralPotential != "low" {
		t.Errorf("boundary pattern = %+v, want medium/low", edge)
	}
	if len(edge.Indicators) != 1 || edge.Indicators[0] != IndicatorClickThrough {
		t.Errorf("indicators = %v, want click through", edge.Indicators)
	}
}

func TestQualify(t *testing.T) {
	cfg := DefaultConfig()
	p := Pattern{Quality: "high", ViralPotential: "high", Indicators: []string{IndicatorShareRate, IndicatorComments}}
	// 0.25*0.8 + 0.2*0.9 + 0.2*0.9 + 0.15*0.8 + 0.1*0.8 + 0.1*0.6
	got := cfg.Qualify(p, EngagementComment, AccountBusiness, 4)
	if math.Abs(got-0.82) > 1e-9 {
		t.Errorf("Qualify = %v, want 0.82", got)
	}
}

func TestTierThresholdsInclusive(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[float64]domain.LeadTier{
		0.8: domain.LeadHot, 0.79: domain.LeadWarm, 0.6: domain.LeadWarm,
		0.4: domain.LeadQualified, 0.3999: domain.LeadCold,
	}
	for score, want := range cases {
		if got := cfg.Tier(score); got != want {
			t.Errorf("Tier(%v) = %s, want %s", score, got, want)
		}
	}
}

func TestLeadsBelowQualifiedDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Thresholds = Thresholds{Hot: 0.95, Warm: 0.9, Qualified: 0.85}
	b, store := newTestBridge(t, cfg, nil)
	rep, err := b.Process(context.Background(), viralEvent("vid-1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.Potential != 50 || len(rep.Leads) != 0 {
		t.Fatalf("potential %d, emitted %d; want none above 0.85", rep.Potential, len(rep.Leads))
	}
	leads, _ := store.ListLeads(context.Background(), storage.LeadFilter{})
	if len(leads) != 0 {
		t.Errorf("stored %d leads, want 0", len(leads))
	}
}

func TestRecommend(t *testing.T) {
	cat, svcs := Recommend(AccountBusiness, 0.82)
	if cat != CategoryBusinessOwner || svcs[0].Service != "ai_content_automation" || svcs[0].Priority != "high" {
		t.Errorf("business 0.82 = %s %+v", cat, svcs)
	}
	cat, svcs = Recommend(AccountBusiness, 0.5)
	if cat != CategoryAgency || svcs[0].Service != "ai_content_automation" {
		t.Errorf("business 0.5 = %s %+v", cat, svcs)
	}
	cat, svcs = Recommend(AccountCreator, 0.85)
	if cat != CategoryCreator || svcs[0].Service != "viral_video_package" || svcs[0].FitScore != 1 {
		t.Errorf("creator 0.85 = %s %+v", cat, svcs)
	}
	if cat, _ := Recommend(AccountPersonal, 0.9); cat != CategoryInfluencer {
		t.Errorf("personal category = %s", cat)
	}
	for i := 1; i < len(svcs); i++ {
		if svcs[i].FitScore > svcs[i-1].FitScore {
			t.Fatalf("services not sorted: %+v", svcs)
		}
	}
}

func TestNurture(t *testing.T) {
	cases := map[domain.LeadTier][2]string{
		domain.LeadHot:       {"hot_lead_sequence", "urgent"},
		domain.LeadWarm:      {"warm_lead_sequence", "high"},
		domain.LeadQualified: {"qualified_lead_sequence", "normal"},
	}
	for tier, want := range cases {
		typ, prio := Nurture(tier)
		if typ != want[0] || prio != want[1] {
			t.Errorf("Nurture(%s) = %s/%s, want %s/%s", tier, typ, prio, want[0], want[1])
		}
	}
}

func TestProcessLinksQueueItem(t *testing.T) {
	b, store := newTestBridge(t, DefaultConfig(), nil)
	ctx := context.Background()
	at := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	item := domain.QueueItem{
		ID: "item-1", PlanID: "plan-1", Status: domain.StatusGenerating, Compliance: domain.CompliancePending,
		VideoID: "vid-9", CreatedAt: at, UpdatedAt: at,
	}
	if err := store.PutItem(ctx, item); err != nil {
		t.Fatalf("PutItem: %v", err)
	}
	rep, err := b.Process(ctx, viralEvent("vid-9"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.ItemID != "item-1" || rep.Leads[0].ItemID != "item-1" {
		t.Errorf("lead not attributed to item: report %s lead %s", rep.ItemID, rep.Leads[0].ItemID)
	}
}

func TestProcessRejectsDecreasingCounters(t *testing.T) {
	b, _ := newTestBridge(t, DefaultConfig(), nil)
	ctx := context.Background()
	if _, err := b.Process(ctx, viralEvent("vid-1")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	back := viralEvent("vid-1")
	back.Views = 90000
	if _, err := b.Process(ctx, back); !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestSinkFailureDoesNotAbort(t *testing.T) {
	sink := &mockSink{enqueueFn: func(context.Context, domain.Lead, string, string) error {
		return errors.New("redis down")
	}}
	b, store := newTestBridge(t, DefaultConfig(), sink)
	rep, err := b.Process(context.Background(), viralEvent("vid-1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rep.SinkFailures != len(rep.Leads) || len(rep.Leads) == 0 {
		t.Errorf("sink failures = %d for %d leads", rep.SinkFailures, len(rep.Leads))
	}
	leads, _ := store.ListLeads(context.Background(), storage.LeadFilter{})
	if len(leads) != len(rep.Leads) {
		t.Errorf("stored %d leads, want %d", len(leads), len(rep.Leads))
	}
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	b, _ := newTestBridge(t, DefaultConfig(), nil)
	shrunk := viralEvent("vid-b")
	shrunk.Views = 500
	shrunk.Comments, shrunk.Shares = 1, 1
	events := []domain.EngagementEvent{viralEvent("vid-a"), viralEvent("vid-b"), shrunk, viralEvent("vid-c")}

	results := b.ProcessBatch(context.Background(), events)
	if len(results) != len(events) {
		t.Fatalf("results = %d", len(results))
	}
	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, domain.ErrInvariantViolation) {
				t.Errorf("shrinking snapshot: expected ErrInvariantViolation, got %v", r.Err)
			}
			continue
		}
		if r.Err != nil || r.Report.VideoID != events[i].VideoID {
			t.Errorf("event %d: err=%v report=%s", i, r.Err, r.Report.VideoID)
		}
	}
}

func TestSeededAccountTypesDeterministic(t *testing.T) {
	draw := func() []string {
		b, _ := newTestBridge(t, DefaultConfig(), nil)
		rep, err := b.Process(context.Background(), viralEvent("vid-1"))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		var out []string
		for _, l := range rep.Leads {
			out = append(out, l.AccountType)
		}
		return out
	}
	a, c := draw(), draw()
	if len(a) != len(c) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(c))
	}
	for i := range a {
		if a[i] != c[i] {
			t.Fatalf("draw %d differs: %s vs %s", i, a[i], c[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.Intent = 0.3
	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weights, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.Thresholds.Warm = 0.9
	if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for thresholds, got %v", err)
	}
}

// flakyLeadStore fails PutLead once failAt leads have been stored.
type flakyLeadStore struct {
	*storage.Store
	stored, failAt int
}

func (s *flakyLeadStore) PutLead(ctx context.Context, l domain.Lead) error {
	if s.stored == s.failAt {
		return errors.New("disk full")
	}
	s.stored++
	return s.Store.PutLead(ctx, l)
}

func TestProcessPartialFailureKeepsEmittedLeads(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	flaky := &flakyLeadStore{Store: store, failAt: 2}
	sink := &mockSink{}
	b, err := New(flaky, sink, DefaultConfig(), rand.New(rand.NewPCG(7, 11)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	rep, err := b.Process(ctx, viralEvent("vid-1"))
	if err == nil {
		t.Fatal("expected the store error")
	}
	if len(rep.Leads) != 2 || len(sink.calls) != 2 {
		t.Fatalf("report leads = %d, sink calls = %d; want the 2 stored before the failure", len(rep.Leads), len(sink.calls))
	}
	stored, _ := store.ListLeads(ctx, storage.LeadFilter{VideoID: "vid-1"})
	if len(stored) != 2 {
		t.Errorf("stored leads = %d, want 2", len(stored))
	}
	if _, err := store.LatestEngagement(ctx, "vid-1"); err != nil {
		t.Errorf("snapshot not recorded: %v", err)
	}

	flaky.failAt = -1
	if _, err := b.Process(ctx, viralEvent("vid-1")); err != nil {
		t.Fatalf("replaying the snapshot: %v", err)
	}
}
