package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/planner"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scorer"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

type mockProvider struct {
	name   string
	listFn func(ctx context.Context, category string, limit int) ([]domain.RawProduct, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	return m.listFn(ctx, category, limit)
}

func serves(name string, recs ...domain.RawProduct) *mockProvider {
	return &mockProvider{name: name, listFn: func(context.Context, string, int) ([]domain.RawProduct, error) {
		return recs, nil
	}}
}

type mockEnhancer struct {
	calls      atomic.Int32
	describeFn func(ctx context.Context, p domain.Product) (string, error)
}

func (m *mockEnhancer) DescribeIngredients(ctx context.Context, p domain.Product) (string, error) {
	m.calls.Add(1)
	return m.describeFn(ctx, p)
}

func coq10() domain.RawProduct {
	return domain.RawProduct{
		Name:         "CoQ10 Ubiquinol 200mg with PQQ",
		Description:  "Mitochondrial energy support softgels.",
		Category:     "health",
		Price:        "$45.99",
		Commission:   "25%",
		Rating:       "4.7",
		MonthlySales: "8k",
		GrowthRate:   "40%",
		TrendScore:   "85",
		Competition:  "medium",
	}
}

func wellness() domain.RawProduct {
	return domain.RawProduct{
		Name:         "Daily Calm Capsules",
		Description:  "Evening wind-down formula.",
		Category:     "health",
		Price:        "$39.99",
		Commission:   "20%",
		Rating:       "4.5",
		MonthlySales: "3000",
	}
}

type fixture struct {
	store *storage.Store
	queue *queue.Queue
}

func setup(t *testing.T, qcfg queue.Config) fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	q, err := queue.New(store, qcfg, nil)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return fixture{store: store, queue: q}
}

func (f fixture) pipeline(t *testing.T, providers []scorer.CatalogProvider, enhancer Enhancer, settings Settings) *Pipeline {
	t.Helper()
	sc, err := scorer.New(scorer.DefaultCriteria(), scorer.DefaultBudget(), f.store)
	if err != nil {
		t.Fatalf("scorer.New: %v", err)
	}
	return New(f.store, sc, planner.New(nil), f.queue, providers, enhancer, settings)
}

func TestRunQueuesPlans(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	p := f.pipeline(t, []scorer.CatalogProvider{serves("fastmoss", coq10())}, nil, DefaultSettings())

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == "" || rep.Opportunities != 1 || rep.Planned != 1 || len(rep.Queued) != 1 {
		t.Fatalf("report = %+v", rep)
	}

	item, err := f.queue.Get(context.Background(), rep.Queued[0])
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.Status != domain.StatusGenerating {
		t.Errorf("status = %s, want GENERATING", item.Status)
	}
	plan, err := f.store.GetPlan(context.Background(), item.PlanID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if plan.PainPoint != domain.ChronicFatigue {
		t.Errorf("pain point = %s, want CHRONIC_FATIGUE", plan.PainPoint)
	}

	opps, err := f.store.ListOpportunities(context.Background(), storage.OpportunityFilter{RunID: rep.RunID})
	if err != nil || len(opps) != 1 {
		t.Fatalf("opportunities = %v, %v", opps, err)
	}
	if opps[0].ProductID != plan.ProductID {
		t.Errorf("opportunity product %s, plan product %s", opps[0].ProductID, plan.ProductID)
	}
}

func TestRunReusesStoredProduct(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	p := f.pipeline(t, []scorer.CatalogProvider{serves("fastmoss", coq10())}, nil, Settings{MaxPlansPerRun: 0})

	first, err := p.Run(context.Background(), "health", 10)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := p.Run(context.Background(), "health", 10)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.RunID == second.RunID {
		t.Error("runs share an id")
	}
	products, err := f.store.ListProducts(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 1 {
		t.Errorf("products = %d, want 1 after two runs", len(products))
	}
}

func TestRunEnhancesUnmatchedProduct(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	enh := &mockEnhancer{describeFn: func(_ context.Context, p domain.Product) (string, error) {
		if p.Name != "Daily Calm Capsules" {
			t.Errorf("enhancer asked about %q", p.Name)
		}
		return "magnesium glycinate, melatonin, l-theanine", nil
	}}
	p := f.pipeline(t, []scorer.CatalogProvider{serves("kolodata", wellness())}, enh, DefaultSettings())

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Enhanced != 1 || rep.Planned != 1 || rep.Skipped != 0 {
		t.Fatalf("report = %+v", rep)
	}
	item, _ := f.queue.Get(context.Background(), rep.Queued[0])
	plan, _ := f.store.GetPlan(context.Background(), item.PlanID)
	if plan.PainPoint != domain.SleepEpidemic {
		t.Errorf("pain point = %s, want SLEEP_EPIDEMIC", plan.PainPoint)
	}
}

func TestRunEnhancementBudget(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	enh := &mockEnhancer{describeFn: func(context.Context, domain.Product) (string, error) {
		return "proprietary blend", nil
	}}
	p := f.pipeline(t, []scorer.CatalogProvider{serves("kolodata", wellness())}, enh, Settings{EnhanceIterations: 3, MaxPlansPerRun: 5})

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Skipped != 1 || rep.Planned != 0 || len(rep.Queued) != 0 {
		t.Errorf("report = %+v", rep)
	}
	if enh.calls.Load() != 3 {
		t.Errorf("enhancer calls = %d, want 3", enh.calls.Load())
	}
}

func TestRunEnhancerFailureSkips(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	enh := &mockEnhancer{describeFn: func(context.Context, domain.Product) (string, error) {
		return "", domain.ErrQuotaExceeded
	}}
	p := f.pipeline(t, []scorer.CatalogProvider{serves("kolodata", wellness(), coq10())}, enh, Settings{EnhanceIterations: 2, MaxPlansPerRun: 5})

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Planned != 1 || rep.Skipped != 1 {
		t.Errorf("report = %+v", rep)
	}
	if enh.calls.Load() != 1 {
		t.Errorf("enhancer calls = %d, want 1", enh.calls.Load())
	}
}

func TestRunStopsWhenQueueFull(t *testing.T) {
	cfg := queue.DefaultConfig()
	cfg.MaxQueueSize = 1
	f := setup(t, cfg)

	second := coq10()
	second.Name = "Ubiquinol CoQ10 Energy Complex"
	second.Price = "$52.00"
	p := f.pipeline(t, []scorer.CatalogProvider{serves("fastmoss", coq10(), second)}, nil, DefaultSettings())

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.QueueFull || len(rep.Queued) != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunMaxPlans(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	second := coq10()
	second.Name = "Ubiquinol CoQ10 Energy Complex"
	p := f.pipeline(t, []scorer.CatalogProvider{serves("fastmoss", coq10(), second)}, nil, Settings{MaxPlansPerRun: 1})

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Opportunities != 2 || rep.Planned != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestRunSkipsFailedProvider(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	broken := &mockProvider{name: "kolodata", listFn: func(context.Context, string, int) ([]domain.RawProduct, error) {
		return nil, domain.ErrProviderUnavailable
	}}
	slow := &mockProvider{name: "slow", listFn: func(ctx context.Context, _ string, _ int) ([]domain.RawProduct, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	settings := DefaultSettings()
	settings.ProviderTimeout = 20 * time.Millisecond
	p := f.pipeline(t, []scorer.CatalogProvider{serves("fastmoss", coq10()), broken, slow}, nil, settings)

	rep, err := p.Run(context.Background(), "health", 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.ProviderFailures) != 2 || len(rep.Diagnostics.ProviderErrors) != 2 {
		t.Fatalf("provider failures = %v", rep.ProviderFailures)
	}
	if !strings.Contains(rep.ProviderFailures[0], "kolodata") {
		t.Errorf("failure = %q", rep.ProviderFailures[0])
	}
	if len(rep.Queued) != 1 {
		t.Errorf("queued = %v, want the fastmoss product", rep.Queued)
	}
}

type failingStore struct {
	*storage.Store
}

func (failingStore) PutPlan(context.Context, domain.ScriptPlan) error {
	return errors.New("disk full")
}

func TestRunAbortsOnStoreFailure(t *testing.T) {
	f := setup(t, queue.DefaultConfig())
	sc, _ := scorer.New(scorer.DefaultCriteria(), scorer.DefaultBudget(), f.store)
	p := New(failingStore{f.store}, sc, planner.New(nil), f.queue, []scorer.CatalogProvider{serves("fastmoss", coq10())}, nil, DefaultSettings())

	if _, err := p.Run(context.Background(), "health", 0); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Run err = %v, want store failure", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if err := (Settings{EnhanceIterations: -1}).Validate(); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative iterations: %v", err)
	}
}
