// Package pipeline drives a scoring run end to end: catalog providers,
// scorer, persistence, planner and the preview queue.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/planner"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/scorer"
)

// Settings bound a run.
type Settings struct {
	// EnhanceIterations is how many times a weak or unmatched plan may be
	// retried with ingredients from the Enhancer. Zero disables enhancement.
	EnhanceIterations int           `yaml:"enhance_iterations"`
	MaxPlansPerRun    int           `yaml:"max_plans_per_run"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	GeneratorTimeout  time.Duration `yaml:"generator_timeout"`
	DefaultLimit      int           `yaml:"default_limit"`
}

func DefaultSettings() Settings {
	return Settings{
		EnhanceIterations: 1,
		MaxPlansPerRun:    10,
		ProviderTimeout:   30 * time.Second,
		GeneratorTimeout:  5 * time.Minute,
		DefaultLimit:      50,
	}
}

func (s Settings) Validate() error {
	if s.EnhanceIterations < 0 || s.MaxPlansPerRun < 0 || s.DefaultLimit < 0 {
		return fmt.Errorf("pipeline settings must not be negative: %w", domain.ErrInvalidInput)
	}
	return nil
}

// Store is the persistence a run writes to.
type Store interface {
	ProductByMergeKey(ctx context.Context, key string) (domain.Product, error)
	PutProduct(ctx context.Context, p domain.Product) error
	PutOpportunity(ctx context.Context, o domain.Opportunity) error
	PutPlan(ctx context.Context, p domain.ScriptPlan) error
}

// Queue accepts plans for generation.
type Queue interface {
	Add(ctx context.Context, plan domain.ScriptPlan) (domain.QueueItem, error)
}

// Enhancer looks up a product's ingredients when its listing names none.
type Enhancer interface {
	DescribeIngredients(ctx context.Context, product domain.Product) (string, error)
}

// RunReport summarizes one run.
type RunReport struct {
	RunID            string             `json:"run_id"`
	Category         string             `json:"category,omitempty"`
	Diagnostics      scorer.Diagnostics `json:"diagnostics"`
	Opportunities    int                `json:"opportunities"`
	Planned          int                `json:"planned"`
	Enhanced         int                `json:"enhanced"`
	Skipped          int                `json:"skipped"`
	Queued           []string           `json:"queued"`
	QueueFull        bool               `json:"queue_full,omitempty"`
	ProviderFailures []string           `json:"provider_failures,omitempty"`
	DurationMs       int64              `json:"duration_ms"`
}

type Pipeline struct {
	store     Store
	scorer    *scorer.Scorer
	planner   *planner.Planner
	queue     Queue
	providers []scorer.CatalogProvider
	enhancer  Enhancer
	settings  Settings
}

// New wires a pipeline. enhancer may be nil.
func New(store Store, sc *scorer.Scorer, pl *planner.Planner, q Queue, providers []scorer.CatalogProvider, enhancer Enhancer, settings Settings) *Pipeline {
	observed := make([]scorer.CatalogProvider, len(providers))
	for i, p := range providers {
		observed[i] = observedProvider{p}
	}
	return &Pipeline{
		store:     store,
		scorer:    sc,
		planner:   pl,
		queue:     q,
		providers: observed,
		enhancer:  enhancer,
		settings:  settings,
	}
}

// Run fetches category from every provider, scores and stores the
// opportunities, plans the best ones and queues the plans. Provider and
// enhancement failures degrade the run; store failures abort it.
func (p *Pipeline) Run(ctx context.Context, category string, limit int) (rep RunReport, err error) {
	start := time.Now()
	rep = RunReport{RunID: uuid.NewString(), Category: category, Queued: []string{}}
	defer func() {
		rep.DurationMs = time.Since(start).Milliseconds()
	}()
	if limit <= 0 {
		limit = p.settings.DefaultLimit
	}

	raws, failures := scorer.FetchAll(ctx, p.providers, category, limit, p.settings.ProviderTimeout)
	for _, f := range failures {
		rep.ProviderFailures = append(rep.ProviderFailures, f.Error())
	}

	res, err := p.scorer.Score(ctx, raws, rep.RunID)
	if err != nil {
		return rep, fmt.Errorf("scoring: %w", err)
	}
	rep.Diagnostics = res.Diagnostics
	rep.Diagnostics.ProviderErrors = rep.ProviderFailures
	rep.Opportunities = len(res.Opportunities)
	metrics.OpportunitiesScored.Add(float64(len(res.Opportunities)))

	products, err := p.persist(ctx, &res)
	if err != nil {
		return rep, err
	}

	for _, opp := range res.Opportunities {
		if p.settings.MaxPlansPerRun > 0 && rep.Planned >= p.settings.MaxPlansPerRun {
			break
		}
		plan, enhanced, ok := p.plan(ctx, opp, products[opp.ProductID])
		if enhanced {
			rep.Enhanced++
		}
		if !ok {
			rep.Skipped++
			continue
		}
		if err := p.store.PutPlan(ctx, plan); err != nil {
			return rep, fmt.Errorf("saving plan for %s: %w", opp.ID, err)
		}
		rep.Planned++

		item, err := p.queue.Add(ctx, plan)
		if errors.Is(err, domain.ErrQueueFull) {
			slog.Warn("preview queue full, stopping run", "run", rep.RunID, "planned", rep.Planned)
			rep.QueueFull = true
			break
		}
		if err != nil {
			return rep, fmt.Errorf("queueing plan %s: %w", plan.ID, err)
		}
		rep.Queued = append(rep.Queued, item.ID)
		metrics.ItemsQueued.Inc()
	}

	slog.Info("scoring run complete",
		"run", rep.RunID,
		"category", category,
		"received", rep.Diagnostics.Received,
		"opportunities", rep.Opportunities,
		"planned", rep.Planned,
		"queued", len(rep.Queued),
		"provider_failures", len(rep.ProviderFailures),
	)
	return rep, nil
}

// persist stores products and opportunities. A product already stored under
// the same merge key keeps its id so earlier opportunities stay attached.
func (p *Pipeline) persist(ctx context.Context, res *scorer.Result) (map[string]domain.Product, error) {
	remap := map[string]string{}
	products := make(map[string]domain.Product, len(res.Products))
	for _, prod := range res.Products {
		existing, err := p.store.ProductByMergeKey(ctx, prod.MergeKey)
		switch {
		case err == nil:
			remap[prod.ID] = existing.ID
			prod.ID = existing.ID
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("looking up %s: %w", prod.MergeKey, err)
		}
		if err := p.store.PutProduct(ctx, prod); err != nil {
			return nil, err
		}
		products[prod.ID] = prod
	}
	for i := range res.Opportunities {
		if id, ok := remap[res.Opportunities[i].ProductID]; ok {
			res.Opportunities[i].ProductID = id
		}
		if err := p.store.PutOpportunity(ctx, res.Opportunities[i]); err != nil {
			return nil, err
		}
	}
	return products, nil
}

// plan builds the plan for opp. Unmatched or low-priority plans are retried
// with enhancer ingredients up to the iteration budget; an enhanced plan is
// kept only when its viral score is higher.
func (p *Pipeline) plan(ctx context.Context, opp domain.Opportunity, product domain.Product) (domain.ScriptPlan, bool, bool) {
	best, err := p.planner.Plan(opp, product)
	ok := err == nil
	if err != nil && !errors.Is(err, domain.ErrNoPainPointMatch) {
		slog.Warn("planning failed", "product", product.Name, "error", err)
		return domain.ScriptPlan{}, false, false
	}
	if p.enhancer == nil || (ok && best.Priority != domain.PlanLow) {
		return best, false, ok
	}

	enhanced := false
	current := product
	for i := 0; i < p.settings.EnhanceIterations; i++ {
		desc, err := p.enhancer.DescribeIngredients(ctx, current)
		if err != nil {
			slog.Warn("ingredient enhancement failed", "product", product.Name, "error", err)
			break
		}
		desc = strings.TrimSpace(desc)
		if desc == "" {
			break
		}
		current.Description = strings.TrimSpace(current.Description + " Ingredients: " + desc)
		candidate, err := p.planner.Plan(opp, current)
		if err != nil {
			continue
		}
		if !ok || candidate.ViralScore > best.ViralScore {
			best, ok, enhanced = candidate, true, true
		}
		if best.Priority != domain.PlanLow {
			break
		}
	}
	return best, enhanced, ok
}

// observedProvider counts provider failures.
type observedProvider struct {
	scorer.CatalogProvider
}

func (o observedProvider) List(ctx context.Context, category string, limit int) ([]domain.RawProduct, error) {
	recs, err := o.CatalogProvider.List(ctx, category, limit)
	if err != nil {
		metrics.ProviderFailures.WithLabelValues(o.Name()).Inc()
	}
	return recs, err
}
