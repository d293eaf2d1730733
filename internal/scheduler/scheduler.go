// Package scheduler runs scoring runs and queue maintenance on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/pipeline"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
)

// Runner performs one scoring run.
type Runner interface {
	Run(ctx context.Context, category string, limit int) (pipeline.RunReport, error)
}

// Maintainer is the queue's housekeeping surface.
type Maintainer interface {
	Sweep(ctx context.Context) (queue.SweepReport, error)
	Health(ctx context.Context) (queue.HealthReport, error)
}

type Config struct {
	RunSpec    string   `yaml:"run_spec"`
	SweepSpec  string   `yaml:"sweep_spec"`
	Categories []string `yaml:"categories"`
	Limit      int      `yaml:"limit"`
	// RunOnStart triggers a scoring run immediately instead of waiting for
	// the first tick.
	RunOnStart bool `yaml:"run_on_start"`
}

func DefaultConfig() Config {
	return Config{
		RunSpec:    "@every 6h",
		SweepSpec:  "@every 15m",
		Categories: []string{"health"},
		Limit:      50,
	}
}

func (c Config) Validate() error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{"run_spec": c.RunSpec, "sweep_spec": c.SweepSpec} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s %q: %w", name, spec, err)
		}
	}
	return nil
}

// Scheduler wraps robfig/cron. An empty spec disables that job.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	runner Runner
	queue  Maintainer

	// runMu keeps scoring runs from overlapping when one outlasts the interval.
	runMu sync.Mutex
}

func New(cfg Config, runner Runner, q Maintainer) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		cfg:    cfg,
		runner: runner,
		queue:  q,
	}
}

// Start registers the jobs and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.RunSpec != "" && s.runner != nil {
		if _, err := s.cron.AddFunc(s.cfg.RunSpec, func() { s.RunAll(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc run: %w", err)
		}
	}
	if s.cfg.SweepSpec != "" && s.queue != nil {
		if _, err := s.cron.AddFunc(s.cfg.SweepSpec, func() { s.Maintain(ctx) }); err != nil {
			return fmt.Errorf("cron.AddFunc sweep: %w", err)
		}
	}
	s.cron.Start()
	slog.Info("scheduler started", "run", s.cfg.RunSpec, "sweep", s.cfg.SweepSpec, "categories", s.cfg.Categories)

	if s.cfg.RunOnStart && s.runner != nil {
		go s.RunAll(ctx)
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RunAll runs every configured category in order. A run already in progress
// makes this call a no-op.
func (s *Scheduler) RunAll(ctx context.Context) []pipeline.RunReport {
	if !s.runMu.TryLock() {
		slog.Warn("scoring run still in progress, skipping tick")
		return nil
	}
	defer s.runMu.Unlock()

	var reports []pipeline.RunReport
	for _, category := range s.cfg.Categories {
		if ctx.Err() != nil {
			break
		}
		rep, err := s.runner.Run(ctx, category, s.cfg.Limit)
		if err != nil {
			slog.Error("scoring run failed", "category", category, "error", err)
			continue
		}
		reports = append(reports, rep)
		if rep.QueueFull {
			break
		}
	}
	return reports
}

// Maintain sweeps the queue and publishes its health to metrics.
func (s *Scheduler) Maintain(ctx context.Context) {
	sweep, err := s.queue.Sweep(ctx)
	if err != nil {
		slog.Error("queue sweep failed", "error", err)
	} else if sweep.Removed > 0 || len(sweep.Alerts) > 0 {
		slog.Info("queue swept", "removed", sweep.Removed, "alerts", len(sweep.Alerts))
	}

	health, err := s.queue.Health(ctx)
	if err != nil {
		slog.Error("queue health failed", "error", err)
		return
	}
	metrics.SetQueue(health.ByStatus, health.Score)
}
