// Package worker runs queued generation jobs: script, then voice, then
// video, reporting the outcome back to the preview queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/generate"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Reporter is the part of the preview queue the worker reports to.
type Reporter interface {
	Get(ctx context.Context, id string) (domain.QueueItem, error)
	OnGenerated(ctx context.Context, id string, out queue.Generated) (domain.QueueItem, error)
	FailGeneration(ctx context.Context, id string, generation int, genErr error) (domain.QueueItem, error)
}

// Generators are the three stages. A missing stage fails the job with
// ErrProviderUnavailable.
type Generators struct {
	Script generate.Generator
	Voice  generate.Generator
	Video  generate.Generator
}

// Worker processes generate_video jobs from the SQLite job queue.
type Worker struct {
	store  JobStore
	queue  Reporter
	gens   Generators
	poll   time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, q Reporter, gens Generators, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		queue:    q,
		gens:     gens,
		poll:     pollInterval,
		logger:   slog.Default(),
		inflight: map[string]context.CancelFunc{},
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Cancel stops the in-flight generation for itemID. The item returns to
// its prior status, or stays generating with the error recorded until it is
// regenerated. It reports whether a generation was running.
func (w *Worker) Cancel(itemID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cancel, ok := w.inflight[itemID]
	if ok {
		cancel()
	}
	return ok
}

// RunOnce claims and processes a single generate_video job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{queue.JobGenerate})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// Job bookkeeping must survive daemon shutdown.
	bg := context.WithoutCancel(ctx)
	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		metrics.Generations.WithLabelValues(result(err)).Inc()
		if failErr := w.store.FailJob(bg, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	metrics.Generations.WithLabelValues("ok").Inc()
	if err := w.store.CompleteJob(bg, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func result(err error) string {
	if errors.Is(err, domain.ErrCancelled) {
		return "cancelled"
	}
	return "error"
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload queue.GenerationPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	item, err := w.queue.Get(ctx, payload.ItemID)
	if err != nil {
		return fmt.Errorf("loading item %s: %w", payload.ItemID, err)
	}
	if item.Status != domain.StatusGenerating {
		w.logger.Info("skipping stale generation job", "job_id", job.ID, "item", item.ID, "status", item.Status)
		return nil
	}
	if payload.Generation < item.Generation {
		w.logger.Info("skipping superseded generation job", "job_id", job.ID, "item", item.ID,
			"generation", payload.Generation, "current", item.Generation)
		return nil
	}

	genCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.inflight[item.ID] = cancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inflight, item.ID)
		w.mu.Unlock()
		cancel()
	}()

	out, genErr := w.generate(genCtx, item)
	out.Generation = item.Generation
	bg := context.WithoutCancel(ctx)
	if genErr != nil {
		if ctx.Err() != nil {
			// Shutdown: the item stays generating and Resume picks it up.
			w.logger.Info("generation interrupted", "item", item.ID, "generation", item.Generation)
			return fmt.Errorf("interrupted: %v: %w", genErr, domain.ErrCancelled)
		}
		if genCtx.Err() != nil && !errors.Is(genErr, domain.ErrCancelled) {
			genErr = fmt.Errorf("%v: %w", genErr, domain.ErrCancelled)
		}
		if _, err := w.queue.FailGeneration(bg, item.ID, item.Generation, genErr); err != nil {
			if errors.Is(err, domain.ErrStaleGeneration) {
				w.logger.Info("ignoring failure of superseded generation", "item", item.ID, "error", genErr)
				return nil
			}
			w.logger.Error("recording generation failure", "item", item.ID, "error", err)
		}
		return genErr
	}

	if _, err := w.queue.OnGenerated(bg, item.ID, out); err != nil {
		switch {
		case errors.Is(err, domain.ErrStaleGeneration):
			w.logger.Info("discarding superseded generation", "item", item.ID, "error", err)
			return nil
		case errors.Is(err, domain.ErrInvalidTransition):
			// Rejected while generating.
			w.logger.Info("discarding generation for moved item", "item", item.ID, "error", err)
			return nil
		}
		return fmt.Errorf("reporting generation: %w", err)
	}
	w.logger.Info("item generated", "item", item.ID, "artifacts", len(out.Artifacts))
	return nil
}

// generate runs the stages in order. A stage failure stops the chain.
func (w *Worker) generate(ctx context.Context, item domain.QueueItem) (queue.Generated, error) {
	out := queue.Generated{Artifacts: map[string]string{}}
	in := generate.Input{Item: item}

	script, err := w.run(ctx, w.gens.Script, in)
	if err != nil {
		return out, err
	}
	out.Script = script
	out.Artifacts[domain.ArtifactScript] = "inline"
	in.Script = script

	voice, err := w.run(ctx, w.gens.Voice, in)
	if err != nil {
		return out, err
	}
	out.Artifacts[domain.ArtifactVoice] = voice
	in.Voice = voice

	video, err := w.run(ctx, w.gens.Video, in)
	if err != nil {
		return out, err
	}
	out.Artifacts[domain.ArtifactVideo] = video
	return out, nil
}

func (w *Worker) run(ctx context.Context, g generate.Generator, in generate.Input) (string, error) {
	if g == nil {
		return "", fmt.Errorf("no generator configured: %w", domain.ErrProviderUnavailable)
	}
	start := time.Now()
	handle, err := g.Generate(ctx, in)
	metrics.ObserveGenerator(g.Name(), start, err)
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.Name(), err)
	}
	return handle, nil
}
