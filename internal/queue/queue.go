// Package queue manages generated videos from plan to publication behind a
// compliance gate. Every edit re-validates the item; approval requires a
// clean final check with both disclosures present in the script.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// JobGenerate is the job type the generation worker claims.
const JobGenerate = "generate_video"

// GenerationPayload is the JSON body of a JobGenerate job.
type GenerationPayload struct {
	ItemID     string `json:"item_id"`
	Generation int    `json:"generation"`
}

// Store is the persistence the queue needs.
type Store interface {
	PutItem(ctx context.Context, item domain.QueueItem) error
	GetItem(ctx context.Context, id string) (domain.QueueItem, error)
	ListItems(ctx context.Context, f storage.ItemFilter) ([]domain.QueueItem, error)
	CountItems(ctx context.Context, statuses ...domain.VideoStatus) (int, error)
	Advance(ctx context.Context, id string, t domain.Transition) (domain.QueueItem, error)
	DeleteItems(ctx context.Context, cutoff time.Time) (int64, error)
	EnqueueJob(ctx context.Context, job storage.Job) error
	OpenJobs(ctx context.Context, jobType string) ([]storage.Job, error)
	RequeueRunningJobs(ctx context.Context, jobType string) (int64, error)
}

// Publisher delivers an approved item and must return the same receipt for
// repeated calls with the same item.
type Publisher interface {
	Publish(ctx context.Context, item domain.QueueItem) (storage.PublishReceipt, error)
}

// Generated is what the generators produced for an item. Generation is the
// item generation the output was rendered from.
type Generated struct {
	Generation int
	Script     string
	Artifacts  map[string]string
}

// FeedbackResult reports what a piece of reviewer feedback changed.
type FeedbackResult struct {
	Item         domain.QueueItem
	Changes      []domain.Change
	Regenerating bool
}

type Queue struct {
	store     Store
	cfg       Config
	checker   *Checker
	feedback  *FeedbackParser
	publisher Publisher
	now       func() time.Time

	addMu sync.Mutex // serializes the capacity check with the insert
}

// New builds a queue. A nil publisher makes Publish fail with
// ErrProviderUnavailable.
func New(store Store, cfg Config, publisher Publisher) (*Queue, error) {
	if cfg.FeedbackRules == nil {
		cfg.FeedbackRules = DefaultFeedbackRules()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parser, err := NewFeedbackParser(cfg.FeedbackRules)
	if err != nil {
		return nil, err
	}
	return &Queue{
		store:     store,
		cfg:       cfg,
		checker:   NewChecker(cfg),
		feedback:  parser,
		publisher: publisher,
		now:       time.Now,
	}, nil
}

// SetClock replaces the clock used for timestamps and alert ages.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// Checker exposes the compliance checker the queue validates with.
func (q *Queue) Checker() *Checker { return q.checker }

func (q *Queue) Get(ctx context.Context, id string) (domain.QueueItem, error) {
	return q.store.GetItem(ctx, id)
}

func (q *Queue) List(ctx context.Context, f storage.ItemFilter) ([]domain.QueueItem, error) {
	return q.store.ListItems(ctx, f)
}

// Add creates an item for plan in GENERATING, records the pre-check and
// schedules generation.
func (q *Queue) Add(ctx context.Context, plan domain.ScriptPlan) (domain.QueueItem, error) {
	if err := plan.Validate(); err != nil {
		return domain.QueueItem{}, err
	}

	q.addMu.Lock()
	defer q.addMu.Unlock()

	open, err := q.store.CountItems(ctx, openStatuses...)
	if err != nil {
		return domain.QueueItem{}, err
	}
	if open >= q.cfg.MaxQueueSize {
		return domain.QueueItem{}, fmt.Errorf("%d open items: %w", open, domain.ErrQueueFull)
	}

	now := q.now()
	item := newItem(plan, now)
	res := q.checker.Validate(item)
	item.Compliance = res.Compliance
	item.ComplianceIssues = append([]string{}, res.Issues...)
	item.History = []domain.HistoryEntry{{
		At:         now,
		Action:     "add",
		Status:     item.Status,
		Compliance: item.Compliance,
		Issues:     item.ComplianceIssues,
	}}

	if err := q.store.PutItem(ctx, item); err != nil {
		return domain.QueueItem{}, err
	}
	if err := q.enqueueGeneration(ctx, item); err != nil {
		return domain.QueueItem{}, err
	}
	slog.Info("queue item added", "item", item.ID, "plan", plan.ID, "issues", len(item.ComplianceIssues))
	return item, nil
}

var openStatuses = []domain.VideoStatus{
	domain.StatusGenerating, domain.StatusComplianceReview, domain.StatusReadyForPreview,
	domain.StatusRequiresFixes, domain.StatusApproved,
}

func newItem(plan domain.ScriptPlan, now time.Time) domain.QueueItem {
	disclosures := append([]string{}, plan.RequiredDisclosures...)
	for _, d := range domain.MandatoryDisclosures {
		if !slices.Contains(disclosures, d) {
			disclosures = append(disclosures, d)
		}
	}
	style := "image_montage"
	if plan.Tier == domain.TierHumanAvatar {
		style = "human_avatar"
	}
	return domain.QueueItem{
		ID:                  uuid.NewString(),
		PlanID:              plan.ID,
		Status:              domain.StatusGenerating,
		Compliance:          domain.CompliancePending,
		RequiredDisclosures: disclosures,
		Persona: map[string]string{
			"style":       style,
			"hair_length": "medium",
			"tone":        "conversational",
		},
		Script: map[string]string{
			"product_name":     plan.ProductName,
			"pain_point":       string(plan.PainPoint),
			"hook":             plan.Hook,
			"statistical_hook": plan.StatisticalHook,
			"mechanism":        plan.MechanismExplanation,
			"pacing":           "normal",
		},
		Video: map[string]string{
			"tier":           string(plan.Tier),
			"lighting_color": "natural",
			"aspect_ratio":   "9:16",
		},
		Artifacts:  map[string]string{},
		Generation: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (q *Queue) enqueueGeneration(ctx context.Context, item domain.QueueItem) error {
	payload, err := json.Marshal(GenerationPayload{ItemID: item.ID, Generation: item.Generation})
	if err != nil {
		return err
	}
	err = q.store.EnqueueJob(ctx, storage.Job{
		ID:          uuid.NewString(),
		Type:        JobGenerate,
		PayloadJSON: string(payload),
		MaxAttempts: 1,
	})
	if err != nil {
		return fmt.Errorf("scheduling generation for %s: %w", item.ID, err)
	}
	return nil
}

// revalidate decides where an edited item lands. Items still waiting for
// generation keep their status.
func (q *Queue) revalidate(item domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
	res := q.checker.Validate(item)
	if item.Status == domain.StatusGenerating {
		return "", res.Compliance, res.Issues
	}
	st, _ := domain.StatusForCompliance(res.Compliance)
	return st, res.Compliance, res.Issues
}

// Update applies changes and re-validates the item in one transition. An
// empty change list only re-validates. Persona or video edits to an item
// that is still generating supersede the render in progress.
func (q *Queue) Update(ctx context.Context, id string, changes []domain.Change) (domain.QueueItem, error) {
	for _, c := range changes {
		if err := c.Validate(); err != nil {
			return domain.QueueItem{}, err
		}
	}
	regen := needsRegeneration(changes)
	superseded := false
	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "update",
		Note:   changeNote(changes),
		Mutate: func(it *domain.QueueItem) {
			for _, c := range changes {
				it.Apply(c)
			}
			if regen && it.Status == domain.StatusGenerating {
				it.Generation++
				superseded = true
			}
		},
		Revalidate: q.revalidate,
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	if superseded {
		if err := q.enqueueGeneration(ctx, item); err != nil {
			return domain.QueueItem{}, err
		}
	}
	return item, nil
}

// currentGeneration refuses work rendered from an older generation than the
// stored item.
func currentGeneration(generation int) func(domain.QueueItem) error {
	return func(it domain.QueueItem) error {
		if generation < it.Generation {
			return fmt.Errorf("item %s generation %d superseded by %d: %w",
				it.ID, generation, it.Generation, domain.ErrStaleGeneration)
		}
		return nil
	}
}

// OnGenerated records generator output and runs the post-generation check.
// Output from a superseded generation returns ErrStaleGeneration and leaves
// the item generating.
func (q *Queue) OnGenerated(ctx context.Context, id string, out Generated) (domain.QueueItem, error) {
	if len(out.Artifacts) == 0 {
		return domain.QueueItem{}, fmt.Errorf("no artifacts for %s: %w", id, domain.ErrInvalidInput)
	}
	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "generated",
		From:   []domain.VideoStatus{domain.StatusGenerating},
		Guard:  currentGeneration(out.Generation),
		Mutate: func(it *domain.QueueItem) {
			if it.Artifacts == nil {
				it.Artifacts = map[string]string{}
			}
			for k, v := range out.Artifacts {
				it.Artifacts[k] = v
			}
			if out.Script != "" {
				it.Apply(domain.Change{Target: domain.TargetScript, Field: domain.ScriptContentField, Value: out.Script})
			}
			it.RegenerationRequired = false
			it.LastError = ""
		},
		Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
			res := q.checker.Validate(it)
			st, _ := domain.StatusForCompliance(res.Compliance)
			return st, res.Compliance, res.Issues
		},
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	slog.Info("generation recorded", "item", id, "status", item.Status, "compliance", item.Compliance)
	return item, nil
}

// FailGeneration records a generator error for the given generation.
// Cancellation restores the status the item had before generation started;
// any other error sends it to REQUIRES_FIXES with the error in its issues.
// Failures of a superseded generation return ErrStaleGeneration.
func (q *Queue) FailGeneration(ctx context.Context, id string, generation int, genErr error) (domain.QueueItem, error) {
	msg := genErr.Error()
	if errors.Is(genErr, context.Canceled) || errors.Is(genErr, domain.ErrCancelled) {
		return q.store.Advance(ctx, id, domain.Transition{
			At:     q.now(),
			Action: "generation_cancelled",
			From:   []domain.VideoStatus{domain.StatusGenerating},
			Guard:  currentGeneration(generation),
			Note:   msg,
			Mutate: func(it *domain.QueueItem) { it.LastError = msg },
			Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
				return restoreStatus(it.PriorStatus), it.Compliance, it.ComplianceIssues
			},
		})
	}

	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "generation_failed",
		From:   []domain.VideoStatus{domain.StatusGenerating},
		Guard:  currentGeneration(generation),
		Status: domain.StatusRequiresFixes,
		Note:   msg,
		Mutate: func(it *domain.QueueItem) {
			it.LastError = msg
			it.RegenerationRequired = true
		},
		Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
			issue := "Generation failed: " + msg
			issues := it.ComplianceIssues
			if !slices.Contains(issues, issue) {
				issues = append(issues, issue)
			}
			return domain.StatusRequiresFixes, it.Compliance, issues
		},
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	slog.Warn("generation failed", "item", id, "error", genErr)
	return item, nil
}

// restoreStatus maps the pre-generation status to one reachable from
// GENERATING. An approval does not survive the edit that triggered
// regeneration, and a fresh item has nothing to return to.
func restoreStatus(prior domain.VideoStatus) domain.VideoStatus {
	switch {
	case prior == domain.StatusApproved:
		return domain.StatusReadyForPreview
	case prior != "" && domain.CanTransition(domain.StatusGenerating, prior):
		return prior
	}
	return ""
}

// Regenerate starts a new generation for an item. It recovers items whose
// generation was cancelled or failed, and re-renders any other open item.
// An item already generating without an error is left to its job.
func (q *Queue) Regenerate(ctx context.Context, id string) (domain.QueueItem, error) {
	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "regenerate",
		Guard: func(it domain.QueueItem) error {
			if it.Status == domain.StatusGenerating && it.LastError == "" {
				return fmt.Errorf("item %s is already generating: %w", it.ID, domain.ErrInvalidTransition)
			}
			return nil
		},
		Mutate: func(it *domain.QueueItem) {
			it.Generation++
			it.LastError = ""
			it.RegenerationRequired = true
		},
		Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
			res := q.checker.Validate(it)
			return domain.StatusGenerating, res.Compliance, res.Issues
		},
	})
	if err != nil {
		return domain.QueueItem{}, err
	}
	if err := q.enqueueGeneration(ctx, item); err != nil {
		return domain.QueueItem{}, err
	}
	slog.Info("regeneration scheduled", "item", id, "generation", item.Generation)
	return item, nil
}

// Resume reschedules generation after a restart. Jobs left running go back
// to pending, and every generating item without an open job for its current
// generation gets one. Items stopped by an operator cancel keep their error
// and wait for Regenerate.
func (q *Queue) Resume(ctx context.Context) (int, error) {
	if n, err := q.store.RequeueRunningJobs(ctx, JobGenerate); err != nil {
		return 0, err
	} else if n > 0 {
		slog.Info("requeued interrupted generation jobs", "count", n)
	}

	jobs, err := q.store.OpenJobs(ctx, JobGenerate)
	if err != nil {
		return 0, err
	}
	scheduled := map[GenerationPayload]bool{}
	for _, j := range jobs {
		var p GenerationPayload
		if err := json.Unmarshal([]byte(j.PayloadJSON), &p); err != nil {
			slog.Warn("unreadable generation job", "job_id", j.ID, "error", err)
			continue
		}
		scheduled[p] = true
	}

	items, err := q.store.ListItems(ctx, storage.ItemFilter{Statuses: []domain.VideoStatus{domain.StatusGenerating}})
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, it := range items {
		if it.LastError != "" || scheduled[GenerationPayload{ItemID: it.ID, Generation: it.Generation}] {
			continue
		}
		if err := q.enqueueGeneration(ctx, it); err != nil {
			return resumed, err
		}
		resumed++
	}
	if resumed > 0 {
		slog.Info("resumed generation", "items", resumed)
	}
	return resumed, nil
}

// ProcessFeedback turns reviewer text into changes, applies them with a
// re-validation and sends the item back to generation when the output
// itself has to change.
func (q *Queue) ProcessFeedback(ctx context.Context, id, text string) (FeedbackResult, error) {
	changes := q.feedback.Parse(text)
	regen := needsRegeneration(changes)

	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "feedback",
		Note:   text,
		Mutate: func(it *domain.QueueItem) {
			for _, c := range changes {
				it.Apply(c)
			}
			it.ReviewerNotes = text
			if regen {
				it.RegenerationRequired = true
				it.Generation++
			}
		},
		Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
			st, c, issues := q.revalidate(it)
			if regen {
				st = domain.StatusGenerating
			}
			return st, c, issues
		},
	})
	if err != nil {
		return FeedbackResult{}, err
	}
	if regen {
		if err := q.enqueueGeneration(ctx, item); err != nil {
			return FeedbackResult{}, err
		}
	}
	slog.Info("feedback applied", "item", id, "changes", len(changes), "regenerate", regen)
	return FeedbackResult{Item: item, Changes: changes, Regenerating: regen}, nil
}

// Approve runs the final check and moves a ready item to APPROVED. The
// check runs on the stored item inside the transition; a failed check
// returns a *domain.ComplianceBlockedError with every open issue.
func (q *Queue) Approve(ctx context.Context, id, notes string) (domain.QueueItem, error) {
	item, err := q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "approve",
		Guard: func(it domain.QueueItem) error {
			if issues := q.blockingIssues(it); len(issues) > 0 {
				return &domain.ComplianceBlockedError{ItemID: id, Issues: issues}
			}
			if it.Status != domain.StatusReadyForPreview {
				return &domain.TransitionError{From: it.Status, To: domain.StatusApproved}
			}
			return nil
		},
		Status: domain.StatusApproved,
		Note:   notes,
		Mutate: func(it *domain.QueueItem) { it.ReviewerNotes = notes },
		Revalidate: func(it domain.QueueItem) (domain.VideoStatus, domain.ComplianceStatus, []string) {
			res := q.checker.Validate(it)
			return domain.StatusApproved, res.Compliance, res.Issues
		},
	})
	var blocked *domain.ComplianceBlockedError
	if errors.As(err, &blocked) {
		slog.Warn("approval blocked", "item", id, "issues", len(blocked.Issues))
		metrics.ApprovalsBlocked.Inc()
	}
	return item, err
}

func (q *Queue) blockingIssues(item domain.QueueItem) []string {
	res := q.checker.Validate(item)
	issues := append([]string{}, res.Issues...)
	if res.Compliance == domain.CompliancePending {
		issues = append(issues, "Item has not been generated")
	}
	missingRequired := false
	for _, d := range domain.MandatoryDisclosures {
		if !slices.Contains(item.RequiredDisclosures, d) {
			missingRequired = true
		}
	}
	if (missingRequired || !q.checker.HasDisclosures(item.ScriptContent())) && !slices.Contains(issues, MissingDisclosureIssue) {
		issues = append(issues, MissingDisclosureIssue)
	}
	if len(issues) == 0 && res.Compliance != domain.ComplianceCompliant {
		issues = append(issues, "Compliance status is "+string(res.Compliance))
	}
	return issues
}

func (q *Queue) Reject(ctx context.Context, id, reason string) (domain.QueueItem, error) {
	return q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "reject",
		Status: domain.StatusRejected,
		Note:   reason,
		Mutate: func(it *domain.QueueItem) { it.RejectReason = reason },
	})
}

// Publish hands an approved item to the publisher and records the video id.
// Publishing an already published item returns its receipt again.
func (q *Queue) Publish(ctx context.Context, id string) (storage.PublishReceipt, error) {
	if q.publisher == nil {
		return storage.PublishReceipt{}, fmt.Errorf("no publisher configured: %w", domain.ErrProviderUnavailable)
	}
	item, err := q.store.GetItem(ctx, id)
	if err != nil {
		return storage.PublishReceipt{}, err
	}
	switch item.Status {
	case domain.StatusPublished:
		return q.publisher.Publish(ctx, item)
	case domain.StatusApproved:
	default:
		return storage.PublishReceipt{}, &domain.TransitionError{From: item.Status, To: domain.StatusPublished}
	}

	receipt, err := q.publisher.Publish(ctx, item)
	if err != nil {
		return storage.PublishReceipt{}, fmt.Errorf("publishing %s: %w", id, err)
	}
	_, err = q.store.Advance(ctx, id, domain.Transition{
		At:     q.now(),
		Action: "publish",
		From:   []domain.VideoStatus{domain.StatusApproved},
		Status: domain.StatusPublished,
		Note:   receipt.URL,
		Mutate: func(it *domain.QueueItem) {
			it.VideoID = receipt.VideoID
			it.PublishedURL = receipt.URL
		},
	})
	if err != nil {
		return storage.PublishReceipt{}, err
	}
	slog.Info("queue item published", "item", id, "video", receipt.VideoID)
	return receipt, nil
}

func changeNote(changes []domain.Change) string {
	if len(changes) == 0 {
		return ""
	}
	keys := make([]string, len(changes))
	for i, c := range changes {
		keys[i] = c.Key() + "=" + c.Value
	}
	return fmt.Sprint(keys)
}
