package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// Alert types.
const (
	AlertComplianceTimeout = "compliance_timeout"
	AlertComplianceIssues  = "compliance_issues"
	AlertGenerationStalled = "generation_stalled"
)

type Alert struct {
	Type    string    `json:"type"`
	ItemID  string    `json:"item_id"`
	Message string    `json:"message"`
	Since   time.Time `json:"since"`
	Issues  []string  `json:"issues,omitempty"`
}

// Health levels.
const (
	Healthy        = "healthy"
	NeedsAttention = "needs_attention"
	Unhealthy      = "unhealthy"
)

type HealthReport struct {
	Score          float64                    `json:"score"`
	Status         string                     `json:"status"`
	ComplianceRate float64                    `json:"compliance_rate"`
	Efficiency     float64                    `json:"processing_efficiency"`
	Total          int                        `json:"total"`
	Stuck          int                        `json:"stuck"`
	ByStatus       map[domain.VideoStatus]int `json:"by_status"`
	Alerts         int                        `json:"alerts"`
}

// Alerts lists items that need operator attention.
func (q *Queue) Alerts(ctx context.Context) ([]Alert, error) {
	items, err := q.store.ListItems(ctx, storage.ItemFilter{Statuses: []domain.VideoStatus{
		domain.StatusComplianceReview, domain.StatusRequiresFixes, domain.StatusGenerating,
	}})
	if err != nil {
		return nil, err
	}
	now := q.now()
	var out []Alert
	for _, it := range items {
		if a, ok := q.alertFor(it, now); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (q *Queue) alertFor(it domain.QueueItem, now time.Time) (Alert, bool) {
	switch it.Status {
	case domain.StatusComplianceReview:
		since := statusSince(it)
		if now.Sub(since) > q.cfg.complianceTimeout() {
			return Alert{
				Type:    AlertComplianceTimeout,
				ItemID:  it.ID,
				Message: fmt.Sprintf("in compliance review for %s", now.Sub(since).Truncate(time.Minute)),
				Since:   since,
			}, true
		}
	case domain.StatusRequiresFixes:
		if len(it.ComplianceIssues) > 0 {
			return Alert{
				Type:    AlertComplianceIssues,
				ItemID:  it.ID,
				Message: fmt.Sprintf("%d compliance issues need fixing", len(it.ComplianceIssues)),
				Since:   statusSince(it),
				Issues:  append([]string{}, it.ComplianceIssues...),
			}, true
		}
	case domain.StatusGenerating:
		if it.LastError != "" {
			return Alert{
				Type:    AlertGenerationStalled,
				ItemID:  it.ID,
				Message: "generation stopped: " + it.LastError,
				Since:   it.UpdatedAt,
			}, true
		}
	}
	return Alert{}, false
}

// statusSince is when the item entered its current status.
func statusSince(it domain.QueueItem) time.Time {
	since := it.CreatedAt
	for i := len(it.History) - 1; i >= 0; i-- {
		if it.History[i].Status != it.Status {
			break
		}
		since = it.History[i].At
	}
	return since
}

// Health scores the queue from its compliance rate (0.7) and the share of
// items not stuck (0.3). An empty queue is fully healthy.
func (q *Queue) Health(ctx context.Context) (HealthReport, error) {
	items, err := q.store.ListItems(ctx, storage.ItemFilter{})
	if err != nil {
		return HealthReport{}, err
	}
	rep := HealthReport{Total: len(items), ByStatus: map[domain.VideoStatus]int{}}
	now := q.now()
	checked, compliant := 0, 0
	for _, it := range items {
		rep.ByStatus[it.Status]++
		if it.Compliance != domain.CompliancePending {
			checked++
			if it.Compliance == domain.ComplianceCompliant {
				compliant++
			}
		}
		if _, ok := q.alertFor(it, now); ok {
			rep.Stuck++
		}
	}
	rep.Alerts = rep.Stuck

	rep.ComplianceRate = 1
	if checked > 0 {
		rep.ComplianceRate = float64(compliant) / float64(checked)
	}
	rep.Efficiency = 1
	if rep.Total > 0 {
		rep.Efficiency = 1 - float64(rep.Stuck)/float64(rep.Total)
	}
	rep.Score = 0.7*rep.ComplianceRate + 0.3*rep.Efficiency
	rep.Status = HealthStatus(rep.Score)
	return rep, nil
}

func HealthStatus(score float64) string {
	switch {
	case score < 0.6:
		return Unhealthy
	case score < 0.8:
		return NeedsAttention
	default:
		return Healthy
	}
}

type SweepReport struct {
	Alerts  []Alert `json:"alerts"`
	Removed int64   `json:"removed"`
}

// Sweep collects alerts and removes terminal items older than the cleanup
// age. A zero cleanup age keeps everything.
func (q *Queue) Sweep(ctx context.Context) (SweepReport, error) {
	alerts, err := q.Alerts(ctx)
	if err != nil {
		return SweepReport{}, err
	}
	rep := SweepReport{Alerts: alerts}
	if age := q.cfg.cleanupAge(); age > 0 {
		n, err := q.store.DeleteItems(ctx, q.now().Add(-age))
		if err != nil {
			return rep, err
		}
		rep.Removed = n
	}
	for _, a := range alerts {
		slog.Warn("queue alert", "type", a.Type, "item", a.ItemID, "message", a.Message)
	}
	if rep.Removed > 0 {
		slog.Info("queue cleanup", "removed", rep.Removed)
	}
	return rep, nil
}
