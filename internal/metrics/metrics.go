// Package metrics holds the Prometheus collectors the daemon exports on
// /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

var (
	// GeneratorDuration tracks generator call latency by generator and result.
	GeneratorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ghost_generator_duration_seconds",
			Help:    "Time spent in generator calls",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"generator", "result"},
	)

	// Generations counts finished generation jobs by outcome.
	Generations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghost_generations_total",
			Help: "Generation jobs by outcome",
		},
		[]string{"result"},
	)

	// ProviderFailures counts catalog provider errors that were skipped.
	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghost_catalog_provider_failures_total",
			Help: "Catalog provider calls that failed and were skipped",
		},
		[]string{"provider"},
	)

	// OpportunitiesScored counts opportunities produced by scoring runs.
	OpportunitiesScored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_opportunities_scored_total",
			Help: "Opportunities produced by scoring runs",
		},
	)

	// ItemsQueued counts plans added to the preview queue.
	ItemsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_queue_items_added_total",
			Help: "Plans added to the preview queue",
		},
	)

	// ApprovalsBlocked counts approvals refused by the compliance gate.
	ApprovalsBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghost_approvals_blocked_total",
			Help: "Approvals refused because compliance issues remained",
		},
	)

	// QueueItems is the number of items per status at the last health check.
	QueueItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ghost_queue_items",
			Help: "Queue items by status",
		},
		[]string{"status"},
	)

	// QueueHealth is the last computed queue health score.
	QueueHealth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghost_queue_health_score",
			Help: "Queue health score between 0 and 1",
		},
	)

	// LeadsEmitted counts leads handed to the nurture sink by tier.
	LeadsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghost_leads_emitted_total",
			Help: "Qualified leads emitted by tier",
		},
		[]string{"tier"},
	)
)

var allStatuses = []domain.VideoStatus{
	domain.StatusGenerating, domain.StatusComplianceReview, domain.StatusReadyForPreview,
	domain.StatusRequiresFixes, domain.StatusApproved, domain.StatusPublished, domain.StatusRejected,
}

// ObserveGenerator records one generator call.
func ObserveGenerator(name string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GeneratorDuration.WithLabelValues(name, result).Observe(time.Since(start).Seconds())
}

// SetQueue publishes a health snapshot. Statuses absent from byStatus are
// reset to zero.
func SetQueue(byStatus map[domain.VideoStatus]int, score float64) {
	for _, s := range allStatuses {
		QueueItems.WithLabelValues(string(s)).Set(float64(byStatus[s]))
	}
	QueueHealth.Set(score)
}

func Handler() http.Handler { return promhttp.Handler() }
