package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/bridge"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/metrics"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/pipeline"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QueueService is the preview queue as the API drives it.
type QueueService interface {
	Get(ctx context.Context, id string) (domain.QueueItem, error)
	List(ctx context.Context, f storage.ItemFilter) ([]domain.QueueItem, error)
	Update(ctx context.Context, id string, changes []domain.Change) (domain.QueueItem, error)
	ProcessFeedback(ctx context.Context, id, text string) (queue.FeedbackResult, error)
	Approve(ctx context.Context, id, notes string) (domain.QueueItem, error)
	Reject(ctx context.Context, id, reason string) (domain.QueueItem, error)
	Publish(ctx context.Context, id string) (storage.PublishReceipt, error)
	Regenerate(ctx context.Context, id string) (domain.QueueItem, error)
	Alerts(ctx context.Context) ([]queue.Alert, error)
	Health(ctx context.Context) (queue.HealthReport, error)
}

// Runner starts a scoring run for one category.
type Runner interface {
	Run(ctx context.Context, category string, limit int) (pipeline.RunReport, error)
}

// EngagementProcessor turns engagement snapshots into leads.
type EngagementProcessor interface {
	Process(ctx context.Context, e domain.EngagementEvent) (bridge.Report, error)
	ProcessBatch(ctx context.Context, events []domain.EngagementEvent) []bridge.BatchResult
}

// RecordReader is the read side of the record store.
type RecordReader interface {
	ListOpportunities(ctx context.Context, f storage.OpportunityFilter) ([]domain.Opportunity, error)
	ListLeads(ctx context.Context, f storage.LeadFilter) ([]domain.Lead, error)
	Ping(ctx context.Context) error
}

// Canceller stops an in-flight generation.
type Canceller interface {
	Cancel(itemID string) bool
}

type Deps struct {
	Queue   QueueService
	Runner  Runner              // optional; if nil, POST /v1/runs returns 503
	Bridge  EngagementProcessor // optional; if nil, POST /v1/engagement returns 503
	Records RecordReader
	Cancel  Canceller // optional; if nil, cancel returns 503
	Token   string

	// DefaultLimit is the product limit for runs that do not name one.
	DefaultLimit int
}

// NewHandler returns the REST API. /health and /metrics are open; every
// /v1 route requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 50
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/runs", handleRun(deps))
		r.Get("/opportunities", handleListOpportunities(deps))

		r.Get("/queue", handleListQueue(deps))
		r.Get("/queue/alerts", handleQueueAlerts(deps))
		r.Get("/queue/health", handleQueueHealth(deps))
		r.Get("/queue/{id}", handleGetItem(deps))
		r.Patch("/queue/{id}", handleUpdateItem(deps))
		r.Post("/queue/{id}/feedback", handleFeedback(deps))
		r.Post("/queue/{id}/approve", handleApprove(deps))
		r.Post("/queue/{id}/reject", handleReject(deps))
		r.Post("/queue/{id}/publish", handlePublish(deps))
		r.Post("/queue/{id}/cancel", handleCancel(deps))
		r.Post("/queue/{id}/regenerate", handleRegenerate(deps))

		r.Post("/engagement", handleEngagement(deps))
		r.Get("/leads", handleListLeads(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Records != nil {
			if err := deps.Records.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// errorStatus maps the kernel error taxonomy onto an HTTP status and error
// type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrComplianceBlocked):
		return http.StatusConflict, "compliance_blocked"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrCancelled):
		return http.StatusConflict, "cancelled"
	case errors.Is(err, domain.ErrStaleGeneration):
		return http.StatusConflict, "stale_generation"
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusUnprocessableEntity, "invariant_violation"
	case errors.Is(err, domain.ErrNoPainPointMatch):
		return http.StatusUnprocessableEntity, "no_pain_point_match"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable, "queue_full"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "quota_exceeded"
	}
	return http.StatusInternalServerError, "api_error"
}

// domainError writes err with the status errorStatus picks. A compliance
// block carries its issue list so the reviewer sees every open problem.
func domainError(w http.ResponseWriter, err error, action string) {
	code, typ := errorStatus(err)
	var blocked *domain.ComplianceBlockedError
	if errors.As(err, &blocked) {
		writeJSON(w, code, map[string]any{
			"error": map[string]any{
				"message": fmt.Sprintf("%s: %v", action, err),
				"type":    typ,
				"issues":  blocked.Issues,
			},
		})
		return
	}
	httpError(w, code, typ, "%s: %v", action, err)
}

// decodeBody reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// listParam splits a comma separated query parameter, dropping blanks.
func listParam(r *http.Request, key string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, strings.ToUpper(v))
		}
	}
	return out
}
