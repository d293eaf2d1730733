package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

type UpdateRequest struct {
	Changes []domain.Change `json:"changes"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

type FeedbackResponse struct {
	Item         domain.QueueItem `json:"item"`
	Changes      []domain.Change  `json:"changes"`
	Regenerating bool             `json:"regenerating"`
}

type ApproveRequest struct {
	Notes string `json:"notes"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func itemFilter(r *http.Request) (storage.ItemFilter, error) {
	f := storage.ItemFilter{Limit: parseIntParam(r, "limit", 50, 500)}
	for _, s := range listParam(r, "status") {
		st, err := domain.ParseVideoStatus(s)
		if err != nil {
			return storage.ItemFilter{}, err
		}
		f.Statuses = append(f.Statuses, st)
	}
	for _, s := range listParam(r, "compliance") {
		c := domain.ComplianceStatus(s)
		switch c {
		case domain.CompliancePending, domain.ComplianceCompliant,
			domain.ComplianceNonCompliant, domain.ComplianceRequiresReview:
		default:
			return storage.ItemFilter{}, fmt.Errorf("unknown compliance status %q: %w", s, domain.ErrInvalidInput)
		}
		f.Compliance = append(f.Compliance, c)
	}
	return f, nil
}

func handleListQueue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := itemFilter(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		items, err := deps.Queue.List(r.Context(), f)
		if err != nil {
			domainError(w, err, "failed to list queue")
			return
		}
		if items == nil {
			items = []domain.QueueItem{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGetItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Queue.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			domainError(w, err, "failed to get item")
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleUpdateItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, err := deps.Queue.Update(r.Context(), chi.URLParam(r, "id"), req.Changes)
		if err != nil {
			domainError(w, err, "failed to update item")
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedbackRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Feedback == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "feedback is required")
			return
		}
		res, err := deps.Queue.ProcessFeedback(r.Context(), chi.URLParam(r, "id"), req.Feedback)
		if err != nil {
			domainError(w, err, "failed to apply feedback")
			return
		}
		writeJSON(w, http.StatusOK, feedbackResponse(res))
	}
}

func feedbackResponse(res queue.FeedbackResult) FeedbackResponse {
	changes := res.Changes
	if changes == nil {
		changes = []domain.Change{}
	}
	return FeedbackResponse{Item: res.Item, Changes: changes, Regenerating: res.Regenerating}
}

func handleApprove(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ApproveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		item, err := deps.Queue.Approve(r.Context(), chi.URLParam(r, "id"), req.Notes)
		if err != nil {
			domainError(w, err, "approval refused")
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleReject(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RejectRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Reason == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reason is required")
			return
		}
		item, err := deps.Queue.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			domainError(w, err, "failed to reject item")
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handlePublish(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receipt, err := deps.Queue.Publish(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			domainError(w, err, "failed to publish item")
			return
		}
		writeJSON(w, http.StatusOK, receipt)
	}
}

func handleCancel(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Cancel == nil {
			httpError(w, http.StatusServiceUnavailable, "provider_unavailable", "generation worker is not running")
			return
		}
		id := chi.URLParam(r, "id")
		if _, err := deps.Queue.Get(r.Context(), id); err != nil {
			domainError(w, err, "failed to cancel generation")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "cancelled": deps.Cancel.Cancel(id)})
	}
}

func handleRegenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, err := deps.Queue.Regenerate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			domainError(w, err, "failed to schedule regeneration")
			return
		}
		writeJSON(w, http.StatusAccepted, item)
	}
}

func handleQueueAlerts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts, err := deps.Queue.Alerts(r.Context())
		if err != nil {
			domainError(w, err, "failed to compute alerts")
			return
		}
		if alerts == nil {
			alerts = []queue.Alert{}
		}
		writeJSON(w, http.StatusOK, alerts)
	}
}

func handleQueueHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := deps.Queue.Health(r.Context())
		if err != nil {
			domainError(w, err, "failed to compute queue health")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}
