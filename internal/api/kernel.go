package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/bridge"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

type RunRequest struct {
	Category string `json:"category"`
	Limit    int    `json:"limit"`
}

// EngagementResult is one entry of a batch engagement response.
type EngagementResult struct {
	VideoID string         `json:"video_id"`
	Report  *bridge.Report `json:"report,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func handleRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runner == nil {
			httpError(w, http.StatusServiceUnavailable, "provider_unavailable", "scoring runs are not configured")
			return
		}
		var req RunRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Category = strings.TrimSpace(req.Category)
		if req.Category == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "category is required")
			return
		}
		if req.Limit <= 0 {
			req.Limit = deps.DefaultLimit
		}

		rep, err := deps.Runner.Run(r.Context(), req.Category, req.Limit)
		if err != nil {
			domainError(w, err, "scoring run failed")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func handleListOpportunities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		opps, err := deps.Records.ListOpportunities(r.Context(), storage.OpportunityFilter{
			RunID:     q.Get("run_id"),
			ProductID: q.Get("product_id"),
			ByScore:   true,
			Limit:     parseIntParam(r, "limit", 20, 200),
		})
		if err != nil {
			domainError(w, err, "failed to list opportunities")
			return
		}
		if opps == nil {
			opps = []domain.Opportunity{}
		}
		writeJSON(w, http.StatusOK, opps)
	}
}

// handleEngagement accepts either one engagement event or a JSON array of
// them. A batch always answers 200 with a per-event outcome.
func handleEngagement(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Bridge == nil {
			httpError(w, http.StatusServiceUnavailable, "provider_unavailable", "lead bridge is not configured")
			return
		}
		var raw json.RawMessage
		if !decodeBody(w, r, &raw) {
			return
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "engagement event is required")
			return
		}

		if raw[0] != '[' {
			var e domain.EngagementEvent
			if err := json.Unmarshal(raw, &e); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid engagement event: %v", err)
				return
			}
			rep, err := deps.Bridge.Process(r.Context(), e)
			if err != nil {
				domainError(w, err, "failed to process engagement")
				return
			}
			writeJSON(w, http.StatusOK, rep)
			return
		}

		var events []domain.EngagementEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid engagement events: %v", err)
			return
		}
		results := deps.Bridge.ProcessBatch(r.Context(), events)
		out := make([]EngagementResult, len(results))
		for i, res := range results {
			out[i].VideoID = res.Event.VideoID
			if res.Err != nil {
				out[i].Error = res.Err.Error()
				continue
			}
			rep := res.Report
			out[i].Report = &rep
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleListLeads(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := storage.LeadFilter{
			VideoID: r.URL.Query().Get("video_id"),
			Limit:   parseIntParam(r, "limit", 50, 500),
		}
		for _, t := range listParam(r, "tier") {
			switch tier := domain.LeadTier(t); tier {
			case domain.LeadHot, domain.LeadWarm, domain.LeadQualified, domain.LeadCold:
				f.Tiers = append(f.Tiers, tier)
			default:
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown lead tier %q", t)
				return
			}
		}
		leads, err := deps.Records.ListLeads(r.Context(), f)
		if err != nil {
			domainError(w, err, "failed to list leads")
			return
		}
		if leads == nil {
			leads = []domain.Lead{}
		}
		writeJSON(w, http.StatusOK, leads)
	}
}
