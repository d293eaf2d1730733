package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Queue   QueueService
	Records RecordReader
	Runner  Runner // optional; if nil, run_scoring returns an error
}

// NewMCPServer creates an MCP server exposing the review queue and leads to
// an agent.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ghost",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("ghost: review generated product videos, clear compliance issues, approve or reject them, and inspect the leads they produced."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_queue",
			mcp.WithDescription("List preview queue items with their status and open compliance issues."),
			mcp.WithString("status", mcp.Description("Comma separated statuses, e.g. READY_FOR_PREVIEW,REQUIRES_FIXES")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 20)")),
		),
		mcpListQueue(deps),
	)

	s.AddTool(
		mcp.NewTool("approve_item",
			mcp.WithDescription("Approve a queue item. Refused while any compliance issue remains."),
			mcp.WithString("id", mcp.Description("Queue item ID"), mcp.Required()),
			mcp.WithString("notes", mcp.Description("Reviewer notes")),
		),
		mcpApproveItem(deps),
	)

	s.AddTool(
		mcp.NewTool("reject_item",
			mcp.WithDescription("Reject a queue item permanently."),
			mcp.WithString("id", mcp.Description("Queue item ID"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Why the item is rejected"), mcp.Required()),
		),
		mcpRejectItem(deps),
	)

	s.AddTool(
		mcp.NewTool("regenerate_item",
			mcp.WithDescription("Render a queue item again, e.g. after its generation was cancelled or failed."),
			mcp.WithString("id", mcp.Description("Queue item ID"), mcp.Required()),
		),
		mcpRegenerateItem(deps),
	)

	s.AddTool(
		mcp.NewTool("submit_feedback",
			mcp.WithDescription("Send free-text reviewer feedback; recognised requests become edits and may trigger regeneration."),
			mcp.WithString("id", mcp.Description("Queue item ID"), mcp.Required()),
			mcp.WithString("feedback", mcp.Description("Reviewer feedback, e.g. 'make it more casual'"), mcp.Required()),
		),
		mcpSubmitFeedback(deps),
	)

	s.AddTool(
		mcp.NewTool("list_leads",
			mcp.WithDescription("List qualified leads, highest scoring tiers first."),
			mcp.WithString("tier", mcp.Description("Comma separated tiers: HOT, WARM, QUALIFIED")),
			mcp.WithString("video_id", mcp.Description("Only leads sourced from this video")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of leads (default 20)")),
		),
		mcpListLeads(deps),
	)

	s.AddTool(
		mcp.NewTool("run_scoring",
			mcp.WithDescription("Score a product category, plan the best opportunities and queue them for generation."),
			mcp.WithString("category", mcp.Description("Product category, e.g. health"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Products to request per catalog (default 50)")),
		),
		mcpRunScoring(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"ghost://queue/health",
			"Queue Health",
			mcp.WithResourceDescription("Queue health score, compliance rate and counts by status"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHealth(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"ghost://queue/alerts",
			"Queue Alerts",
			mcp.WithResourceDescription("Items stuck in review, awaiting fixes or stalled in generation"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAlerts(deps),
	)

	return s
}

type itemSummary struct {
	ID         string                  `json:"id"`
	PlanID     string                  `json:"plan_id"`
	Status     domain.VideoStatus      `json:"status"`
	Compliance domain.ComplianceStatus `json:"compliance"`
	Issues     []string                `json:"compliance_issues,omitempty"`
	LastError  string                  `json:"last_error,omitempty"`
	UpdatedAt  string                  `json:"updated_at"`
}

func summarize(it domain.QueueItem) itemSummary {
	return itemSummary{
		ID:         it.ID,
		PlanID:     it.PlanID,
		Status:     it.Status,
		Compliance: it.Compliance,
		Issues:     it.ComplianceIssues,
		LastError:  it.LastError,
		UpdatedAt:  it.UpdatedAt.Format(time.RFC3339),
	}
}

func mcpListQueue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 || limit > 200 {
			limit = 20
		}
		f := storage.ItemFilter{Limit: limit}
		for _, s := range strings.Split(req.GetString("status", ""), ",") {
			if s = strings.TrimSpace(s); s == "" {
				continue
			}
			st, err := domain.ParseVideoStatus(strings.ToUpper(s))
			if err != nil {
				return mcpError(err.Error()), nil
			}
			f.Statuses = append(f.Statuses, st)
		}

		items, err := deps.Queue.List(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("listing queue failed: %v", err)), nil
		}
		out := make([]itemSummary, len(items))
		for i, it := range items {
			out[i] = summarize(it)
		}
		return mcpJSON(out)
	}
}

func mcpApproveItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		item, err := deps.Queue.Approve(ctx, id, req.GetString("notes", ""))
		var blocked *domain.ComplianceBlockedError
		if errors.As(err, &blocked) {
			var b strings.Builder
			fmt.Fprintf(&b, "Approval blocked for %s:\n", id)
			for _, issue := range blocked.Issues {
				fmt.Fprintf(&b, "- %s\n", issue)
			}
			return mcpError(b.String()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("approve failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Approved %s", item.ID)), nil
	}
}

func mcpRejectItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		reason, err := req.RequireString("reason")
		if err != nil || reason == "" {
			return mcpError("reason is required"), nil
		}
		if _, err := deps.Queue.Reject(ctx, id, reason); err != nil {
			return mcpError(fmt.Sprintf("reject failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Rejected %s", id)), nil
	}
}

func mcpRegenerateItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		item, err := deps.Queue.Regenerate(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("regenerate failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Regenerating %s (generation %d)", item.ID, item.Generation)), nil
	}
}

func mcpSubmitFeedback(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		text, err := req.RequireString("feedback")
		if err != nil || text == "" {
			return mcpError("feedback is required"), nil
		}
		res, err := deps.Queue.ProcessFeedback(ctx, id, text)
		if err != nil {
			return mcpError(fmt.Sprintf("feedback failed: %v", err)), nil
		}
		return mcpJSON(feedbackResponse(res))
	}
}

func mcpListLeads(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 || limit > 200 {
			limit = 20
		}
		f := storage.LeadFilter{VideoID: req.GetString("video_id", ""), Limit: limit}
		for _, t := range strings.Split(req.GetString("tier", ""), ",") {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				f.Tiers = append(f.Tiers, domain.LeadTier(t))
			}
		}
		leads, err := deps.Records.ListLeads(ctx, f)
		if err != nil {
			return mcpError(fmt.Sprintf("listing leads failed: %v", err)), nil
		}
		if leads == nil {
			leads = []domain.Lead{}
		}
		return mcpJSON(leads)
	}
}

func mcpRunScoring(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Runner == nil {
			return mcpError("scoring runs are not configured"), nil
		}
		category, err := req.RequireString("category")
		if err != nil || strings.TrimSpace(category) == "" {
			return mcpError("category is required"), nil
		}
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		rep, err := deps.Runner.Run(ctx, strings.TrimSpace(category), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("scoring run failed: %v", err)), nil
		}
		return mcpJSON(rep)
	}
}

func mcpResourceHealth(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rep, err := deps.Queue.Health(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute queue health: %w", err)
		}
		return jsonResource(req.Params.URI, rep)
	}
}

func mcpResourceAlerts(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		alerts, err := deps.Queue.Alerts(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute alerts: %w", err)
		}
		if alerts == nil {
			return jsonResource(req.Params.URI, []any{})
		}
		return jsonResource(req.Params.URI, alerts)
	}
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
