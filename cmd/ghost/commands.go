package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/api"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/bridge"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/config"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/pipeline"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/queue"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/storage"
)

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score <category>",
	Short: "Score a category, plan the best products and queue them",
	Long: `Score a product category across every configured catalog, plan
pain-point videos for the best opportunities and queue them for generation.

Examples:
  ghost score health
  ghost score beauty --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/runs", api.RunRequest{Category: args[0], Limit: limit})
		if err != nil {
			return err
		}

		var rep pipeline.RunReport
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}

		printSuccess("Run %s finished in %dms", rep.RunID, rep.DurationMs)
		printStatus("Opportunities", "%d", rep.Opportunities)
		printStatus("Planned", "%d (%d enhanced, %d skipped)", rep.Planned, rep.Enhanced, rep.Skipped)
		printStatus("Queued", "%s", countLabel(len(rep.Queued), "item"))
		if rep.QueueFull {
			printWarning("queue is full, remaining plans were not queued")
		}
		for _, p := range rep.ProviderFailures {
			printWarning("catalog %s failed", p)
		}
		return nil
	},
}

func init() {
	scoreCmd.Flags().Int("limit", 0, "products to request per catalog (0 uses the policy default)")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Review the preview queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue items",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		q.Set("limit", fmt.Sprint(limit))
		resp, err := client.get(cmd.Context(), "/v1/queue?"+q.Encode())
		if err != nil {
			return err
		}

		var items []domain.QueueItem
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}

		for _, it := range items {
			fmt.Printf("%s  %-18s %-16s %s\n",
				colorize(colorCyan, it.ID),
				statusColor(string(it.Status)),
				statusColor(string(it.Compliance)),
				it.UpdatedAt.Format("2006-01-02 15:04"),
			)
			for _, issue := range it.ComplianceIssues {
				fmt.Printf("    - %s\n", issue)
			}
		}
		return nil
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a queue item as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var item domain.QueueItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		return printJSON(item)
	},
}

var queueEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit persona, script or video settings and re-run compliance",
	Long: `Edit settings on a queue item. Each --set takes target.field=value
where target is persona, script or video.

Examples:
  ghost queue edit 6f1c --set script.content="New script text"
  ghost queue edit 6f1c --set persona.hair_length=short --set video.lighting_color=warm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sets, _ := cmd.Flags().GetStringArray("set")
		changes, err := parseChanges(sets)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0]), api.UpdateRequest{Changes: changes})
		if err != nil {
			return err
		}
		var item domain.QueueItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printItemOutcome(item)
		return nil
	},
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a compliant item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		notes, _ := cmd.Flags().GetString("notes")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/approve", api.ApproveRequest{Notes: notes})
		if err != nil {
			return err
		}
		var item domain.QueueItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Approved %s", item.ID)
		return nil
	},
}

var queueRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		if strings.TrimSpace(reason) == "" {
			return errors.New("--reason is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/reject", api.RejectRequest{Reason: reason})
		if err != nil {
			return err
		}
		var item domain.QueueItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Rejected %s", item.ID)
		return nil
	},
}

var queueFeedbackCmd = &cobra.Command{
	Use:   "feedback <id> <text>",
	Short: "Send reviewer feedback to an item",
	Long: `Send free-text feedback. Recognised requests such as "shorter hair",
"blue lighting" or "slower" become edits; script edits trigger regeneration.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/feedback", api.FeedbackRequest{Feedback: text})
		if err != nil {
			return err
		}
		var res api.FeedbackResponse
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}

		if len(res.Changes) == 0 {
			printWarning("No recognised change in %q", text)
			return nil
		}
		for _, c := range res.Changes {
			printStatus("Changed", "%s = %s", c.Key(), c.Value)
		}
		if res.Regenerating {
			printSuccess("Regenerating %s", res.Item.ID)
		} else {
			printItemOutcome(res.Item)
		}
		return nil
	},
}

var queuePublishCmd = &cobra.Command{
	Use:   "publish <id>",
	Short: "Publish an approved item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/publish", nil)
		if err != nil {
			return err
		}
		var receipt storage.PublishReceipt
		if err := decodeJSON(resp, &receipt); err != nil {
			return err
		}
		printSuccess("Published %s as video %s", receipt.ItemID, receipt.VideoID)
		if receipt.URL != "" {
			printStatus("URL", "%s", receipt.URL)
		}
		return nil
	},
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Cancel an in-flight generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/cancel", nil)
		if err != nil {
			return err
		}
		var res struct {
			Cancelled bool `json:"cancelled"`
		}
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if !res.Cancelled {
			printWarning("%s has no generation in flight", args[0])
			return nil
		}
		printSuccess("Cancelled generation of %s", args[0])
		return nil
	},
}

var queueRegenerateCmd = &cobra.Command{
	Use:   "regenerate <id>",
	Short: "Render an item again after a cancelled or failed generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/queue/"+url.PathEscape(args[0])+"/regenerate", nil)
		if err != nil {
			return err
		}
		var item domain.QueueItem
		if err := decodeJSON(resp, &item); err != nil {
			return err
		}
		printSuccess("Regenerating %s (generation %d)", item.ID, item.Generation)
		return nil
	},
}

var queueAlertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List items that need attention",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/queue/alerts")
		if err != nil {
			return err
		}
		var alerts []queue.Alert
		if err := decodeJSON(resp, &alerts); err != nil {
			return err
		}
		if len(alerts) == 0 {
			printSuccess("No alerts")
			return nil
		}
		for _, a := range alerts {
			fmt.Printf("%s  %s  %s\n", colorize(colorYellow, a.Type), colorize(colorCyan, a.ItemID), a.Message)
			for _, issue := range a.Issues {
				fmt.Printf("    - %s\n", issue)
			}
		}
		return nil
	},
}

var queueHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show queue health",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/queue/health")
		if err != nil {
			return err
		}
		var rep queue.HealthReport
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}
		printStatus("Health", "%.2f (%s)", rep.Score, rep.Status)
		printStatus("Compliance rate", "%.0f%%", rep.ComplianceRate*100)
		printStatus("Efficiency", "%.0f%%", rep.Efficiency*100)
		printStatus("Items", "%d total, %d stuck, %d alerts", rep.Total, rep.Stuck, rep.Alerts)
		for _, st := range []domain.VideoStatus{
			domain.StatusGenerating, domain.StatusComplianceReview, domain.StatusReadyForPreview,
			domain.StatusRequiresFixes, domain.StatusApproved, domain.StatusPublished, domain.StatusRejected,
		} {
			if n := rep.ByStatus[st]; n > 0 {
				fmt.Printf("    %-20s %d\n", statusColor(string(st)), n)
			}
		}
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("status", "", "comma-separated statuses to include")
	queueListCmd.Flags().Int("limit", 50, "maximum number of items")
	queueEditCmd.Flags().StringArray("set", nil, "change as target.field=value (repeatable)")
	queueApproveCmd.Flags().String("notes", "", "reviewer notes")
	queueRejectCmd.Flags().String("reason", "", "why the item is rejected")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueEditCmd)
	queueCmd.AddCommand(queueApproveCmd)
	queueCmd.AddCommand(queueRejectCmd)
	queueCmd.AddCommand(queueFeedbackCmd)
	queueCmd.AddCommand(queuePublishCmd)
	queueCmd.AddCommand(queueCancelCmd)
	queueCmd.AddCommand(queueRegenerateCmd)
	queueCmd.AddCommand(queueAlertsCmd)
	queueCmd.AddCommand(queueHealthCmd)
}

// parseChanges turns target.field=value arguments into changes.
func parseChanges(sets []string) ([]domain.Change, error) {
	if len(sets) == 0 {
		return nil, errors.New("at least one --set is required")
	}
	changes := make([]domain.Change, 0, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q: want target.field=value", s)
		}
		target, field, ok := strings.Cut(key, ".")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q: want target.field=value", s)
		}
		c := domain.Change{Target: domain.ChangeTarget(strings.ToLower(target)), Field: field, Value: value}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		changes = append(changes, c)
	}
	return changes, nil
}

func printItemOutcome(item domain.QueueItem) {
	if len(item.ComplianceIssues) == 0 {
		printSuccess("%s is %s", item.ID, statusColor(string(item.Status)))
		return
	}
	printWarning("%s is %s with %s", item.ID, item.Status, countLabel(len(item.ComplianceIssues), "issue"))
	for _, issue := range item.ComplianceIssues {
		fmt.Fprintf(os.Stderr, "    - %s\n", issue)
	}
}

// --- engagement ---

var engagementCmd = &cobra.Command{
	Use:   "engagement",
	Short: "Feed engagement on published videos into the lead bridge",
}

var engagementRecordCmd = &cobra.Command{
	Use:   "record [video-id]",
	Short: "Record an engagement snapshot",
	Long: `Record one engagement snapshot from flags, or a batch from a JSON file
holding either one event or an array of events.

Examples:
  ghost engagement record vid-123 --views 12000 --likes 900 --comments 40 --shares 25
  ghost engagement record --file snapshots.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		var body json.RawMessage
		switch {
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not valid JSON", file)
			}
			body = bytes.TrimSpace(data)
		case len(args) == 1:
			e := domain.EngagementEvent{VideoID: args[0]}
			e.Views, _ = cmd.Flags().GetInt64("views")
			e.Likes, _ = cmd.Flags().GetInt64("likes")
			e.Comments, _ = cmd.Flags().GetInt64("comments")
			e.Shares, _ = cmd.Flags().GetInt64("shares")
			e.LinkClicks, _ = cmd.Flags().GetInt64("clicks")
			e.ViralCoefficient, _ = cmd.Flags().GetFloat64("viral")
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			body = data
		default:
			return errors.New("a video id or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/engagement", body)
		if err != nil {
			return err
		}

		if len(body) > 0 && body[0] == '[' {
			var results []api.EngagementResult
			if err := decodeJSON(resp, &results); err != nil {
				return err
			}
			for _, r := range results {
				if r.Error != "" {
					printError("%s: %s", r.VideoID, r.Error)
					continue
				}
				printReport(*r.Report)
			}
			return nil
		}

		var rep bridge.Report
		if err := decodeJSON(resp, &rep); err != nil {
			return err
		}
		printReport(rep)
		return nil
	},
}

func printReport(rep bridge.Report) {
	printSuccess("%s: %s engagement, %s", rep.VideoID, rep.Pattern.Quality, countLabel(len(rep.Leads), "lead"))
	for _, tier := range []domain.LeadTier{domain.LeadHot, domain.LeadWarm, domain.LeadQualified} {
		if n := rep.ByTier[tier]; n > 0 {
			fmt.Fprintf(os.Stderr, "    %-10s %d\n", statusColor(string(tier)), n)
		}
	}
	if rep.SinkFailures > 0 {
		printWarning("%s could not be handed to nurture", countLabel(rep.SinkFailures, "lead"))
	}
}

func init() {
	engagementRecordCmd.Flags().String("file", "", "JSON file with one event or an array of events")
	engagementRecordCmd.Flags().Int64("views", 0, "cumulative views")
	engagementRecordCmd.Flags().Int64("likes", 0, "cumulative likes")
	engagementRecordCmd.Flags().Int64("comments", 0, "cumulative comments")
	engagementRecordCmd.Flags().Int64("shares", 0, "cumulative shares")
	engagementRecordCmd.Flags().Int64("clicks", 0, "cumulative link clicks")
	engagementRecordCmd.Flags().Float64("viral", 0, "viral coefficient reported by the platform")
	engagementCmd.AddCommand(engagementRecordCmd)
}

// --- leads ---

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Inspect qualified leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leads, hottest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		tier, _ := cmd.Flags().GetString("tier")
		video, _ := cmd.Flags().GetString("video")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		q := url.Values{}
		if tier != "" {
			q.Set("tier", tier)
		}
		if video != "" {
			q.Set("video_id", video)
		}
		q.Set("limit", fmt.Sprint(limit))
		resp, err := client.get(cmd.Context(), "/v1/leads?"+q.Encode())
		if err != nil {
			return err
		}

		var leads []domain.Lead
		if err := decodeJSON(resp, &leads); err != nil {
			return err
		}
		if len(leads) == 0 {
			fmt.Println("No leads found.")
			return nil
		}
		for _, l := range leads {
			var services []string
			for _, s := range l.RecommendedServices {
				services = append(services, s.Service)
			}
			fmt.Printf("%s  %-10s %.2f  %-14s %s\n",
				colorize(colorCyan, l.ID),
				statusColor(string(l.Tier)),
				l.QualificationScore,
				l.AccountType,
				strings.Join(services, ", "),
			)
		}
		return nil
	},
}

func init() {
	leadsListCmd.Flags().String("tier", "", "comma-separated tiers: HOT, WARM, QUALIFIED")
	leadsListCmd.Flags().String("video", "", "only leads sourced from this video")
	leadsListCmd.Flags().Int("limit", 50, "maximum number of leads")
	leadsCmd.AddCommand(leadsListCmd)
}

// --- policy ---

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect or seed the scoring and compliance policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		p, err := config.LoadPolicy(cfg.Policy.Path)
		if err != nil {
			return err
		}
		data, err := p.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var policyInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default policy to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path := "policy.yaml"
		if len(args) == 1 {
			path = args[0]
		} else if cfg, err := config.Load(); err == nil && cfg.Policy.Path != "" {
			path = cfg.Policy.Path
		}
		return writeDefaultPolicy(path, force)
	},
}

func writeDefaultPolicy(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	data, err := config.DefaultPolicy().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing policy: %w", err)
	}
	printSuccess("Wrote default policy to %s", path)
	return nil
}

func init() {
	policyInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyInitCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		configFile, secretsFile := config.Paths()
		printStatus("Config file", "%s", configFile)
		printStatus("Secrets file", "%s", secretsFile)
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "$"+k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a credential in the secret store",
	Long:  "Store a credential in secrets.yaml (mode 0600). Known keys: " + strings.Join(config.SecretKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(config.NewSecretStore(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

func countLabel(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
