package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/config"
	"github.com/KeptKitchenAdmin/ghost-automation-dashboard-two-sub002/internal/domain"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// execute runs the CLI against ts with fresh flag values.
func (ts *testServer) execute(t *testing.T, args ...string) error {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })

	resetFlags(rootCmd)
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	return rootCmd.Execute()
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

var ctx = context.Background()

func TestScoreCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/runs": `{"run_id":"run-1","opportunities":4,"planned":2,"queued":["a","b"],"duration_ms":12}`,
	})

	if err := ts.execute(t, "score", "health", "--limit", "5"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/v1/runs" {
		t.Errorf("request = %s %s, want POST /v1/runs", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["category"] != "health" || body["limit"] != float64(5) {
		t.Errorf("body = %v", body)
	}
}

func TestScoreCommand_MissingCategory(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := ts.execute(t, "score"); err == nil {
		t.Fatal("expected error for missing category")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestQueueList_StatusFilter(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/queue": `[{"id":"item-1","status":"REQUIRES_FIXES","compliance":"NON_COMPLIANT","compliance_issues":["Missing required disclosure: #ad"]}]`,
	})

	if err := ts.execute(t, "queue", "list", "--status", "REQUIRES_FIXES", "--limit", "10"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := ts.requests[0].Path
	if !strings.Contains(path, "status=REQUIRES_FIXES") || !strings.Contains(path, "limit=10") {
		t.Errorf("path = %q, want status and limit params", path)
	}
}

func TestQueueReject_RequiresReason(t *testing.T) {
	ts := newTestServer(t, nil)

	err := ts.execute(t, "queue", "reject", "item-1")
	if err == nil {
		t.Fatal("expected error without --reason")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no requests, got %d", len(ts.requests))
	}
}

func TestQueueApprove_SendsNotes(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/queue/item-1/approve": `{"id":"item-1","status":"APPROVED"}`,
	})

	if err := ts.execute(t, "queue", "approve", "item-1", "--notes", "looks good"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ts.requests[0].Body, `"notes":"looks good"`) {
		t.Errorf("body = %s", ts.requests[0].Body)
	}
}

func TestQueueApprove_BlockedShowsIssues(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(409)
		w.Write([]byte(`{"error":{"message":"approval blocked","type":"compliance_blocked","issues":["Missing required disclosure: #ad"]}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	resp, err := client.post(ctx, "/v1/queue/item-1/approve", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	var item domain.QueueItem
	err = decodeJSON(resp, &item)
	if err == nil {
		t.Fatal("expected error for blocked approval")
	}
	for _, want := range []string{"409", "approval blocked", "- Missing required disclosure: #ad"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}
}

func TestQueueEdit_SendsChanges(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /v1/queue/item-1": `{"id":"item-1","status":"READY_FOR_PREVIEW","compliance":"COMPLIANT"}`,
	})

	err := ts.execute(t, "queue", "edit", "item-1", "--set", "script.content=New text #ad", "--set", "video.lighting_color=warm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Changes []domain.Change `json:"changes"`
	}
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if len(body.Changes) != 2 {
		t.Fatalf("changes = %+v, want 2", body.Changes)
	}
	if body.Changes[0].Target != domain.TargetScript || body.Changes[0].Value != "New text #ad" {
		t.Errorf("first change = %+v", body.Changes[0])
	}
}

func TestParseChanges(t *testing.T) {
	got, err := parseChanges([]string{"Persona.hair_length=short", "script.content=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Target != domain.TargetPersona || got[0].Field != "hair_length" || got[0].Value != "short" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Value != "a=b" {
		t.Errorf("value = %q, want everything after the first '='", got[1].Value)
	}

	for _, bad := range [][]string{nil, {"nofield"}, {"script=x"}, {"script.=x"}, {"audio.volume=3"}} {
		if _, err := parseChanges(bad); err == nil {
			t.Errorf("parseChanges(%q) should fail", bad)
		}
	}
}

func TestQueueFeedback_JoinsText(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/queue/item-1/feedback": `{"item":{"id":"item-1"},"changes":[{"target":"script","field":"pacing","value":"slow"}],"regenerating":true}`,
	})

	if err := ts.execute(t, "queue", "feedback", "item-1", "a", "bit", "slower"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(ts.requests[0].Body, `"feedback":"a bit slower"`) {
		t.Errorf("body = %s", ts.requests[0].Body)
	}
}

func TestQueueCancel_NothingInFlight(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/queue/item-1/cancel": `{"item_id":"item-1","cancelled":false}`,
	})
	if err := ts.execute(t, "queue", "cancel", "item-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueueRegenerate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/queue/item-1/regenerate": `{"id":"item-1","status":"GENERATING","generation":3}`,
	})
	if err := ts.execute(t, "queue", "regenerate", "item-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(ts.requests))
	}
}

func TestEngagementRecord_FromFlags(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/engagement": `{"video_id":"vid-1","pattern":{"engagement_quality":"high"},"potential_leads":12,"leads":[],"by_tier":{}}`,
	})

	err := ts.execute(t, "engagement", "record", "vid-1", "--views", "12000", "--likes", "900", "--shares", "25")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var e domain.EngagementEvent
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &e); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if e.VideoID != "vid-1" || e.Views != 12000 || e.Likes != 900 || e.Shares != 25 || e.Comments != 0 {
		t.Errorf("event = %+v", e)
	}
}

func TestEngagementRecord_BatchFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/engagement": `[{"video_id":"vid-1","report":{"video_id":"vid-1","leads":[]}},{"video_id":"vid-2","error":"unknown video"}]`,
	})

	path := filepath.Join(t.TempDir(), "events.json")
	data := `[{"video_id":"vid-1","views":100},{"video_id":"vid-2","views":50}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ts.execute(t, "engagement", "record", "--file", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(ts.requests[0].Body, "[") {
		t.Errorf("body = %s, want the array sent as is", ts.requests[0].Body)
	}
}

func TestEngagementRecord_NeedsInput(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := ts.execute(t, "engagement", "record"); err == nil {
		t.Fatal("expected error without video id or --file")
	}
}

func TestLeadsList_Params(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/leads": `[{"id":"lead-1","tier":"HOT","qualification_score":0.8,"account_type":"business","recommended_services":[{"service":"audit","fit_score":0.9}]}]`,
	})

	if err := ts.execute(t, "leads", "list", "--tier", "HOT,WARM", "--video", "vid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := ts.requests[0].Path
	if !strings.Contains(path, "tier=HOT%2CWARM") || !strings.Contains(path, "video_id=vid-1") {
		t.Errorf("path = %q", path)
	}
}

func TestWriteDefaultPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")

	if err := writeDefaultPolicy(path, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := config.ParsePolicy(data); err != nil {
		t.Fatalf("written policy does not parse: %v", err)
	}

	if err := writeDefaultPolicy(path, false); err == nil {
		t.Error("expected error when the file exists")
	}
	if err := writeDefaultPolicy(path, true); err != nil {
		t.Errorf("--force should overwrite: %v", err)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := loadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}

func TestLoadDotEnv_SetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GHOST_TEST_DOTENV=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("GHOST_TEST_DOTENV") })

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("GHOST_TEST_DOTENV"); got != "loaded" {
		t.Errorf("GHOST_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorGreen, "test message"); result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	if result := colorize(colorGreen, "test message"); !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0 leads"},
		{1, "1 lead"},
		{12, "12 leads"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.n, "lead"); got != tt.want {
			t.Errorf("countLabel(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestConfiguredLabel(t *testing.T) {
	if got := configuredLabel(map[string]bool{}); got != "none configured" {
		t.Errorf("got %q", got)
	}
	got := configuredLabel(map[string]bool{"heygen": true, "claude": true})
	if got != "claude, heygen" {
		t.Errorf("got %q, want stable order", got)
	}
}

func TestConfigShowAll_MasksSecrets(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.Generate.AnthropicAPIKey = "sk-ant-1234567890"

	found := map[string]string{}
	for _, k := range config.ShowAll(cfg) {
		found[k.Key] = k.Value
	}
	if found["server.port"] != "4100" {
		t.Errorf("server.port = %q, want 4100", found["server.port"])
	}
	if v := found["generate.anthropic_api_key"]; strings.Contains(v, "1234567890") {
		t.Errorf("secret shown unmasked: %q", v)
	}
}
