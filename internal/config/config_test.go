package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the secret store.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[service+"/"+account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *yamlBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return newYAMLBackend(path)
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	t.Setenv("GHOST_SERVER_PORT", "")
	cfg, err := loadWith(writeTempConfig(t, `{}`), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q", cfg.Server.Host)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Generate.ClaudeModel != "claude-sonnet-4-5" {
		t.Errorf("ClaudeModel = %q", cfg.Generate.ClaudeModel)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "ghost") && cfg.Storage.DataDir != "ghost-data" {
		t.Errorf("DataDir = %q", cfg.Storage.DataDir)
	}
}

// TestFileParsing verifies that sectioned keys are read from config.yaml.
func TestFileParsing(t *testing.T) {
	b := writeTempConfig(t, `
server:
  port: 5100
  mcp_stdio: true
storage:
  data_dir: /tmp/ghost-test
catalog:
  fastmoss_url: https://api.fastmoss.example
artifacts:
  r2_endpoint: https://acct.r2.cloudflarestorage.com
  r2_bucket: media
redis:
  url: redis://localhost:6379/2
`)

	cfg, err := loadWith(b, &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5100 || !cfg.Server.MCPStdio {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Storage.DataDir != "/tmp/ghost-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Catalog.FastMossURL != "https://api.fastmoss.example" {
		t.Errorf("FastMossURL = %q", cfg.Catalog.FastMossURL)
	}
	if cfg.Artifacts.R2Bucket != "media" || cfg.Redis.URL != "redis://localhost:6379/2" {
		t.Errorf("cfg = %+v", cfg)
	}
	if got := cfg.ArtifactDir(); got != "/tmp/ghost-test/artifacts" {
		t.Errorf("ArtifactDir = %q", got)
	}
}

// TestEnvOverride verifies that environment variables override file and secret store values.
func TestEnvOverride(t *testing.T) {
	b := writeTempConfig(t, "server:\n  port: 5100\n")
	kc := &mockKeychain{values: map[string]string{"ghost/generate.anthropic_api_key": "stored-key"}}

	t.Setenv("GHOST_SERVER_PORT", "6100")
	t.Setenv("GHOST_ANTHROPIC_API_KEY", "env-key")

	cfg, err := loadWith(b, kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6100 {
		t.Errorf("Server.Port = %d, want 6100", cfg.Server.Port)
	}
	if cfg.Generate.AnthropicAPIKey != "env-key" {
		t.Errorf("AnthropicAPIKey = %q, want env-key", cfg.Generate.AnthropicAPIKey)
	}
}

// TestSecretStoreFallback verifies secrets come from the secret store when not in env.
func TestSecretStoreFallback(t *testing.T) {
	t.Setenv("GHOST_R2_SECRET_ACCESS_KEY", "")
	kc := &mockKeychain{values: map[string]string{
		"ghost/artifacts.r2_secret_access_key": " r2-secret\n",
		"ghost/publish.token":                  "pub-token",
	}}
	cfg, err := loadWith(writeTempConfig(t, `{}`), kc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Artifacts.R2SecretKey != "r2-secret" || cfg.Publish.Token != "pub-token" {
		t.Errorf("secrets = %q / %q", cfg.Artifacts.R2SecretKey, cfg.Publish.Token)
	}
}

// TestSecretsIgnoredInFile verifies secret keys in the plain config file are not applied.
func TestSecretsIgnoredInFile(t *testing.T) {
	t.Setenv("GHOST_HEYGEN_API_KEY", "")
	cfg, err := loadWith(writeTempConfig(t, "generate:\n  heygen_api_key: leaked\n"), &mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generate.HeyGenAPIKey != "" {
		t.Errorf("HeyGenAPIKey = %q, want empty", cfg.Generate.HeyGenAPIKey)
	}
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"format", "log:\n  format: xml\n", "log.format"},
		{"bucket", "artifacts:\n  r2_endpoint: https://r2.example\n", "missing required config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GHOST_SERVER_PORT", "")
			_, err := loadWith(writeTempConfig(t, tt.content), &mockKeychain{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	b := writeTempConfig(t, `{}`)
	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if err := setKey(b, "server.mcp_stdio", "yes"); err == nil {
		t.Error("expected error for invalid bool")
	}
	if err := setKey(b, "generate.anthropic_api_key", "k"); err == nil || !strings.Contains(err.Error(), "GHOST_ANTHROPIC_API_KEY") {
		t.Errorf("secret via setKey: %v", err)
	}
	if err := setKey(b, "nope", "1"); err == nil {
		t.Error("expected error for unknown key")
	}

	reloaded := newYAMLBackend(b.path)
	if v, ok, err := reloaded.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("server.port = %d, %v, %v", v, ok, err)
	}
	raw, err := os.ReadFile(b.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "server:") || !strings.Contains(string(raw), "port: 4200") {
		t.Errorf("config.yaml = %q, want port nested under server", raw)
	}
}

func TestUnsetKey(t *testing.T) {
	t.Setenv("GHOST_SERVER_PORT", "")
	t.Setenv("GHOST_SERVER_HOST", "")
	b := writeTempConfig(t, "server:\n  port: 5100\n  host: 0.0.0.0\n")
	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	if err := unsetKey(b, "publish.token"); err == nil {
		t.Error("expected error for secret key")
	}
	if err := unsetKey(b, "server.nope"); err == nil || !strings.Contains(err.Error(), "server.port") {
		t.Errorf("unknown key error = %v, want the valid keys listed", err)
	}

	cfg, err := loadWith(newYAMLBackend(b.path), &mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4100 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server = %+v, want default port and kept host", cfg.Server)
	}
}

func TestPathsHonourConfigDir(t *testing.T) {
	t.Setenv("GHOST_CONFIG_DIR", "/etc/ghost")
	cfgFile, secretsFile := Paths()
	if cfgFile != "/etc/ghost/config.yaml" || secretsFile != "/etc/ghost/secrets.yaml" {
		t.Errorf("Paths = %q, %q", cfgFile, secretsFile)
	}
}

func TestYAMLBackendDelete(t *testing.T) {
	b := writeTempConfig(t, "log:\n  level: debug\n")
	if v, ok, _ := b.GetString("log.level"); !ok || v != "debug" {
		t.Fatalf("log.level = %q, %v", v, ok)
	}
	if err := b.Delete("log.level"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := newYAMLBackend(b.path).GetString("log.level"); ok {
		t.Error("log.level still present after Delete")
	}
}

func TestFileSecretsRoundTrip(t *testing.T) {
	fs := FileSecrets{path: filepath.Join(t.TempDir(), "nested", "secrets.yaml")}
	if _, err := fs.Get(secretService, "publish.token"); err == nil {
		t.Fatal("expected error before the file exists")
	}
	if err := fs.Set(secretService, "publish.token", "tok-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := fs.Set(secretService, apiTokenAccount, "api-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, err := fs.Get(secretService, "publish.token"); err != nil || got != "tok-1" {
		t.Errorf("Get = %q, %v", got, err)
	}
	info, err := os.Stat(fs.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestShowAllMasksSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Generate.AnthropicAPIKey = "sk-ant-1234567890"
	for _, k := range ShowAll(cfg) {
		switch k.Key {
		case "generate.anthropic_api_key":
			if k.Value != "sk-a****" {
				t.Errorf("masked = %q", k.Value)
			}
		case "publish.token":
			if k.Value != "(unset)" {
				t.Errorf("unset secret shown as %q", k.Value)
			}
		}
	}
	for _, k := range ValidKeys() {
		if k == "publish.token" {
			t.Error("secret listed as settable key")
		}
	}
}

func TestGetAPITokenGeneratesOnce(t *testing.T) {
	kc := &mockKeychain{}
	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64", len(first))
	}
	second, err := GetAPIToken(kc)
	if err != nil || second != first {
		t.Errorf("second token = %q, %v; want %q", second, err, first)
	}
}

func TestSetSecret(t *testing.T) {
	kc := &mockKeychain{}
	if err := SetSecret(kc, "publish.token", "abc"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if kc.values["ghost/publish.token"] != "abc" {
		t.Errorf("values = %v", kc.values)
	}
	if err := SetSecret(kc, "server.port", "1"); err == nil {
		t.Error("expected error for non-secret key")
	}
}

func TestPolicyDefaultsValid(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	p, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicy(missing): %v", err)
	}
	if p.Compliance.MaxQueueSize != 100 {
		t.Errorf("MaxQueueSize = %d, want default 100", p.Compliance.MaxQueueSize)
	}
}

func TestParsePolicyOverlaysDefaults(t *testing.T) {
	p, err := ParsePolicy([]byte(`
performance_criteria:
  max_price: 120
  filter_expr: "rating >= 4.2"
compliance:
  max_queue_size: 25
pipeline:
  enhance_iterations: 2
  generator_timeout: 90s
schedule:
  run_spec: "@every 3h"
  categories: [health, beauty]
avoid_terms: ["doctor recommended"]
`))
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	if p.Criteria.MaxPrice != 120 || p.Criteria.MinCommission != 5 {
		t.Errorf("criteria = %+v", p.Criteria)
	}
	if p.Compliance.MaxQueueSize != 25 || p.Compliance.ComplianceTimeoutHours != 24 {
		t.Errorf("compliance = %+v", p.Compliance)
	}
	if p.Pipeline.EnhanceIterations != 2 || p.Pipeline.GeneratorTimeout != 90*time.Second || p.Pipeline.MaxPlansPerRun != 10 {
		t.Errorf("pipeline = %+v", p.Pipeline)
	}
	if p.Schedule.RunSpec != "@every 3h" || len(p.Schedule.Categories) != 2 || p.Schedule.SweepSpec != "@every 15m" {
		t.Errorf("schedule = %+v", p.Schedule)
	}
	if len(p.AvoidTerms) != 1 {
		t.Errorf("avoid terms = %v", p.AvoidTerms)
	}
}

func TestParsePolicyRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"weights", "lead_scoring:\n  lead_scoring_weights:\n    engagement: 0.9\n", "lead_scoring"},
		{"queue size", "compliance:\n  max_queue_size: 0\n", "compliance"},
		{"unknown check", "compliance:\n  mandatory_checks: [vibes]\n", "vibes"},
		{"filter", "performance_criteria:\n  filter_expr: \"price >\"\n", "performance_criteria"},
		{"cron", "schedule:\n  run_spec: \"sometimes\"\n", "schedule"},
		{"syntax", "pipeline: [", "parsing policy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestPolicyMarshalRoundTrip(t *testing.T) {
	data, err := DefaultPolicy().Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := ParsePolicy(data); err != nil {
		t.Fatalf("re-parsing marshaled defaults: %v", err)
	}
}
