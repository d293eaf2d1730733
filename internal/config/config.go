package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Policy    PolicyConfig
	Catalog   CatalogConfig
	Generate  GenerateConfig
	Artifacts ArtifactConfig
	Publish   PublishConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Host string
	Port int
	// MCPStdio serves the MCP tools on stdin/stdout alongside the HTTP API.
	MCPStdio bool
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string
	Format string
}

type PolicyConfig struct {
	Path string
}

type CatalogConfig struct {
	FastMossURL    string
	FastMossAPIKey string
	KaloDataURL    string
	KaloDataAPIKey string
	ListingURL     string
}

type GenerateConfig struct {
	AnthropicAPIKey      string
	ClaudeModel          string
	ElevenLabsAPIKey     string
	ElevenLabsVoiceID    string
	HeyGenAPIKey         string
	HeyGenAvatarID       string
	HeyGenTalkingPhotoID string
}

type ArtifactConfig struct {
	Dir           string
	R2Endpoint    string
	R2Bucket      string
	R2AccessKeyID string
	R2SecretKey   string
	R2PublicURL   string
}

type PublishConfig struct {
	WebhookURL string
	Token      string
}

type RedisConfig struct {
	URL string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Generate: GenerateConfig{
			ClaudeModel: "claude-sonnet-4-5",
		},
	}
}

// Load reads configuration from config.yaml, then the secret store, then
// GHOST_* environment variables, each layer overriding the one before.
// Both files live in $GHOST_CONFIG_DIR (default $XDG_CONFIG_HOME/ghost).
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewSecretStore())
}

// SecretReader abstracts the secret store for testing.
type SecretReader interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc SecretReader) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applySecrets(&cfg, kc)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secret keys from the secret store. Environment values
// applied afterwards take precedence.
func applySecrets(cfg *Config, kc SecretReader) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, err := kc.Get(secretService, s.key); err == nil && v != "" {
			s.apply(cfg, strings.TrimSpace(v))
		}
	}
}

func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: log.format %q (want text or json)", c.Log.Format)
	}
	if c.Artifacts.R2Endpoint != "" && c.Artifacts.R2Bucket == "" {
		return fmt.Errorf("missing required config: artifacts.r2_bucket must be set with artifacts.r2_endpoint")
	}
	return nil
}

// ArtifactDir is where generated media is kept when no R2 bucket is set.
func (c Config) ArtifactDir() string {
	if c.Artifacts.Dir != "" {
		return c.Artifacts.Dir
	}
	return c.Storage.DataDir + "/artifacts"
}
