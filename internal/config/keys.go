package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "GHOST_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "GHOST_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_stdio", typ: kBool, env: "GHOST_SERVER_MCP_STDIO",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPStdio = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPStdio },
	},
	{
		key: "storage.data_dir", typ: kString, env: "GHOST_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "GHOST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "GHOST_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "policy.path", typ: kString, env: "GHOST_POLICY_PATH",
		apply:   func(cfg *Config, v any) { cfg.Policy.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Policy.Path },
	},
	{
		key: "catalog.fastmoss_url", typ: kString, env: "GHOST_CATALOG_FASTMOSS_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.FastMossURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.FastMossURL },
	},
	{
		key: "catalog.fastmoss_api_key", typ: kString, env: "GHOST_FASTMOSS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Catalog.FastMossAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.FastMossAPIKey },
	},
	{
		key: "catalog.kalodata_url", typ: kString, env: "GHOST_CATALOG_KALODATA_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.KaloDataURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.KaloDataURL },
	},
	{
		key: "catalog.kalodata_api_key", typ: kString, env: "GHOST_KALODATA_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Catalog.KaloDataAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.KaloDataAPIKey },
	},
	{
		key: "catalog.listing_url", typ: kString, env: "GHOST_CATALOG_LISTING_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.ListingURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.ListingURL },
	},
	{
		key: "generate.anthropic_api_key", typ: kString, env: "GHOST_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generate.AnthropicAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.AnthropicAPIKey },
	},
	{
		key: "generate.claude_model", typ: kString, env: "GHOST_GENERATE_CLAUDE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generate.ClaudeModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.ClaudeModel },
	},
	{
		key: "generate.elevenlabs_api_key", typ: kString, env: "GHOST_ELEVENLABS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generate.ElevenLabsAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.ElevenLabsAPIKey },
	},
	{
		key: "generate.elevenlabs_voice_id", typ: kString, env: "GHOST_GENERATE_ELEVENLABS_VOICE_ID",
		apply:   func(cfg *Config, v any) { cfg.Generate.ElevenLabsVoiceID = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.ElevenLabsVoiceID },
	},
	{
		key: "generate.heygen_api_key", typ: kString, env: "GHOST_HEYGEN_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generate.HeyGenAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.HeyGenAPIKey },
	},
	{
		key: "generate.heygen_avatar_id", typ: kString, env: "GHOST_GENERATE_HEYGEN_AVATAR_ID",
		apply:   func(cfg *Config, v any) { cfg.Generate.HeyGenAvatarID = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.HeyGenAvatarID },
	},
	{
		key: "generate.heygen_talking_photo_id", typ: kString, env: "GHOST_GENERATE_HEYGEN_TALKING_PHOTO_ID",
		apply:   func(cfg *Config, v any) { cfg.Generate.HeyGenTalkingPhotoID = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.HeyGenTalkingPhotoID },
	},
	{
		key: "artifacts.dir", typ: kString, env: "GHOST_ARTIFACTS_DIR",
		apply:   func(cfg *Config, v any) { cfg.Artifacts.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.Dir },
	},
	{
		key: "artifacts.r2_endpoint", typ: kString, env: "GHOST_R2_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Artifacts.R2Endpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.R2Endpoint },
	},
	{
		key: "artifacts.r2_bucket", typ: kString, env: "GHOST_R2_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Artifacts.R2Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.R2Bucket },
	},
	{
		key: "artifacts.r2_access_key_id", typ: kString, env: "GHOST_R2_ACCESS_KEY_ID",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Artifacts.R2AccessKeyID = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.R2AccessKeyID },
	},
	{
		key: "artifacts.r2_secret_access_key", typ: kString, env: "GHOST_R2_SECRET_ACCESS_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Artifacts.R2SecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.R2SecretKey },
	},
	{
		key: "artifacts.r2_public_url", typ: kString, env: "GHOST_R2_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Artifacts.R2PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Artifacts.R2PublicURL },
	},
	{
		key: "publish.webhook_url", typ: kString, env: "GHOST_PUBLISH_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Publish.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.WebhookURL },
	},
	{
		key: "publish.token", typ: kString, env: "GHOST_PUBLISH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Publish.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Publish.Token },
	},
	{
		key: "redis.url", typ: kString, env: "GHOST_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Redis.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Redis.URL },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
