package config

import (
	"fmt"
	"os"
	"strconv"
)

const secretService = "mimic"

type keyType int

const (
	kString keyType = iota
	kInt
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
		key: "server.port", typ: kInt, env: "MIMIC_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "MIMIC_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "provider.name", typ: kString, env: "MIMIC_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Provider.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.Name },
	},
	{
		key: "provider.openai_model", typ: kString, env: "MIMIC_OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.OpenAIModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.OpenAIModel },
	},
	{
		key: "provider.anthropic_model", typ: kString, env: "MIMIC_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.AnthropicModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.AnthropicModel },
	},
	{
		key: "provider.gemini_model", typ: kString, env: "MIMIC_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Provider.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.GeminiModel },
	},
	{
		key: "provider.openai_api_key", typ: kString, env: "MIMIC_OPENAI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.OpenAIAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.OpenAIAPIKey },
	},
	{
		key: "provider.anthropic_api_key", typ: kString, env: "MIMIC_ANTHROPIC_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.AnthropicAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.AnthropicAPIKey },
	},
	{
		key: "provider.gemini_api_key", typ: kString, env: "MIMIC_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Provider.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Provider.GeminiAPIKey },
	},
	{
		key: "embedding.model", typ: kString, env: "MIMIC_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "corpus.base_url", typ: kString, env: "MIMIC_CORPUS_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Corpus.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.BaseURL },
	},
	{
		key: "corpus.api_key", typ: kString, env: "MIMIC_CORPUS_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Corpus.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Corpus.APIKey },
	},
	{
		key: "author.active_id", typ: kString, env: "MIMIC_AUTHOR",
		apply:   func(cfg *Config, v any) { cfg.Author.ActiveID = v.(string) },
		extract: func(cfg Config) any { return cfg.Author.ActiveID },
	},
	{
		key: "author.active_profile_id", typ: kString, env: "MIMIC_AUTHOR_PROFILE",
		apply:   func(cfg *Config, v any) { cfg.Author.ActiveProfileID = v.(string) },
		extract: func(cfg Config) any { return cfg.Author.ActiveProfileID },
	},
	{
		key: "storage.data_dir", typ: kString, env: "MIMIC_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "api.token", typ: kString, env: "MIMIC_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "MIMIC_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// secretAccount maps a secret key to its account name in the secret
// store: the part after the last dot.
func secretAccount(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			return key[i+1:]
		}
	}
	return key
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
		}
	}
}

// fillSecrets consults the platform secret store for any secret key that
// is still empty after env overrides.
func fillSecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret {
			continue
		}
		if v, _ := s.extract(*cfg).(string); v != "" {
			continue
		}
		if v, err := kc.Get(secretService, secretAccount(s.key)); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
