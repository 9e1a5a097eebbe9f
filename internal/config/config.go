package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Embedding EmbeddingConfig
	Corpus    CorpusConfig
	Author    AuthorConfig
	Storage   StorageConfig
	API       APIConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

// ProviderConfig selects the completion backend and holds per-provider
// credentials and model names. Only the selected provider's key is
// required, and that requirement is enforced at generation time rather
// than at load time so read-only commands work without credentials.
type ProviderConfig struct {
	Name            string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
}

type EmbeddingConfig struct {
	Model string
}

// CorpusConfig points at the remote record store's REST endpoint.
type CorpusConfig struct {
	BaseURL string
	APIKey  string
}

// AuthorConfig holds the locally selected author whose corpus and
// profile drive generation. ActiveProfileID optionally pins a specific
// stored profile; when empty the author's newest profile is used.
type AuthorConfig struct {
	ActiveID        string
	ActiveProfileID string
}

type StorageConfig struct {
	DataDir string
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    4200,
			MCPPort: 4201,
		},
		Provider: ProviderConfig{
			Name:           "openai",
			OpenAIModel:    "gpt-4o-mini",
			AnthropicModel: "claude-3-haiku-20240307",
			GeminiModel:    "gemini-pro",
		},
		Embedding: EmbeddingConfig{
			Model: "text-embedding-3-small",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file
// in the working directory (if present), environment variables, and the
// platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.mimic.app) and secrets
// fall back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/mimic/config.json and secrets fall back to a JSON file
// at $XDG_DATA_HOME/mimic/secrets.json.
//
// Environment variables (MIMIC_*) override backend values on all platforms.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts the platform secret store for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	fillSecrets(&cfg, kc)

	return cfg, nil
}

// ProviderKey returns the credential for the named provider, or "" when
// the provider is unknown or unconfigured.
func (c Config) ProviderKey(name string) string {
	switch name {
	case "openai":
		return c.Provider.OpenAIAPIKey
	case "anthropic":
		return c.Provider.AnthropicAPIKey
	case "gemini":
		return c.Provider.GeminiAPIKey
	}
	return ""
}

// ProviderModel returns the configured model for the named provider.
func (c Config) ProviderModel(name string) string {
	switch name {
	case "openai":
		return c.Provider.OpenAIModel
	case "anthropic":
		return c.Provider.AnthropicModel
	case "gemini":
		return c.Provider.GeminiModel
	}
	return ""
}

// CredentialHint names the ways the selected provider's key can be
// supplied, for user-facing error messages.
func CredentialHint(provider string) string {
	env := fmt.Sprintf("MIMIC_%s_API_KEY", strings.ToUpper(provider))
	return fmt.Sprintf("set it via environment variable %s%s", env, apiKeyHint())
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
