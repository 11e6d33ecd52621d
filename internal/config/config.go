// Package config loads the conclave CLI configuration: defaults, then a TOML
// file, then environment overrides (env wins).
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Gateway   GatewayConfig   `toml:"gateway"`
	Panel     PanelConfig     `toml:"panel"`
	Search    SearchConfig    `toml:"search"`
	Store     StoreConfig     `toml:"store"`
	Retry     RetryConfig     `toml:"retry"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Observer  ObserverConfig  `toml:"observer"`
}

type GatewayConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Name    string `toml:"name"`
}

type PanelConfig struct {
	Participants       []string `toml:"participants"`
	Chairman           string   `toml:"chairman"`
	Cycles             int      `toml:"cycles"`
	UseReact           bool     `toml:"use_react"`
	Sequential         bool     `toml:"sequential"`
	TimeoutSeconds     int      `toml:"timeout_seconds"`
	MaxToolCalls       int      `toml:"max_tool_calls"`
	MaxStreamToolCalls int      `toml:"max_stream_tool_calls"`
}

type SearchConfig struct {
	APIKey     string `toml:"api_key"`
	MaxResults int    `toml:"max_results"`
	Depth      string `toml:"depth"`
	FetchPages bool   `toml:"fetch_pages"`
}

type StoreConfig struct {
	Backend string `toml:"backend"` // "jsonfile", "sqlite", "postgres"
	Path    string `toml:"path"`    // jsonfile dir or sqlite file
	DSN     string `toml:"dsn"`     // postgres connection string
}

type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts"`
}

type RateLimitConfig struct {
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Gateway: GatewayConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Name:    "openrouter",
		},
		Panel: PanelConfig{
			Participants: []string{
				"openai/gpt-4o",
				"anthropic/claude-sonnet-4-5",
				"google/gemini-2.5-pro",
			},
			Chairman:           "anthropic/claude-sonnet-4-5",
			Cycles:             1,
			TimeoutSeconds:     120,
			MaxToolCalls:       5,
			MaxStreamToolCalls: 5,
		},
		Search: SearchConfig{
			MaxResults: 5,
			Depth:      "basic",
			FetchPages: true,
		},
		Store: StoreConfig{
			Backend: "jsonfile",
			Path:    filepath.Join(home, ".conclave", "conversations"),
		},
		Retry: RetryConfig{MaxAttempts: 3},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "conclave.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CONCLAVE_GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("CONCLAVE_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("CONCLAVE_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("CONCLAVE_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}

	return cfg
}
