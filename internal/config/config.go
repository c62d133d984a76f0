// Package config defines the gateway's configuration tree (SPEC_FULL.md §6)
// and the loader that assembles it from defaults, YAML, and environment
// overrides, following the teacher's default -> YAML -> env precedence.
package config

import "time"

// Config is the full gateway configuration, YAML-decoded from the layout
// in SPEC_FULL.md §6.
type Config struct {
	ModelList             []ModelEntry          `yaml:"model_list" env:"-"`
	RouterSettings        RouterSettings        `yaml:"router_settings" env:"ROUTER"`
	AgentSettings         AgentSettings         `yaml:"agent_settings" env:"AGENT"`
	CacheSettings         CacheSettings         `yaml:"cache_settings" env:"CACHE"`
	KeyManagementSettings KeyManagementSettings `yaml:"key_management_settings" env:"KEY_MANAGEMENT"`
	StreamingSettings     StreamingSettings     `yaml:"streaming_settings" env:"STREAMING"`
	ServerSettings        ServerSettings        `yaml:"server_settings" env:"SERVER"`
	RedisSettings         RedisSettings         `yaml:"redis_settings" env:"REDIS"`
}

// ModelEntry is one profile in the model_list.
type ModelEntry struct {
	ModelName   string            `yaml:"model_name"`
	Provider    string            `yaml:"provider"`
	ModelParams ModelParams       `yaml:"model_params"`
}

// ModelParams holds the per-profile generation parameters and optional
// agent settings (SPEC_FULL.md §3 "Provider profile").
type ModelParams struct {
	Model         string        `yaml:"model"`
	APIBase       string        `yaml:"api_base"`
	Temperature   float64       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	AgentSettings *AgentProfile `yaml:"agent_settings,omitempty"`
}

// AgentProfile is the profile-level override of the reasoning pattern.
type AgentProfile struct {
	ReasoningMode string `yaml:"reasoning_mode"`
}

// RouterSettings maps aliases to priority chains.
type RouterSettings struct {
	ModelGroupAlias map[string][]string `yaml:"model_group_alias"`
}

// AgentSettings holds reasoning-engine-wide defaults.
type AgentSettings struct {
	MCPServerURL  string `yaml:"mcp_server_url" env:"MCP_SERVER_URL"`
	ReasoningMode string `yaml:"reasoning_mode" env:"REASONING_MODE"`
	MaxSteps      int    `yaml:"max_steps" env:"MAX_STEPS"`
}

// CacheSettings configures the content-addressed response cache.
type CacheSettings struct {
	Enabled   bool        `yaml:"enabled" env:"ENABLED"`
	KeyPrefix string      `yaml:"key_prefix" env:"KEY_PREFIX"`
	Rules     []CacheRule `yaml:"rules" env:"-"`
}

// CacheRule gates caching for a set of profiles.
type CacheRule struct {
	ModelNames    []string `yaml:"model_names"`
	IncludeInKey  []string `yaml:"include_in_key"`
	TTLSeconds    int      `yaml:"ttl_seconds"`
}

// KeyManagementSettings configures the credential pool.
type KeyManagementSettings struct {
	EnableQuarantine     bool `yaml:"enable_quarantine" env:"ENABLE_QUARANTINE"`
	QuarantineSeconds    int  `yaml:"quarantine_seconds" env:"QUARANTINE_SECONDS"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds" env:"SWEEP_INTERVAL_SECONDS"`
}

// StreamingSettings configures how responses are streamed to clients.
type StreamingSettings struct {
	TypewriterMode string `yaml:"typewriter_mode" env:"TYPEWRITER_MODE"`
}

// ServerSettings configures the client and admin HTTP listeners.
type ServerSettings struct {
	ListenAddr      string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	AdminListenAddr string `yaml:"admin_listen_addr" env:"ADMIN_LISTEN_ADDR"`
}

// RedisSettings configures the shared Redis connection used by the cache,
// event bus, and task queue.
type RedisSettings struct {
	Addr string `yaml:"addr" env:"ADDR"`
	DB   int    `yaml:"db" env:"DB"`
}

// Defaults returns a Config pre-populated with the gateway's defaults,
// matching SPEC_FULL.md's stated defaults (MAX_STEPS=12, quarantine 300s,
// sweep 10s). Config holds no LLM or tool timeout settings.
func Defaults() *Config {
	return &Config{
		AgentSettings: AgentSettings{
			MaxSteps: 12,
		},
		KeyManagementSettings: KeyManagementSettings{
			EnableQuarantine:     true,
			QuarantineSeconds:    300,
			SweepIntervalSeconds: 10,
		},
		StreamingSettings: StreamingSettings{
			TypewriterMode: "proxy",
		},
		ServerSettings: ServerSettings{
			ListenAddr:      ":8080",
			AdminListenAddr: ":8081",
		},
		RedisSettings: RedisSettings{
			Addr: "127.0.0.1:6379",
		},
	}
}

// QuarantineDuration returns the configured quarantine window as a
// time.Duration.
func (c *Config) QuarantineDuration() time.Duration {
	return time.Duration(c.KeyManagementSettings.QuarantineSeconds) * time.Second
}

// SweepInterval returns the configured quarantine-sweep interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.KeyManagementSettings.SweepIntervalSeconds) * time.Second
}

// MaxSteps returns the configured per-session step limit, falling back to
// the spec's default of 12 when unset.
func (c *Config) MaxSteps() int {
	if c.AgentSettings.MaxSteps <= 0 {
		return 12
	}
	return c.AgentSettings.MaxSteps
}

// ProfileChain resolves an alias to its ordered list of profile IDs.
func (c *Config) ProfileChain(alias string) ([]string, bool) {
	chain, ok := c.RouterSettings.ModelGroupAlias[alias]
	return chain, ok
}

// Profile looks up a model_list entry by profile id (model_name).
func (c *Config) Profile(profileID string) (ModelEntry, bool) {
	for _, m := range c.ModelList {
		if m.ModelName == profileID {
			return m, true
		}
	}
	return ModelEntry{}, false
}
