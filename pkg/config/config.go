package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig                 `json:"app" yaml:"app"`
	Server     ServerConfig              `json:"server" yaml:"server"`
	Gateways   map[string]GatewayConfig  `json:"gateways" yaml:"gateways"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Browser    BrowserConfig             `json:"browser" yaml:"browser"`
	Agent      AgentConfig               `json:"agent" yaml:"agent"`
	Logging    LoggingConfig             `json:"logging" yaml:"logging"`
	Governance GovernanceConfig          `json:"governance" yaml:"governance"`
}

type AppConfig struct {
	Name      string `json:"name" yaml:"name"`
	Dashboard bool   `json:"dashboard" yaml:"dashboard"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

type GatewayConfig struct {
	Token   string `json:"token" yaml:"token"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model" yaml:"model"`
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

type BrowserConfig struct {
	Headless            bool   `json:"headless" yaml:"headless"`
	ExecPath            string `json:"exec_path" yaml:"exec_path"`
	UserAgent           string `json:"user_agent" yaml:"user_agent"`
	ViewportWidth       int    `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight      int    `json:"viewport_height" yaml:"viewport_height"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms" yaml:"navigation_timeout_ms"`
	SettleDelayMs       int    `json:"settle_delay_ms" yaml:"settle_delay_ms"`
}

// AgentConfig tunes the orchestration engine. Zero values are replaced by
// defaults, except MaxWaitSeconds which may be set to 0 through
// PauseOnChallenge to disable in-band waiting.
type AgentConfig struct {
	MaxWaitSeconds         int    `json:"max_wait_seconds" yaml:"max_wait_seconds"`
	PauseOnChallenge       bool   `json:"pause_on_challenge" yaml:"pause_on_challenge"`
	PollIntervalSeconds    int    `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	MaxChallengeWaits      int    `json:"max_challenge_waits" yaml:"max_challenge_waits"`
	TopResults             int    `json:"top_results" yaml:"top_results"`
	MaxStrategies          int    `json:"max_strategies" yaml:"max_strategies"`
	DefaultEngine          string `json:"default_engine" yaml:"default_engine"`
	ContentCap             int    `json:"content_cap" yaml:"content_cap"`
	PreviewCap             int    `json:"preview_cap" yaml:"preview_cap"`
	ReasonerTimeoutSeconds int    `json:"reasoner_timeout_seconds" yaml:"reasoner_timeout_seconds"`
	ParkedSessionTTLSecs   int    `json:"parked_session_ttl_seconds" yaml:"parked_session_ttl_seconds"`
	LexiconPath            string `json:"lexicon_path" yaml:"lexicon_path"`
	PromptsDir             string `json:"prompts_dir" yaml:"prompts_dir"`
}

type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	LLMLogPath string `json:"llm_log_path" yaml:"llm_log_path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
}

type GovernanceConfig struct {
	DenyPatterns []string `json:"deny_patterns" yaml:"deny_patterns"`
	DenyHosts    []string `json:"deny_hosts" yaml:"deny_hosts"`
}

var defaultProviders = map[string]ProviderConfig{
	"openai":     {Model: "gpt-4o-mini"},
	"openrouter": {Model: "openai/gpt-4o-mini", BaseURL: "https://openrouter.ai/api/v1"},
	"gemini":     {Model: "gemini-2.0-flash"},
}

// Default returns a configuration that works without a config file.
// Environment overrides still apply.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// LoadConfig reads a YAML or JSON config file, depending on its extension,
// then applies defaults and environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "scout"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Gateways == nil {
		c.Gateways = make(map[string]GatewayConfig)
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}

	b := &c.Browser
	if b.ViewportWidth == 0 {
		b.ViewportWidth = 1920
	}
	if b.ViewportHeight == 0 {
		b.ViewportHeight = 1080
	}
	if b.NavigationTimeoutMs == 0 {
		b.NavigationTimeoutMs = 30000
	}
	if b.SettleDelayMs == 0 {
		b.SettleDelayMs = 1000
	}
	if b.UserAgent == "" {
		b.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	a := &c.Agent
	if a.PauseOnChallenge {
		a.MaxWaitSeconds = 0
	} else if a.MaxWaitSeconds <= 0 {
		a.MaxWaitSeconds = 300
	}
	if a.PollIntervalSeconds <= 0 {
		a.PollIntervalSeconds = 3
	}
	if a.MaxChallengeWaits <= 0 {
		a.MaxChallengeWaits = 2
	}
	if a.TopResults <= 0 {
		a.TopResults = 3
	}
	if a.MaxStrategies <= 0 {
		a.MaxStrategies = 4
	}
	if a.DefaultEngine == "" {
		a.DefaultEngine = "duckduckgo"
	}
	if a.ContentCap <= 0 {
		a.ContentCap = 2000
	}
	if a.PreviewCap <= 0 {
		a.PreviewCap = 500
	}
	if a.ReasonerTimeoutSeconds <= 0 {
		a.ReasonerTimeoutSeconds = 30
	}

	l := &c.Logging
	if l.Level == "" {
		l.Level = "info"
	}
	if l.LLMLogPath == "" {
		l.LLMLogPath = filepath.Join("logs", "llm.jsonl")
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SCOUT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SCOUT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	// A key for a provider missing from the file enables it with its
	// default model.
	overrideKey := func(provider, env string) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		p, ok := c.Providers[provider]
		if !ok {
			p = defaultProviders[provider]
			p.Enabled = true
		}
		p.APIKey = v
		c.Providers[provider] = p
	}
	overrideKey("openai", "OPENAI_API_KEY")
	overrideKey("openrouter", "OPENROUTER_API_KEY")
	overrideKey("gemini", "GEMINI_API_KEY")

	overrideToken := func(gateway, env string) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		g, ok := c.Gateways[gateway]
		if !ok {
			g.Enabled = true
		}
		g.Token = v
		c.Gateways[gateway] = g
	}
	overrideToken("telegram", "TELEGRAM_TOKEN")
	overrideToken("discord", "DISCORD_TOKEN")
}

// GetDefaultProvider returns the first enabled provider, in a stable order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for _, name := range []string{"openai", "openrouter", "gemini"} {
		if p, ok := c.Providers[name]; ok && p.Enabled {
			return name, p
		}
	}
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns a gateway config if it is enabled and has a token.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}

func (a AgentConfig) MaxWait() time.Duration {
	return time.Duration(a.MaxWaitSeconds) * time.Second
}

func (a AgentConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalSeconds) * time.Second
}

func (a AgentConfig) ReasonerTimeout() time.Duration {
	return time.Duration(a.ReasonerTimeoutSeconds) * time.Second
}

func (a AgentConfig) ParkedSessionTTL() time.Duration {
	return time.Duration(a.ParkedSessionTTLSecs) * time.Second
}

func (b BrowserConfig) NavigationTimeout() time.Duration {
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

func (b BrowserConfig) SettleDelay() time.Duration {
	return time.Duration(b.SettleDelayMs) * time.Millisecond
}
