// Package config loads the crew's single structured configuration file and
// overlays environment variables on top of it, mirroring the teacher's own
// config layering (file defaults, env overrides via caarlos0/env).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root structured configuration, recognized keys per spec §6.
type Config struct {
	Workspace string `yaml:"workspace" env:"CREW_WORKSPACE"`
	LogLevel  string `yaml:"log_level" env:"CREW_LOG_LEVEL" envDefault:"info"`

	Providers  ProvidersConfig  `yaml:"providers"`
	Bots       []BotConfig      `yaml:"bots"`
	Rooms      []RoomConfig     `yaml:"rooms"`
	Memory     MemoryConfig     `yaml:"memory"`
	LearningEx LearningExchange `yaml:"learning_exchange"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`
	Agent      AgentConfig      `yaml:"agent"`
	Discord    DiscordConfig    `yaml:"discord"`
}

// DiscordConfig configures the optional Discord channel adapter (an example
// MessageBus producer/consumer; concrete channel adapters are otherwise out
// of scope).
type DiscordConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Token          string `yaml:"token" env:"DISCORD_TOKEN"`
	RequireMention bool   `yaml:"require_mention"`
	DefaultBot     string `yaml:"default_bot"` // SenderID on inbound envelopes this adapter publishes
}

// AgentConfig tunes the per-message AgentLoop procedure (spec §4.9): how
// many tool-call rounds it may take, and the deadlines it imposes on
// outbound provider/tool calls (spec §5: "every outbound provider/tool call
// runs under a deadline derived from its per-call configuration").
type AgentConfig struct {
	MaxIterations            int     `yaml:"max_iterations"`
	ProviderTimeoutSeconds   int     `yaml:"provider_timeout_s"`
	ToolTimeoutSeconds       int     `yaml:"tool_timeout_s"`
	ProviderRetryAttempts    int     `yaml:"provider_retry_attempts"`
	ProviderRetryBackoffSeconds float64 `yaml:"provider_retry_backoff_s"`
	MemoryRecallLimit        int     `yaml:"memory_recall_limit"`
}

// MCPServerConfig is one external MCP server to launch and bridge tools
// from (a domain capability the source tool catalog supports but spec.md
// doesn't name directly; wired in as an optional tool source per bot).
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Enabled bool              `yaml:"enabled"`
}

type ProvidersConfig struct {
	Anthropic  ProviderCreds `yaml:"anthropic" envPrefix:"CREW_ANTHROPIC_"`
	OpenAI     ProviderCreds `yaml:"openai" envPrefix:"CREW_OPENAI_"`
	OpenRouter ProviderCreds `yaml:"openrouter" envPrefix:"CREW_OPENROUTER_"`
}

type ProviderCreds struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	APIBase string `yaml:"api_base" env:"API_BASE"`
}

// BotConfig is one roster entry: a bot's identity, model, and heartbeat tuning.
type BotConfig struct {
	Name      string          `yaml:"name"`
	IsLeader  bool            `yaml:"is_leader"`
	Model     string          `yaml:"model"`
	Domain    string          `yaml:"domain"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// HeartbeatConfig is the per-bot heartbeat block of spec §6.
type HeartbeatConfig struct {
	IntervalSeconds       int      `yaml:"interval_s"`
	CronExpr              string   `yaml:"cron"` // overrides interval_s with a cron expression when set
	MaxExecutionSeconds   int      `yaml:"max_execution_time_s"`
	Enabled               bool     `yaml:"enabled"`
	Checks                []string `yaml:"checks"`
	ParallelChecks        bool     `yaml:"parallel_checks"`
	MaxConcurrentChecks   int      `yaml:"max_concurrent_checks"`
	RetryAttempts         int      `yaml:"retry_attempts"`
	RetryDelaySeconds     float64  `yaml:"retry_delay_s"`
	RetryBackoff          float64  `yaml:"retry_backoff"`
	StopOnFirstFailure    bool     `yaml:"stop_on_first_failure"`
	CircuitBreakerThresh  int      `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout int      `yaml:"circuit_breaker_timeout_s"`
}

// RoomConfig is a named workspace scoping a subset of bots.
type RoomConfig struct {
	ID                 string   `yaml:"id"`
	Kind               string   `yaml:"kind"` // open|project|direct|coordination
	Participants       []string `yaml:"participants"`
	CoordinatorMode    bool     `yaml:"coordinator_mode"`
	EscalationThreshold string  `yaml:"escalation_threshold"` // low|medium|high
}

type SessionCompaction struct {
	Enabled             bool   `yaml:"enabled"`
	Mode                string `yaml:"mode"` // summary|token_limit|off
	ThresholdPercent    int    `yaml:"threshold_percent"`
	TargetTokens        int    `yaml:"target_tokens"`
	MinMessages         int    `yaml:"min_messages"`
	MaxMessages         int    `yaml:"max_messages"`
	PreserveRecent      int    `yaml:"preserve_recent"`
	PreserveToolChains  bool   `yaml:"preserve_tool_chains"`
	SummaryChunkSize    int    `yaml:"summary_chunk_size"`
	EnableMemoryFlush   bool   `yaml:"enable_memory_flush"`
}

type EnhancedContext struct {
	MaxContextTokens        int     `yaml:"max_context_tokens"`
	ResponseBuffer          int     `yaml:"response_buffer"`
	MemoryBudgetPercent     int     `yaml:"memory_budget_percent"`
	HistoryBudgetPercent    int     `yaml:"history_budget_percent"`
	SystemBudgetPercent     int     `yaml:"system_budget_percent"`
	WarningThreshold        float64 `yaml:"warning_threshold"`
	CompactionThreshold     float64 `yaml:"compaction_threshold"`
	MinHistoryMessages      int     `yaml:"min_history_messages"`
	PreserveUserPreferences bool    `yaml:"preserve_user_preferences"`
}

type ToolOutputConfig struct {
	Enabled             bool `yaml:"enabled"`
	MaxToolOutputChars  int  `yaml:"max_tool_output_chars"`
	StoreFullOutput     bool `yaml:"store_full_output"`
	SummarizeThreshold  int  `yaml:"summarize_threshold"`
}

type EmergencyCompaction struct {
	Enabled              bool    `yaml:"enabled"`
	CriticalThreshold    float64 `yaml:"critical_threshold"`
	MaxToolOutputEmergency int   `yaml:"max_tool_output_emergency"`
	MinMessageLength     int     `yaml:"min_message_length"`
	PreserveCount        int     `yaml:"preserve_count"`
}

type MemoryConfig struct {
	SessionCompaction   SessionCompaction   `yaml:"session_compaction"`
	EnhancedContext     EnhancedContext     `yaml:"enhanced_context"`
	ToolOutputConfig    ToolOutputConfig    `yaml:"tool_output_config"`
	EmergencyCompaction EmergencyCompaction `yaml:"emergency_compaction"`
	SemanticSearch      bool                `yaml:"semantic_search"`
	EmbeddingModel      string              `yaml:"embedding_model"`
	RelevanceHalfLifeDays float64           `yaml:"relevance_half_life_days"`
	PromotionThreshold  float64             `yaml:"promotion_threshold"`
}

type LearningExchange struct {
	Enabled            bool               `yaml:"enabled" env:"CREW_DISABLE_LEARNING_EXCHANGE,expand"`
	MinConfidence      float64            `yaml:"min_confidence"`
	AutoApprove        bool               `yaml:"auto_approve"`
	ShareableCategories []string          `yaml:"shareable_categories"`
	WorkspaceScopes    map[string]string  `yaml:"workspace_scopes"`
}

// Default returns a Config with the documented spec defaults filled in.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Agent: AgentConfig{
			MaxIterations: 10, ProviderTimeoutSeconds: 60, ToolTimeoutSeconds: 30,
			ProviderRetryAttempts: 3, ProviderRetryBackoffSeconds: 1.5, MemoryRecallLimit: 5,
		},
		Memory: MemoryConfig{
			SessionCompaction: SessionCompaction{
				Enabled: true, Mode: "summary", ThresholdPercent: 80,
				MinMessages: 10, MaxMessages: 200, PreserveRecent: 20,
				PreserveToolChains: true, SummaryChunkSize: 10, EnableMemoryFlush: true,
			},
			EnhancedContext: EnhancedContext{
				MaxContextTokens: 100000, ResponseBuffer: 1000,
				MemoryBudgetPercent: 35, HistoryBudgetPercent: 35, SystemBudgetPercent: 20,
				WarningThreshold: 0.7, CompactionThreshold: 0.8,
				MinHistoryMessages: 10, PreserveUserPreferences: true,
			},
			ToolOutputConfig: ToolOutputConfig{
				Enabled: true, MaxToolOutputChars: 2000, StoreFullOutput: true, SummarizeThreshold: 2000,
			},
			EmergencyCompaction: EmergencyCompaction{
				Enabled: true, CriticalThreshold: 0.95, MaxToolOutputEmergency: 200,
				MinMessageLength: 20, PreserveCount: 4,
			},
			RelevanceHalfLifeDays: 14,
			PromotionThreshold:    0.85,
		},
		LearningEx: LearningExchange{
			Enabled: true, MinConfidence: 0.85, AutoApprove: true,
			ShareableCategories: []string{
				"user_preference", "tool_pattern", "error_pattern", "performance_tip",
				"context_tip", "workflow_tip", "reasoning_pattern", "integration_tip",
			},
		},
	}
}

// Load reads a YAML config file, applies Default() as a base, then overlays
// environment variables (CREW_ prefixed, except the Discord adapter's
// DISCORD_TOKEN).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if cfg.Workspace == "" {
		home, _ := os.UserHomeDir()
		cfg.Workspace = filepath.Join(home, ".crew")
	}

	return cfg, nil
}

// WorkspacePath returns the absolute workspace root.
func (c *Config) WorkspacePath() string {
	abs, err := filepath.Abs(c.Workspace)
	if err != nil {
		return c.Workspace
	}
	return abs
}

// Leader returns the configured leader bot, if any.
func (c *Config) Leader() (BotConfig, bool) {
	for _, b := range c.Bots {
		if b.IsLeader {
			return b, true
		}
	}
	return BotConfig{}, false
}

// Bot looks up a bot by name.
func (c *Config) Bot(name string) (BotConfig, bool) {
	for _, b := range c.Bots {
		if b.Name == name {
			return b, true
		}
	}
	return BotConfig{}, false
}

// Room looks up a room by id.
func (c *Config) Room(id string) (RoomConfig, bool) {
	for _, r := range c.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return RoomConfig{}, false
}
