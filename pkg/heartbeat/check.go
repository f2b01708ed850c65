// Package heartbeat is the per-bot scheduled-check engine (spec §4.6, L8):
// a named CheckRegistry, a HeartbeatService loop with retries, timeouts and
// a circuit breaker, and a MultiHeartbeatManager coordinating every bot's
// service plus the leader's cross-bot coordinator tick.
package heartbeat

import (
	"context"
	"time"
)

// CheckResult is one check's live outcome, the richer in-memory shape spec
// §3 CheckResult names; HeartbeatTick persistence flattens it to
// store.CheckResult.
type CheckResult struct {
	CheckName    string
	StartedAt    time.Time
	EndedAt      time.Time
	Status       string // pending|running|success|failed|skipped|timeout
	Success      bool
	Message      string
	Data         map[string]interface{}
	Err          string
	ErrorType    string
	ActionTaken  string
	DurationMS   int64
}

// CheckFunc is a registered check's handler (spec §4.6: "a function with
// the signature (bot, config) → {success, message, data, action_taken?,
// next_actions?}").
type CheckFunc func(ctx context.Context, bot string, config map[string]interface{}) CheckResult

// CheckDefinition is a check's registration metadata.
type CheckDefinition struct {
	Name        string
	Description string
	Priority    int
	DefaultTimeout time.Duration
	BotDomains  []string // "all" or specific domain names
	Config      map[string]interface{}
	Fn          CheckFunc
}

// CheckRegistry is the named table of checks available to HeartbeatServices.
type CheckRegistry struct {
	checks map[string]CheckDefinition
}

// NewCheckRegistry builds an empty registry.
func NewCheckRegistry() *CheckRegistry {
	return &CheckRegistry{checks: map[string]CheckDefinition{}}
}

// Register adds a check definition. Checks are registered at startup
// (spec §4.6).
func (r *CheckRegistry) Register(def CheckDefinition) {
	r.checks[def.Name] = def
}

// Get looks up a check by name.
func (r *CheckRegistry) Get(name string) (CheckDefinition, bool) {
	d, ok := r.checks[name]
	return d, ok
}

// ForBot returns every check visible to bot: those registered with
// bot_domains=['all'] plus those whose domain list contains botDomain
// (spec §8: "A check registered with bot_domains=['all'] is listable from
// every bot's registry view; a check registered with a specific domain is
// not visible from others").
func (r *CheckRegistry) ForBot(botDomain string) []CheckDefinition {
	var out []CheckDefinition
	for _, d := range r.checks {
		if containsDomain(d.BotDomains, "all") || containsDomain(d.BotDomains, botDomain) {
			out = append(out, d)
		}
	}
	return out
}

func containsDomain(domains []string, want string) bool {
	for _, d := range domains {
		if d == want {
			return true
		}
	}
	return false
}
