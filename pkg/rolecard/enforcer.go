package rolecard

import (
	"strings"

	"github.com/crewcore/crew/pkg/logger"
)

// ProposedChange is a bot-suggested edit to its own role card, persisted as
// a draft until a user explicitly accepts it (spec §4.5: "activation
// requires explicit user acceptance (never auto-applied)").
type ProposedChange struct {
	Bot       string
	Diff      string
	Rationale string
	Accepted  bool
}

// ChangeStore persists proposed role-card changes. Defined here (rather than
// depending on pkg/store directly) so callers can back it with any durable
// medium; the crew wiring backs it with a small table alongside the role
// card workspace override files.
type ChangeStore interface {
	SaveProposal(p ProposedChange) (string, error)
}

// Enforcer validates actions against a bot's RoleCard before execution
// (spec §4.5). It is deterministic and side-effect-free except for
// propose_change, which persists a draft.
type Enforcer struct {
	registry      *Registry
	changes       ChangeStore
	minConfidence float64
}

// NewEnforcer builds an Enforcer over registry. minConfidence is the default
// floor below which should_escalate fires regardless of trigger matches
// (spec §4.5 default 0.5).
func NewEnforcer(registry *Registry, changes ChangeStore, minConfidence float64) *Enforcer {
	if minConfidence == 0 {
		minConfidence = 0.5
	}
	return &Enforcer{registry: registry, changes: changes, minConfidence: minConfidence}
}

// CheckAction reports whether actionDescription is allowed under bot's
// role card. A hard ban matches when any of its content words (longer than
// three letters, taken from the rule text before any parenthesis) occurs in
// the action as a case-insensitive substring (spec §4.5: "implementations may substitute a more sophisticated matcher;
// the contract is deterministic and side-effect-free").
func (e *Enforcer) CheckAction(bot, actionDescription string) (allowed bool, violation string) {
	card, err := e.registry.Get(bot)
	if err != nil {
		logger.WarnCF("rolecard", "failed to load role card, defaulting to allow", map[string]interface{}{"bot": bot, "error": err.Error()})
		return true, ""
	}

	lower := strings.ToLower(actionDescription)
	for _, ban := range card.HardBans {
		if matchesBan(lower, ban.Rule) {
			return false, ban.Rule
		}
	}
	return true, ""
}

func matchesBan(actionLower, rule string) bool {
	ruleLower := strings.ToLower(rule)
	for _, kw := range extractKeywords(ruleLower) {
		if strings.Contains(actionLower, kw) {
			return true
		}
	}
	return false
}

// extractKeywords pulls content words (length > 3) out of a hard-ban rule
// string for substring matching, skipping parenthetical qualifiers.
func extractKeywords(rule string) []string {
	if idx := strings.Index(rule, "("); idx >= 0 {
		rule = rule[:idx]
	}
	var out []string
	for _, w := range strings.Fields(rule) {
		w = strings.Trim(w, ".,;:")
		if len(w) > 3 && w != "direct" && w != "only" {
			out = append(out, w)
		}
	}
	return out
}

// ShouldEscalate reports whether a situation should be escalated to a human
// or a peer bot rather than acted on autonomously: true if confidence is
// below the configured floor, or if an escalation trigger pattern occurs in
// the situation (case-insensitive) and confidence is below that trigger's
// own threshold (spec §4.5).
func (e *Enforcer) ShouldEscalate(bot, situationDescription string, confidence float64) (escalate bool, reason string) {
	if confidence < e.minConfidence {
		return true, "confidence below minimum threshold"
	}

	card, err := e.registry.Get(bot)
	if err != nil {
		return false, ""
	}

	lower := strings.ToLower(situationDescription)
	for _, trig := range card.EscalationTriggers {
		if strings.Contains(lower, strings.ToLower(trig.Pattern)) && confidence < trig.Threshold {
			return true, "matched escalation trigger: " + trig.Pattern
		}
	}
	return false, ""
}

// ProposeChange persists a draft role-card change. It never takes effect
// until a user calls Registry.Save on the accepted version.
func (e *Enforcer) ProposeChange(bot, diff, rationale string) (string, error) {
	if e.changes == nil {
		return "", nil
	}
	return e.changes.SaveProposal(ProposedChange{Bot: bot, Diff: diff, Rationale: rationale})
}
