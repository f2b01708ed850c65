// Package router implements Router.select (spec §4.9 step 5): a two-layer
// model-tier policy. A client-side classifier scores an inbound message
// against a pattern table to pick a tier; an optional second-layer LLM
// confirmation may adjust that tier under fixed rules.
package router

import (
	"context"
	"regexp"
	"strings"
)

// Tier is a model-capability bucket, cheapest first.
type Tier string

const (
	TierSimple    Tier = "simple"
	TierMedium    Tier = "medium"
	TierCoding    Tier = "coding"
	TierComplex   Tier = "complex"
	TierReasoning Tier = "reasoning"
)

var tierOrder = map[Tier]int{
	TierSimple: 0, TierMedium: 1, TierCoding: 2, TierComplex: 3, TierReasoning: 4,
}

// pattern is one scored signal in the classifier's pattern table.
type pattern struct {
	re       *regexp.Regexp
	tier     Tier
	weight   float64
	negation bool // if true, this pattern *reduces* confidence in its tier instead of voting for it
}

var patternTable = []pattern{
	{regexp.MustCompile(`(?i)\b(hi|hello|hey|thanks|thank you|ok|okay|sure)\b`), TierSimple, 1.0, false},
	{regexp.MustCompile(`(?i)\bwhat (is|are|time|day)\b`), TierSimple, 0.8, false},

	{regexp.MustCompile(`(?i)\b(summarize|explain|describe|what do you think|compare)\b`), TierMedium, 1.0, false},

	{regexp.MustCompile(`(?i)\b(write|implement|refactor|fix|debug|function|class|bug|compile|test|code)\b`), TierCoding, 1.2, false},
	{regexp.MustCompile("```"), TierCoding, 1.0, false},

	{regexp.MustCompile(`(?i)\b(architecture|design|plan|strategy|multi-step|migrate|trade-?off)\b`), TierComplex, 1.1, false},

	{regexp.MustCompile(`(?i)\b(why|root cause|prove|reason through|analy[sz]e deeply|think carefully)\b`), TierReasoning, 1.2, false},

	// negations: explicitly asking for something simple should pull the score
	// away from heavier tiers rather than toward them.
	{regexp.MustCompile(`(?i)\b(don'?t|no need to|skip|without)\b.*\b(code|write|implement)\b`), TierCoding, 1.2, true},
}

// ClassifierResult is the client-side classifier's output before any
// second-layer confirmation.
type ClassifierResult struct {
	Tier       Tier
	Confidence float64
	Scores     map[Tier]float64
}

// Classify scores content against the pattern table (spec §4.9 step 5:
// "a pattern table with negation-aware scoring").
func Classify(content string) ClassifierResult {
	scores := map[Tier]float64{}
	for _, p := range patternTable {
		if !p.re.MatchString(content) {
			continue
		}
		if p.negation {
			scores[p.tier] -= p.weight
		} else {
			scores[p.tier] += p.weight
		}
	}

	best := TierSimple
	bestScore := 0.0
	for tier, score := range scores {
		if score <= 0 {
			continue
		}
		if score > bestScore || (score == bestScore && tierOrder[tier] > tierOrder[best]) {
			best = tier
			bestScore = score
		}
	}

	confidence := bestScore
	if confidence > 1 {
		confidence = 1
	}
	if confidence == 0 {
		confidence = 0.5 // no pattern matched: default tier, low confidence
	}

	return ClassifierResult{Tier: best, Confidence: confidence, Scores: scores}
}

// Confirmer is the optional second-layer LLM confirmation call. Given the
// classifier's result and the original content, it may return an adjusted
// tier. Returning the same tier back is a confirmation, not an adjustment.
type Confirmer func(ctx context.Context, content string, classified ClassifierResult) (Tier, error)

// ModelTable maps each tier to a concrete model name.
type ModelTable map[Tier]string

// Router selects a model for an inbound message via the two-layer policy.
type Router struct {
	models   ModelTable
	confirm  Confirmer
	fallback string
}

// New builds a Router. confirm may be nil to skip the second-layer
// confirmation entirely.
func New(models ModelTable, fallback string, confirm Confirmer) *Router {
	return &Router{models: models, confirm: confirm, fallback: fallback}
}

// Select implements spec §4.9 step 5's fixed adjustment rules:
//   - "explain" never upgrades to the coding tier
//   - "write" never downgrades from the coding tier
//   - negations reduce confidence (already folded into Classify's scoring)
func (r *Router) Select(ctx context.Context, content string) (Tier, string) {
	classified := Classify(content)
	tier := classified.Tier

	if r.confirm != nil {
		if adjusted, err := r.confirm(ctx, content, classified); err == nil {
			tier = applyFixedRules(content, classified.Tier, adjusted)
		}
	}

	model, ok := r.models[tier]
	if !ok || model == "" {
		model = r.fallback
	}
	return tier, model
}

func applyFixedRules(content string, original, adjusted Tier) Tier {
	lower := strings.ToLower(content)

	if strings.Contains(lower, "explain") && adjusted == TierCoding && original != TierCoding {
		return original
	}
	if strings.Contains(lower, "write") && original == TierCoding && adjusted != TierCoding {
		return original
	}
	return adjusted
}
