package router

import (
	"context"
	"errors"
	"testing"
)

func TestClassify_SimpleGreeting(t *testing.T) {
	r := Classify("hey, thanks!")
	if r.Tier != TierSimple {
		t.Errorf("got tier %s, want %s", r.Tier, TierSimple)
	}
}

func TestClassify_CodingRequest(t *testing.T) {
	r := Classify("can you implement a function to fix this bug?")
	if r.Tier != TierCoding {
		t.Errorf("got tier %s, want %s", r.Tier, TierCoding)
	}
}

func TestClassify_ReasoningRequest(t *testing.T) {
	r := Classify("why does this fail — can you reason through the root cause?")
	if r.Tier != TierReasoning {
		t.Errorf("got tier %s, want %s", r.Tier, TierReasoning)
	}
}

func TestClassify_NoMatchDefaultsToSimpleLowConfidence(t *testing.T) {
	r := Classify("xyz abc 123")
	if r.Tier != TierSimple {
		t.Errorf("got tier %s, want %s", r.Tier, TierSimple)
	}
	if r.Confidence != 0.5 {
		t.Errorf("got confidence %f, want 0.5", r.Confidence)
	}
}

func TestClassify_NegationPullsAwayFromCoding(t *testing.T) {
	r := Classify("don't write any code, just tell me your thoughts")
	if r.Tier == TierCoding {
		t.Errorf("expected negation to avoid coding tier, got %s", r.Tier)
	}
}

func TestRouter_Select_NoConfirmerUsesClassifierTier(t *testing.T) {
	models := ModelTable{TierCoding: "coding-model", TierSimple: "simple-model"}
	r := New(models, "fallback-model", nil)

	tier, model := r.Select(context.Background(), "please implement this function")
	if tier != TierCoding {
		t.Errorf("got tier %s, want %s", tier, TierCoding)
	}
	if model != "coding-model" {
		t.Errorf("got model %s, want coding-model", model)
	}
}

func TestRouter_Select_MissingModelFallsBack(t *testing.T) {
	r := New(ModelTable{}, "fallback-model", nil)
	_, model := r.Select(context.Background(), "hello there")
	if model != "fallback-model" {
		t.Errorf("got model %s, want fallback-model", model)
	}
}

func TestRouter_Select_ConfirmerErrorKeepsClassifierTier(t *testing.T) {
	confirm := func(ctx context.Context, content string, classified ClassifierResult) (Tier, error) {
		return TierReasoning, errors.New("confirmation unavailable")
	}
	models := ModelTable{TierCoding: "coding-model"}
	r := New(models, "fallback-model", confirm)

	tier, _ := r.Select(context.Background(), "please implement this function")
	if tier != TierCoding {
		t.Errorf("expected confirmer error to leave classifier tier unchanged, got %s", tier)
	}
}

func TestApplyFixedRules_ExplainNeverUpgradesToCoding(t *testing.T) {
	got := applyFixedRules("please explain this", TierMedium, TierCoding)
	if got != TierMedium {
		t.Errorf("got %s, want %s (explain should block upgrade to coding)", got, TierMedium)
	}
}

func TestApplyFixedRules_WriteNeverDowngradesFromCoding(t *testing.T) {
	got := applyFixedRules("please write this", TierCoding, TierSimple)
	if got != TierCoding {
		t.Errorf("got %s, want %s (write should block downgrade from coding)", got, TierCoding)
	}
}

func TestApplyFixedRules_NoRuleAppliesPassesThroughAdjusted(t *testing.T) {
	got := applyFixedRules("random text", TierSimple, TierMedium)
	if got != TierMedium {
		t.Errorf("got %s, want %s", got, TierMedium)
	}
}
