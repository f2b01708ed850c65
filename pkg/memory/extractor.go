package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/utils"
)

// KnowledgeExtractor extracts and consolidates knowledge from conversations,
// Mem0-style: extract candidate facts, search for near-duplicates, let the
// model decide ADD/UPDATE/DELETE/NOOP against what's already known.
type KnowledgeExtractor struct {
	provider providers.LLMProvider
	model    string
	vectors  *VectorStore
	events   EventSink
}

// EventSink is the subset of the Store capability surface the extractor
// needs to persist the raw events it consolidates from (spec §4.4: every
// extraction pass first lands a raw event row before deriving structured
// knowledge from it).
type EventSink interface {
	PutEvent(e EventRecord) (string, error)
}

// EventRecord mirrors store.Event; defined here to avoid an import cycle
// with pkg/store (pkg/store has no business depending on pkg/memory).
type EventRecord struct {
	Content    string
	SourceBot  string
	Confidence float64
}

// ExtractedFact is a single candidate fact pulled from a conversation.
type ExtractedFact struct {
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

// ConsolidationAction is the model's decision for how a candidate fact
// relates to existing knowledge.
type ConsolidationAction struct {
	Action  string `json:"action"` // ADD, UPDATE, DELETE, NOOP
	FactID  string `json:"fact_id"`
	NewFact string `json:"new_fact"`
}

// NewKnowledgeExtractor builds an extractor over a vector store, optionally
// also persisting raw events through events (pass nil to skip).
func NewKnowledgeExtractor(provider providers.LLMProvider, model string, vectors *VectorStore, events EventSink) *KnowledgeExtractor {
	return &KnowledgeExtractor{provider: provider, model: model, vectors: vectors, events: events}
}

// ExtractAndConsolidate runs the full pipeline for a conversation turn,
// scoped to owning bot (empty bot means global/shared knowledge).
func (ke *KnowledgeExtractor) ExtractAndConsolidate(ctx context.Context, userMsg, assistantMsg, sessionKey, bot string, opts KnowledgeOpts) {
	if ke.events != nil {
		if _, err := ke.events.PutEvent(EventRecord{Content: userMsg, SourceBot: bot, Confidence: 1.0}); err != nil {
			logger.WarnCF("memory", "failed to persist raw event", map[string]interface{}{"error": err.Error()})
		}
	}

	facts, err := ke.extractFacts(ctx, userMsg, assistantMsg)
	if err != nil {
		logger.WarnCF("memory", "knowledge extraction failed", map[string]interface{}{"error": err.Error(), "session_key": sessionKey, "bot": bot})
		return
	}
	if len(facts) == 0 {
		return
	}

	logger.InfoCF("memory", "extracted facts from conversation", map[string]interface{}{"count": len(facts), "session_key": sessionKey, "bot": bot})

	opts.Bot = bot
	for _, fact := range facts {
		if err := ke.consolidateFact(ctx, fact, opts); err != nil {
			logger.WarnCF("memory", "failed to consolidate fact", map[string]interface{}{"error": err.Error(), "fact": fact.Fact})
		}
	}
}

// ExtractFacts is a standalone extraction call, used by tools that want the
// raw candidate facts without running consolidation (e.g. a manual "feed
// memory" operation).
func (ke *KnowledgeExtractor) ExtractFacts(ctx context.Context, content string) ([]ExtractedFact, error) {
	return ke.extractFacts(ctx, content, "")
}

const extractionPrompt = `Extract key facts about the user from this conversation. Focus on:
- Biographical information (name, location, occupation, plans)
- Preferences and opinions
- Tasks, deadlines, goals
- Relationships (people mentioned)
- Important context (events, decisions, states)

Return a JSON array of facts. Each fact should be a self-contained statement.
If no meaningful facts can be extracted, return an empty array [].

Categories: biographical, preference, task, relationship, contextual

Example output:
[
  {"fact": "User is a student at QMUL", "category": "biographical"},
  {"fact": "User prefers dark mode in all apps", "category": "preference"}
]

CONVERSATION:
User: %s
Assistant: %s

Return ONLY valid JSON, no markdown fences or explanation.`

func (ke *KnowledgeExtractor) extractFacts(ctx context.Context, userMsg, assistantMsg string) ([]ExtractedFact, error) {
	if len(userMsg) < 10 {
		return nil, nil
	}

	prompt := fmt.Sprintf(extractionPrompt, userMsg, utils.Truncate(assistantMsg, 2000))
	resp, err := ke.provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, ke.model, map[string]interface{}{
		"max_tokens": 1024, "temperature": 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	content := utils.StripThinkTags(resp.Content)
	var facts []ExtractedFact
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		var single ExtractedFact
		if err2 := json.Unmarshal([]byte(content), &single); err2 == nil && single.Fact != "" {
			facts = []ExtractedFact{single}
		} else {
			return nil, fmt.Errorf("parse extracted facts: %w (response: %s)", err, utils.Truncate(content, 200))
		}
	}
	return facts, nil
}

func (ke *KnowledgeExtractor) consolidateFact(ctx context.Context, fact ExtractedFact, opts KnowledgeOpts) error {
	existing, err := ke.vectors.SearchKnowledgeScoped(ctx, fact.Fact, 3, opts.Bot)
	if err != nil {
		_, err := ke.vectors.IndexKnowledge(ctx, "", fact.Fact, fact.Category, opts)
		return err
	}

	var similar []Result
	for _, r := range existing {
		if r.Score > 0.8 {
			similar = append(similar, r)
		}
	}
	if len(similar) == 0 {
		_, err := ke.vectors.IndexKnowledge(ctx, "", fact.Fact, fact.Category, opts)
		return err
	}

	action, err := ke.decideAction(ctx, fact, similar)
	if err != nil {
		logger.WarnCF("memory", "consolidation decision failed, adding as new", map[string]interface{}{"error": err.Error()})
		_, err := ke.vectors.IndexKnowledge(ctx, "", fact.Fact, fact.Category, opts)
		return err
	}

	switch action.Action {
	case "UPDATE":
		if action.FactID != "" {
			_ = ke.vectors.DeleteKnowledge(ctx, action.FactID)
		}
		newFact := action.NewFact
		if newFact == "" {
			newFact = fact.Fact
		}
		_, err := ke.vectors.IndexKnowledge(ctx, "", newFact, fact.Category, opts)
		return err
	case "DELETE":
		if action.FactID != "" {
			return ke.vectors.DeleteKnowledge(ctx, action.FactID)
		}
		return nil
	case "NOOP":
		return nil
	default:
		_, err := ke.vectors.IndexKnowledge(ctx, "", fact.Fact, fact.Category, opts)
		return err
	}
}

const consolidationPrompt = `You are managing a knowledge base. A new fact has been extracted, and similar existing facts were found.

NEW FACT: %s

EXISTING SIMILAR FACTS:
%s

Decide what to do:
- UPDATE: The new fact updates/replaces an existing one. Return the merged fact.
- DELETE: An existing fact is now obsolete due to the new fact. Specify which to delete.
- NOOP: The new fact is essentially the same as an existing one. No action needed.
- ADD: The new fact is related but distinct from existing facts. Add it.

Return ONLY valid JSON:
{"action": "UPDATE|DELETE|NOOP|ADD", "fact_id": "id_of_existing_fact_if_applicable", "new_fact": "merged fact text for UPDATE"}
`

func (ke *KnowledgeExtractor) decideAction(ctx context.Context, fact ExtractedFact, similar []Result) (*ConsolidationAction, error) {
	var existingLines string
	for i, s := range similar {
		if i > 0 {
			existingLines += "\n"
		}
		existingLines += fmt.Sprintf("- [ID: %s] %s (score: %.2f)", s.ID, s.Content, s.Score)
	}

	prompt := fmt.Sprintf(consolidationPrompt, fact.Fact, existingLines)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := ke.provider.Chat(ctx, []providers.Message{{Role: "user", Content: prompt}}, nil, ke.model, map[string]interface{}{
		"max_tokens": 256, "temperature": 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("consolidation call: %w", err)
	}

	content := utils.StripThinkTags(resp.Content)
	var action ConsolidationAction
	if err := json.Unmarshal([]byte(content), &action); err != nil {
		return nil, fmt.Errorf("parse consolidation action: %w", err)
	}
	return &action, nil
}
