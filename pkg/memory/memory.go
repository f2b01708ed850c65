package memory

import (
	"context"

	"github.com/crewcore/crew/pkg/store"
)

// EventSinkFor adapts a *store.Store to the extractor's EventSink interface,
// translating the memory package's EventRecord into the store's own Event
// type without pkg/store importing pkg/memory.
func EventSinkFor(db *store.Store) EventSink {
	return eventSinkAdapter{db: db}
}

type eventSinkAdapter struct {
	db *store.Store
}

func (a eventSinkAdapter) PutEvent(e EventRecord) (string, error) {
	return a.db.PutEvent(store.Event{
		Content:    e.Content,
		SourceBot:  e.SourceBot,
		Confidence: e.Confidence,
	})
}

// Memory is the hybrid memory layer's root object: semantic search over
// VectorStore, exact subject-predicate-object relations over GraphStore, and
// Mem0-style consolidation via KnowledgeExtractor, all sharing the one
// durable Store underneath (spec §9 arena-style ownership — Memory holds no
// state of its own beyond these three handles).
type Memory struct {
	Vectors   *VectorStore
	Graph     *GraphStore
	Extractor *KnowledgeExtractor
	db        *store.Store
}

// NewMemory builds the Memory root object: a VectorStore over workspace,
// a GraphStore over db's entity/edge/fact tables, and a KnowledgeExtractor
// tying them together with an event sink so every consolidated fact traces
// back to a raw event row.
func NewMemory(vectors *VectorStore, db *store.Store, extractor *KnowledgeExtractor) *Memory {
	return &Memory{Vectors: vectors, Graph: NewGraphStore(db), Extractor: extractor, db: db}
}

// RememberLearning records a bot's own private insight (spec §4.9), distinct
// from the shared knowledge pool: a learning is owned by exactly one bot
// until the learning exchange promotes and distributes it.
func (m *Memory) RememberLearning(botName, text, category string, confidence float64) (string, error) {
	return m.db.PutLearning(store.Learning{
		OwnerBot:   botName,
		Text:       text,
		Category:   category,
		Confidence: confidence,
		Source:     "self",
	})
}

// LearningsForBot returns a bot's own learnings, most relevant first.
func (m *Memory) LearningsForBot(botName string) ([]store.Learning, error) {
	return m.db.LearningsForBot(botName)
}

// Recall runs the semantic search step of the AgentLoop's memory-recall
// stage (spec §4.9 step 3: "memory_context = MemoryStore.recall(msg.content,
// k)"), scoped to bot when given, with automatic fallback to the shared
// pool baked into SearchKnowledgeScoped.
func (m *Memory) Recall(ctx context.Context, query string, k int, bot string) (string, error) {
	var results []Result
	if bot != "" {
		knowledge, err := m.Vectors.SearchKnowledgeScoped(ctx, query, k, bot)
		if err != nil {
			return "", err
		}
		results = knowledge
	}

	convos, err := m.Vectors.SearchConversations(ctx, query, k)
	if err != nil {
		return "", err
	}
	results = append(results, convos...)

	if len(results) > k {
		results = results[:k]
	}
	return FormatResults(results), nil
}

// AdoptLearning records a learning a bot received via the learning exchange,
// tagging its Source with the originating bot so provenance survives the
// hop.
func (m *Memory) AdoptLearning(botName, text, category string, confidence float64, fromBot string) (string, error) {
	return m.db.PutLearning(store.Learning{
		OwnerBot:   botName,
		Text:       text,
		Category:   category,
		Confidence: confidence,
		Source:     fromBot,
	})
}
