// Package memory is the hybrid memory layer (spec §4.4, L4): a chromem-go
// semantic index over conversations and knowledge, backed by the
// knowledge-graph and learning tables in pkg/store for everything that
// needs exact lookup, provenance, or cross-bot sharing instead of nearest-
// neighbor search.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/crewcore/crew/pkg/logger"
)

// Result is a single scored hit from the vector store.
type Result struct {
	ID         string
	Content    string
	Score      float32
	Timestamp  string
	Category   string
	Source     string // "conversations" or "knowledge"
	Channel    string
	Bot        string
	SourceType string
	SourceName string
	SourceDate string
	SourceWho  string
}

// KnowledgeOpts carries optional provenance and bot scoping for a knowledge
// entry.
type KnowledgeOpts struct {
	Bot        string // scoping: owning bot name, "" for global/shared
	SourceType string // "conversation", "tool_output", "learning_exchange", ...
	SourceName string
	SourceDate string
	SourceWho  string
}

// VectorStore wraps chromem-go with two collections: conversations and
// knowledge. Knowledge search is scoped per bot via a metadata filter, so a
// bot sees its own material first and falls back to the shared pool (spec
// §4.4: bot-scoped search with global backfill); conversation turns carry
// the bot in their metadata but are searched without a bot filter.
type VectorStore struct {
	db            *chromem.DB
	conversations *chromem.Collection
	knowledge     *chromem.Collection
}

// NewVectorStore opens (or creates) a persistent vector index at
// workspace/memory/vectors/.
func NewVectorStore(workspace string, embeddingFn chromem.EmbeddingFunc) (*VectorStore, error) {
	dir := filepath.Join(workspace, "memory", "vectors")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create vector store dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	conversations, err := db.GetOrCreateCollection("conversations", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create conversations collection: %w", err)
	}
	knowledge, err := db.GetOrCreateCollection("knowledge", nil, embeddingFn)
	if err != nil {
		return nil, fmt.Errorf("create knowledge collection: %w", err)
	}

	logger.InfoCF("memory", "vector store opened", map[string]interface{}{
		"dir": dir, "conversations": conversations.Count(), "knowledge": knowledge.Count(),
	})

	return &VectorStore{db: db, conversations: conversations, knowledge: knowledge}, nil
}

// IndexConversation embeds one conversation turn.
func (vs *VectorStore) IndexConversation(ctx context.Context, sessionKey, channel, chatID, botName, userMsg, assistantMsg string) {
	ts := time.Now()
	docID := fmt.Sprintf("%s:%d", sessionKey, ts.UnixNano())
	content := fmt.Sprintf("User: %s\nAssistant: %s", userMsg, assistantMsg)
	if runes := []rune(content); len(runes) > 8000 {
		content = string(runes[:8000])
	}

	doc := chromem.Document{
		ID:      docID,
		Content: content,
		Metadata: map[string]string{
			"session_key": sessionKey,
			"channel":     channel,
			"chat_id":     chatID,
			"bot":         botName,
			"timestamp":   ts.Format(time.RFC3339),
		},
	}
	if err := vs.conversations.AddDocument(ctx, doc); err != nil {
		logger.ErrorCF("memory", "failed to index conversation", map[string]interface{}{"error": err.Error(), "session_key": sessionKey})
	}
}

// IndexKnowledge adds or replaces a knowledge document with provenance.
func (vs *VectorStore) IndexKnowledge(ctx context.Context, docID, fact, category string, opts KnowledgeOpts) (string, error) {
	if docID == "" {
		docID = fmt.Sprintf("k:%d", time.Now().UnixNano())
	}
	metadata := map[string]string{
		"category":   category,
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if opts.Bot != "" {
		metadata["bot"] = opts.Bot
	}
	if opts.SourceType != "" {
		metadata["source_type"] = opts.SourceType
	}
	if opts.SourceName != "" {
		metadata["source_name"] = opts.SourceName
	}
	if opts.SourceDate != "" {
		metadata["source_date"] = opts.SourceDate
	}
	if opts.SourceWho != "" {
		metadata["source_who"] = opts.SourceWho
	}

	doc := chromem.Document{ID: docID, Content: fact, Metadata: metadata}
	if err := vs.knowledge.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("index knowledge: %w", err)
	}
	return docID, nil
}

// DeleteKnowledge removes a knowledge document.
func (vs *VectorStore) DeleteKnowledge(ctx context.Context, docID string) error {
	if err := vs.knowledge.Delete(ctx, nil, nil, docID); err != nil {
		return fmt.Errorf("delete knowledge %s: %w", docID, err)
	}
	return nil
}

// SearchConversations searches indexed conversation turns.
func (vs *VectorStore) SearchConversations(ctx context.Context, query string, limit int) ([]Result, error) {
	if vs.conversations.Count() == 0 {
		return nil, nil
	}
	if limit > vs.conversations.Count() {
		limit = vs.conversations.Count()
	}
	results, err := vs.conversations.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search conversations: %w", err)
	}
	var out []Result
	for _, r := range results {
		out = append(out, Result{
			ID: r.ID, Content: r.Content, Score: r.Similarity,
			Timestamp: r.Metadata["timestamp"], Channel: r.Metadata["channel"],
			Bot: r.Metadata["bot"], Source: "conversations",
		})
	}
	return out, nil
}

// SearchKnowledge searches the global knowledge pool unscoped.
func (vs *VectorStore) SearchKnowledge(ctx context.Context, query string, limit int) ([]Result, error) {
	return vs.SearchKnowledgeScoped(ctx, query, limit, "")
}

// SearchKnowledgeScoped searches knowledge scoped to a bot first, then
// backfills with shared/global results up to limit (spec §4.4 non-obvious
// operation).
func (vs *VectorStore) SearchKnowledgeScoped(ctx context.Context, query string, limit int, bot string) ([]Result, error) {
	if vs.knowledge.Count() == 0 {
		return nil, nil
	}
	if bot == "" {
		return vs.searchKnowledge(ctx, query, limit, nil)
	}

	scoped, err := vs.searchKnowledge(ctx, query, limit, map[string]string{"bot": bot})
	if err != nil {
		return nil, err
	}
	if len(scoped) < limit {
		global, _ := vs.searchKnowledge(ctx, query, limit-len(scoped), nil)
		seen := map[string]bool{}
		for _, r := range scoped {
			seen[r.ID] = true
		}
		for _, r := range global {
			if !seen[r.ID] {
				scoped = append(scoped, r)
			}
		}
	}
	return scoped, nil
}

func (vs *VectorStore) searchKnowledge(ctx context.Context, query string, limit int, where map[string]string) ([]Result, error) {
	if limit > vs.knowledge.Count() {
		limit = vs.knowledge.Count()
	}
	if limit <= 0 {
		return nil, nil
	}
	results, err := vs.knowledge.Query(ctx, query, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	var out []Result
	for _, r := range results {
		out = append(out, Result{
			ID: r.ID, Content: r.Content, Score: r.Similarity,
			Timestamp: r.Metadata["updated_at"], Category: r.Metadata["category"],
			Source: "knowledge", Bot: r.Metadata["bot"], SourceType: r.Metadata["source_type"],
			SourceName: r.Metadata["source_name"], SourceDate: r.Metadata["source_date"],
			SourceWho: r.Metadata["source_who"],
		})
	}
	return out, nil
}

// Search queries both collections and merges by relevance; filter is one of
// "", "all", "conversations", "knowledge".
func (vs *VectorStore) Search(ctx context.Context, query string, limit int, filter string) ([]Result, error) {
	switch filter {
	case "", "all":
		var all []Result
		conv, err := vs.SearchConversations(ctx, query, limit)
		if err != nil {
			logger.WarnCF("memory", "conversation search failed", map[string]interface{}{"error": err.Error()})
		} else {
			all = append(all, conv...)
		}
		know, err := vs.SearchKnowledge(ctx, query, limit)
		if err != nil {
			logger.WarnCF("memory", "knowledge search failed", map[string]interface{}{"error": err.Error()})
		} else {
			all = append(all, know...)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Score > all[j].Score })
		if len(all) > limit {
			all = all[:limit]
		}
		return all, nil
	case "conversations":
		return vs.SearchConversations(ctx, query, limit)
	case "knowledge":
		return vs.SearchKnowledge(ctx, query, limit)
	default:
		return nil, fmt.Errorf("unknown memory search filter: %s", filter)
	}
}

// FormatResults renders search results as a human-readable digest.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No memories found."
	}
	var knowledgeResults, convResults []Result
	for _, r := range results {
		if r.Source == "knowledge" {
			knowledgeResults = append(knowledgeResults, r)
		} else {
			convResults = append(convResults, r)
		}
	}

	var sb strings.Builder
	if len(knowledgeResults) > 0 {
		sb.WriteString("## Knowledge\n")
		for _, r := range knowledgeResults {
			cat := ""
			if r.Category != "" {
				cat = fmt.Sprintf(" (%s)", r.Category)
			}
			sb.WriteString(fmt.Sprintf("- %s %s%s\n", formatProvenance(r), r.Content, cat))
		}
	}
	if len(convResults) > 0 {
		if len(knowledgeResults) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("## Conversations\n")
		for _, r := range convResults {
			preview := r.Content
			if runes := []rune(preview); len(runes) > 200 {
				preview = string(runes[:200]) + "..."
			}
			ch := ""
			if r.Channel != "" {
				ch = ", " + r.Channel
			}
			sb.WriteString(fmt.Sprintf("- [%s%s] %s\n", formatDate(r.Timestamp), ch, preview))
		}
	}
	return sb.String()
}

func formatProvenance(r Result) string {
	date := r.SourceDate
	if date == "" {
		date = r.Timestamp
	}
	parts := []string{formatDate(date)}
	switch {
	case r.SourceWho != "" && r.SourceType != "":
		parts = append(parts, fmt.Sprintf("%s via %s", r.SourceWho, r.SourceType))
	case r.SourceWho != "":
		parts = append(parts, r.SourceWho)
	case r.SourceName != "":
		parts = append(parts, r.SourceName)
	case r.SourceType != "":
		parts = append(parts, r.SourceType)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatDate(ts string) string {
	if ts == "" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02")
}
