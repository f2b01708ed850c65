package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/providers"
)

// SessionLister is the subset of the Store capability surface backfill needs
// to walk every known session's history, instead of reading flat session
// files off disk.
type SessionLister interface {
	ListSessionKeys() ([]string, error)
	GetHistory(sessionKey string) ([]providers.Message, error)
}

// BackfillStats tracks progress of a backfill run.
type BackfillStats struct {
	SessionsTotal     int
	SessionsProcessed int
	TurnsIndexed      int
	FactsExtracted    int
	Errors            int
}

// BackfillOptions configures a backfill run.
type BackfillOptions struct {
	ExtractKnowledge bool // also run knowledge extraction (slow, costs LLM calls)
	DryRun           bool // print what would be done without doing it
}

// Backfill walks every session the store knows about and indexes each
// user/assistant turn into the vector store, optionally running knowledge
// extraction too. Used to seed memory from history that predates this
// memory layer, or to rebuild the vector index after it's been wiped.
func Backfill(ctx context.Context, sessions SessionLister, store *VectorStore, extractor *KnowledgeExtractor, opts BackfillOptions) (*BackfillStats, error) {
	stats := &BackfillStats{}

	keys, err := sessions.ListSessionKeys()
	if err != nil {
		return nil, fmt.Errorf("list session keys: %w", err)
	}

	var toProcess []string
	for _, key := range keys {
		if isSystemSession(key) {
			fmt.Printf("  Skipping %s (system session)\n", key)
			continue
		}
		toProcess = append(toProcess, key)
	}
	stats.SessionsTotal = len(toProcess)
	fmt.Printf("Found %d sessions to backfill\n", stats.SessionsTotal)

	for _, key := range toProcess {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		if err := backfillSession(ctx, key, sessions, store, extractor, stats, opts); err != nil {
			logger.WarnCF("backfill", "failed to backfill session", map[string]interface{}{
				"session_key": key,
				"error":       err.Error(),
			})
			stats.Errors++
		}
		stats.SessionsProcessed++

		fmt.Printf("  [%d/%d] %s — %d turns indexed\n",
			stats.SessionsProcessed, stats.SessionsTotal, key, stats.TurnsIndexed)
	}

	return stats, nil
}

// isSystemSession reports whether a session key belongs to a heartbeat or
// cron trigger rather than a real conversation, the convention used to keep
// system noise out of conversational memory.
func isSystemSession(key string) bool {
	_, id := parseSessionKey(key)
	return strings.HasPrefix(id, "heartbeat") || strings.HasPrefix(id, "cron-")
}

func backfillSession(ctx context.Context, sessionKey string, sessions SessionLister, store *VectorStore, extractor *KnowledgeExtractor, stats *BackfillStats, opts BackfillOptions) error {
	history, err := sessions.GetHistory(sessionKey)
	if err != nil {
		return fmt.Errorf("get history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	channel, chatID := parseSessionKey(sessionKey)

	// Walk through messages, pairing each user message with the next
	// assistant response (skipping tool messages, bailing on an
	// intervening user message with no reply in between).
	for i := 0; i < len(history); i++ {
		msg := history[i]
		if msg.Role != "user" || msg.Content == "" {
			continue
		}

		assistantMsg := ""
		botName := ""
		for j := i + 1; j < len(history); j++ {
			next := history[j]
			if next.Role == "assistant" && next.Content != "" {
				assistantMsg = next.Content
				botName = next.BotName
				break
			}
			if next.Role == "user" {
				break
			}
		}
		if assistantMsg == "" {
			continue
		}

		if opts.DryRun {
			preview := msg.Content
			runes := []rune(preview)
			if len(runes) > 80 {
				preview = string(runes[:80]) + "..."
			}
			fmt.Printf("    [dry-run] would index: %s\n", preview)
			stats.TurnsIndexed++
			continue
		}

		store.IndexConversation(ctx, sessionKey, channel, chatID, botName, msg.Content, assistantMsg)
		stats.TurnsIndexed++

		if opts.ExtractKnowledge && extractor != nil {
			extractor.ExtractAndConsolidate(ctx, msg.Content, assistantMsg, sessionKey, botName, KnowledgeOpts{})
			stats.FactsExtracted++
		}

		time.Sleep(100 * time.Millisecond)
	}

	return nil
}

// parseSessionKey extracts channel and chatID from a session key like
// "telegram:123456".
func parseSessionKey(key string) (channel, chatID string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "unknown", key
}
