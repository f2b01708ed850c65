package session

import (
	"context"
	"fmt"

	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/utils"
)

// Summarizer is the external capability the Compactor calls to turn a chunk
// of messages into one summary message (spec §4.4: "generate one summary per
// chunk via ModelProvider").
type Summarizer func(ctx context.Context, messages []providers.Message) (string, error)

// PreHook runs before compaction starts, letting the memory layer flush
// pending learnings and refresh the preferences summary (spec §4.4).
type PreHook func(ctx context.Context, sessionKey string) error

// Compactor keeps a session's token footprint bounded, in three modes
// (summary, token_limit, off), preserving the invariant that no tool_result
// ever loses its tool_use across a rewrite.
type Compactor struct {
	cfg        config.SessionCompaction
	emergency  config.EmergencyCompaction
	summarize  Summarizer
	preHook    PreHook
}

// NewCompactor builds a Compactor from the session-compaction and
// emergency-compaction config blocks.
func NewCompactor(cfg config.SessionCompaction, emergency config.EmergencyCompaction, summarize Summarizer, preHook PreHook) *Compactor {
	return &Compactor{cfg: cfg, emergency: emergency, summarize: summarize, preHook: preHook}
}

// ShouldCompact reports whether tokensUsed/maxTokens has crossed the
// configured compaction threshold.
func (c *Compactor) ShouldCompact(tokensUsed, maxTokens int) bool {
	if !c.cfg.Enabled || maxTokens <= 0 {
		return false
	}
	return float64(tokensUsed)/float64(maxTokens)*100 >= float64(c.cfg.ThresholdPercent)
}

// IsEmergency reports whether tokensUsed/maxTokens has crossed the
// emergency-compaction critical threshold (default 0.95).
func (c *Compactor) IsEmergency(tokensUsed, maxTokens int) bool {
	if !c.emergency.Enabled || maxTokens <= 0 {
		return false
	}
	return float64(tokensUsed)/float64(maxTokens) >= c.emergency.CriticalThreshold
}

// Compact runs the configured compaction mode against sess, writing the
// result back through the Store atomically. The pre-hook fires first. If
// emergency is true, the emergency trimming pass runs in addition to the
// configured mode.
func (c *Compactor) Compact(ctx context.Context, sess *Session, tokensUsed, maxTokens int, emergency bool) error {
	if c.cfg.Mode == "off" || !c.cfg.Enabled {
		return nil
	}
	if c.preHook != nil && c.cfg.EnableMemoryFlush {
		if err := c.preHook(ctx, sess.Key); err != nil {
			return fmt.Errorf("compaction pre-hook: %w", err)
		}
	}

	history, err := sess.History()
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) <= c.cfg.MinMessages {
		return nil
	}

	var kept []providers.Message
	var summary string

	switch c.cfg.Mode {
	case "summary":
		kept, summary, err = c.compactSummary(ctx, history)
	case "token_limit":
		kept, summary, err = c.compactTokenLimit(history)
	default:
		return fmt.Errorf("unknown compaction mode %q", c.cfg.Mode)
	}
	if err != nil {
		return fmt.Errorf("compact mode %s: %w", c.cfg.Mode, err)
	}

	if emergency {
		kept = c.applyEmergencyTrim(kept)
	}

	if !preservesToolPairing(kept) {
		return fmt.Errorf("compaction would orphan a tool_result, refusing to commit")
	}

	existing, err := sess.Summary()
	if err != nil {
		return fmt.Errorf("load existing summary: %w", err)
	}
	if existing != "" && summary != "" {
		summary = existing + "\n\n" + summary
	} else if summary == "" {
		summary = existing
	}

	return sess.db.CompactSession(sess.Key, kept, summary)
}

// compactSummary splits the history into chunks of SummaryChunkSize,
// summarizes each chunk, and keeps the most recent PreserveRecent messages
// verbatim (spec §4.4 "summary" mode).
func (c *Compactor) compactSummary(ctx context.Context, history []providers.Message) ([]providers.Message, string, error) {
	preserveRecent := c.cfg.PreserveRecent
	if preserveRecent <= 0 || preserveRecent > len(history) {
		preserveRecent = len(history)
	}

	boundary := len(history) - preserveRecent
	boundary = safeBoundary(history, boundary)

	toSummarize := history[:boundary]
	tail := history[boundary:]

	if len(toSummarize) == 0 {
		return tail, "", nil
	}

	chunkSize := c.cfg.SummaryChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}

	var summaries []string
	for i := 0; i < len(toSummarize); i += chunkSize {
		end := i + chunkSize
		if end > len(toSummarize) {
			end = len(toSummarize)
		}
		chunk := toSummarize[i:end]
		if c.summarize == nil {
			summaries = append(summaries, renderChunkFallback(chunk))
			continue
		}
		s, err := c.summarize(ctx, chunk)
		if err != nil {
			return nil, "", fmt.Errorf("summarize chunk %d-%d: %w", i, end, err)
		}
		summaries = append(summaries, s)
	}

	var summaryMessages []providers.Message
	for _, s := range summaries {
		summaryMessages = append(summaryMessages, providers.Message{Role: "assistant", Content: s})
	}

	return append(summaryMessages, tail...), "", nil
}

// compactTokenLimit finds the last safe boundary before the target and
// drops everything before it, keeping a minimum suffix (spec §4.4
// "token_limit" mode).
func (c *Compactor) compactTokenLimit(history []providers.Message) ([]providers.Message, string, error) {
	minSuffix := c.cfg.PreserveRecent
	if minSuffix <= 0 {
		minSuffix = 10
	}
	target := len(history) - minSuffix
	if target <= 0 {
		return history, "", nil
	}
	boundary := safeBoundary(history, target)
	return history[boundary:], "", nil
}

// applyEmergencyTrim caps tool outputs to a hard minimum, drops short
// assistant/user messages, and collapses consecutive identical tool calls,
// while always preserving the last PreserveCount messages verbatim and
// never orphaning a tool_result (spec §4.4 emergency compaction).
func (c *Compactor) applyEmergencyTrim(history []providers.Message) []providers.Message {
	preserveCount := c.emergency.PreserveCount
	if preserveCount <= 0 || preserveCount > len(history) {
		preserveCount = len(history)
	}
	boundary := len(history) - preserveCount
	boundary = safeBoundary(history, boundary)

	head := history[:boundary]
	tail := history[boundary:]

	var trimmedHead []providers.Message
	var lastToolKey string
	for _, m := range head {
		if m.Role == "tool" && len(m.Content) > c.emergency.MaxToolOutputEmergency {
			m.Content = utils.Truncate(m.Content, c.emergency.MaxToolOutputEmergency)
		}
		if (m.Role == "assistant" || m.Role == "user") && len(m.Content) < c.emergency.MinMessageLength {
			continue
		}
		toolKey := toolCallKey(m)
		if toolKey != "" && toolKey == lastToolKey {
			continue
		}
		lastToolKey = toolKey
		trimmedHead = append(trimmedHead, m)
	}

	result := append(trimmedHead, tail...)
	if !preservesToolPairing(result) {
		return history
	}
	return result
}

func toolCallKey(m providers.Message) string {
	if m.Role != "assistant" || len(m.ToolCalls) == 0 {
		return ""
	}
	key := ""
	for _, tc := range m.ToolCalls {
		key += tc.Name + ":"
		for k, v := range tc.Arguments {
			key += fmt.Sprintf("%s=%v;", k, v)
		}
	}
	return key
}

// safeBoundary walks backward from idx to the nearest index that is not in
// the middle of a tool_use/tool_result pair — an assistant message that
// isn't followed by an orphaned tool_result.
func safeBoundary(history []providers.Message, idx int) int {
	if idx <= 0 {
		return 0
	}
	if idx >= len(history) {
		return len(history)
	}
	for idx > 0 && history[idx].Role == "tool" {
		idx--
	}
	return idx
}

// preservesToolPairing verifies that every tool_result (role "tool") in
// messages has its matching tool_use earlier in the same slice (spec §3, §8
// universal invariant).
func preservesToolPairing(messages []providers.Message) bool {
	seen := map[string]bool{}
	for _, m := range messages {
		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = true
			}
		}
		if m.Role == "tool" {
			if m.ToolCallID == "" {
				continue
			}
			if !seen[m.ToolCallID] {
				return false
			}
		}
	}
	return true
}

func renderChunkFallback(chunk []providers.Message) string {
	s := ""
	for _, m := range chunk {
		s += fmt.Sprintf("[%s] %s\n", m.Role, utils.Truncate(m.Content, 200))
	}
	return s
}
