// Package agent implements the per-bot AgentLoop (spec §4.9, L12): the
// single-bot orchestrator that turns one inbound envelope into context
// assembly, routed model calls, a bounded tool loop, compaction, and an
// outbound envelope.
package agent

import (
	"fmt"
	"strings"

	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/rolecard"
	"github.com/crewcore/crew/pkg/roster"
)

// RoomContext is the room-shaped part of the system prompt: which room a
// message arrived in, who else is present, and whether this room runs in
// coordinator mode (spec §4.9 step 4: "role card + personality files +
// room context").
type RoomContext struct {
	ID              string
	Kind            string
	Participants    []string
	CoordinatorMode bool
}

// Assembler builds the system prompt and the full message list fed to the
// ModelProvider (spec §4.9 step 4, ContextAssembler.assemble).
type Assembler struct {
	roster *roster.Roster
	cards  *rolecard.Registry
}

// NewAssembler builds an Assembler over a bot roster and role-card registry.
func NewAssembler(r *roster.Roster, cards *rolecard.Registry) *Assembler {
	return &Assembler{roster: r, cards: cards}
}

// BuildSystemPrompt renders bot's role card, personality files, shared
// tool/user notes, and room context into one system prompt, in that order
// so the role card's behavioral contract always sits above the bot's own
// voice.
func (a *Assembler) BuildSystemPrompt(bot string, room RoomContext) (string, error) {
	card, err := a.cards.Get(bot)
	if err != nil {
		return "", fmt.Errorf("load role card for %s: %w", bot, err)
	}

	var sections []string
	sections = append(sections, renderRoleCard(card))

	p := a.roster.Personality(bot)
	if p.Identity != "" {
		sections = append(sections, p.Identity)
	}
	if p.Soul != "" {
		sections = append(sections, p.Soul)
	}
	if p.Agents != "" {
		sections = append(sections, p.Agents)
	}
	if shared := a.roster.SharedTools(); shared != "" {
		sections = append(sections, shared)
	}
	if shared := a.roster.SharedUser(); shared != "" {
		sections = append(sections, shared)
	}
	sections = append(sections, renderRoomContext(room))

	return strings.Join(sections, "\n\n---\n\n"), nil
}

func renderRoleCard(card rolecard.RoleCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Role: %s\n\nDomain: %s\n", card.Bot, card.Domain)
	if len(card.Inputs) > 0 {
		fmt.Fprintf(&b, "\nInputs you act on:\n")
		for _, in := range card.Inputs {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	if len(card.Outputs) > 0 {
		fmt.Fprintf(&b, "\nOutputs you produce:\n")
		for _, out := range card.Outputs {
			fmt.Fprintf(&b, "- %s\n", out)
		}
	}
	if len(card.DefinitionOfDone) > 0 {
		fmt.Fprintf(&b, "\nDefinition of done:\n")
		for _, d := range card.DefinitionOfDone {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}
	if len(card.HardBans) > 0 {
		fmt.Fprintf(&b, "\nYou must never:\n")
		for _, ban := range card.HardBans {
			fmt.Fprintf(&b, "- %s (%s)\n", ban.Rule, ban.Severity)
		}
	}
	if len(card.EscalationTriggers) > 0 {
		fmt.Fprintf(&b, "\nEscalate instead of acting when:\n")
		for _, t := range card.EscalationTriggers {
			fmt.Fprintf(&b, "- %s (confidence below %.2f)\n", t.Pattern, t.Threshold)
		}
	}
	return strings.TrimSpace(b.String())
}

func renderRoomContext(room RoomContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Room\n\nRoom: %s (%s)\n", room.ID, room.Kind)
	if len(room.Participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(room.Participants, ", "))
	}
	if room.CoordinatorMode {
		b.WriteString("This room runs in coordinator mode: decisions here may fan out to other bots.\n")
	}
	return strings.TrimSpace(b.String())
}

// Assemble builds the full message list: system prompt, an optional memory
// recall block, prior history, and the new user message (spec §4.9 steps
// 3-4). History is trimmed of any leading orphaned tool-role message, which
// can surface only if a caller hands in a manually-edited history rather
// than one that passed through Compactor.
func (a *Assembler) Assemble(systemPrompt, memoryContext string, history []providers.Message, userMsg providers.Message) []providers.Message {
	history = dropLeadingOrphanTool(history)

	messages := make([]providers.Message, 0, len(history)+3)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	if memoryContext != "" {
		messages = append(messages, providers.Message{
			Role:    "system",
			Content: "Relevant memory:\n" + memoryContext,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, userMsg)
	return messages
}

func dropLeadingOrphanTool(history []providers.Message) []providers.Message {
	for len(history) > 0 && history[0].Role == "tool" {
		history = history[1:]
	}
	return history
}
