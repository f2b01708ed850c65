// Package dispatch is the Dispatcher (spec §4.8, L10): a pure function
// mapping an inbound message to the bot(s) that handle it.
package dispatch

import "regexp"

// Target names the routing decision an inbound message resolves to.
type Target string

const (
	TargetDM         Target = "dm"
	TargetDirectBot  Target = "direct_bot"
	TargetLeaderFirst Target = "leader_first"
)

// Decision is the Dispatcher's output.
type Decision struct {
	Target       Target
	PrimaryBot   string
	SecondaryBots []string
	Reason       string
}

// Message is the minimal shape the Dispatcher needs from an inbound
// envelope.
type Message struct {
	Content string
}

// Room carries the participant list a leader-first or broadcast decision
// needs to compute secondaries.
type Room struct {
	ID           string
	Leader       string
	Participants []string
}

var mentionPattern = regexp.MustCompile(`@([\w-]+)`)

// ParseMentions extracts deterministic @mentions from content: a contiguous
// '@' followed by [\w-]+, deduplicated in first-seen order (spec §4.8:
// "Mention parsing is deterministic ... duplicate mentions are
// deduplicated").
func ParseMentions(content string) []string {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func isSpecialMention(name string) bool {
	return name == "all" || name == "team"
}

// Registry resolves whether a name is a known bot.
type Registry interface {
	IsBot(name string) bool
}

// Dispatch decides the handler(s) for msg per spec §4.8's three rules:
//  1. is_dm with a dm_target -> DM, primary = dm_target.
//  2. else parse mentions: exactly one mention resolving to a registered
//     bot -> direct-bot; a special mention (@all/@team) -> leader primary,
//     room participants (minus leader) as secondaries.
//  3. otherwise -> leader-first: primary is the leader, secondaries are
//     the other room participants.
func Dispatch(msg Message, room *Room, isDM bool, dmTarget string, bots Registry) Decision {
	if isDM && dmTarget != "" {
		return Decision{Target: TargetDM, PrimaryBot: dmTarget, Reason: "dm with explicit target"}
	}

	mentions := ParseMentions(msg.Content)

	var special bool
	var resolved []string
	for _, m := range mentions {
		if isSpecialMention(m) {
			special = true
			continue
		}
		if bots != nil && bots.IsBot(m) {
			resolved = append(resolved, m)
		}
	}

	if special {
		leader, secondaries := leaderAndSecondaries(room)
		return Decision{
			Target: TargetLeaderFirst, PrimaryBot: leader, SecondaryBots: secondaries,
			Reason: "special mention (@all/@team)",
		}
	}

	if len(resolved) == 1 {
		return Decision{Target: TargetDirectBot, PrimaryBot: resolved[0], Reason: "single resolved mention"}
	}

	leader, secondaries := leaderAndSecondaries(room)
	return Decision{
		Target: TargetLeaderFirst, PrimaryBot: leader, SecondaryBots: secondaries,
		Reason: "no dm target, no single resolvable mention",
	}
}

func leaderAndSecondaries(room *Room) (leader string, secondaries []string) {
	if room == nil {
		return "", nil
	}
	leader = room.Leader
	for _, p := range room.Participants {
		if p != leader {
			secondaries = append(secondaries, p)
		}
	}
	return leader, secondaries
}
