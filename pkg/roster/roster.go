// Package roster loads each bot's personality files and the shared,
// workspace-wide ones (spec §6 file layout): bots/<bot>/{SOUL,IDENTITY,
// AGENTS}.md plus the shared TOOLS.md/USER.md. The core treats all of them
// as opaque string blobs (spec §1 Non-goals: "the human-readable
// personality files; the core consumes them as opaque string blobs").
package roster

import (
	"os"
	"path/filepath"

	"github.com/crewcore/crew/pkg/config"
)

// Personality is one bot's loaded personality-file bundle.
type Personality struct {
	Soul     string // SOUL.md: voice/personality
	Identity string // IDENTITY.md: character
	Agents   string // AGENTS.md: task instructions
}

// Roster loads bot personalities plus shared files from a workspace root.
// Shared files are read once at construction; personality files are re-read
// on every call.
type Roster struct {
	workspace string
	bots      map[string]config.BotConfig

	shared struct {
		tools, user string
	}
}

// New builds a Roster for the configured bots, loading the shared
// TOOLS.md/USER.md files once up front.
func New(workspace string, bots []config.BotConfig) *Roster {
	r := &Roster{workspace: workspace, bots: map[string]config.BotConfig{}}
	for _, b := range bots {
		r.bots[b.Name] = b
	}
	r.shared.tools = readIfExists(filepath.Join(workspace, "TOOLS.md"))
	r.shared.user = readIfExists(filepath.Join(workspace, "USER.md"))
	return r
}

// Bots returns every configured bot, leader included.
func (r *Roster) Bots() []config.BotConfig {
	out := make([]config.BotConfig, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, b)
	}
	return out
}

// IsBot reports whether name is a registered bot (satisfies
// pkg/dispatch.Registry).
func (r *Roster) IsBot(name string) bool {
	_, ok := r.bots[name]
	return ok
}

// Bot looks up a bot's config by name.
func (r *Roster) Bot(name string) (config.BotConfig, bool) {
	b, ok := r.bots[name]
	return b, ok
}

// Personality loads bot's SOUL.md/IDENTITY.md/AGENTS.md from
// bots/<bot>/, re-reading from disk each call so edits take effect without
// a restart (personality files are small and read once per message, not
// per tool iteration).
func (r *Roster) Personality(bot string) Personality {
	dir := filepath.Join(r.workspace, "bots", bot)
	return Personality{
		Soul:     readIfExists(filepath.Join(dir, "SOUL.md")),
		Identity: readIfExists(filepath.Join(dir, "IDENTITY.md")),
		Agents:   readIfExists(filepath.Join(dir, "AGENTS.md")),
	}
}

// SharedTools returns the shared TOOLS.md content, if present.
func (r *Roster) SharedTools() string { return r.shared.tools }

// SharedUser returns the shared USER.md content, if present.
func (r *Roster) SharedUser() string { return r.shared.user }

func readIfExists(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
