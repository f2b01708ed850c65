package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crewcore/crew/pkg/config"
)

func TestRoster_IsBotAndLookup(t *testing.T) {
	r := New(t.TempDir(), []config.BotConfig{{Name: "alice", IsLeader: true}, {Name: "bob"}})

	if !r.IsBot("alice") {
		t.Error("expected alice to be a known bot")
	}
	if r.IsBot("carol") {
		t.Error("expected carol to be unknown")
	}

	b, ok := r.Bot("bob")
	if !ok || b.Name != "bob" {
		t.Errorf("got %+v, %v", b, ok)
	}
}

func TestRoster_Bots_ReturnsAllConfigured(t *testing.T) {
	r := New(t.TempDir(), []config.BotConfig{{Name: "alice"}, {Name: "bob"}})
	bots := r.Bots()
	if len(bots) != 2 {
		t.Fatalf("got %d bots, want 2", len(bots))
	}
}

func TestRoster_Personality_MissingFilesReadAsEmpty(t *testing.T) {
	r := New(t.TempDir(), []config.BotConfig{{Name: "alice"}})
	p := r.Personality("alice")
	if p.Soul != "" || p.Identity != "" || p.Agents != "" {
		t.Errorf("expected empty personality for a bot with no files on disk, got %+v", p)
	}
}

func TestRoster_Personality_ReadsFromDisk(t *testing.T) {
	workspace := t.TempDir()
	botDir := filepath.Join(workspace, "bots", "alice")
	if err := os.MkdirAll(botDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(botDir, "SOUL.md"), []byte("warm and curious"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(workspace, []config.BotConfig{{Name: "alice"}})
	p := r.Personality("alice")
	if p.Soul != "warm and curious" {
		t.Errorf("got soul %q", p.Soul)
	}
}

func TestRoster_SharedFiles(t *testing.T) {
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, "TOOLS.md"), []byte("shared tools"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(workspace, nil)
	if r.SharedTools() != "shared tools" {
		t.Errorf("got %q", r.SharedTools())
	}
	if r.SharedUser() != "" {
		t.Errorf("expected empty USER.md, got %q", r.SharedUser())
	}
}
