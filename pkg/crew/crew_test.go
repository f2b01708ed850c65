package crew

import (
	"context"
	"testing"

	"github.com/crewcore/crew/pkg/config"
	"github.com/crewcore/crew/pkg/rolecard"
	"github.com/crewcore/crew/pkg/roster"
	"github.com/crewcore/crew/pkg/store"
)

func TestChangeStoreAdapter_SavesThroughToStore(t *testing.T) {
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	adapter := changeStoreAdapter{db: db}
	id, err := adapter.SaveProposal(rolecard.ProposedChange{Bot: "alice", Diff: "- x", Rationale: "because"})
	if err != nil {
		t.Fatalf("save proposal: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty id")
	}
}

func TestRoomsAdapter_ReturnsRoomInfoOnHit(t *testing.T) {
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	if err := db.UpsertRoom(store.Room{ID: "r1", Kind: "open", Participants: []string{"alice", "bob"}}); err != nil {
		t.Fatalf("upsert room: %v", err)
	}

	adapter := roomsAdapter{db: db}
	info, ok := adapter.GetRoom("r1")
	if !ok {
		t.Fatal("expected room to be found")
	}
	if info.ID != "r1" || info.Kind != "open" {
		t.Errorf("got %+v", info)
	}
}

func TestRoomsAdapter_ReturnsFalseOnMiss(t *testing.T) {
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	adapter := roomsAdapter{db: db}
	if _, ok := adapter.GetRoom("nonexistent"); ok {
		t.Error("expected ok=false for a room that was never created")
	}
}

func TestRouterFor_SameModelServesEveryTier(t *testing.T) {
	bot := config.BotConfig{Name: "alice", Model: "claude-x"}
	r := routerFor(bot, nil)
	if r == nil {
		t.Fatal("expected a non-nil router")
	}
	for _, msg := range []string{"hello", "please implement this function", "why does this fail"} {
		if _, model := r.Select(context.Background(), msg); model != "claude-x" {
			t.Errorf("Select(%q) chose model %q, want claude-x", msg, model)
		}
	}
}

func TestLeaderOf_PrefersConfiguredLeader(t *testing.T) {
	bots := []config.BotConfig{{Name: "alice"}, {Name: "bob", IsLeader: true}}
	c := &Crew{cfg: config.Config{}, roster: roster.New(t.TempDir(), bots)}

	got := c.leaderOf([]string{"alice", "bob"})
	if got != "bob" {
		t.Errorf("got leader %q, want bob", got)
	}
}

func TestLeaderOf_FallsBackToFirstParticipantWhenNoneIsLeader(t *testing.T) {
	bots := []config.BotConfig{{Name: "alice"}, {Name: "bob"}}
	c := &Crew{cfg: config.Config{}, roster: roster.New(t.TempDir(), bots)}

	got := c.leaderOf([]string{"alice", "bob"})
	if got != "alice" {
		t.Errorf("got leader %q, want alice (first participant)", got)
	}
}
