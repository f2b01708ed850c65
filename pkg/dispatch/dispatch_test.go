package dispatch

import (
	"reflect"
	"testing"
)

type fakeRegistry map[string]bool

func (f fakeRegistry) IsBot(name string) bool { return f[name] }

func TestParseMentions_DeduplicatesInFirstSeenOrder(t *testing.T) {
	got := ParseMentions("hey @alice can you loop in @bob and @alice again")
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDispatch_DMWithExplicitTarget(t *testing.T) {
	d := Dispatch(Message{Content: "hi"}, nil, true, "alice", nil)
	if d.Target != TargetDM || d.PrimaryBot != "alice" {
		t.Errorf("got %+v", d)
	}
}

func TestDispatch_SingleResolvedMention(t *testing.T) {
	room := &Room{ID: "r1", Leader: "alice", Participants: []string{"alice", "bob"}}
	bots := fakeRegistry{"bob": true}
	d := Dispatch(Message{Content: "@bob can you help?"}, room, false, "", bots)
	if d.Target != TargetDirectBot || d.PrimaryBot != "bob" {
		t.Errorf("got %+v", d)
	}
}

func TestDispatch_UnresolvedMentionFallsBackToLeader(t *testing.T) {
	room := &Room{ID: "r1", Leader: "alice", Participants: []string{"alice", "bob"}}
	bots := fakeRegistry{"bob": true}
	d := Dispatch(Message{Content: "@carol can you help?"}, room, false, "", bots)
	if d.Target != TargetLeaderFirst || d.PrimaryBot != "alice" {
		t.Errorf("got %+v", d)
	}
	if !reflect.DeepEqual(d.SecondaryBots, []string{"bob"}) {
		t.Errorf("got secondaries %v", d.SecondaryBots)
	}
}

func TestDispatch_SpecialMentionBroadcastsToRoom(t *testing.T) {
	room := &Room{ID: "r1", Leader: "alice", Participants: []string{"alice", "bob", "carol"}}
	d := Dispatch(Message{Content: "@all status update please"}, room, false, "", fakeRegistry{})
	if d.Target != TargetLeaderFirst || d.PrimaryBot != "alice" {
		t.Errorf("got %+v", d)
	}
	if !reflect.DeepEqual(d.SecondaryBots, []string{"bob", "carol"}) {
		t.Errorf("got secondaries %v", d.SecondaryBots)
	}
}

func TestDispatch_NoMentionsFallsBackToLeader(t *testing.T) {
	room := &Room{ID: "r1", Leader: "alice", Participants: []string{"alice", "bob"}}
	d := Dispatch(Message{Content: "just a regular message"}, room, false, "", fakeRegistry{})
	if d.Target != TargetLeaderFirst || d.PrimaryBot != "alice" {
		t.Errorf("got %+v", d)
	}
}

func TestDispatch_MultipleResolvedMentionsFallsBackToLeader(t *testing.T) {
	room := &Room{ID: "r1", Leader: "alice", Participants: []string{"alice", "bob", "carol"}}
	bots := fakeRegistry{"bob": true, "carol": true}
	d := Dispatch(Message{Content: "@bob @carol both of you"}, room, false, "", bots)
	if d.Target != TargetLeaderFirst || d.PrimaryBot != "alice" {
		t.Errorf("expected fallback to leader when more than one mention resolves, got %+v", d)
	}
}
