package store

import "testing"

func TestSaveRoleCardProposal(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	id, err := s.SaveRoleCardProposal("alice", "- add: may deploy to staging", "needed for on-call rotation")
	if err != nil {
		t.Fatalf("save proposal: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty proposal id")
	}

	var bot, diff, rationale string
	var accepted int
	row := s.WorkLog.QueryRow(`SELECT bot, diff, rationale, accepted FROM role_card_proposals WHERE id = ?`, id)
	if err := row.Scan(&bot, &diff, &rationale, &accepted); err != nil {
		t.Fatalf("scan proposal: %v", err)
	}
	if bot != "alice" {
		t.Errorf("got bot %q, want alice", bot)
	}
	if diff != "- add: may deploy to staging" {
		t.Errorf("got diff %q", diff)
	}
	if rationale != "needed for on-call rotation" {
		t.Errorf("got rationale %q", rationale)
	}
	if accepted != 0 {
		t.Errorf("expected a freshly saved proposal to be unaccepted, got accepted=%d", accepted)
	}
}

func TestSaveRoleCardProposal_MultipleProposalsGetDistinctIDs(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	id1, err := s.SaveRoleCardProposal("alice", "diff one", "")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := s.SaveRoleCardProposal("alice", "diff two", "")
	if err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Error("expected distinct proposal ids")
	}
}
