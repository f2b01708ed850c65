package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		k    Kind
		want int
	}{
		{InputValidation, 2},
		{NotFound, 3},
		{RoleCardViolation, 1},
		{ToolExecution, 1},
		{ProviderUnavailable, 1},
		{StoreWrite, 1},
		{BusSaturation, 1},
		{HeartbeatCheck, 1},
		{LearningDistribution, 1},
	}
	for _, c := range cases {
		if got := ExitCode(c.k); got != c.want {
			t.Errorf("ExitCode(%s) = %d, want %d", c.k, got, c.want)
		}
	}
}

func TestKindOf_DirectError(t *testing.T) {
	err := New(NotFound, "no such room")
	k, ok := KindOf(err)
	if !ok {
		t.Fatal("expected KindOf to find a Kind")
	}
	if k != NotFound {
		t.Errorf("got %s, want %s", k, NotFound)
	}
}

func TestKindOf_WrappedBeneathFmtErrorf(t *testing.T) {
	inner := Wrap(StoreWrite, "save room", errors.New("disk full"))
	outer := fmt.Errorf("create room: %w", inner)

	k, ok := KindOf(outer)
	if !ok {
		t.Fatal("expected KindOf to unwrap through fmt.Errorf")
	}
	if k != StoreWrite {
		t.Errorf("got %s, want %s", k, StoreWrite)
	}
}

func TestKindOf_PlainError(t *testing.T) {
	if _, ok := KindOf(errors.New("unrelated")); ok {
		t.Error("expected KindOf to report false for an untagged error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(ToolExecution, "run tool", errors.New("boom"))
	want := "tool_execution: run tool: boom"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWithDetails(t *testing.T) {
	err := WithDetails(RoleCardViolation, "forbidden action", nil, map[string]interface{}{"action": "delete_file"})
	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.Details["action"] != "delete_file" {
		t.Errorf("expected details to carry the action, got %v", e.Details)
	}
}
