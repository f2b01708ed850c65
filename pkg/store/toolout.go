package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// ToolOutput is an oversized tool result externalized out of the session
// history and addressed by a stable ref://<id> in its place (spec §4.5).
type ToolOutput struct {
	ID             string
	ToolName       string
	FullOutput     string
	ContextSummary string
	SessionKey     string
	CreatedAt      time.Time
	AccessedCount  int
	CharCount      int
}

// PutToolOutput stores a full tool output and returns its ref id.
func (s *Store) PutToolOutput(o ToolOutput) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.ToolOut.Exec(`
		INSERT INTO tool_outputs (id, tool_name, full_output, context_summary, session_key, created_at, accessed_count, char_count)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, id, o.ToolName, o.FullOutput, o.ContextSummary, o.SessionKey, time.Now().UTC().Format(time.RFC3339), len(o.FullOutput))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "put tool output", err)
	}
	return id, nil
}

// GetToolOutput resolves a ref://<id> back to its full output, incrementing
// its access counter.
func (s *Store) GetToolOutput(id string) (ToolOutput, bool, error) {
	var o ToolOutput
	var createdAt string
	err := s.ToolOut.QueryRow(`
		SELECT id, tool_name, full_output, context_summary, session_key, created_at, accessed_count, char_count
		FROM tool_outputs WHERE id = ?
	`, id).Scan(&o.ID, &o.ToolName, &o.FullOutput, &o.ContextSummary, &o.SessionKey, &createdAt, &o.AccessedCount, &o.CharCount)
	if err == sql.ErrNoRows {
		return ToolOutput{}, false, nil
	}
	if err != nil {
		return ToolOutput{}, false, errkind.Wrap(errkind.StoreWrite, "get tool output", err)
	}
	o.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if _, err := s.ToolOut.Exec(`UPDATE tool_outputs SET accessed_count = accessed_count + 1 WHERE id = ?`, id); err != nil {
		return o, true, errkind.Wrap(errkind.StoreWrite, "bump tool output access count", err)
	}
	return o, true, nil
}

// PruneToolOutputsBefore deletes tool outputs created before cutoff,
// reclaiming space from stale references no session will ever resolve
// again.
func (s *Store) PruneToolOutputsBefore(cutoff time.Time) (int64, error) {
	res, err := s.ToolOut.Exec(`DELETE FROM tool_outputs WHERE created_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, errkind.Wrap(errkind.StoreWrite, "prune tool outputs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
