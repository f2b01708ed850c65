package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
	"github.com/crewcore/crew/pkg/providers"
)

// SessionMessage is one row of session_messages, a persisted providers.Message.
type SessionMessage struct {
	ID         string
	SessionKey string
	Seq        int
	Message    providers.Message
	Timestamp  time.Time
}

// GetSummary returns the stored rolling summary for a session key, or "" if
// the session has none yet.
func (s *Store) GetSummary(sessionKey string) (string, error) {
	var summary string
	err := s.Sessions.QueryRow(`SELECT summary FROM sessions WHERE session_key = ?`, sessionKey).Scan(&summary)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "get session summary", err)
	}
	return summary, nil
}

// SetSummary upserts the rolling summary for a session key.
func (s *Store) SetSummary(sessionKey, summary string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.Sessions.Exec(`
		INSERT INTO sessions (session_key, summary, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at
	`, sessionKey, summary, now)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "set session summary", err)
	}
	return nil
}

// AppendMessage appends msg as the next sequence number in sessionKey's
// history.
func (s *Store) AppendMessage(sessionKey string, msg providers.Message) error {
	var maxSeq sql.NullInt64
	if err := s.Sessions.QueryRow(`SELECT MAX(seq) FROM session_messages WHERE session_key = ?`, sessionKey).Scan(&maxSeq); err != nil {
		return errkind.Wrap(errkind.StoreWrite, "read max seq", err)
	}
	seq := int(maxSeq.Int64) + 1

	_, err := s.Sessions.Exec(`
		INSERT INTO session_messages (id, session_key, seq, role, content, tool_call_id, bot_name, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), sessionKey, seq, msg.Role, msg.Content, msg.ToolCallID, msg.BotName, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "append session message", err)
	}
	if _, err := s.Sessions.Exec(`
		INSERT INTO sessions (session_key, updated_at) VALUES (?, ?)
		ON CONFLICT(session_key) DO UPDATE SET updated_at = excluded.updated_at
	`, sessionKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return errkind.Wrap(errkind.StoreWrite, "touch session", err)
	}
	return nil
}

// GetHistory returns the full ordered message history for a session key.
func (s *Store) GetHistory(sessionKey string) ([]providers.Message, error) {
	rows, err := s.Sessions.Query(`
		SELECT role, content, tool_call_id, bot_name FROM session_messages
		WHERE session_key = ? ORDER BY seq ASC
	`, sessionKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query session history", err)
	}
	defer rows.Close()

	var out []providers.Message
	for rows.Next() {
		var m providers.Message
		if err := rows.Scan(&m.Role, &m.Content, &m.ToolCallID, &m.BotName); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan session message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CompactSession atomically replaces a session's history with a new,
// shorter one plus a summary, preserving the invariant that the new history
// never splits a tool_use/tool_result pair (spec §4.5): callers compute
// keptMessages themselves with that invariant already satisfied, and this
// method only has to make the replacement atomic so concurrent readers
// never observe a partially-rewritten history.
func (s *Store) CompactSession(sessionKey string, keptMessages []providers.Message, summary string) error {
	return withTx(s.Sessions, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_messages WHERE session_key = ?`, sessionKey); err != nil {
			return fmt.Errorf("clear session messages: %w", err)
		}
		now := time.Now().UTC().Format(time.RFC3339)
		for i, m := range keptMessages {
			if _, err := tx.Exec(`
				INSERT INTO session_messages (id, session_key, seq, role, content, tool_call_id, bot_name, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), sessionKey, i, m.Role, m.Content, m.ToolCallID, m.BotName, now); err != nil {
				return fmt.Errorf("insert kept message %d: %w", i, err)
			}
		}
		if _, err := tx.Exec(`
			INSERT INTO sessions (session_key, summary, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(session_key) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at
		`, sessionKey, summary, now); err != nil {
			return fmt.Errorf("update session summary: %w", err)
		}
		return nil
	})
}

// MessageCount returns how many messages a session currently holds, used by
// the compactor to decide when to trigger (spec §4.5).
func (s *Store) MessageCount(sessionKey string) (int, error) {
	var n int
	if err := s.Sessions.QueryRow(`SELECT COUNT(*) FROM session_messages WHERE session_key = ?`, sessionKey).Scan(&n); err != nil {
		return 0, errkind.Wrap(errkind.StoreWrite, "count session messages", err)
	}
	return n, nil
}

// ListSessionKeys returns every known session key, used by backfill passes
// that need to walk the entire conversation history.
func (s *Store) ListSessionKeys() ([]string, error) {
	rows, err := s.Sessions.Query(`SELECT session_key FROM sessions`)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "list session keys", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan session key", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}
