// Package session is the per-conversation message history layer (spec §4.4,
// §4.9, L5): a thin typed surface over the store's session tables plus the
// Compactor that keeps a session's token footprint bounded without ever
// splitting a tool_use/tool_result pair.
package session

import (
	"github.com/crewcore/crew/pkg/providers"
	"github.com/crewcore/crew/pkg/store"
)

// Store is the subset of pkg/store's capability surface a Session needs.
// Defined as an interface so tests can fake it without a real SQLite file.
type Store interface {
	GetSummary(sessionKey string) (string, error)
	SetSummary(sessionKey, summary string) error
	AppendMessage(sessionKey string, msg providers.Message) error
	GetHistory(sessionKey string) ([]providers.Message, error)
	CompactSession(sessionKey string, keptMessages []providers.Message, summary string) error
	MessageCount(sessionKey string) (int, error)
}

var _ Store = (*store.Store)(nil)

// Session is a handle onto one (channel, chat_id) conversation's history.
// It holds no state of its own beyond the key and a reference to the
// backing Store — the Store owns every row (spec §9 arena-style ownership).
type Session struct {
	Key string
	db  Store
}

// GetOrCreate returns a Session handle for key. Sessions are created
// lazily on first AppendMessage; this call never writes.
func GetOrCreate(db Store, key string) *Session {
	return &Session{Key: key, db: db}
}

// History returns the full ordered message list for this session.
func (s *Session) History() ([]providers.Message, error) {
	return s.db.GetHistory(s.Key)
}

// Summary returns the session's rolling summary, if any.
func (s *Session) Summary() (string, error) {
	return s.db.GetSummary(s.Key)
}

// Append records msg as the next message in the session.
func (s *Session) Append(msg providers.Message) error {
	return s.db.AppendMessage(s.Key, msg)
}

// MessageCount reports how many messages the session currently holds.
func (s *Session) MessageCount() (int, error) {
	return s.db.MessageCount(s.Key)
}
