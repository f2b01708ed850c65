// Package worklog is the append-only structured decision log (spec §4.3,
// L6): a thin capability surface over the store's session_log/log_entry
// tables, plus the "end_session triggers learning-exchange queuing of
// shareable entries" wiring spec §4.3 names but the store layer alone can't
// express.
package worklog

import (
	"time"

	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/store"
)

// Store is the subset of pkg/store's capability surface WorkLog needs.
type Store interface {
	StartSession(sessionKey, query, roomID, coordinator string, participants []string) (string, error)
	EndSession(sessionID string) error
	Log(entry store.LogEntry) (string, error)
	GetLog(sessionID string) ([]store.LogEntry, error)
	GetLogsByRoom(roomID string) ([]store.LogEntry, error)
	SearchLogs(query string, limit int) ([]store.LogEntry, error)
	ShareableLogs(since time.Time) ([]store.LogEntry, error)
}

var _ Store = (*store.Store)(nil)

// Promoter is called with every shareable, sufficiently confident entry when
// a session ends, so the caller can hand it to the learning exchange without
// worklog importing pkg/learning (spec §4.3: "end_session(final_output)
// ... triggers learning-exchange queuing of entries marked shareable").
type Promoter func(entry store.LogEntry)

// WorkLog is the per-process handle onto the append-only audit trail.
// PromotionThreshold gates which shareable entries actually get forwarded to
// promote (spec §4.7: confidence ≥ promotion_threshold).
type WorkLog struct {
	db                 Store
	promote            Promoter
	promotionThreshold float64
}

// New builds a WorkLog. promote may be nil if the learning exchange isn't
// wired yet (e.g. CLI read-only commands).
func New(db Store, promotionThreshold float64, promote Promoter) *WorkLog {
	return &WorkLog{db: db, promote: promote, promotionThreshold: promotionThreshold}
}

// StartSession opens a new audit episode and returns a handle id.
func (w *WorkLog) StartSession(sessionKey, query, roomID, coordinator string, participants []string) (string, error) {
	return w.db.StartSession(sessionKey, query, roomID, coordinator, participants)
}

// Log appends one entry to sessionID's trail. A log-write failure never
// fails the caller's operation: it retries once, then drops with a warning
// (spec §4.3 failure semantics).
func (w *WorkLog) Log(sessionID string, entry store.LogEntry) {
	entry.SessionID = sessionID
	if _, err := w.db.Log(entry); err != nil {
		if _, err2 := w.db.Log(entry); err2 != nil {
			logger.WarnCF("worklog", "dropped log entry after retry", map[string]interface{}{
				"session_id": sessionID, "category": entry.Category, "error": err2.Error(),
			})
		}
	}
}

// EndSession records completion and, if a Promoter is wired, forwards every
// shareable sufficiently-confident entry from this session to it.
func (w *WorkLog) EndSession(sessionID string) error {
	if err := w.db.EndSession(sessionID); err != nil {
		return err
	}
	if w.promote == nil {
		return nil
	}
	entries, err := w.db.GetLog(sessionID)
	if err != nil {
		logger.WarnCF("worklog", "could not load entries for promotion", map[string]interface{}{"session_id": sessionID, "error": err.Error()})
		return nil
	}
	for _, e := range entries {
		if !e.Shareable {
			continue
		}
		if e.Confidence == nil || *e.Confidence < w.promotionThreshold {
			continue
		}
		w.promote(e)
	}
	return nil
}

// GetLog returns a session's full entry list, ordered by step.
func (w *WorkLog) GetLog(sessionID string) ([]store.LogEntry, error) {
	return w.db.GetLog(sessionID)
}

// GetLogsByRoom returns every entry for sessions scoped to a room.
func (w *WorkLog) GetLogsByRoom(roomID string, limit int) ([]store.LogEntry, error) {
	entries, err := w.db.GetLogsByRoom(roomID)
	if err != nil {
		return nil, err
	}
	return capEntries(entries, limit), nil
}

// GetAllLogs returns the most recent entries across every room, optionally
// scoped to one room.
func (w *WorkLog) GetAllLogs(limit int, room string) ([]store.LogEntry, error) {
	if room != "" {
		return w.GetLogsByRoom(room, limit)
	}
	return w.db.SearchLogs("", limit)
}

// Search does a substring search over entry messages (case-insensitive for
// ASCII letters, as SQLite LIKE is), optionally scoped by room and/or bot.
// Entry details are not searched.
func (w *WorkLog) Search(text string, room, bot string) ([]store.LogEntry, error) {
	entries, err := w.db.SearchLogs(text, 500)
	if err != nil {
		return nil, err
	}
	if room == "" && bot == "" {
		return entries, nil
	}
	var out []store.LogEntry
	for _, e := range entries {
		if room != "" {
			byRoom, err := w.db.GetLogsByRoom(room)
			if err != nil {
				continue
			}
			found := false
			for _, r := range byRoom {
				if r.ID == e.ID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if bot != "" && e.BotName != bot {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func capEntries(entries []store.LogEntry, limit int) []store.LogEntry {
	if limit <= 0 || limit >= len(entries) {
		return entries
	}
	return entries[len(entries)-limit:]
}
