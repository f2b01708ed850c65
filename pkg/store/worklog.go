package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// WorkSession is one session_log row: the audit header for a single
// dispatch-to-completion episode (spec §4.6).
type WorkSession struct {
	ID           string
	SessionKey   string
	Query        string
	StartedAt    time.Time
	EndedAt      time.Time
	RoomID       string
	Coordinator  string
	Participants []string
}

// LogEntry is one append-only step within a WorkSession (spec §3, §4.6).
type LogEntry struct {
	ID              string
	SessionID       string
	StepNo          int
	Timestamp       time.Time
	Level           string // info|decision|tool_call|escalation|error
	Category        string
	BotName         string
	TriggeredBy     string
	Message         string
	Details         map[string]interface{}
	Confidence      *float64
	DurationMS      *int64
	ToolName        string
	ToolInput       string
	ToolOutput      string
	ToolStatus      string
	Mentions        []string
	ResponseToStep  *int
	CoordinatorMode bool
	Escalation      bool
	Shareable       bool
	InsightCategory string
}

// StartSession opens a new work session, returning its id.
func (s *Store) StartSession(sessionKey, query, roomID, coordinator string, participants []string) (string, error) {
	id := uuid.NewString()
	_, err := s.WorkLog.Exec(`
		INSERT INTO session_log (id, session_key, query, started_at, room_id, coordinator, participants)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, sessionKey, query, time.Now().UTC().Format(time.RFC3339), roomID, coordinator, joinCSV(participants))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "start work session", err)
	}
	return id, nil
}

// EndSession marks a work session as finished.
func (s *Store) EndSession(sessionID string) error {
	_, err := s.WorkLog.Exec(`UPDATE session_log SET ended_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339), sessionID)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "end work session", err)
	}
	return nil
}

// Log appends one entry to a work session's audit trail. Entries are
// immutable once written (spec §3 WorkLog invariant).
func (s *Store) Log(entry LogEntry) (string, error) {
	var stepNo int
	if err := s.WorkLog.QueryRow(`SELECT COALESCE(MAX(step_no), -1) + 1 FROM log_entry WHERE session_id = ?`, entry.SessionID).Scan(&stepNo); err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "compute next step", err)
	}

	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	id := uuid.NewString()
	_, err = s.WorkLog.Exec(`
		INSERT INTO log_entry (
			id, session_id, step_no, timestamp, level, category, bot_name, triggered_by,
			message, details_json, confidence, duration_ms, tool_name, tool_input, tool_output,
			tool_status, mentions, response_to_step, coordinator_mode, escalation, shareable, insight_category
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, entry.SessionID, stepNo, time.Now().UTC().Format(time.RFC3339), entry.Level, entry.Category,
		entry.BotName, entry.TriggeredBy, entry.Message, string(detailsJSON), entry.Confidence, entry.DurationMS,
		entry.ToolName, entry.ToolInput, entry.ToolOutput, entry.ToolStatus, joinCSV(entry.Mentions),
		entry.ResponseToStep, boolToInt(entry.CoordinatorMode), boolToInt(entry.Escalation),
		boolToInt(entry.Shareable), entry.InsightCategory)
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "append log entry", err)
	}
	return id, nil
}

// GetLog returns every entry of a single work session, in step order.
func (s *Store) GetLog(sessionID string) ([]LogEntry, error) {
	rows, err := s.WorkLog.Query(`SELECT
		id, session_id, step_no, timestamp, level, category, bot_name, triggered_by, message,
		details_json, confidence, duration_ms, tool_name, tool_input, tool_output, tool_status,
		mentions, response_to_step, coordinator_mode, escalation, shareable, insight_category
		FROM log_entry WHERE session_id = ? ORDER BY step_no ASC`, sessionID)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query log entries", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// GetLogsByRoom returns every log entry for sessions scoped to roomID.
func (s *Store) GetLogsByRoom(roomID string) ([]LogEntry, error) {
	rows, err := s.WorkLog.Query(`
		SELECT le.id, le.session_id, le.step_no, le.timestamp, le.level, le.category, le.bot_name,
			le.triggered_by, le.message, le.details_json, le.confidence, le.duration_ms, le.tool_name,
			le.tool_input, le.tool_output, le.tool_status, le.mentions, le.response_to_step,
			le.coordinator_mode, le.escalation, le.shareable, le.insight_category
		FROM log_entry le JOIN session_log sl ON sl.id = le.session_id
		WHERE sl.room_id = ? ORDER BY le.timestamp ASC
	`, roomID)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query logs by room", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// SearchLogs does a substring search over log entry messages, newest first.
func (s *Store) SearchLogs(query string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.WorkLog.Query(`
		SELECT id, session_id, step_no, timestamp, level, category, bot_name, triggered_by, message,
			details_json, confidence, duration_ms, tool_name, tool_input, tool_output, tool_status,
			mentions, response_to_step, coordinator_mode, escalation, shareable, insight_category
		FROM log_entry WHERE message LIKE ? ORDER BY timestamp DESC LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "search logs", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

// ShareableLogs returns entries flagged shareable, candidates for learning
// promotion (spec §4.9).
func (s *Store) ShareableLogs(since time.Time) ([]LogEntry, error) {
	rows, err := s.WorkLog.Query(`
		SELECT id, session_id, step_no, timestamp, level, category, bot_name, triggered_by, message,
			details_json, confidence, duration_ms, tool_name, tool_input, tool_output, tool_status,
			mentions, response_to_step, coordinator_mode, escalation, shareable, insight_category
		FROM log_entry WHERE shareable = 1 AND timestamp >= ? ORDER BY timestamp ASC
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query shareable logs", err)
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func scanLogEntries(rows *sql.Rows) ([]LogEntry, error) {
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var ts string
		var detailsJSON, mentionsCSV string
		var confidence sql.NullFloat64
		var durationMS sql.NullInt64
		var responseToStep sql.NullInt64
		var coordinatorMode, escalation, shareable int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.StepNo, &ts, &e.Level, &e.Category, &e.BotName,
			&e.TriggeredBy, &e.Message, &detailsJSON, &confidence, &durationMS, &e.ToolName, &e.ToolInput,
			&e.ToolOutput, &e.ToolStatus, &mentionsCSV, &responseToStep, &coordinatorMode, &escalation,
			&shareable, &e.InsightCategory); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan log entry", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		_ = json.Unmarshal([]byte(detailsJSON), &e.Details)
		e.Mentions = splitCSV(mentionsCSV)
		if confidence.Valid {
			v := confidence.Float64
			e.Confidence = &v
		}
		if durationMS.Valid {
			v := durationMS.Int64
			e.DurationMS = &v
		}
		if responseToStep.Valid {
			v := int(responseToStep.Int64)
			e.ResponseToStep = &v
		}
		e.CoordinatorMode = coordinatorMode != 0
		e.Escalation = escalation != 0
		e.Shareable = shareable != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinCSV(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
