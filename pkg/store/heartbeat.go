package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// CheckResult is the outcome of one registered heartbeat check (spec §4.7).
type CheckResult struct {
	CheckName  string
	Passed     bool
	Message    string
	DurationMS int64
	Attempts   int
}

// HeartbeatTick is one scheduler beat for a bot: the set of checks it ran
// and their outcomes.
type HeartbeatTick struct {
	TickID      string
	BotName     string
	TriggerType string // scheduled|manual|startup_recovery
	TriggeredBy string
	StartedAt   time.Time
	EndedAt     time.Time
	Status      string // running|ok|degraded|failed|skipped
	Results     []CheckResult
}

// StartTick records the start of a heartbeat tick, returning its id.
func (s *Store) StartTick(botName, triggerType, triggeredBy string) (string, error) {
	id := uuid.NewString()
	_, err := s.WorkLog.Exec(`
		INSERT INTO heartbeat_ticks (tick_id, bot_name, trigger_type, triggered_by, started_at, status, results_json)
		VALUES (?, ?, ?, ?, ?, 'running', '[]')
	`, id, botName, triggerType, triggeredBy, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "start heartbeat tick", err)
	}
	return id, nil
}

// FinishTick records the final status and per-check results of a tick.
func (s *Store) FinishTick(tickID, status string, results []CheckResult) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		resultsJSON = []byte("[]")
	}
	_, err = s.WorkLog.Exec(`
		UPDATE heartbeat_ticks SET ended_at = ?, status = ?, results_json = ? WHERE tick_id = ?
	`, time.Now().UTC().Format(time.RFC3339), status, string(resultsJSON), tickID)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "finish heartbeat tick", err)
	}
	return nil
}

// LastTicks returns the most recent n heartbeat ticks for a bot, newest
// first.
func (s *Store) LastTicks(botName string, n int) ([]HeartbeatTick, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.WorkLog.Query(`
		SELECT tick_id, bot_name, trigger_type, triggered_by, started_at, ended_at, status, results_json
		FROM heartbeat_ticks WHERE bot_name = ? ORDER BY started_at DESC LIMIT ?
	`, botName, n)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query heartbeat ticks", err)
	}
	defer rows.Close()

	var out []HeartbeatTick
	for rows.Next() {
		var t HeartbeatTick
		var started, ended, resultsJSON string
		if err := rows.Scan(&t.TickID, &t.BotName, &t.TriggerType, &t.TriggeredBy, &started, &ended, &t.Status, &resultsJSON); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan heartbeat tick", err)
		}
		t.StartedAt, _ = time.Parse(time.RFC3339, started)
		if ended != "" {
			t.EndedAt, _ = time.Parse(time.RFC3339, ended)
		}
		_ = json.Unmarshal([]byte(resultsJSON), &t.Results)
		out = append(out, t)
	}
	return out, rows.Err()
}

// CircuitBreakerState is the persisted state of one bot's heartbeat circuit
// breaker (spec §4.7 state machine: closed, open, half_open).
type CircuitBreakerState struct {
	BotName      string
	State        string
	FailureCount int
	OpenedAt     time.Time
}

// GetCircuitBreaker loads a bot's breaker state, defaulting to closed with
// zero failures if none has been recorded yet.
func (s *Store) GetCircuitBreaker(botName string) (CircuitBreakerState, error) {
	var st CircuitBreakerState
	var openedAt string
	err := s.WorkLog.QueryRow(`
		SELECT bot_name, state, failure_count, opened_at FROM circuit_breaker_state WHERE bot_name = ?
	`, botName).Scan(&st.BotName, &st.State, &st.FailureCount, &openedAt)
	if err == sql.ErrNoRows {
		return CircuitBreakerState{BotName: botName, State: "closed"}, nil
	}
	if err != nil {
		return CircuitBreakerState{}, errkind.Wrap(errkind.StoreWrite, "get circuit breaker", err)
	}
	if openedAt != "" {
		st.OpenedAt, _ = time.Parse(time.RFC3339, openedAt)
	}
	return st, nil
}

// SetCircuitBreaker upserts a bot's breaker state.
func (s *Store) SetCircuitBreaker(st CircuitBreakerState) error {
	openedAt := ""
	if !st.OpenedAt.IsZero() {
		openedAt = st.OpenedAt.UTC().Format(time.RFC3339)
	}
	_, err := s.WorkLog.Exec(`
		INSERT INTO circuit_breaker_state (bot_name, state, failure_count, opened_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(bot_name) DO UPDATE SET state = excluded.state, failure_count = excluded.failure_count, opened_at = excluded.opened_at
	`, st.BotName, st.State, st.FailureCount, openedAt)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "set circuit breaker", err)
	}
	return nil
}
