package store

import (
	"database/sql"
	"time"

	"github.com/crewcore/crew/pkg/errkind"
)

// Room is a persisted named workspace scoping a subset of bots (spec §3).
type Room struct {
	ID                  string
	Kind                string
	Participants        []string
	Owner               string
	CreatedAt           time.Time
	CoordinatorMode     bool
	EscalationThreshold string
}

// UpsertRoom creates or updates a room record.
func (s *Store) UpsertRoom(r Room) error {
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.WorkLog.Exec(`
		INSERT INTO rooms (id, kind, participants, owner, created_at, coordinator_mode, escalation_threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind, participants = excluded.participants, owner = excluded.owner,
			coordinator_mode = excluded.coordinator_mode, escalation_threshold = excluded.escalation_threshold
	`, r.ID, r.Kind, joinCSV(r.Participants), r.Owner, createdAt.Format(time.RFC3339),
		boolToInt(r.CoordinatorMode), r.EscalationThreshold)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "upsert room", err)
	}
	return nil
}

// GetRoom looks up a room by id.
func (s *Store) GetRoom(id string) (Room, bool, error) {
	var r Room
	var createdAt string
	var participants string
	var coordinatorMode int
	err := s.WorkLog.QueryRow(`
		SELECT id, kind, participants, owner, created_at, coordinator_mode, escalation_threshold
		FROM rooms WHERE id = ?
	`, id).Scan(&r.ID, &r.Kind, &participants, &r.Owner, &createdAt, &coordinatorMode, &r.EscalationThreshold)
	if err == sql.ErrNoRows {
		return Room{}, false, nil
	}
	if err != nil {
		return Room{}, false, errkind.Wrap(errkind.StoreWrite, "get room", err)
	}
	r.Participants = splitCSV(participants)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.CoordinatorMode = coordinatorMode != 0
	return r, true, nil
}

// ListRooms returns every room.
func (s *Store) ListRooms() ([]Room, error) {
	rows, err := s.WorkLog.Query(`SELECT id, kind, participants, owner, created_at, coordinator_mode, escalation_threshold FROM rooms`)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "list rooms", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		var createdAt, participants string
		var coordinatorMode int
		if err := rows.Scan(&r.ID, &r.Kind, &participants, &r.Owner, &createdAt, &coordinatorMode, &r.EscalationThreshold); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan room", err)
		}
		r.Participants = splitCSV(participants)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.CoordinatorMode = coordinatorMode != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
