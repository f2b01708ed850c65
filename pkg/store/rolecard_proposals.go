package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// SaveRoleCardProposal persists a bot-proposed role card diff as an
// unaccepted draft (spec §4.5: activation requires explicit user
// acceptance, never auto-applied).
func (s *Store) SaveRoleCardProposal(bot, diff, rationale string) (string, error) {
	id := uuid.NewString()
	_, err := s.WorkLog.Exec(`
		INSERT INTO role_card_proposals (id, bot, diff, rationale, accepted, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, id, bot, diff, rationale, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "save role card proposal", err)
	}
	return id, nil
}
