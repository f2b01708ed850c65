package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// Learning is a single bot's private, owned insight (spec §4.4, §4.9). One
// physical memory.db holds every bot's learnings; OwnerBot is the logical
// partition key (Open Question decision: no per-bot database files).
type Learning struct {
	ID             string
	OwnerBot       string
	Text           string
	Category       string
	Confidence     float64
	RelevanceScore float64
	Source         string // "self" | "learning_exchange" | originating bot name (Memory.AdoptLearning)
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

// PutLearning records a new learning owned by a bot.
func (s *Store) PutLearning(l Learning) (string, error) {
	id := l.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	relevance := l.RelevanceScore
	if relevance == 0 {
		relevance = 1.0
	}
	_, err := s.Memory.Exec(`
		INSERT INTO learnings (id, owner_bot, text, category, confidence, relevance_score, source, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, l.OwnerBot, l.Text, l.Category, l.Confidence, relevance, l.Source, now, now)
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "put learning", err)
	}
	return id, nil
}

// LearningsForBot returns every learning a bot owns, ordered by relevance
// descending.
func (s *Store) LearningsForBot(botName string) ([]Learning, error) {
	rows, err := s.Memory.Query(`
		SELECT id, owner_bot, text, category, confidence, relevance_score, source, created_at, last_used_at
		FROM learnings WHERE owner_bot = ? ORDER BY relevance_score DESC
	`, botName)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query learnings for bot", err)
	}
	defer rows.Close()

	var out []Learning
	for rows.Next() {
		var l Learning
		var created, lastUsed string
		if err := rows.Scan(&l.ID, &l.OwnerBot, &l.Text, &l.Category, &l.Confidence, &l.RelevanceScore, &l.Source, &created, &lastUsed); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan learning", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, created)
		l.LastUsedAt, _ = time.Parse(time.RFC3339, lastUsed)
		out = append(out, l)
	}
	return out, rows.Err()
}

// TouchLearning marks a learning as used now, for relevance decay bookkeeping.
func (s *Store) TouchLearning(id string) error {
	_, err := s.Memory.Exec(`UPDATE learnings SET last_used_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "touch learning", err)
	}
	return nil
}

// DecayRelevance applies a relevance score to a learning. The score is
// computed by the caller; nothing in crew calls it.
func (s *Store) DecayRelevance(id string, score float64) error {
	_, err := s.Memory.Exec(`UPDATE learnings SET relevance_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "decay learning relevance", err)
	}
	return nil
}
