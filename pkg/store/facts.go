package store

import (
	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// Fact is a flat (subject, predicate, object) triple extracted from events,
// used for direct lookups that don't need graph traversal (spec §4.4).
type Fact struct {
	ID         string
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
	Source     string // event id or "learning_exchange"
}

// UpsertFact inserts a fact, or bumps confidence if the triple already
// exists.
func (s *Store) UpsertFact(f Fact) (string, error) {
	var id string
	err := s.Memory.QueryRow(`
		SELECT id FROM facts WHERE subject = ? AND predicate = ? AND object = ?
	`, f.Subject, f.Predicate, f.Object).Scan(&id)
	if err == nil {
		_, err := s.Memory.Exec(`UPDATE facts SET confidence = MAX(confidence, ?) WHERE id = ?`, f.Confidence, id)
		if err != nil {
			return "", errkind.Wrap(errkind.StoreWrite, "reinforce fact", err)
		}
		return id, nil
	}

	id = uuid.NewString()
	_, err = s.Memory.Exec(`
		INSERT INTO facts (id, subject, predicate, object, confidence, source) VALUES (?, ?, ?, ?, ?, ?)
	`, id, f.Subject, f.Predicate, f.Object, f.Confidence, f.Source)
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "insert fact", err)
	}
	return id, nil
}

// FactsAbout returns every fact with the given subject.
func (s *Store) FactsAbout(subject string) ([]Fact, error) {
	rows, err := s.Memory.Query(`SELECT id, subject, predicate, object, confidence, source FROM facts WHERE subject = ?`, subject)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query facts", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		var f Fact
		if err := rows.Scan(&f.ID, &f.Subject, &f.Predicate, &f.Object, &f.Confidence, &f.Source); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan fact", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
