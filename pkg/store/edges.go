package store

import (
	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// Edge is a directed, predicated relation between two entities in the
// knowledge graph (spec §4.4), e.g. (alice, prefers, dark_mode).
type Edge struct {
	ID               string
	SubjectEntity    string
	Predicate        string
	ObjectEntity     string
	Confidence       float64
	EvidenceEventIDs []string
}

// UpsertEdge creates an edge or, if (subject, predicate, object) already
// exists, raises its confidence toward the new observation.
func (s *Store) UpsertEdge(e Edge) (string, error) {
	var id string
	var existingConfidence float64
	err := s.Memory.QueryRow(`
		SELECT id, confidence FROM edges WHERE subject_entity = ? AND predicate = ? AND object_entity = ?
	`, e.SubjectEntity, e.Predicate, e.ObjectEntity).Scan(&id, &existingConfidence)
	if err == nil {
		newConfidence := existingConfidence + (1-existingConfidence)*0.2
		if e.Confidence > newConfidence {
			newConfidence = e.Confidence
		}
		_, err := s.Memory.Exec(`UPDATE edges SET confidence = ? WHERE id = ?`, newConfidence, id)
		if err != nil {
			return "", errkind.Wrap(errkind.StoreWrite, "reinforce edge", err)
		}
		return id, nil
	}

	id = uuid.NewString()
	_, err = s.Memory.Exec(`
		INSERT INTO edges (id, subject_entity, predicate, object_entity, confidence, evidence_event_ids)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, e.SubjectEntity, e.Predicate, e.ObjectEntity, e.Confidence, joinCSV(e.EvidenceEventIDs))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "insert edge", err)
	}
	return id, nil
}

// EdgesForEntity returns every edge where entityID is the subject.
func (s *Store) EdgesForEntity(entityID string) ([]Edge, error) {
	rows, err := s.Memory.Query(`
		SELECT id, subject_entity, predicate, object_entity, confidence, evidence_event_ids
		FROM edges WHERE subject_entity = ?
	`, entityID)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query edges for entity", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var evidence string
		if err := rows.Scan(&e.ID, &e.SubjectEntity, &e.Predicate, &e.ObjectEntity, &e.Confidence, &evidence); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan edge", err)
		}
		e.EvidenceEventIDs = splitCSV(evidence)
		out = append(out, e)
	}
	return out, rows.Err()
}
