package memory

import (
	"strings"

	"github.com/crewcore/crew/pkg/store"
)

// GraphStore is a thin typed wrapper over the store's entity/edge/fact
// tables, giving the memory layer the same subject-predicate-object
// relation API the teacher's flat-file RelationStore exposed, but backed by
// the one true SQLite store instead of a second, parallel JSONL file.
type GraphStore struct {
	db *store.Store
}

// NewGraphStore wraps a Store's knowledge-graph tables.
func NewGraphStore(db *store.Store) *GraphStore {
	return &GraphStore{db: db}
}

// AddRelation records a (subject, predicate, object) triple, creating or
// reinforcing the entities and edge involved.
func (g *GraphStore) AddRelation(subject, predicate, object string, confidence float64, evidenceEventIDs []string) error {
	subjectID, err := g.db.UpsertEntity(store.Entity{CanonicalName: normalizeEntity(subject)})
	if err != nil {
		return err
	}
	objectID, err := g.db.UpsertEntity(store.Entity{CanonicalName: normalizeEntity(object)})
	if err != nil {
		return err
	}
	_, err = g.db.UpsertEdge(store.Edge{
		SubjectEntity:    subjectID,
		Predicate:        predicate,
		ObjectEntity:     objectID,
		Confidence:       confidence,
		EvidenceEventIDs: evidenceEventIDs,
	})
	return err
}

// Relation is a resolved (named) subject-predicate-object triple, the
// display form of a store.Edge.
type Relation struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// QueryEntity returns every relation (1-hop) where entity appears as
// subject.
func (g *GraphStore) QueryEntity(entity string) ([]Relation, error) {
	ent, found, err := g.db.FindEntityByName(normalizeEntity(entity))
	if err != nil || !found {
		return nil, err
	}
	edges, err := g.db.EdgesForEntity(ent.ID)
	if err != nil {
		return nil, err
	}

	byID := map[string]store.Entity{}
	all, err := g.db.AllEntities()
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		byID[e.ID] = e
	}

	var out []Relation
	for _, e := range edges {
		out = append(out, Relation{
			Subject:    ent.CanonicalName,
			Predicate:  e.Predicate,
			Object:     byID[e.ObjectEntity].CanonicalName,
			Confidence: e.Confidence,
		})
	}
	return out, nil
}

// FormatRelations renders relations as readable "subject → predicate →
// object" lines.
func FormatRelations(relations []Relation) string {
	if len(relations) == 0 {
		return ""
	}
	lines := make([]string, 0, len(relations))
	for _, r := range relations {
		lines = append(lines, r.Subject+" → "+r.Predicate+" → "+r.Object)
	}
	return strings.Join(lines, "\n")
}

func normalizeEntity(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
