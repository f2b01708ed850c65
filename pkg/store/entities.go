package store

import (
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// Entity is a canonicalized node in the knowledge graph: a person, project,
// preference, or other recurring subject (spec §4.4).
type Entity struct {
	ID            string
	CanonicalName string
	Aliases       []string
	Type          string
	Embedding     []float32
	LastSeen      time.Time
}

// UpsertEntity creates or touches an entity, merging aliases.
func (s *Store) UpsertEntity(e Entity) (string, error) {
	existing, found, err := s.FindEntityByName(e.CanonicalName)
	if err != nil {
		return "", err
	}
	if found {
		merged := mergeAliases(existing.Aliases, e.Aliases)
		_, err := s.Memory.Exec(`
			UPDATE entities SET aliases = ?, last_seen = ?, embedding = COALESCE(?, embedding) WHERE id = ?
		`, joinCSV(merged), time.Now().UTC().Format(time.RFC3339), nullableEmbedding(e.Embedding), existing.ID)
		if err != nil {
			return "", errkind.Wrap(errkind.StoreWrite, "touch entity", err)
		}
		return existing.ID, nil
	}

	id := uuid.NewString()
	_, err = s.Memory.Exec(`
		INSERT INTO entities (id, canonical_name, aliases, type, embedding, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, e.CanonicalName, joinCSV(e.Aliases), e.Type, encodeEmbedding(e.Embedding), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "insert entity", err)
	}
	return id, nil
}

func nullableEmbedding(v []float32) interface{} {
	if len(v) == 0 {
		return nil
	}
	return encodeEmbedding(v)
}

func mergeAliases(existing, add []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range existing {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	for _, a := range add {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

// FindEntityByName looks up an entity by its canonical name.
func (s *Store) FindEntityByName(name string) (Entity, bool, error) {
	var e Entity
	var aliases, lastSeen string
	var embedding []byte
	err := s.Memory.QueryRow(`
		SELECT id, canonical_name, aliases, type, embedding, last_seen FROM entities WHERE canonical_name = ?
	`, name).Scan(&e.ID, &e.CanonicalName, &aliases, &e.Type, &embedding, &lastSeen)
	if err == sql.ErrNoRows {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, errkind.Wrap(errkind.StoreWrite, "find entity by name", err)
	}
	e.Aliases = splitCSV(aliases)
	e.Embedding = decodeEmbedding(embedding)
	e.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	return e, true, nil
}

// AllEntities returns every entity, for use by search_similar_entities and
// backfill passes.
func (s *Store) AllEntities() ([]Entity, error) {
	rows, err := s.Memory.Query(`SELECT id, canonical_name, aliases, type, embedding, last_seen FROM entities`)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "list entities", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		var aliases, lastSeen string
		var embedding []byte
		if err := rows.Scan(&e.ID, &e.CanonicalName, &aliases, &e.Type, &embedding, &lastSeen); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan entity", err)
		}
		e.Aliases = splitCSV(aliases)
		e.Embedding = decodeEmbedding(embedding)
		e.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SimilarEntity is one scored match from SearchSimilarEntities.
type SimilarEntity struct {
	Entity Entity
	Score  float64 // cosine similarity, [-1, 1]
}

// SearchSimilarEntities does an in-process cosine-similarity scan over every
// entity's embedding (spec §4.4 non-obvious operation). This is a brute
// force scan, independent of the chromem-go vector index; nothing else in
// crew calls it.
func (s *Store) SearchSimilarEntities(query []float32, topK int) ([]SimilarEntity, error) {
	all, err := s.AllEntities()
	if err != nil {
		return nil, err
	}
	var scored []SimilarEntity
	for _, e := range all {
		if len(e.Embedding) == 0 {
			continue
		}
		scored = append(scored, SimilarEntity{Entity: e, Score: cosineSimilarity(query, e.Embedding)})
	}
	// simple insertion sort descending by score — entity counts are small
	// enough per-bot that this beats pulling in a sort-package dependency
	// discussion; net is O(n^2) worst case but n is bounded by a bot's graph.
	for i := 1; i < len(scored); i++ {
		j := i
		for j > 0 && scored[j-1].Score < scored[j].Score {
			scored[j-1], scored[j] = scored[j], scored[j-1]
			j--
		}
	}
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
