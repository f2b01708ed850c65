package store

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// SummaryNode is one node of the hierarchical summary tree used to give
// long-lived sessions a bounded-size digest (spec §4.4): leaves cover
// individual event batches, internal nodes roll those up.
type SummaryNode struct {
	ID               string
	ParentID         string
	Scope            string // "session:<key>" | "room:<id>" | "bot:<name>"
	Content          string
	StalenessCounter int
	EventsCovered    []string
}

// PutSummaryNode creates a summary node.
func (s *Store) PutSummaryNode(n SummaryNode) (string, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.Memory.Exec(`
		INSERT INTO summary_nodes (id, parent_id, scope, content, staleness_counter, events_covered)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, n.ParentID, n.Scope, n.Content, n.StalenessCounter, joinCSV(n.EventsCovered))
	if err != nil {
		return "", errkind.Wrap(errkind.StoreWrite, "put summary node", err)
	}
	return id, nil
}

// GetSummaryTree returns the root and all descendants for a scope.
func (s *Store) GetSummaryTree(scope string) ([]SummaryNode, error) {
	rows, err := s.Memory.Query(`
		SELECT id, parent_id, scope, content, staleness_counter, events_covered
		FROM summary_nodes WHERE scope = ? ORDER BY parent_id ASC
	`, scope)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreWrite, "query summary tree", err)
	}
	defer rows.Close()

	var out []SummaryNode
	for rows.Next() {
		var n SummaryNode
		var eventsCovered string
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Scope, &n.Content, &n.StalenessCounter, &eventsCovered); err != nil {
			return nil, errkind.Wrap(errkind.StoreWrite, "scan summary node", err)
		}
		n.EventsCovered = splitCSV(eventsCovered)
		out = append(out, n)
	}
	return out, rows.Err()
}

// BumpStaleness increments a summary node's staleness counter; once it
// crosses the caller's refresh threshold the node is due for
// regeneration.
func (s *Store) BumpStaleness(nodeID string) (int, error) {
	_, err := s.Memory.Exec(`UPDATE summary_nodes SET staleness_counter = staleness_counter + 1 WHERE id = ?`, nodeID)
	if err != nil {
		return 0, errkind.Wrap(errkind.StoreWrite, "bump staleness", err)
	}
	var counter int
	if err := s.Memory.QueryRow(`SELECT staleness_counter FROM summary_nodes WHERE id = ?`, nodeID).Scan(&counter); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errkind.Wrap(errkind.StoreWrite, "read staleness", err)
	}
	return counter, nil
}

// RefreshSummaryNode replaces a node's content and resets its staleness
// counter.
func (s *Store) RefreshSummaryNode(nodeID, content string, eventsCovered []string) error {
	_, err := s.Memory.Exec(`
		UPDATE summary_nodes SET content = ?, staleness_counter = 0, events_covered = ? WHERE id = ?
	`, content, joinCSV(eventsCovered), nodeID)
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "refresh summary node", err)
	}
	return nil
}
