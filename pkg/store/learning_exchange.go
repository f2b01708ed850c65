package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/crewcore/crew/pkg/errkind"
)

// LearningPackage is a candidate insight proposed for cross-bot
// distribution, queued in learning_exchange.db pending approval and
// delivery (spec §4.9).
type LearningPackage struct {
	ID               string
	Category         string
	Title            string
	Description      string
	Confidence       float64
	Scope            string // general|project|team|bot_specific
	ApplicableRooms  []string
	ApplicableBots   []string
	SourceBot        string
	SourceRoom       string
	Evidence         []string
	Status           string // queued|approved|distributed|rejected
	DistributedTo    []string
	CreatedAt        time.Time
}

// QueuePackage inserts a new candidate learning package, status "queued".
func (s *Store) QueuePackage(p LearningPackage) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := p.Status
	if status == "" {
		status = "queued"
	}
	_, err := s.Learning.Exec(`
		INSERT INTO queued_packages (
			id, category, title, description, confidence, scope, applicable_rooms, applicable_bots,
			source_bot, source_room, evidence, status, distributed_to, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, p.Category, p.Title, p.Description, p.Confidence, p.Scope, joinCSV(p.ApplicableRooms),
		joinCSV(p.ApplicableBots), p.SourceBot, p.SourceRoom, joinCSV(p.Evidence), status,
		joinCSV(p.DistributedTo), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", errkind.Wrap(errkind.LearningDistribution, "queue learning package", err)
	}
	return id, nil
}

// PromoteLearning marks a queued package approved, the step that makes it
// eligible for distribution. Separated from QueuePackage so the manual
// approval path (learning_exchange.auto_approve = false) has a place to
// hook in (spec §9 Open Question decision: auto_approve is authoritative
// when true, manual approval required when false).
func (s *Store) PromoteLearning(packageID string) error {
	_, err := s.Learning.Exec(`UPDATE queued_packages SET status = 'approved' WHERE id = ? AND status = 'queued'`, packageID)
	if err != nil {
		return errkind.Wrap(errkind.LearningDistribution, "promote learning package", err)
	}
	return nil
}

// MarkDistributed records which bots a package was delivered to and flips
// it to status "distributed".
func (s *Store) MarkDistributed(packageID string, toBots []string) error {
	_, err := s.Learning.Exec(`
		UPDATE queued_packages SET status = 'distributed', distributed_to = ? WHERE id = ?
	`, joinCSV(toBots), packageID)
	if err != nil {
		return errkind.Wrap(errkind.LearningDistribution, "mark learning distributed", err)
	}
	return nil
}

// RejectLearning flips a package to status "rejected" (manual-approval path).
func (s *Store) RejectLearning(packageID string) error {
	_, err := s.Learning.Exec(`UPDATE queued_packages SET status = 'rejected' WHERE id = ? AND status = 'queued'`, packageID)
	if err != nil {
		return errkind.Wrap(errkind.LearningDistribution, "reject learning package", err)
	}
	return nil
}

// GetPendingPackages returns every approved-but-not-yet-distributed
// package, used both by the live distribution loop and by startup recovery
// (spec §4.9).
func (s *Store) GetPendingPackages() ([]LearningPackage, error) {
	rows, err := s.Learning.Query(`
		SELECT id, category, title, description, confidence, scope, applicable_rooms, applicable_bots,
			source_bot, source_room, evidence, status, distributed_to, created_at
		FROM queued_packages WHERE status = 'approved' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errkind.Wrap(errkind.LearningDistribution, "query pending packages", err)
	}
	defer rows.Close()
	return scanPackages(rows)
}

// GetQueuedPackages returns packages awaiting manual approval.
func (s *Store) GetQueuedPackages() ([]LearningPackage, error) {
	rows, err := s.Learning.Query(`
		SELECT id, category, title, description, confidence, scope, applicable_rooms, applicable_bots,
			source_bot, source_room, evidence, status, distributed_to, created_at
		FROM queued_packages WHERE status = 'queued' ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, errkind.Wrap(errkind.LearningDistribution, "query queued packages", err)
	}
	defer rows.Close()
	return scanPackages(rows)
}

func scanPackages(rows *sql.Rows) ([]LearningPackage, error) {
	var out []LearningPackage
	for rows.Next() {
		var p LearningPackage
		var rooms, bots, evidence, distributedTo, createdAt string
		if err := rows.Scan(&p.ID, &p.Category, &p.Title, &p.Description, &p.Confidence, &p.Scope,
			&rooms, &bots, &p.SourceBot, &p.SourceRoom, &evidence, &p.Status, &distributedTo, &createdAt); err != nil {
			return nil, errkind.Wrap(errkind.LearningDistribution, "scan learning package", err)
		}
		p.ApplicableRooms = splitCSV(rooms)
		p.ApplicableBots = splitCSV(bots)
		p.Evidence = splitCSV(evidence)
		p.DistributedTo = splitCSV(distributedTo)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
