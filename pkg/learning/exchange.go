// Package learning is the LearningExchange (spec §4.7, L9): promotes
// high-confidence private learnings into durably-queued packages and
// distributes them to applicable peer bots on each exchange cycle.
package learning

import (
	"sync"

	"github.com/crewcore/crew/pkg/logger"
	"github.com/crewcore/crew/pkg/store"
)

// Store is the subset of pkg/store's capability surface LearningExchange
// needs.
type Store interface {
	QueuePackage(p store.LearningPackage) (string, error)
	PromoteLearning(packageID string) error
	MarkDistributed(packageID string, toBots []string) error
	RejectLearning(packageID string) error
	GetPendingPackages() ([]store.LearningPackage, error)
	GetQueuedPackages() ([]store.LearningPackage, error)
	PutLearning(l store.Learning) (string, error)
}

var _ Store = (*store.Store)(nil)

// RoomInfo is the room metadata the exchange needs to infer a learning
// package's scope (spec §4.7: "Scope is inferred from the owning Room").
type RoomInfo struct {
	ID           string
	Kind         string // open|project|direct|coordination
	Participants []string
}

// Rooms resolves room metadata by id.
type Rooms interface {
	GetRoom(id string) (RoomInfo, bool)
}

// Receiver is a bot's registered callback for accepting a distributed
// learning package (spec §4.7 "receive-callback"). The default
// implementation (Adopt) converts the package into an owned Learning.
type Receiver func(bot string, p store.LearningPackage) error

// Exchange is the shareable-knowledge promotion and distribution engine.
// The shareable-category allowlist and min-confidence floor come from
// config; promotionThreshold gates Promote (spec default 0.85).
type Exchange struct {
	db                  Store
	rooms               Rooms
	promotionThreshold  float64
	shareableCategories map[string]bool
	autoApprove         bool

	mu        sync.Mutex
	receivers map[string]Receiver
	bots      []string
}

// New builds an Exchange. shareableCategories and autoApprove mirror the
// config.LearningExchange block (spec §6).
func New(db Store, rooms Rooms, promotionThreshold float64, shareableCategories []string, autoApprove bool) *Exchange {
	cats := map[string]bool{}
	for _, c := range shareableCategories {
		cats[c] = true
	}
	return &Exchange{
		db: db, rooms: rooms, promotionThreshold: promotionThreshold,
		shareableCategories: cats, autoApprove: autoApprove,
		receivers: map[string]Receiver{},
	}
}

// RegisterBot adds bot to the known roster (used for `general` scope
// fan-out) and registers its receive-callback. Pass nil for recv to use the
// default Adopt behavior.
func (e *Exchange) RegisterBot(bot string, recv Receiver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bots = append(e.bots, bot)
	if recv != nil {
		e.receivers[bot] = recv
	}
}

// MaybePromote builds and queues a LearningPackage if the learning crosses
// the promotion threshold and belongs to a shareable category (spec §4.7
// rule 1). sourceRoom is the room the triggering conversation happened in,
// used to infer scope.
func (e *Exchange) MaybePromote(ownerBot, category, title, description string, confidence float64, sourceRoom string, evidence []string) (string, error) {
	if confidence < e.promotionThreshold || !e.shareableCategories[category] {
		return "", nil
	}

	scope, applicableRooms, applicableBots := e.inferScope(ownerBot, sourceRoom)

	status := "queued"
	if e.autoApprove {
		status = "approved"
	}

	id, err := e.db.QueuePackage(store.LearningPackage{
		Category: category, Title: title, Description: description, Confidence: confidence,
		Scope: scope, ApplicableRooms: applicableRooms, ApplicableBots: applicableBots,
		SourceBot: ownerBot, SourceRoom: sourceRoom, Evidence: evidence, Status: status,
	})
	if err != nil {
		return "", err
	}
	if e.autoApprove {
		logger.InfoCF("learning", "package auto-approved", map[string]interface{}{"id": id, "scope": scope})
	}
	return id, nil
}

// inferScope maps a room to a LearningPackage scope per spec §4.7:
// general (open rooms), project (project rooms), bot_specific (direct
// rooms). "team" scope (explicit allowlists) is not inferable from room
// kind alone and must be set by a caller that already knows the allowlist.
func (e *Exchange) inferScope(ownerBot, sourceRoom string) (scope string, applicableRooms, applicableBots []string) {
	if sourceRoom == "" || e.rooms == nil {
		return "general", nil, nil
	}
	room, ok := e.rooms.GetRoom(sourceRoom)
	if !ok {
		return "general", nil, nil
	}
	switch room.Kind {
	case "open":
		return "general", nil, nil
	case "project":
		return "project", []string{room.ID}, nil
	case "direct":
		for _, p := range room.Participants {
			if p != ownerBot {
				return "bot_specific", nil, []string{p}
			}
		}
		return "bot_specific", nil, nil
	default:
		return "general", nil, nil
	}
}

// Approve moves a manually-queued package into the approved state (the
// manual-approval path when auto_approve=false, spec §9 Open Question 3).
func (e *Exchange) Approve(packageID string) error {
	return e.db.PromoteLearning(packageID)
}

// Reject discards a queued package.
func (e *Exchange) Reject(packageID string) error {
	return e.db.RejectLearning(packageID)
}

// RunCycle pops every approved package and distributes it to its applicable
// bot set, excluding the source bot (spec §4.7 rule 2).
func (e *Exchange) RunCycle() error {
	pending, err := e.db.GetPendingPackages()
	if err != nil {
		return err
	}
	for _, p := range pending {
		e.distribute(p)
	}
	return nil
}

func (e *Exchange) distribute(p store.LearningPackage) {
	applicable := e.applicableBots(p)

	var delivered []string
	for _, bot := range applicable {
		if bot == p.SourceBot {
			continue
		}
		recv := e.receiverFor(bot)
		if err := recv(bot, p); err != nil {
			logger.WarnCF("learning", "receive callback failed", map[string]interface{}{"package_id": p.ID, "bot": bot, "error": err.Error()})
			continue
		}
		delivered = append(delivered, bot)
	}

	if len(delivered) == 0 {
		logger.WarnCF("learning", "package had no successful recipients, leaving queued", map[string]interface{}{"package_id": p.ID})
		return
	}
	if err := e.db.MarkDistributed(p.ID, delivered); err != nil {
		logger.WarnCF("learning", "failed to mark package distributed", map[string]interface{}{"package_id": p.ID, "error": err.Error()})
	}
}

// applicableBots computes ApplicabilityRule per spec §4.7 rule 2.
func (e *Exchange) applicableBots(p store.LearningPackage) []string {
	e.mu.Lock()
	all := append([]string(nil), e.bots...)
	e.mu.Unlock()

	switch p.Scope {
	case "general":
		return all
	case "project":
		return e.botsInRooms(all, p.ApplicableRooms)
	case "team":
		return intersect(p.ApplicableBots, e.botsInRooms(all, p.ApplicableRooms))
	case "bot_specific":
		return p.ApplicableBots
	default:
		return nil
	}
}

func (e *Exchange) botsInRooms(bots, roomIDs []string) []string {
	if e.rooms == nil || len(roomIDs) == 0 {
		return nil
	}
	participantSet := map[string]bool{}
	for _, rid := range roomIDs {
		room, ok := e.rooms.GetRoom(rid)
		if !ok {
			continue
		}
		for _, p := range room.Participants {
			participantSet[p] = true
		}
	}
	var out []string
	for _, b := range bots {
		if participantSet[b] {
			out = append(out, b)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	bSet := map[string]bool{}
	for _, x := range b {
		bSet[x] = true
	}
	var out []string
	for _, x := range a {
		if bSet[x] {
			out = append(out, x)
		}
	}
	return out
}

func (e *Exchange) receiverFor(bot string) Receiver {
	e.mu.Lock()
	defer e.mu.Unlock()
	if r, ok := e.receivers[bot]; ok {
		return r
	}
	return func(bot string, p store.LearningPackage) error {
		return e.Adopt(bot, p)
	}
}

// Adopt is the default receive-callback: converts a package into a Learning
// owned by the receiving bot with source=learning_exchange and a fresh
// relevance_score=1.0 (spec §4.7 "Receiver contract").
func (e *Exchange) Adopt(bot string, p store.LearningPackage) error {
	_, err := e.db.PutLearning(store.Learning{
		OwnerBot: bot, Text: p.Description, Category: p.Category,
		Confidence: p.Confidence, RelevanceScore: 1.0, Source: "learning_exchange",
	})
	return err
}

// Recover loads all queued packages from the Store and reports them so a
// caller can rebuild any in-memory state (spec §4.7 "Startup recovery").
// The Exchange itself holds no queue beyond the Store — this just surfaces
// what's pending so callers (e.g. a CLI status command) can display it.
func (e *Exchange) Recover() ([]store.LearningPackage, error) {
	return e.db.GetQueuedPackages()
}
