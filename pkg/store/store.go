// Package store is the durable SQLite-backed persistence layer (spec §4.2,
// L1). It is the only component allowed to issue SQL; everything else in the
// crew sees the typed capability methods defined across this package's
// files. Five WAL-mode SQLite files live under the workspace, one per
// logical store, per spec §6.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/crewcore/crew/pkg/errkind"
	"github.com/crewcore/crew/pkg/logger"
)

// Store owns every durable row in the system. Other components hold only
// ids/handles into it (spec §9 arena-style ownership).
type Store struct {
	Sessions *sql.DB // sessions.db
	WorkLog  *sql.DB // work_logs.db — also hosts rooms, heartbeat ticks, circuit breaker state
	Memory   *sql.DB // memory.db
	Learning *sql.DB // learning_exchange.db
	ToolOut  *sql.DB // tool_outputs.db
}

// Open opens (creating if necessary) the five SQLite files under
// workspace/store/ in WAL mode and applies schema migrations.
func Open(workspace string) (*Store, error) {
	dir := filepath.Join(workspace, "store")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	open := func(name string) (*sql.DB, error) {
		path := filepath.Join(dir, name)
		db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, WAL still allows concurrent readers via separate conns in general use, but we keep it simple and serialize through this handle.
		return db, nil
	}

	sessionsDB, err := open("sessions.db")
	if err != nil {
		return nil, err
	}
	workLogDB, err := open("work_logs.db")
	if err != nil {
		return nil, err
	}
	memoryDB, err := open("memory.db")
	if err != nil {
		return nil, err
	}
	learningDB, err := open("learning_exchange.db")
	if err != nil {
		return nil, err
	}
	toolOutDB, err := open("tool_outputs.db")
	if err != nil {
		return nil, err
	}

	s := &Store{
		Sessions: sessionsDB,
		WorkLog:  workLogDB,
		Memory:   memoryDB,
		Learning: learningDB,
		ToolOut:  toolOutDB,
	}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	logger.InfoCF("store", "opened durable stores", map[string]interface{}{"dir": dir})
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []struct {
		db   *sql.DB
		name string
		sql  string
	}{
		{s.Sessions, "sessions", sessionsSchema},
		{s.WorkLog, "work_logs", workLogSchema},
		{s.Memory, "memory", memorySchema},
		{s.Learning, "learning_exchange", learningSchema},
		{s.ToolOut, "tool_outputs", toolOutputSchema},
	}
	for _, m := range migrations {
		if _, err := m.db.Exec(m.sql); err != nil {
			return errkind.Wrap(errkind.StoreWrite, fmt.Sprintf("migrate %s schema", m.name), err)
		}
	}
	return nil
}

// Close closes all five underlying databases.
func (s *Store) Close() error {
	var firstErr error
	for _, db := range []*sql.DB{s.Sessions, s.WorkLog, s.Memory, s.Learning, s.ToolOut} {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// withTx runs fn inside a transaction on db, rolling back on error or panic.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errkind.Wrap(errkind.StoreWrite, "begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
