// Package store optionally persists a simulation run's events to
// DuckDB: one row per node join, key store, search, and departure, so
// a run can be replayed or compared against another after the fact.
// Adapted from the driver's original sql.Open/schema-exec/prepared
// statement shape, repointed at this simulator's event log instead of
// ledger transactions and signatures.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	protocol TEXT NOT NULL,
	num_nodes INTEGER NOT NULL,
	num_switches INTEGER NOT NULL,
	started_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	kind TEXT NOT NULL,
	node_id UBIGINT NOT NULL,
	detail TEXT,
	hops INTEGER,
	recorded_at TIMESTAMP NOT NULL
);
`

// Store wraps a DuckDB connection holding one simulation run's event
// log. A zero DSN ("") opens an in-memory database, useful for tests
// that want the schema without a file on disk.
type Store struct {
	db  *sql.DB
	seq int
}

// Open opens (or creates) a DuckDB database at dsn and applies the
// schema. dsn follows database/sql conventions for the duckdb driver;
// "" means in-memory.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of the simulation run identified by runID,
// the same id later passed to RecordEvent.
func (s *Store) BeginRun(runID, protocol string, numNodes, numSwitches int, startedAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, protocol, num_nodes, num_switches, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, protocol, numNodes, numSwitches, startedAt,
	)
	if err != nil {
		return fmt.Errorf("store: begin run: %w", err)
	}
	return nil
}

// RecordEvent appends one event row for runID. hops is -1 when not
// applicable (e.g. a join event).
func (s *Store) RecordEvent(runID, kind string, nodeID uint64, detail string, hops int, at time.Time) error {
	s.seq++
	_, err := s.db.Exec(
		`INSERT INTO events (run_id, seq, kind, node_id, detail, hops, recorded_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, s.seq, kind, nodeID, detail, hops, at,
	)
	if err != nil {
		return fmt.Errorf("store: record event: %w", err)
	}
	return nil
}

// EventCount returns how many events have been recorded for runID,
// primarily for tests asserting persistence round-trips.
func (s *Store) EventCount(runID string) (int, error) {
	var n int
	row := s.db.QueryRow(`SELECT count(*) FROM events WHERE run_id = ?`, runID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count events: %w", err)
	}
	return n, nil
}
