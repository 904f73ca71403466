// Package benchdb persists lockbench stress-run results to a local sqlite
// file so runs can be compared across strategies and machines.
package benchdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the results database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bench_runs (
			run_id           TEXT PRIMARY KEY,
			strategy         TEXT NOT NULL,
			workers          INTEGER NOT NULL,
			cells_per_axis   INTEGER NOT NULL,
			radius           INTEGER NOT NULL,
			rounds           INTEGER NOT NULL,
			attempts         BIGINT NOT NULL,
			acquired         BIGINT NOT NULL,
			conflicts        BIGINT NOT NULL,
			duration_ns      BIGINT NOT NULL,
			started_unix_ns  BIGINT NOT NULL
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bench_runs: %w", err)
	}

	return &DB{db}, nil
}

// Run is one lockbench execution summary.
type Run struct {
	RunID        string
	Strategy     string
	Workers      int
	CellsPerAxis int
	Radius       int
	Rounds       int
	Attempts     int64
	Acquired     int64
	Conflicts    int64
	Duration     time.Duration
	StartedAt    time.Time
}

// RecordRun inserts one run summary.
func (db *DB) RecordRun(r *Run) error {
	_, err := db.Exec(`
		INSERT INTO bench_runs (
			run_id, strategy, workers, cells_per_axis, radius, rounds,
			attempts, acquired, conflicts, duration_ns, started_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Strategy, r.Workers, r.CellsPerAxis, r.Radius, r.Rounds,
		r.Attempts, r.Acquired, r.Conflicts, int64(r.Duration), r.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert bench run %s: %w", r.RunID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, strategy, workers, cells_per_axis, radius, rounds,
		       attempts, acquired, conflicts, duration_ns, started_unix_ns
		FROM bench_runs
		ORDER BY started_unix_ns DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durNS, startNS int64
		if err := rows.Scan(
			&r.RunID, &r.Strategy, &r.Workers, &r.CellsPerAxis, &r.Radius, &r.Rounds,
			&r.Attempts, &r.Acquired, &r.Conflicts, &durNS, &startNS,
		); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durNS)
		r.StartedAt = time.Unix(0, startNS)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
