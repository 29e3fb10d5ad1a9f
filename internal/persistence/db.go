// Package persistence stores drill run reports in SQLite.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/firedrill/internal/engine"
	"github.com/talgya/firedrill/internal/stats"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run reports.
type DB struct {
	conn *sqlx.DB
}

// Run is one stored run summary.
type Run struct {
	ID          string    `db:"id" json:"id"`
	StartedAt   time.Time `db:"started_at" json:"started_at"`
	Seed        int64     `db:"seed" json:"seed"`
	DurationSec float64   `db:"duration_sec" json:"duration_sec"`
	Ticks       int64     `db:"ticks" json:"ticks"`
	Spawned     int       `db:"spawned" json:"spawned"`
	Evacuated   int       `db:"evacuated" json:"evacuated"`
	FireDeaths  int       `db:"fire_deaths" json:"fire_deaths"`
	Culled      int       `db:"culled" json:"culled"`
	Remaining   int       `db:"remaining" json:"remaining"`
	FireNodes   int       `db:"fire_nodes" json:"fire_nodes"`
	PanicMean   float64   `db:"panic_mean" json:"panic_mean"`
	PanicStdDev float64   `db:"panic_stddev" json:"panic_stddev"`
}

// RunEvent is one stored agent removal.
type RunEvent struct {
	RunID   string  `db:"run_id" json:"run_id"`
	AtSec   float64 `db:"at_sec" json:"at_sec"`
	AgentID int64   `db:"agent_id" json:"agent_id"`
	Reason  string  `db:"reason" json:"reason"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		seed INTEGER NOT NULL,
		duration_sec REAL NOT NULL,
		ticks INTEGER NOT NULL,
		spawned INTEGER NOT NULL,
		evacuated INTEGER NOT NULL,
		fire_deaths INTEGER NOT NULL,
		culled INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		fire_nodes INTEGER NOT NULL,
		panic_mean REAL NOT NULL,
		panic_stddev REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		at_sec REAL NOT NULL,
		agent_id INTEGER NOT NULL,
		reason TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun stores a report and its removal events in one transaction and
// returns the new run ID.
func (db *DB) SaveRun(startedAt time.Time, r engine.RunReport) (string, error) {
	run := Run{
		ID:          uuid.NewString(),
		StartedAt:   startedAt.UTC(),
		Seed:        r.Seed,
		DurationSec: r.Duration.Seconds(),
		Ticks:       int64(r.Ticks),
		Spawned:     r.Spawned,
		Evacuated:   r.Evacuated,
		FireDeaths:  r.FireDeaths,
		Culled:      r.Culled,
		Remaining:   r.Remaining,
		FireNodes:   r.FireNodes,
		PanicMean:   r.PanicMean,
		PanicStdDev: r.PanicStdDev,
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO runs (
		id, started_at, seed, duration_sec, ticks, spawned, evacuated,
		fire_deaths, culled, remaining, fire_nodes, panic_mean, panic_stddev
	) VALUES (
		:id, :started_at, :seed, :duration_sec, :ticks, :spawned, :evacuated,
		:fire_deaths, :culled, :remaining, :fire_nodes, :panic_mean, :panic_stddev
	)`, run)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if err := saveEvents(tx, run.ID, r.Events); err != nil {
		return "", fmt.Errorf("insert events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	slog.Info("run saved", "id", run.ID, "evacuated", run.Evacuated, "fire_deaths", run.FireDeaths, "events", len(r.Events))
	return run.ID, nil
}

func saveEvents(tx *sqlx.Tx, runID string, events []stats.Event) error {
	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO run_events (run_id, at_sec, agent_id, reason) VALUES (?, ?, ?, ?)",
			runID, e.At.Seconds(), int64(e.AgentID), e.Reason.String(),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// GetRun returns one run by ID.
func (db *DB) GetRun(id string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return r, err
}

// RunEvents returns a run's removal events in time order.
func (db *DB) RunEvents(runID string) ([]RunEvent, error) {
	var events []RunEvent
	err := db.conn.Select(&events,
		"SELECT run_id, at_sec, agent_id, reason FROM run_events WHERE run_id = ? ORDER BY at_sec, id",
		runID,
	)
	return events, err
}
