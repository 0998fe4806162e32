package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"KisTrader/internal/model"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			run_id      TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			positions   INTEGER,
			candidates  TEXT,
			succeeded   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS sell_orders (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id      TEXT NOT NULL REFERENCES cycles(run_id),
			symbol      TEXT NOT NULL,
			pnl_percent TEXT,
			sellable    INTEGER,
			submitted   INTEGER,
			success     INTEGER,
			order_no    TEXT,
			message     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sell_orders_run ON sell_orders(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(report *model.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO cycles
		(run_id, started_at, finished_at, outcome, positions, candidates, succeeded)
		VALUES (?,?,?,?,?,?,?)`,
		report.RunID, report.StartedAt.Unix(), report.FinishedAt.Unix(), string(report.Outcome),
		report.Positions, strings.Join(report.Candidates, ","), report.Succeeded(),
	); err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, a := range report.Attempts {
		if _, err := tx.Exec(`INSERT INTO sell_orders
			(run_id, symbol, pnl_percent, sellable, submitted, success, order_no, message)
			VALUES (?,?,?,?,?,?,?,?)`,
			report.RunID, a.Symbol, a.PnlPercent.String(), a.Sellable,
			a.Submitted, a.Success, a.OrderNo, a.Message,
		); err != nil {
			return fmt.Errorf("insert sell order %s: %w", a.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecentCycles(limit int) ([]CycleRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT run_id, started_at, finished_at, outcome, positions, candidates, succeeded
		FROM cycles ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CycleRow
	for rows.Next() {
		var c CycleRow
		var candidates string
		if err := rows.Scan(&c.RunID, &c.StartedAt, &c.FinishedAt, &c.Outcome, &c.Positions, &candidates, &c.Succeeded); err != nil {
			return nil, err
		}
		if candidates != "" {
			c.Candidates = len(strings.Split(candidates, ","))
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
