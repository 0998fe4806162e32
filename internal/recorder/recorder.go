package recorder

import "KisTrader/internal/model"

// Recorder persists cycle history for analysis.
type Recorder interface {
	// RecordCycle writes the cycle and its sell attempts.
	RecordCycle(report *model.CycleReport) error
	// RecentCycles returns up to limit cycles, newest first. Attempts are not loaded.
	RecentCycles(limit int) ([]CycleRow, error)
	Close() error
}

// CycleRow is one journaled cycle.
type CycleRow struct {
	RunID      string
	StartedAt  int64
	FinishedAt int64
	Outcome    string
	Positions  int
	Candidates int
	Succeeded  int
}
