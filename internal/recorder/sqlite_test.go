package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KisTrader/internal/model"
)

func openTemp(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordCycle_WithAttempts(t *testing.T) {
	r := openTemp(t)
	start := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	report := &model.CycleReport{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Outcome:    model.OutcomeCompleted,
		Positions:  3,
		Candidates: []string{"005930", "035420"},
		Attempts: []model.SellAttempt{
			{Symbol: "005930", PnlPercent: decimal.RequireFromString("5.1"), Sellable: 10, Submitted: true, Success: true, OrderNo: "0001"},
			{Symbol: "035420", PnlPercent: decimal.RequireFromString("10"), Message: "[APBK0919] rejected"},
		},
	}
	require.NoError(t, r.RecordCycle(report))

	rows, err := r.RecentCycles(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, CycleRow{
		RunID:      "run-1",
		StartedAt:  start.Unix(),
		FinishedAt: start.Add(3 * time.Second).Unix(),
		Outcome:    "COMPLETED",
		Positions:  3,
		Candidates: 2,
		Succeeded:  1,
	}, rows[0])

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM sell_orders WHERE run_id = ?`, "run-1").Scan(&n))
	assert.Equal(t, 2, n)

	var pnl string
	require.NoError(t, r.db.QueryRow(`SELECT pnl_percent FROM sell_orders WHERE symbol = ?`, "005930").Scan(&pnl))
	assert.Equal(t, "5.1", pnl)
}

func TestRecentCycles_NewestFirst(t *testing.T) {
	r := openTemp(t)
	base := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * 10 * time.Minute)
		require.NoError(t, r.RecordCycle(&model.CycleReport{RunID: id, StartedAt: at, FinishedAt: at, Outcome: model.OutcomeOutsideWindow}))
	}

	rows, err := r.RecentCycles(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0].RunID)
	assert.Equal(t, "b", rows[1].RunID)
	assert.Zero(t, rows[0].Candidates)
}

func TestRecordCycle_DuplicateRunIDRollsBack(t *testing.T) {
	r := openTemp(t)
	report := &model.CycleReport{RunID: "dup", Outcome: model.OutcomeCompleted,
		Attempts: []model.SellAttempt{{Symbol: "005930"}}}
	require.NoError(t, r.RecordCycle(report))
	require.Error(t, r.RecordCycle(report))

	var n int
	require.NoError(t, r.db.QueryRow(`SELECT COUNT(*) FROM sell_orders`).Scan(&n))
	assert.Equal(t, 1, n)
}
