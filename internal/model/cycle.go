package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleOutcome names the gate at which a decision cycle stopped.
type CycleOutcome string

const (
	OutcomeSkipped         CycleOutcome = "SKIPPED"
	OutcomeAuthFailed      CycleOutcome = "AUTH_FAILED"
	OutcomeCalendarUnknown CycleOutcome = "CALENDAR_UNKNOWN"
	OutcomeMarketClosed    CycleOutcome = "MARKET_CLOSED"
	OutcomeOutsideWindow   CycleOutcome = "OUTSIDE_WINDOW"
	OutcomeBalanceFailed   CycleOutcome = "BALANCE_FAILED"
	OutcomeCompleted       CycleOutcome = "COMPLETED"
)

// SellAttempt records what happened to one sell candidate.
type SellAttempt struct {
	Symbol     string
	PnlPercent decimal.Decimal
	Sellable   int64
	Submitted  bool
	Success    bool
	OrderNo    string
	Message    string
}

// CycleReport summarizes one decision cycle.
type CycleReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    CycleOutcome
	Positions  int
	Candidates []string
	Attempts   []SellAttempt
}

// Succeeded counts the attempts whose order was accepted.
func (r *CycleReport) Succeeded() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Success {
			n++
		}
	}
	return n
}
