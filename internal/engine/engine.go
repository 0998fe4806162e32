// Package engine runs the profit-taking decision cycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"KisTrader/internal/metrics"
	"KisTrader/internal/model"
	"KisTrader/internal/notifier"
	"KisTrader/internal/recorder"
)

// ErrUnauthenticated is returned by manual actions when no valid token can be obtained.
var ErrUnauthenticated = errors.New("broker token unavailable")

// TokenValidator makes sure a usable bearer token is held.
type TokenValidator interface {
	EnsureValid(ctx context.Context) bool
}

// CalendarChecker answers whether the exchange is open today.
type CalendarChecker interface {
	IsOpenToday(ctx context.Context) model.OpenStatus
}

// Broker is the subset of the broker client the engine trades through.
type Broker interface {
	FetchBalance(ctx context.Context) (*model.Balance, error)
	FetchSellableQuantity(ctx context.Context, symbol string) (*model.SellableQuantity, error)
	PlaceMarketSellOrder(ctx context.Context, symbol string, qty int64) (*model.OrderResult, error)
}

// Settings are the trading parameters of the cycle.
type Settings struct {
	// Threshold is the unrealized P&L percent a position must strictly exceed to be sold.
	Threshold decimal.Decimal
	// Universe limits selling to these symbols. Empty means every holding.
	Universe    []string
	WindowOpen  time.Duration
	WindowClose time.Duration
	Location    *time.Location
}

// Engine is not reentrant: one cycle or manual action at a time.
type Engine struct {
	mu       sync.Mutex
	tokens   TokenValidator
	calendar CalendarChecker
	broker   Broker
	settings Settings
	recorder recorder.Recorder
	notifier notifier.Notifier
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRecorder journals every cycle.
func WithRecorder(r recorder.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithNotifier reports sell activity.
func WithNotifier(n notifier.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine.
func New(tokens TokenValidator, calendar CalendarChecker, broker Broker, settings Settings, opts ...Option) *Engine {
	if settings.Location == nil {
		settings.Location = time.Local
	}
	e := &Engine{
		tokens:   tokens,
		calendar: calendar,
		broker:   broker,
		settings: settings,
		recorder: recorder.NewNoopRecorder(),
		notifier: notifier.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunCycle executes one decision cycle. If the engine is busy the cycle is skipped.
func (e *Engine) RunCycle(ctx context.Context) *model.CycleReport {
	report := &model.CycleReport{RunID: uuid.NewString(), StartedAt: e.now()}
	if !e.mu.TryLock() {
		log.Printf("[INFO] cycle %s skipped: a cycle or an operator command (/test, /balance) holds the engine, next tick retries", report.RunID)
		report.Outcome = model.OutcomeSkipped
		e.finish(ctx, report)
		return report
	}
	defer e.mu.Unlock()

	report.Outcome = e.run(ctx, report)
	e.finish(ctx, report)
	return report
}

func (e *Engine) run(ctx context.Context, report *model.CycleReport) model.CycleOutcome {
	if !e.tokens.EnsureValid(ctx) {
		log.Printf("[WARN] cycle %s: authentication failed", report.RunID)
		return model.OutcomeAuthFailed
	}

	switch status := e.calendar.IsOpenToday(ctx); status {
	case model.OpenYes:
	case model.OpenNo:
		log.Printf("[INFO] cycle %s: market closed today", report.RunID)
		return model.OutcomeMarketClosed
	default:
		log.Printf("[WARN] cycle %s: market calendar undetermined", report.RunID)
		return model.OutcomeCalendarUnknown
	}

	now := e.now()
	if !InWindow(now, e.settings.WindowOpen, e.settings.WindowClose, e.settings.Location) {
		log.Printf("[INFO] cycle %s: %s outside trading window", report.RunID, now.In(e.settings.Location).Format("15:04:05"))
		return model.OutcomeOutsideWindow
	}

	bal, err := e.broker.FetchBalance(ctx)
	if err != nil {
		log.Printf("[ERROR] cycle %s: fetch balance: %v", report.RunID, err)
		return model.OutcomeBalanceFailed
	}
	report.Positions = len(bal.Positions)
	metrics.SetPositions(len(bal.Positions))

	report.Candidates = SelectSellCandidates(bal.Positions, e.settings.Threshold, e.settings.Universe)
	log.Printf("[INFO] cycle %s: %d positions, %d above %s%%", report.RunID, len(bal.Positions), len(report.Candidates), e.settings.Threshold)

	pnl := make(map[string]decimal.Decimal, len(bal.Positions))
	for _, p := range bal.Positions {
		pnl[p.Symbol] = p.UnrealizedPnlPercent
	}
	for _, symbol := range report.Candidates {
		report.Attempts = append(report.Attempts, e.sell(ctx, symbol, pnl[symbol]))
	}
	return model.OutcomeCompleted
}

// sell liquidates the full sellable quantity of one symbol. Failures stay local to the symbol.
func (e *Engine) sell(ctx context.Context, symbol string, pnl decimal.Decimal) model.SellAttempt {
	attempt := model.SellAttempt{Symbol: symbol, PnlPercent: pnl}

	q, err := e.broker.FetchSellableQuantity(ctx, symbol)
	if err != nil {
		attempt.Message = err.Error()
		log.Printf("[ERROR] sellable quantity %s: %v", symbol, err)
		return attempt
	}
	if !q.OK() {
		attempt.Message = fmt.Sprintf("[%s] %s", q.MsgCode, q.Message)
		log.Printf("[WARN] sellable quantity %s rejected: rt_cd=%s %s", symbol, q.ResultCode, attempt.Message)
		return attempt
	}
	attempt.Sellable = q.Quantity
	if q.Quantity <= 0 {
		attempt.Message = "no sellable quantity"
		log.Printf("[INFO] %s: nothing sellable", symbol)
		return attempt
	}

	attempt.Submitted = true
	res, err := e.broker.PlaceMarketSellOrder(ctx, symbol, q.Quantity)
	if err != nil {
		attempt.Message = err.Error()
		metrics.IncOrder(string(model.SideSell), false)
		log.Printf("[ERROR] sell %s x%d: %v", symbol, q.Quantity, err)
		return attempt
	}
	attempt.Success = res.OK()
	attempt.OrderNo = res.OrderNo
	attempt.Message = res.Message
	metrics.IncOrder(string(model.SideSell), res.OK())
	if res.OK() {
		log.Printf("[INFO] sell %s x%d accepted, order %s", symbol, q.Quantity, res.OrderNo)
	} else {
		log.Printf("[WARN] sell %s x%d rejected: rt_cd=%s [%s] %s", symbol, q.Quantity, res.ResultCode, res.MsgCode, res.Message)
	}
	return attempt
}

func (e *Engine) finish(ctx context.Context, report *model.CycleReport) {
	report.FinishedAt = e.now()
	metrics.ObserveCycle(string(report.Outcome), report.FinishedAt.Sub(report.StartedAt))
	if err := e.recorder.RecordCycle(report); err != nil {
		log.Printf("[ERROR] record cycle %s: %v", report.RunID, err)
	}
	if len(report.Attempts) > 0 {
		e.notifier.Notify(ctx, notifier.FormatCycleReport(report))
	}
}

// CheckToken validates the token on demand. It waits for a running cycle to finish.
func (e *Engine) CheckToken(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens.EnsureValid(ctx)
}

// Balance fetches the aggregated balance on demand. It waits for a running cycle to finish.
func (e *Engine) Balance(ctx context.Context) (*model.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tokens.EnsureValid(ctx) {
		return nil, ErrUnauthenticated
	}
	return e.broker.FetchBalance(ctx)
}
