package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"KisTrader/internal/model"
)

// SelectSellCandidates returns, in balance order, the symbols whose unrealized P&L percent
// strictly exceeds threshold. A non-empty universe restricts the result to its symbols.
// A symbol repeated across balance pages is returned once.
func SelectSellCandidates(positions []model.Position, threshold decimal.Decimal, universe []string) []string {
	var allowed map[string]bool
	if len(universe) > 0 {
		allowed = make(map[string]bool, len(universe))
		for _, s := range universe {
			allowed[s] = true
		}
	}

	var out []string
	seen := make(map[string]bool)
	for _, p := range positions {
		if allowed != nil && !allowed[p.Symbol] {
			continue
		}
		if seen[p.Symbol] || !p.UnrealizedPnlPercent.GreaterThan(threshold) {
			continue
		}
		seen[p.Symbol] = true
		out = append(out, p.Symbol)
	}
	return out
}

// InWindow reports whether the wall-clock time of now in loc lies strictly between openAt and
// closeAt, both given as offsets from midnight.
func InWindow(now time.Time, openAt, closeAt time.Duration, loc *time.Location) bool {
	t := now.In(loc)
	tod := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return tod > openAt && tod < closeAt
}
