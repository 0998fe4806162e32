package model

import "github.com/shopspring/decimal"

// Position is one held symbol, fetched fresh from the broker every cycle.
type Position struct {
	Symbol               string
	Name                 string
	HeldQuantity         int64
	OrderableQuantity    int64
	AvgCost              decimal.Decimal
	CurrentPrice         decimal.Decimal
	EvaluatedAmount      decimal.Decimal
	UnrealizedPnlAmount  decimal.Decimal
	UnrealizedPnlPercent decimal.Decimal
}

// AccountSummary is the account-level totals row of a balance inquiry.
type AccountSummary struct {
	Deposit           decimal.Decimal
	PurchaseAmount    decimal.Decimal
	EvaluatedAmount   decimal.Decimal
	UnrealizedPnl     decimal.Decimal
	TotalEvaluatedAmt decimal.Decimal
}

// Balance is the aggregate of every balance page.
type Balance struct {
	Positions []Position
	Summary   AccountSummary
	Pages     int
}
