package model

// ResultOK is the broker's rt_cd for success.
const ResultOK = "0"

// OrderSide selects the transaction code of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Order type codes (ORD_DVSN).
const (
	OrderTypeLimit  = "00"
	OrderTypeMarket = "01"
)

// SellableQuantity is the answer of the sellable-quantity query.
type SellableQuantity struct {
	Symbol     string
	Quantity   int64
	ResultCode string
	MsgCode    string
	Message    string
}

// OK reports whether the broker accepted the query.
func (q *SellableQuantity) OK() bool { return q.ResultCode == ResultOK }

// OrderResult is the broker's answer to an order submission.
type OrderResult struct {
	Symbol     string
	Side       OrderSide
	Quantity   int64
	OrderNo    string
	OrderTime  string
	BranchNo   string
	ResultCode string
	MsgCode    string
	Message    string
}

// OK reports whether the broker accepted the order.
func (r *OrderResult) OK() bool { return r.ResultCode == ResultOK }
