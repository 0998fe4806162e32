package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"KisTrader/internal/model"
)

const (
	pathSellable = "/uapi/domestic-stock/v1/trading/inquire-psbl-sell"
	pathOrder    = "/uapi/domestic-stock/v1/trading/order-cash"

	trSellable = "TTTC8408R"
	trSell     = "TTTC0801U"
	trBuy      = "TTTC0802U"
)

type sellableResponse struct {
	envelope
	Output struct {
		Symbol       string `json:"pdno"`
		Name         string `json:"prdt_name"`
		OrderableQty string `json:"ord_psbl_qty"`
	} `json:"output"`
}

// FetchSellableQuantity asks how many shares of symbol can be sold now. A broker-reported
// failure is returned in ResultCode with a nil error; only transport faults are errors.
func (c *Client) FetchSellableQuantity(ctx context.Context, symbol string) (*model.SellableQuantity, error) {
	q := url.Values{}
	q.Set("CANO", c.creds.AccountPrefix)
	q.Set("ACNT_PRDT_CD", c.creds.AccountSuffix)
	q.Set("PDNO", symbol)

	var resp sellableResponse
	_, err := c.do(ctx, request{
		endpoint: "sellable",
		method:   http.MethodGet,
		path:     pathSellable,
		auth:     authFull,
		trID:     trSellable,
		query:    q,
	}, &resp)
	if err != nil {
		if apiErr, ok := businessFailure(err); ok {
			return &model.SellableQuantity{Symbol: symbol, ResultCode: apiErr.Code, MsgCode: apiErr.MsgCode, Message: apiErr.Message}, nil
		}
		return nil, err
	}

	out := &model.SellableQuantity{
		Symbol:     symbol,
		ResultCode: resp.RtCd,
		MsgCode:    resp.MsgCd,
		Message:    resp.Msg1,
	}
	if out.OK() {
		qty, err := parseQty(resp.Output.OrderableQty)
		if err != nil {
			return nil, fmt.Errorf("sellable: parse ord_psbl_qty %q: %w", resp.Output.OrderableQty, err)
		}
		out.Quantity = qty
	}
	return out, nil
}

type orderResponse struct {
	envelope
	Output struct {
		BranchNo  string `json:"KRX_FWDG_ORD_ORGNO"`
		OrderNo   string `json:"ODNO"`
		OrderTime string `json:"ORD_TMD"`
	} `json:"output"`
}

// PlaceOrder submits a cash order. The payload is hashed by the broker first and the hash
// travels in the hashkey header.
func (c *Client) PlaceOrder(ctx context.Context, side model.OrderSide, symbol string, qty int64, orderType string, price int64) (*model.OrderResult, error) {
	trID := trSell
	if side == model.SideBuy {
		trID = trBuy
	}
	payload := map[string]string{
		"CANO":         c.creds.AccountPrefix,
		"ACNT_PRDT_CD": c.creds.AccountSuffix,
		"PDNO":         symbol,
		"ORD_DVSN":     orderType,
		"ORD_QTY":      strconv.FormatInt(qty, 10),
		"ORD_UNPR":     strconv.FormatInt(price, 10),
	}

	hash, err := c.Hash(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("order %s %s: %w", side, symbol, err)
	}

	result := &model.OrderResult{Symbol: symbol, Side: side, Quantity: qty}
	var resp orderResponse
	_, err = c.do(ctx, request{
		endpoint: "order",
		method:   http.MethodPost,
		path:     pathOrder,
		auth:     authFull,
		trID:     trID,
		body:     payload,
		headers:  map[string]string{"hashkey": hash},
	}, &resp)
	if err != nil {
		if apiErr, ok := businessFailure(err); ok {
			result.ResultCode, result.MsgCode, result.Message = apiErr.Code, apiErr.MsgCode, apiErr.Message
			return result, nil
		}
		return nil, err
	}

	result.ResultCode = resp.RtCd
	result.MsgCode = resp.MsgCd
	result.Message = resp.Msg1
	result.BranchNo = resp.Output.BranchNo
	result.OrderNo = resp.Output.OrderNo
	result.OrderTime = resp.Output.OrderTime
	return result, nil
}

// PlaceMarketSellOrder sells qty shares of symbol at market.
func (c *Client) PlaceMarketSellOrder(ctx context.Context, symbol string, qty int64) (*model.OrderResult, error) {
	return c.PlaceOrder(ctx, model.SideSell, symbol, qty, model.OrderTypeMarket, 0)
}
