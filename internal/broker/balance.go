package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"KisTrader/internal/model"
)

const (
	pathBalance = "/uapi/domestic-stock/v1/trading/inquire-balance"
	trBalance   = "TTTC8434R"
)

// Cursor carries the continuation tokens of a balance inquiry. The zero value asks for the first page.
type Cursor struct {
	FK100 string
	NK100 string
}

// BalancePage is one page of a balance inquiry.
type BalancePage struct {
	Positions []model.Position
	Summary   model.AccountSummary
	Next      Cursor
	// TrCont is the continuation flag from the response header: F/M more, D/E done.
	TrCont string
}

// More reports whether another page follows.
func (p *BalancePage) More() bool {
	return p.TrCont == "F" || p.TrCont == "M"
}

type balanceRow struct {
	Symbol       string `json:"pdno"`
	Name         string `json:"prdt_name"`
	HeldQty      string `json:"hldg_qty"`
	OrderableQty string `json:"ord_psbl_qty"`
	AvgPrice     string `json:"pchs_avg_pric"`
	Price        string `json:"prpr"`
	EvalAmount   string `json:"evlu_amt"`
	PnlAmount    string `json:"evlu_pfls_amt"`
	PnlRate      string `json:"evlu_pfls_rt"`
}

type balanceSummaryRow struct {
	Deposit        string `json:"dnca_tot_amt"`
	PurchaseAmount string `json:"pchs_amt_smtl_amt"`
	EvalAmount     string `json:"evlu_amt_smtl_amt"`
	PnlAmount      string `json:"evlu_pfls_smtl_amt"`
	TotalEvalAmt   string `json:"tot_evlu_amt"`
}

type balanceResponse struct {
	envelope
	CtxAreaFK100 string              `json:"ctx_area_fk100"`
	CtxAreaNK100 string              `json:"ctx_area_nk100"`
	Output1      []balanceRow        `json:"output1"`
	Output2      []balanceSummaryRow `json:"output2"`
}

// FetchBalancePage requests one page. A nil cursor asks for the first page.
func (c *Client) FetchBalancePage(ctx context.Context, cursor *Cursor) (*BalancePage, error) {
	q := url.Values{}
	q.Set("CANO", c.creds.AccountPrefix)
	q.Set("ACNT_PRDT_CD", c.creds.AccountSuffix)
	q.Set("AFHR_FLPR_YN", "N")
	q.Set("OFL_YN", "")
	q.Set("INQR_DVSN", "02")
	q.Set("UNPR_DVSN", "01")
	q.Set("FUND_STTL_ICLD_YN", "N")
	q.Set("FNCG_AMT_AUTO_RDPT_YN", "N")
	q.Set("PRCS_DVSN", "01")
	trCont := ""
	if cursor != nil {
		q.Set("CTX_AREA_FK100", cursor.FK100)
		q.Set("CTX_AREA_NK100", cursor.NK100)
		trCont = "N"
	} else {
		q.Set("CTX_AREA_FK100", "")
		q.Set("CTX_AREA_NK100", "")
	}

	var resp balanceResponse
	header, err := c.do(ctx, request{
		endpoint: "balance",
		method:   http.MethodGet,
		path:     pathBalance,
		auth:     authFull,
		trID:     trBalance,
		trCont:   trCont,
		query:    q,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope("balance", resp.envelope); err != nil {
		return nil, err
	}

	page := &BalancePage{
		Next:   Cursor{FK100: resp.CtxAreaFK100, NK100: resp.CtxAreaNK100},
		TrCont: strings.TrimSpace(header.Get("tr_cont")),
	}
	for _, row := range resp.Output1 {
		p, err := row.position()
		if err != nil {
			return nil, fmt.Errorf("balance: row %s: %w", row.Symbol, err)
		}
		page.Positions = append(page.Positions, p)
	}
	if len(resp.Output2) > 0 {
		s, err := resp.Output2[0].summary()
		if err != nil {
			return nil, fmt.Errorf("balance: summary: %w", err)
		}
		page.Summary = s
	}
	return page, nil
}

// FetchBalance follows the continuation flag until a terminal page and concatenates positions
// in page order. It gives up with ErrPageLimit after the configured number of pages.
func (c *Client) FetchBalance(ctx context.Context) (*model.Balance, error) {
	bal := &model.Balance{}
	var cursor *Cursor
	for {
		if bal.Pages >= c.maxPages {
			return nil, fmt.Errorf("%w after %d pages", ErrPageLimit, bal.Pages)
		}
		page, err := c.FetchBalancePage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		bal.Pages++
		bal.Positions = append(bal.Positions, page.Positions...)
		bal.Summary = page.Summary
		if !page.More() {
			return bal, nil
		}
		next := page.Next
		cursor = &next
	}
}

func (r balanceRow) position() (model.Position, error) {
	var p model.Position
	var err error
	p.Symbol = r.Symbol
	p.Name = r.Name
	if p.HeldQuantity, err = parseQty(r.HeldQty); err != nil {
		return p, err
	}
	if p.OrderableQuantity, err = parseQty(r.OrderableQty); err != nil {
		return p, err
	}
	if p.AvgCost, err = parseDecimal(r.AvgPrice); err != nil {
		return p, err
	}
	if p.CurrentPrice, err = parseDecimal(r.Price); err != nil {
		return p, err
	}
	if p.EvaluatedAmount, err = parseDecimal(r.EvalAmount); err != nil {
		return p, err
	}
	if p.UnrealizedPnlAmount, err = parseDecimal(r.PnlAmount); err != nil {
		return p, err
	}
	if p.UnrealizedPnlPercent, err = parseDecimal(r.PnlRate); err != nil {
		return p, err
	}
	return p, nil
}

func (r balanceSummaryRow) summary() (model.AccountSummary, error) {
	var s model.AccountSummary
	var err error
	if s.Deposit, err = parseDecimal(r.Deposit); err != nil {
		return s, err
	}
	if s.PurchaseAmount, err = parseDecimal(r.PurchaseAmount); err != nil {
		return s, err
	}
	if s.EvaluatedAmount, err = parseDecimal(r.EvalAmount); err != nil {
		return s, err
	}
	if s.UnrealizedPnl, err = parseDecimal(r.PnlAmount); err != nil {
		return s, err
	}
	if s.TotalEvaluatedAmt, err = parseDecimal(r.TotalEvalAmt); err != nil {
		return s, err
	}
	return s, nil
}

// parseDecimal treats an empty field as zero.
func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseQty(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
