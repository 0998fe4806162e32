package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"KisTrader/internal/model"
	"KisTrader/internal/recorder"
)

// FormatBalance renders the positions and account totals of a balance inquiry.
func FormatBalance(bal *model.Balance) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💼 <b>잔고 현황</b> | 보유 %d종목\n\n", len(bal.Positions)))

	if len(bal.Positions) == 0 {
		b.WriteString("보유 종목이 없습니다.\n")
	}
	for _, p := range bal.Positions {
		b.WriteString(fmt.Sprintf("%s <b>%s</b> (%s)\n", pnlMark(p.UnrealizedPnlPercent), html.EscapeString(p.Name), p.Symbol))
		b.WriteString(fmt.Sprintf("   수량 %d주 (주문가능 %d) | 평단 %s | 현재가 %s\n",
			p.HeldQuantity, p.OrderableQuantity, won(p.AvgCost), won(p.CurrentPrice)))
		b.WriteString(fmt.Sprintf("   평가 %s | 손익 %s (%s%%)\n",
			won(p.EvaluatedAmount), won(p.UnrealizedPnlAmount), p.UnrealizedPnlPercent.StringFixed(2)))
	}

	s := bal.Summary
	b.WriteString("\n📦 <b>계좌 합계</b>\n")
	b.WriteString(fmt.Sprintf("예수금: %s\n", won(s.Deposit)))
	b.WriteString(fmt.Sprintf("매입금액: %s\n", won(s.PurchaseAmount)))
	b.WriteString(fmt.Sprintf("평가금액: %s\n", won(s.EvaluatedAmount)))
	b.WriteString(fmt.Sprintf("평가손익: %s\n", won(s.UnrealizedPnl)))
	b.WriteString(fmt.Sprintf("총평가: %s\n", won(s.TotalEvaluatedAmt)))
	return b.String()
}

// FormatCycleReport summarizes the sell activity of one cycle.
func FormatCycleReport(r *model.CycleReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📉 <b>익절 매도</b> | %s\n\n", r.StartedAt.Format("2006-01-02 15:04")))
	for _, a := range r.Attempts {
		switch {
		case a.Success:
			b.WriteString(fmt.Sprintf("✅ %s %d주 시장가 매도 (수익률 %s%%, 주문번호 %s)\n",
				a.Symbol, a.Sellable, a.PnlPercent.StringFixed(2), a.OrderNo))
		case a.Submitted:
			b.WriteString(fmt.Sprintf("❌ %s %d주 매도 실패: %s\n", a.Symbol, a.Sellable, html.EscapeString(a.Message)))
		default:
			b.WriteString(fmt.Sprintf("⚠️ %s 매도 보류: %s\n", a.Symbol, html.EscapeString(a.Message)))
		}
	}
	b.WriteString(fmt.Sprintf("\n성공 %d / 대상 %d | run %s", r.Succeeded(), len(r.Candidates), shortID(r.RunID)))
	return b.String()
}

// FormatTokenCheck renders the answer to a manual token check.
func FormatTokenCheck(ok bool) string {
	if ok {
		return "🔑 접근 토큰 정상"
	}
	return "🚫 접근 토큰 발급 실패, 다음 주기에 다시 시도합니다"
}

// FormatRecentCycles lists journaled cycles, newest first.
func FormatRecentCycles(rows []recorder.CycleRow, loc *time.Location) string {
	if len(rows) == 0 {
		return "기록된 주기가 없습니다."
	}
	var b strings.Builder
	b.WriteString("🗂 <b>최근 실행 기록</b>\n\n")
	for _, c := range rows {
		at := time.Unix(c.StartedAt, 0).In(loc).Format("01-02 15:04")
		b.WriteString(fmt.Sprintf("%s %s", at, c.Outcome))
		if c.Candidates > 0 {
			b.WriteString(fmt.Sprintf(" | 매도 %d/%d", c.Succeeded, c.Candidates))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pnlMark(pct decimal.Decimal) string {
	if pct.IsNegative() {
		return "🔵"
	}
	return "🔴"
}

// won formats an amount with thousands separators, dropping the fraction.
func won(d decimal.Decimal) string {
	s := d.Truncate(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String() + "원"
	}
	return b.String() + "원"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
