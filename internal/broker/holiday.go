package broker

import (
	"context"
	"net/http"
	"net/url"

	"KisTrader/internal/model"
)

const (
	pathHoliday = "/uapi/domestic-stock/v1/quotations/chk-holiday"
	trHoliday   = "CTCA0903R"
)

// FetchHolidayPage returns the calendar page anchored on date (YYYYMMDD).
func (c *Client) FetchHolidayPage(ctx context.Context, date string) (*model.CalendarSnapshot, error) {
	q := url.Values{}
	q.Set("BASS_DT", date)
	q.Set("CTX_AREA_NK", "")
	q.Set("CTX_AREA_FK", "")

	snap := model.NewCalendarSnapshot()
	if _, err := c.do(ctx, request{
		endpoint: "holiday",
		method:   http.MethodGet,
		path:     pathHoliday,
		auth:     authFull,
		trID:     trHoliday,
		query:    q,
	}, snap); err != nil {
		return nil, err
	}
	if err := checkEnvelope("holiday", envelope{RtCd: snap.RtCd, MsgCd: snap.MsgCd, Msg1: snap.Msg1}); err != nil {
		return nil, err
	}
	return snap, nil
}
