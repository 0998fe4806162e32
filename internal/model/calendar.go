package model

// DateLayout is the broker's YYYYMMDD date key.
const DateLayout = "20060102"

// OpenStatus answers "is the market open on this date".
type OpenStatus string

const (
	OpenYes     OpenStatus = "Y"
	OpenNo      OpenStatus = "N"
	OpenUnknown OpenStatus = ""
)

// CalendarEntry is one day returned by the holiday-check endpoint.
type CalendarEntry struct {
	Date          string `json:"bass_dt"`
	WeekdayCode   string `json:"wday_dvsn_cd"`
	BusinessDay   string `json:"bzdy_yn"`
	TradeDay      string `json:"tr_day_yn"`
	MarketOpen    string `json:"opnd_yn"`
	SettlementDay string `json:"sttl_day_yn"`
}

// CalendarSnapshot is the last fetched holiday page, persisted verbatim.
type CalendarSnapshot struct {
	CtxAreaNK string          `json:"ctx_area_nk"`
	CtxAreaFK string          `json:"ctx_area_fk"`
	Output    []CalendarEntry `json:"output"`
	RtCd      string          `json:"rt_cd"`
	MsgCd     string          `json:"msg_cd"`
	Msg1      string          `json:"msg1"`
}

// NewCalendarSnapshot returns an empty snapshot with a non-nil entry list.
func NewCalendarSnapshot() *CalendarSnapshot {
	return &CalendarSnapshot{Output: []CalendarEntry{}}
}

// Find returns the entry whose date key equals date exactly.
func (s *CalendarSnapshot) Find(date string) (CalendarEntry, bool) {
	for _, e := range s.Output {
		if e.Date == date {
			return e, true
		}
	}
	return CalendarEntry{}, false
}
