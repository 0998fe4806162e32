package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"KisTrader/internal/model"
)

type staticToken string

func (s staticToken) Authorization() string { return string(s) }

var testCreds = model.Credentials{
	AppKey:        "app-key",
	AppSecret:     "app-secret",
	AccountPrefix: "12345678",
	AccountSuffix: "01",
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{BaseURL: srv.URL, Credentials: testCreds, Timeout: 5 * time.Second, MaxBalancePages: 5})
	c.SetTokenSource(staticToken("Bearer tok"))
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestIssueToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, pathToken, r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client_credentials", body["grant_type"])
		assert.Equal(t, "app-key", body["appkey"])
		assert.Equal(t, "app-secret", body["appsecret"])
		writeJSON(w, map[string]any{
			"access_token":               "abc",
			"access_token_token_expired": "2024-05-03 10:00:00",
			"token_type":                 "Bearer",
			"expires_in":                 86400,
		})
	}))

	grant, err := c.IssueToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", grant.AccessToken)
	assert.Equal(t, "2024-05-03 10:00:00", grant.ExpiresAt)
	assert.Equal(t, int64(86400), grant.ExpiresIn)
}

func TestIssueToken_RejectedCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]string{"error_code": "EGW00103", "error_description": "invalid appkey"})
	}))

	_, err := c.IssueToken(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "EGW00103", apiErr.Code)
}

func TestPlaceMarketSellOrder_HashesPayload(t *testing.T) {
	var hashed, ordered map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathHashKey:
			assert.Equal(t, "app-key", r.Header.Get("appkey"))
			assert.Empty(t, r.Header.Get("authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&hashed))
			writeJSON(w, map[string]string{"HASH": "h-123"})
		case pathOrder:
			assert.Equal(t, "h-123", r.Header.Get("hashkey"))
			assert.Equal(t, trSell, r.Header.Get("tr_id"))
			assert.Equal(t, "Bearer tok", r.Header.Get("authorization"))
			assert.Equal(t, "P", r.Header.Get("custtype"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ordered))
			writeJSON(w, map[string]any{
				"rt_cd": "0", "msg_cd": "APBK0013", "msg1": "주문 전송 완료",
				"output": map[string]string{"KRX_FWDG_ORD_ORGNO": "91252", "ODNO": "0000117057", "ORD_TMD": "121052"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	res, err := c.PlaceMarketSellOrder(context.Background(), "005930", 3)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "0000117057", res.OrderNo)
	assert.Equal(t, model.SideSell, res.Side)

	assert.Equal(t, hashed, ordered, "the hashed payload is the one submitted")
	assert.Equal(t, "01", ordered["ORD_DVSN"])
	assert.Equal(t, "3", ordered["ORD_QTY"])
	assert.Equal(t, "0", ordered["ORD_UNPR"])
	assert.Equal(t, "12345678", ordered["CANO"])
	assert.Equal(t, "01", ordered["ACNT_PRDT_CD"])
}

func TestPlaceOrder_BusinessFailureIsResult(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == pathHashKey {
			writeJSON(w, map[string]string{"HASH": "h"})
			return
		}
		assert.Equal(t, trBuy, r.Header.Get("tr_id"))
		writeJSON(w, map[string]string{"rt_cd": "1", "msg_cd": "APBK0919", "msg1": "주문가능수량을 초과했습니다"})
	}))

	res, err := c.PlaceOrder(context.Background(), model.SideBuy, "005930", 1, model.OrderTypeLimit, 70000)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "APBK0919", res.MsgCode)
}

func TestFetchHolidayPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, trHoliday, r.Header.Get("tr_id"))
		assert.Equal(t, "20240502", r.URL.Query().Get("BASS_DT"))
		writeJSON(w, map[string]any{
			"ctx_area_nk": "", "ctx_area_fk": "", "rt_cd": "0", "msg_cd": "KIOK0500", "msg1": "ok",
			"output": []map[string]string{{"bass_dt": "20240502", "wday_dvsn_cd": "05", "bzdy_yn": "Y", "tr_day_yn": "Y", "opnd_yn": "Y", "sttl_day_yn": "Y"}},
		})
	}))

	snap, err := c.FetchHolidayPage(context.Background(), "20240502")
	require.NoError(t, err)
	entry, ok := snap.Find("20240502")
	require.True(t, ok)
	assert.Equal(t, "Y", entry.MarketOpen)
}

func TestFetchHolidayPage_NonZeroResultIsError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"rt_cd": "1", "msg_cd": "EGW00201", "msg1": "초당 거래건수를 초과하였습니다", "output": []any{}})
	}))

	_, err := c.FetchHolidayPage(context.Background(), "20240502")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "EGW00201", apiErr.MsgCode)
}

func balanceRowJSON(symbol, rate string) map[string]string {
	return map[string]string{
		"pdno": symbol, "prdt_name": symbol, "hldg_qty": "10", "ord_psbl_qty": "10",
		"pchs_avg_pric": "1000.0", "prpr": "1100", "evlu_amt": "11000", "evlu_pfls_amt": "1000", "evlu_pfls_rt": rate,
	}
}

func TestFetchBalance_FollowsContinuation(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		assert.Equal(t, trBalance, r.Header.Get("tr_id"))
		assert.Equal(t, "12345678", q.Get("CANO"))
		switch calls {
		case 1:
			assert.Empty(t, r.Header.Get("tr_cont"))
			assert.Empty(t, q.Get("CTX_AREA_FK100"))
			w.Header().Set("tr_cont", "M")
			writeJSON(w, map[string]any{
				"rt_cd": "0", "msg_cd": "KIOK0510", "msg1": "ok",
				"ctx_area_fk100": "FK1", "ctx_area_nk100": "NK1",
				"output1": []any{balanceRowJSON("005930", "5.10"), balanceRowJSON("000660", "3.00")},
				"output2": []any{map[string]string{"dnca_tot_amt": "500000"}},
			})
		case 2:
			assert.Equal(t, "N", r.Header.Get("tr_cont"))
			assert.Equal(t, "FK1", q.Get("CTX_AREA_FK100"))
			assert.Equal(t, "NK1", q.Get("CTX_AREA_NK100"))
			w.Header().Set("tr_cont", "D")
			writeJSON(w, map[string]any{
				"rt_cd": "0", "msg_cd": "KIOK0510", "msg1": "ok",
				"output1": []any{balanceRowJSON("035420", "10.00")},
				"output2": []any{map[string]string{"dnca_tot_amt": "500000", "tot_evlu_amt": "533000"}},
			})
		default:
			t.Errorf("unexpected page request %d", calls)
		}
	}))

	bal, err := c.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, bal.Pages)
	require.Len(t, bal.Positions, 3)
	assert.Equal(t, "005930", bal.Positions[0].Symbol)
	assert.Equal(t, "000660", bal.Positions[1].Symbol)
	assert.Equal(t, "035420", bal.Positions[2].Symbol)
	assert.True(t, decimal.RequireFromString("5.1").Equal(bal.Positions[0].UnrealizedPnlPercent))
	assert.Equal(t, int64(10), bal.Positions[0].OrderableQuantity)
	assert.True(t, decimal.NewFromInt(533000).Equal(bal.Summary.TotalEvaluatedAmt))
}

func TestFetchBalance_PageLimit(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("tr_cont", "F")
		writeJSON(w, map[string]any{"rt_cd": "0", "output1": []any{}, "output2": []any{}})
	}))

	_, err := c.FetchBalance(context.Background())
	assert.ErrorIs(t, err, ErrPageLimit)
}

func TestFetchSellableQuantity(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, trSellable, r.Header.Get("tr_id"))
		assert.Equal(t, "005930", r.URL.Query().Get("PDNO"))
		writeJSON(w, map[string]any{"rt_cd": "0", "msg_cd": "KIOK0000", "msg1": "ok", "output": map[string]string{"pdno": "005930", "ord_psbl_qty": "7"}})
	}))

	q, err := c.FetchSellableQuantity(context.Background(), "005930")
	require.NoError(t, err)
	assert.True(t, q.OK())
	assert.Equal(t, int64(7), q.Quantity)
}

func TestFetchSellableQuantity_BusinessFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]string{"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "기간이 만료된 token 입니다"})
	}))

	q, err := c.FetchSellableQuantity(context.Background(), "005930")
	require.NoError(t, err)
	assert.False(t, q.OK())
	assert.Equal(t, "EGW00123", q.MsgCode)
	assert.Zero(t, q.Quantity)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(Config{BaseURL: srv.URL, Credentials: testCreds, Timeout: time.Second})

	_, err := c.FetchSellableQuantity(context.Background(), "005930")
	require.Error(t, err)
	_, isAPI := businessFailure(err)
	assert.False(t, isAPI)
}

func TestDo_HonorsCancelledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchBalancePage(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
