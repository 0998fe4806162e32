// Package broker wraps the KIS domestic-stock REST endpoints the trading engine needs.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"KisTrader/internal/metrics"
	"KisTrader/internal/model"
)

// ErrPageLimit is returned when a paginated inquiry exceeds the configured page ceiling.
var ErrPageLimit = errors.New("balance page limit reached")

// APIError is a non-success answer from the broker.
type APIError struct {
	Endpoint string
	Status   int
	Code     string // rt_cd or error_code
	MsgCode  string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d rt_cd=%q msg_cd=%q: %s", e.Endpoint, e.Status, e.Code, e.MsgCode, e.Message)
}

// TokenSource supplies the bearer header for authenticated calls.
type TokenSource interface {
	Authorization() string
}

// Config holds client construction parameters.
type Config struct {
	BaseURL         string
	Credentials     model.Credentials
	Timeout         time.Duration
	CallPause       time.Duration // minimum spacing between consecutive calls
	MaxBalancePages int
	Proxy           string
}

// Client is a request/response wrapper around the broker API. It holds no trading state.
type Client struct {
	BaseURL  string
	Client   *http.Client
	creds    model.Credentials
	limiter  *rate.Limiter
	maxPages int
	tokens   TokenSource
}

// New creates a Client with optional proxy support.
func New(cfg Config) *Client {
	transport := &http.Transport{}
	if cfg.Proxy != "" {
		if u, err := url.Parse(cfg.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxPages := cfg.MaxBalancePages
	if maxPages <= 0 {
		maxPages = 100
	}
	return &Client{
		BaseURL: cfg.BaseURL,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		creds:    cfg.Credentials,
		limiter:  rate.NewLimiter(rate.Every(cfg.CallPause), 1),
		maxPages: maxPages,
	}
}

// SetTokenSource wires the token cache that authenticated calls read their header from.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

type authMode int

const (
	authNone authMode = iota
	// appkey and appsecret headers only
	authApp
	// bearer, app keys, tr_id and customer type
	authFull
)

type request struct {
	endpoint string
	method   string
	path     string
	auth     authMode
	trID     string
	trCont   string
	query    url.Values
	body     any
	headers  map[string]string
}

// envelope is the status block every KIS response carries.
type envelope struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

// oauthError is the shape of token endpoint failures.
type oauthError struct {
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// do sends one request and decodes a 200 response into out. It returns the response headers.
func (c *Client) do(ctx context.Context, r request, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", r.endpoint, err)
	}

	endpoint := c.BaseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", r.endpoint, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	switch r.auth {
	case authFull:
		if c.tokens != nil {
			req.Header.Set("authorization", c.tokens.Authorization())
		}
		req.Header.Set("appkey", c.creds.AppKey)
		req.Header.Set("appsecret", c.creds.AppSecret)
		req.Header.Set("tr_id", r.trID)
		req.Header.Set("custtype", "P")
		if r.trCont != "" {
			req.Header.Set("tr_cont", r.trCont)
		}
	case authApp:
		req.Header.Set("appkey", c.creds.AppKey)
		req.Header.Set("appsecret", c.creds.AppSecret)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		metrics.IncBrokerCall(r.endpoint, false)
		return nil, fmt.Errorf("%s: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncBrokerCall(r.endpoint, false)
		return nil, fmt.Errorf("%s: read body: %w", r.endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.IncBrokerCall(r.endpoint, false)
		return nil, decodeFailure(r.endpoint, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.IncBrokerCall(r.endpoint, false)
		return nil, fmt.Errorf("%s: decode: %w", r.endpoint, err)
	}
	metrics.IncBrokerCall(r.endpoint, true)
	return resp.Header, nil
}

func decodeFailure(endpoint string, status int, body []byte) error {
	apiErr := &APIError{Endpoint: endpoint, Status: status, Message: string(body)}
	var env envelope
	if json.Unmarshal(body, &env) == nil && env.RtCd != "" {
		apiErr.Code, apiErr.MsgCode, apiErr.Message = env.RtCd, env.MsgCd, env.Msg1
		return apiErr
	}
	var oe oauthError
	if json.Unmarshal(body, &oe) == nil && oe.ErrorCode != "" {
		apiErr.Code, apiErr.Message = oe.ErrorCode, oe.ErrorDescription
	}
	return apiErr
}

// checkEnvelope turns a 200 response with rt_cd != "0" into an APIError.
func checkEnvelope(endpoint string, env envelope) error {
	if env.RtCd == model.ResultOK {
		return nil
	}
	return &APIError{Endpoint: endpoint, Status: http.StatusOK, Code: env.RtCd, MsgCode: env.MsgCd, Message: env.Msg1}
}

// businessFailure extracts a broker-reported result from err, if it is one.
func businessFailure(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		return apiErr, true
	}
	return nil, false
}
