package broker

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"KisTrader/internal/model"
)

const (
	pathToken   = "/oauth2/tokenP"
	pathHashKey = "/uapi/hashkey"
)

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	AccessTokenExpired string `json:"access_token_token_expired"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int64  `json:"expires_in"`
}

// IssueToken requests a new access token with the app key pair.
func (c *Client) IssueToken(ctx context.Context) (*model.TokenGrant, error) {
	body := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.creds.AppKey,
		"appsecret":  c.creds.AppSecret,
	}
	var resp tokenResponse
	if _, err := c.do(ctx, request{
		endpoint: "token",
		method:   http.MethodPost,
		path:     pathToken,
		auth:     authNone,
		body:     body,
	}, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return nil, fmt.Errorf("token: response carried no access_token")
	}
	return &model.TokenGrant{
		AccessToken: resp.AccessToken,
		ExpiresAt:   resp.AccessTokenExpired,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
	}, nil
}

// Hash asks the broker for the integrity hash of an order payload.
func (c *Client) Hash(ctx context.Context, payload any) (string, error) {
	var resp struct {
		Hash string `json:"HASH"`
	}
	if _, err := c.do(ctx, request{
		endpoint: "hashkey",
		method:   http.MethodPost,
		path:     pathHashKey,
		auth:     authApp,
		body:     payload,
	}, &resp); err != nil {
		return "", err
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("hashkey: response carried no HASH")
	}
	return resp.Hash, nil
}
