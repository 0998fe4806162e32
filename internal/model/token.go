package model

import "strings"

// TokenTimeLayout is the broker's format for access_token_token_expired.
const TokenTimeLayout = "2006-01-02 15:04:05"

// Token is the durable bearer token record.
type Token struct {
	Authorization string `json:"authorization"`
	AccessToken   string `json:"access_token"`
	ExpiresAt     string `json:"access_token_token_expired"`
}

// NewToken builds a record whose Authorization is derived from the raw token.
func NewToken(accessToken, expiresAt string) Token {
	return Token{
		Authorization: "Bearer " + accessToken,
		AccessToken:   accessToken,
		ExpiresAt:     expiresAt,
	}
}

// IsBlank reports whether no usable access token is held.
func (t Token) IsBlank() bool {
	return strings.TrimSpace(t.AccessToken) == ""
}

// TokenGrant is what the broker returns from a successful token request.
type TokenGrant struct {
	AccessToken string
	ExpiresAt   string
	TokenType   string
	ExpiresIn   int64
}
