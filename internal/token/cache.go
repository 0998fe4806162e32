// Package token owns the broker bearer token and its durable copy.
package token

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"KisTrader/internal/metrics"
	"KisTrader/internal/model"
	"KisTrader/internal/store"
)

// Issuer requests a fresh access token from the broker.
type Issuer interface {
	IssueToken(ctx context.Context) (*model.TokenGrant, error)
}

// ExpiryStatus is the result of checking a stored token against the clock.
type ExpiryStatus int

const (
	Valid ExpiryStatus = iota
	Expired
	// Undeterminable means the stored expiry could not be parsed. Callers treat it as expired.
	Undeterminable
)

func (s ExpiryStatus) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "undeterminable"
	}
}

// StatusAt checks t against now. Expiry strings are read in loc.
func StatusAt(t model.Token, now time.Time, loc *time.Location) ExpiryStatus {
	if t.IsBlank() {
		return Expired
	}
	exp, err := time.ParseInLocation(model.TokenTimeLayout, strings.TrimSpace(t.ExpiresAt), loc)
	if err != nil {
		return Undeterminable
	}
	if now.After(exp) {
		return Expired
	}
	return Valid
}

// Cache serves the current token and refreshes it through the Issuer when expired.
type Cache struct {
	mu     sync.Mutex
	path   string
	issuer Issuer
	loc    *time.Location
	now    func() time.Time
	token  model.Token
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLocation sets the zone the broker's expiry timestamps are written in.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) { c.loc = loc }
}

// New creates a Cache backed by the JSON file at path. Call Load before use.
func New(path string, issuer Issuer, opts ...Option) *Cache {
	c := &Cache{
		path:   path,
		issuer: issuer,
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the durable token. A missing or unreadable file leaves the cache unauthenticated.
func (c *Cache) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	var t model.Token
	found, err := store.LoadJSON(c.path, &t)
	switch {
	case err != nil:
		log.Printf("[WARN] token state unreadable, starting unauthenticated: %v", err)
		c.token = model.Token{}
		c.persistLocked()
	case !found:
		log.Printf("[INFO] token state missing, creating %s", c.path)
		c.token = model.Token{}
		c.persistLocked()
	default:
		c.token = t
	}
}

// Token returns a copy of the current record.
func (c *Cache) Token() model.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Authorization returns the bearer header value.
func (c *Cache) Authorization() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token.Authorization
}

// Status reports whether the held token is usable right now.
func (c *Cache) Status() ExpiryStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return StatusAt(c.token, c.now(), c.loc)
}

// IsExpired is true unless Status is Valid.
func (c *Cache) IsExpired() bool {
	return c.Status() != Valid
}

// EnsureValid refreshes the token if needed. False means the caller cannot proceed this cycle.
func (c *Cache) EnsureValid(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := StatusAt(c.token, c.now(), c.loc)
	if status == Valid {
		return true
	}
	log.Printf("[INFO] access token %s, requesting a new one", status)

	grant, err := c.issuer.IssueToken(ctx)
	if err != nil || grant == nil || strings.TrimSpace(grant.AccessToken) == "" {
		if err != nil {
			log.Printf("[ERROR] token request failed: %v", err)
		} else {
			log.Printf("[ERROR] token request returned no access token")
		}
		metrics.IncTokenRefresh(false)
		c.token = model.Token{}
		c.persistLocked()
		return false
	}

	c.token = model.NewToken(grant.AccessToken, grant.ExpiresAt)
	c.persistLocked()
	metrics.IncTokenRefresh(true)
	log.Printf("[INFO] access token refreshed, expires %s", grant.ExpiresAt)
	return true
}

func (c *Cache) persistLocked() {
	if err := store.SaveJSON(c.path, c.token); err != nil {
		log.Printf("[ERROR] save token state: %v", err)
	}
}
