// Package calendar caches the broker's trading-day calendar.
package calendar

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"KisTrader/internal/metrics"
	"KisTrader/internal/model"
	"KisTrader/internal/store"
)

// Fetcher returns one holiday-check page anchored on date (YYYYMMDD).
type Fetcher interface {
	FetchHolidayPage(ctx context.Context, date string) (*model.CalendarSnapshot, error)
}

// Cache answers "is the market open today" from the last fetched page.
type Cache struct {
	mu       sync.Mutex
	path     string
	fetcher  Fetcher
	loc      *time.Location
	now      func() time.Time
	snapshot *model.CalendarSnapshot
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLocation sets the zone used to derive today's date key.
func WithLocation(loc *time.Location) Option {
	return func(c *Cache) { c.loc = loc }
}

// New creates a Cache backed by the JSON file at path. Call Load before use.
func New(path string, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		path:    path,
		fetcher: fetcher,
		loc:     time.Local,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the durable snapshot. A missing file is created empty; an unreadable one
// leaves nothing in memory so the first lookup fetches.
func (c *Cache) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := model.NewCalendarSnapshot()
	found, err := store.LoadJSON(c.path, snap)
	switch {
	case err != nil:
		log.Printf("[WARN] calendar state unreadable, will refetch: %v", err)
		c.snapshot = nil
	case !found:
		log.Printf("[INFO] calendar state missing, creating %s", c.path)
		c.snapshot = model.NewCalendarSnapshot()
		c.persistLocked()
	default:
		if snap.Output == nil {
			snap.Output = []model.CalendarEntry{}
		}
		c.snapshot = snap
	}
}

// Snapshot returns a copy of the held snapshot, or nil if none is held.
func (c *Cache) Snapshot() *model.CalendarSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return nil
	}
	cp := *c.snapshot
	cp.Output = append([]model.CalendarEntry(nil), c.snapshot.Output...)
	return &cp
}

// Today is the date key for the current day in the broker's zone.
func (c *Cache) Today() string {
	return c.now().In(c.loc).Format(model.DateLayout)
}

// IsOpenToday resolves today's open flag, fetching when today's entry isn't cached.
// Errors never escape: they degrade to OpenUnknown.
func (c *Cache) IsOpenToday(ctx context.Context) model.OpenStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := c.Today()
	status, err := c.resolveLocked(ctx, today)
	if err != nil {
		log.Printf("[WARN] calendar lookup for %s failed: %v", today, err)
		return model.OpenUnknown
	}
	return status
}

func (c *Cache) resolveLocked(ctx context.Context, today string) (model.OpenStatus, error) {
	if c.snapshot == nil {
		if err := c.refreshLocked(ctx, today); err != nil {
			return model.OpenUnknown, err
		}
	}
	if len(c.snapshot.Output) == 0 {
		if err := c.refreshLocked(ctx, today); err != nil {
			return model.OpenUnknown, err
		}
	}
	if e, ok := c.snapshot.Find(today); ok {
		return openStatus(e), nil
	}

	// Held page covers other dates.
	if err := c.refreshLocked(ctx, today); err != nil {
		return model.OpenUnknown, err
	}
	if e, ok := c.snapshot.Find(today); ok {
		return openStatus(e), nil
	}
	log.Printf("[WARN] calendar page has no entry for %s", today)
	return model.OpenUnknown, nil
}

// Refresh fetches the page anchored on date and replaces the held snapshot and its file.
func (c *Cache) Refresh(ctx context.Context, date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, date)
}

func (c *Cache) refreshLocked(ctx context.Context, date string) error {
	snap, err := c.fetcher.FetchHolidayPage(ctx, date)
	if err != nil {
		metrics.IncCalendarFetch(false)
		return fmt.Errorf("fetch holiday page %s: %w", date, err)
	}
	if snap == nil {
		metrics.IncCalendarFetch(false)
		return fmt.Errorf("fetch holiday page %s: empty response", date)
	}
	if snap.Output == nil {
		snap.Output = []model.CalendarEntry{}
	}
	metrics.IncCalendarFetch(true)
	c.snapshot = snap
	c.persistLocked()
	return nil
}

func (c *Cache) persistLocked() {
	if err := store.SaveJSON(c.path, c.snapshot); err != nil {
		log.Printf("[ERROR] save calendar state: %v", err)
	}
}

func openStatus(e model.CalendarEntry) model.OpenStatus {
	switch e.MarketOpen {
	case "Y":
		return model.OpenYes
	case "N":
		return model.OpenNo
	default:
		return model.OpenUnknown
	}
}
