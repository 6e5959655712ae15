// Package catalog keeps the set of published events, rebuilt from the
// configured ICS feeds.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"eventfed/internal/config"
	"eventfed/internal/ics"
	appLog "eventfed/internal/log"
	"eventfed/internal/metrics"
	"eventfed/internal/model"
)

// backfill keeps recently finished events published.
const backfill = 30 * 24 * time.Hour

// ErrNoFeeds is returned by Refresh when no feed produced a calendar.
var ErrNoFeeds = errors.New("catalog: no feed could be read")

// Fetcher is the part of ics.Fetcher the catalog needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Catalog is safe for concurrent use.
type Catalog struct {
	cfg     *config.Config
	fetcher Fetcher
	metrics *metrics.Metrics
	now     func() time.Time

	mu          sync.RWMutex
	byID        map[string]model.Event
	ordered     []model.Event
	lastRefresh time.Time
}

// New returns an empty catalog. m may be nil.
func New(cfg *config.Config, fetcher Fetcher, m *metrics.Metrics) *Catalog {
	return &Catalog{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: m,
		now:     time.Now,
		byID:    map[string]model.Event{},
	}
}

// Refresh rebuilds the catalog from all feeds. When every feed fails the
// previous events stay published and ErrNoFeeds is returned.
func (c *Catalog) Refresh(ctx context.Context) (err error) {
	var count int
	defer func() { c.metrics.ObserveRefresh(count, err) }()

	sources := make([]ics.Source, 0, len(c.cfg.ICS))
	for _, feed := range c.cfg.ICS {
		id := feed.ID
		if id == "" {
			id = feed.URL
		}
		sources = append(sources, ics.Source{ID: id, URL: feed.URL})
	}

	results, fetchErrs := c.fetcher.FetchAll(ctx, sources)
	if len(sources) > 0 && len(results) == 0 {
		return fmt.Errorf("%w: %w", ErrNoFeeds, errors.Join(fetchErrs...))
	}

	parsed := make([]ics.ParsedEvent, 0)
	parsedFeeds := 0
	for _, res := range results {
		events, perr := ics.ParseICS(res.Source, res.Body)
		if perr != nil {
			continue
		}
		parsedFeeds++
		parsed = append(parsed, events...)
	}
	if len(results) > 0 && parsedFeeds == 0 {
		return ErrNoFeeds
	}

	now := c.now()
	expanded, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DefaultTimeZone: c.cfg.Timezone,
		RangeStart:      now.Add(-backfill),
		RangeEnd:        now.AddDate(0, 0, c.cfg.HorizonDays),
	})
	if err != nil {
		return fmt.Errorf("catalog: expand: %w", err)
	}

	byID := make(map[string]model.Event, len(expanded.Events))
	ordered := make([]model.Event, 0, len(expanded.Events))
	for _, ev := range expanded.Events {
		if prev, dup := byID[ev.ID]; dup {
			appLog.Debug("catalog: duplicate event id", "id", ev.ID, "source", ev.SourceID, "kept", prev.SourceID)
			continue
		}
		ev.URL = c.cfg.BaseURL + "/events/" + url.PathEscape(ev.ID)
		ev.Author = c.cfg.Actor
		ev.Language = c.cfg.Language
		byID[ev.ID] = ev
		ordered = append(ordered, ev)
	}

	c.mu.Lock()
	c.byID = byID
	c.ordered = ordered
	c.lastRefresh = now
	c.mu.Unlock()

	count = len(ordered)
	appLog.Info("catalog refreshed",
		"events", count,
		"feeds", len(sources),
		"failed_feeds", len(fetchErrs)+len(results)-parsedFeeds,
		"truncated", len(expanded.TruncatedEvents),
	)
	return nil
}

// List returns all events ordered by start time.
func (c *Catalog) List() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Event(nil), c.ordered...)
}

// Get returns the event with the given ID.
func (c *Catalog) Get(id string) (model.Event, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.byID[id]
	return ev, ok
}

// LastRefresh reports when the catalog was last rebuilt; zero before the
// first successful refresh.
func (c *Catalog) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}
