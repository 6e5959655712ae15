package catalog

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"eventfed/internal/config"
	"eventfed/internal/ics"
	"eventfed/internal/metrics"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  int
}

func (f *fakeFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	var (
		results []ics.FetchResult
		errs    []error
	)
	for _, src := range sources {
		body, ok := f.bodies[src.URL]
		if !ok {
			errs = append(errs, errors.New("unreachable: "+src.ID))
			continue
		}
		results = append(results, ics.FetchResult{Source: src, Body: []byte(body)})
	}
	return results, errs
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) drop(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bodies, url)
}

func vcal(lines ...string) string {
	all := append([]string{"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//eventfed//test//EN"}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

const (
	grazURL   = "https://calendar.example.org/graz.ics"
	viennaURL = "https://calendar.example.org/vienna.ics"
)

func newTestCatalog(t *testing.T) (*Catalog, *fakeFetcher, *metrics.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "https://events.example.org"
	cfg.Actor = "https://events.example.org/actor"
	cfg.Timezone = "Europe/Vienna"
	cfg.Language = "de"
	cfg.ICS = []config.ICSConfig{
		{ID: "graz", URL: grazURL},
		{ID: "vienna", URL: viennaURL},
	}

	fetcher := &fakeFetcher{bodies: map[string]string{
		grazURL: vcal(
			"BEGIN:VEVENT",
			"UID:meetup@graz",
			"SUMMARY:Meetup",
			"DTSTART:20250310T170000Z",
			"END:VEVENT",
			"BEGIN:VEVENT",
			"UID:shared",
			"SUMMARY:From Graz",
			"DTSTART:20250305T170000Z",
			"END:VEVENT",
		),
		viennaURL: vcal(
			"BEGIN:VEVENT",
			"UID:weekly@vienna",
			"SUMMARY:Weekly",
			"DTSTART:20250303T170000Z",
			"RRULE:FREQ=WEEKLY;COUNT=2",
			"END:VEVENT",
			"BEGIN:VEVENT",
			"UID:shared",
			"SUMMARY:From Vienna",
			"DTSTART:20250305T170000Z",
			"END:VEVENT",
		),
	}}

	m := metrics.New()
	c := New(cfg, fetcher, m)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return c, fetcher, m
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRefresh_BuildsOrderedCatalog(t *testing.T) {
	c, _, m := newTestCatalog(t)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	events := c.List()
	var ids []string
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	want := []string{"weekly@vienna_20250303T170000Z", "shared", "meetup@graz", "weekly@vienna_20250310T170000Z"}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order:\n got %v\nwant %v", ids, want)
	}

	shared, ok := c.Get("shared")
	if !ok {
		t.Fatalf("expected shared event")
	}
	if shared.SourceID != "graz" || shared.Title != "From Graz" {
		t.Fatalf("expected first feed to win duplicate ids, got %+v", shared)
	}

	ev, ok := c.Get("weekly@vienna_20250303T170000Z")
	if !ok {
		t.Fatalf("expected occurrence to be addressable")
	}
	if ev.URL != "https://events.example.org/events/weekly@vienna_20250303T170000Z" {
		t.Fatalf("unexpected URL %q", ev.URL)
	}
	if ev.Author != "https://events.example.org/actor" || ev.Language != "de" {
		t.Fatalf("expected author and language from config, got %q %q", ev.Author, ev.Language)
	}
	if ev.TimeZone != "Europe/Vienna" {
		t.Fatalf("expected default timezone, got %q", ev.TimeZone)
	}

	if c.LastRefresh().IsZero() {
		t.Fatalf("expected LastRefresh to be set")
	}
	if body := scrape(t, m); !strings.Contains(body, "eventfed_catalog_events 4") {
		t.Fatalf("expected catalog gauge 4 in:\n%s", body)
	}
}

func TestRefresh_EscapesIDsInURL(t *testing.T) {
	c, f, _ := newTestCatalog(t)
	f.set(grazURL, vcal(
		"BEGIN:VEVENT",
		"UID:a/b c",
		"DTSTART:20250310T170000Z",
		"END:VEVENT",
	))

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	ev, ok := c.Get("a/b c")
	if !ok {
		t.Fatalf("expected event by raw id")
	}
	if ev.URL != "https://events.example.org/events/a%2Fb%20c" {
		t.Fatalf("unexpected URL %q", ev.URL)
	}
}

func TestRefresh_PartialFailureKeepsWorkingFeeds(t *testing.T) {
	c, f, _ := newTestCatalog(t)
	f.drop(viennaURL)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("expected partial refresh to succeed, got %v", err)
	}
	if n := len(c.List()); n != 2 {
		t.Fatalf("expected the two graz events, got %d", n)
	}
}

func TestRefresh_TotalFailureKeepsPreviousEvents(t *testing.T) {
	c, f, m := newTestCatalog(t)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	before := len(c.List())

	f.drop(grazURL)
	f.drop(viennaURL)
	err := c.Refresh(context.Background())
	if !errors.Is(err, ErrNoFeeds) {
		t.Fatalf("expected ErrNoFeeds, got %v", err)
	}
	if n := len(c.List()); n != before {
		t.Fatalf("expected %d events to survive, got %d", before, n)
	}
	body := scrape(t, m)
	if !strings.Contains(body, `eventfed_refresh_total{outcome="error"} 1`) {
		t.Fatalf("expected one failed refresh in:\n%s", body)
	}
	if !strings.Contains(body, "eventfed_catalog_events 4") {
		t.Fatalf("expected gauge to keep the last good size in:\n%s", body)
	}
}

func TestRefresh_UnparseableFeedsFail(t *testing.T) {
	c, f, _ := newTestCatalog(t)
	f.set(grazURL, "<html>maintenance</html>\r\n")
	f.set(viennaURL, "")

	if err := c.Refresh(context.Background()); !errors.Is(err, ErrNoFeeds) {
		t.Fatalf("expected ErrNoFeeds, got %v", err)
	}
}

func TestList_ReturnsCopy(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	events := c.List()
	events[0].Title = "mutated"
	if c.List()[0].Title == "mutated" {
		t.Fatalf("expected List to return a copy")
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected unknown id to be absent")
	}
}

func TestCatalog_ConcurrentReadsDuringRefresh(t *testing.T) {
	c, _, _ := newTestCatalog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Refresh(ctx)
		}()
		go func() {
			defer wg.Done()
			for _, ev := range c.List() {
				c.Get(ev.ID)
			}
		}()
	}
	wg.Wait()

	if n := len(c.List()); n != 4 {
		t.Fatalf("expected 4 events after concurrent refreshes, got %d", n)
	}
}
