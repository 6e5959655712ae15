package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestFetchOne_ConditionalRequestsAndFallback(t *testing.T) {
	body := string(calendar("BEGIN:VEVENT", "UID:a", "DTSTART:20250301T170000Z", "END:VEVENT"))

	var (
		calls  atomic.Int32
		status atomic.Int32
	)
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch int(status.Load()) {
		case http.StatusOK:
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			w.Header().Set("Content-Type", "text/calendar")
			_, _ = w.Write([]byte(body))
		default:
			w.WriteHeader(int(status.Load()))
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "test", URL: srv.URL + "/private.ics?token=secret"}
	ctx := context.Background()

	first, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || string(first.Body) != body {
		t.Fatalf("expected fresh body, got FromCache=%v", first.FromCache)
	}

	second, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || string(second.Body) != body {
		t.Fatalf("expected 304 to reuse cached body, got FromCache=%v", second.FromCache)
	}

	status.Store(http.StatusInternalServerError)
	third, err := f.FetchOne(ctx, src)
	if err != nil {
		t.Fatalf("expected cached fallback on 500, got %v", err)
	}
	if !third.FromCache || string(third.Body) != body {
		t.Fatalf("expected cached body on 500")
	}

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
}

func TestFetchAll_ReportsFailuresWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.ics" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(calendar("BEGIN:VEVENT", "UID:a", "DTSTART:20250301T170000Z", "END:VEVENT"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "ok", URL: srv.URL + "/ok.ics"},
		{ID: "missing", URL: srv.URL + "/missing.ics"},
		{ID: "empty"},
	})

	if len(results) != 1 || results[0].Source.ID != "ok" {
		t.Fatalf("expected only the ok source, got %+v", results)
	}
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path/to/private.ics?token=abcd": "https://example.com/...(redacted)",
		"webcal://cal.example.org/x":                         "webcal://cal.example.org/...(redacted)",
		"not a url":                                          "ics://...(redacted)",
	}
	for in, want := range cases {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPURL(t *testing.T) {
	if got := httpURL("webcal://cal.example.org/feed.ics"); got != "https://cal.example.org/feed.ics" {
		t.Fatalf("unexpected webcal mapping: %q", got)
	}
	if got := httpURL("http://cal.example.org/feed.ics"); got != "http://cal.example.org/feed.ics" {
		t.Fatalf("expected http URL untouched, got %q", got)
	}
}
