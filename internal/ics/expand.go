package ics

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventfed/internal/log"
	"eventfed/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000

	// instanceLayout and floatingInstanceLayout format the per-occurrence
	// part of an event ID, following RECURRENCE-ID notation.
	instanceLayout         = "20060102T150405Z"
	floatingInstanceLayout = "20060102T150405"
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DefaultTimeZone is used when neither DTSTART nor the calendar name a
	// zone. Empty means UTC.
	DefaultTimeZone string

	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps a single RRULE expansion. Zero means
	// defaultMaxOccurrencesPerEvent.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded events.
type ExpandResult struct {
	Events []model.Event
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
}

// ExpandOccurrences turns parsed VEVENTs into one model.Event per occurrence
// within the configured range. It handles:
//
//   - Single non-recurring events
//   - RRULE-based recurrence
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//   - All-day semantics
//
// Occurrences keep their own time zone. Non-recurring events are identified
// by their UID; recurring ones by UID, "_" and the original start of the
// occurrence in RECURRENCE-ID notation.
// The result is ordered by start time, then ID.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0)
	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			expanded, hitCap := expandEvent(ev, ov, cfg)
			if hitCap {
				truncated = true
			}
			out = append(out, expanded...)
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Error("expand: truncated occurrences for UID due to cap",
				errors.New("max occurrences reached"),
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	// Stable so that equal IDs keep feed order for de-duplication.
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	sort.Strings(result.TruncatedEvents)

	result.Events = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.Event {
	start, end := ev.Start, ev.End
	if ev.AllDay && end.IsZero() {
		end = start.AddDate(0, 0, 1)
	}
	if !timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}

	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end = o.Start, o.End
		ev = o
	}

	return []model.Event{makeEvent(ev, ev.UID, start, end, cfg)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.Event, bool) {
	out := make([]model.Event, 0)
	hitCap := false

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	rangeStart := cfg.RangeStart.In(ev.Start.Location())
	rangeEnd := cfg.RangeEnd.In(ev.Start.Location())

	occTimes := set.Between(rangeStart, rangeEnd, true)
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, occStart := range occTimes {
		var occEnd time.Time
		switch {
		case ev.AllDay:
			date := time.Date(occStart.Year(), occStart.Month(), occStart.Day(), 0, 0, 0, 0, occStart.Location())
			occStart = date
			occEnd = date.AddDate(0, 0, 1)
		case !ev.End.IsZero():
			occEnd = occStart.Add(ev.End.Sub(ev.Start))
		}

		// The ID keeps the original slot even when an override moves it.
		id := ev.UID + "_" + occStart.UTC().Format(instanceLayout)
		if ev.Floating {
			id = ev.UID + "_" + occStart.Format(floatingInstanceLayout)
		}

		start, end, baseEv := occStart, occEnd, ev
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			start, end, baseEv = o.Start, o.End, o
		}

		out = append(out, makeEvent(baseEv, id, start, end, cfg))
	}

	return out, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeEvent converts a (possibly overridden) ParsedEvent plus concrete
// start/end into a model.Event. URL, Author and Language are left to the
// caller.
func makeEvent(ev ParsedEvent, id string, start, end time.Time, cfg ExpandConfig) model.Event {
	tz, loc := eventZone(ev, cfg.DefaultTimeZone)
	if ev.Floating {
		start = wallClock(start, loc)
		if !end.IsZero() {
			end = wallClock(end, loc)
		}
	}

	out := model.Event{
		ID:             id,
		SourceID:       ev.Source.ID,
		Title:          ev.Summary,
		Description:    ev.Description,
		Start:          start.In(loc),
		TimeZone:       tz,
		OnlineLink:     ev.Conference,
		ExternalLink:   ev.URL,
		ContentWarning: ev.ContentWarning,
		Capacity:       ev.Capacity,
		Status:         ev.Status,
		Published:      ev.Created,
		Updated:        ev.LastModified,
	}
	if !end.IsZero() {
		out.End = end.In(loc)
	}
	if loc := strings.TrimSpace(ev.Location); loc != "" {
		out.Venue = &model.Venue{FullAddress: loc}
	}
	if ev.Banner != nil {
		banner := *ev.Banner
		out.Banner = &banner
	}
	return out
}

// wallClock keeps t's calendar date and clock reading but moves it to loc.
func wallClock(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// eventZone picks the zone of DTSTART, then the calendar's, then def.
// Names the runtime cannot load are skipped.
func eventZone(ev ParsedEvent, def string) (string, *time.Location) {
	for _, name := range []string{ev.StartTZ, ev.CalendarTZ, def} {
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err != nil {
			appLog.Debug("expand: unknown timezone", "uid", ev.UID, "tz", name)
			continue
		}
		return name, loc
	}
	return "UTC", time.UTC
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.IsZero() {
		aEnd = aStart
	}
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
