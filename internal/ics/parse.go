package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"eventfed/internal/activity"
	appLog "eventfed/internal/log"
	"eventfed/internal/model"
)

// Properties golang-ical has no constant for.
const (
	propConference       = "CONFERENCE"
	propGoogleConference = "X-GOOGLE-CONFERENCE"
	propContentWarning   = "X-CONTENT-WARNING"
	propCapacity         = "X-MAXIMUM-ATTENDEE-CAPACITY"
	propCalendarTimezone = "X-WR-TIMEZONE"
)

const (
	paramFormatType = "FMTTYPE"
	paramTimezoneID = "TZID"
	paramValue      = "VALUE"
	statusCancelled = "CANCELLED"
)

// ParsedEvent is a VEVENT as read from a feed. Recurrence expansion turns
// it into model.Event values.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string
	Conference  string
	Banner      *model.Media

	ContentWarning string
	Capacity       int
	Status         string // FEP-8a8e status, "" for scheduled

	Start   time.Time
	End     time.Time
	AllDay  bool
	StartTZ string
	EndTZ   string
	// Floating is set when DTSTART carries neither a UTC marker nor a
	// loadable TZID. Start/End are then wall clock values in time.Local.
	Floating bool
	// CalendarTZ is the feed-wide X-WR-TIMEZONE, if any.
	CalendarTZ string

	Created      time.Time
	LastModified time.Time

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present)
	IsOverride bool
}

// ParseICS parses a single ICS payload. Broken VEVENTs are logged and
// skipped; only an unreadable calendar is an error.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	calTZ := ""
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, propCalendarTimezone) {
			calTZ = strings.TrimSpace(p.Value)
		}
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		ev.CalendarTZ = calTZ
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent
	out.Source = src

	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.URL = propValue(ve, ical.ComponentPropertyUrl)
	out.ContentWarning = propValue(ve, propContentWarning)

	out.Conference = propValue(ve, propConference)
	if out.Conference == "" {
		out.Conference = propValue(ve, propGoogleConference)
	}

	if seq := propValue(ve, ical.ComponentPropertySequence); seq != "" {
		if n, err := strconv.Atoi(seq); err == nil {
			out.Seq = n
		}
	}
	if capacity := propValue(ve, propCapacity); capacity != "" {
		n, err := strconv.Atoi(capacity)
		if err != nil {
			return out, errors.New("invalid " + propCapacity + ": " + capacity)
		}
		out.Capacity = n
	}
	if strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), statusCancelled) {
		out.Status = activity.EventCancelled
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	out.StartTZ = firstParam(dtStart, paramTimezoneID)
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		out.EndTZ = firstParam(dtEnd, paramTimezoneID)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		// golang-ical rejects TZIDs the runtime cannot load; read the wall
		// clock instead.
		if start, err = parseTimeValue(dtStart.Value, ""); err != nil {
			return out, err
		}
	}
	out.Start = start
	// DTEND is optional; a missing one leaves End zero.
	if end, err := ve.GetEndAt(); err == nil {
		out.End = end
	} else if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := parseTimeValue(dtEnd.Value, ""); err == nil {
			out.End = end
		}
	}

	// VALUE=DATE or a value without a time part marks an all-day event.
	out.AllDay = strings.EqualFold(firstParam(dtStart, paramValue), "DATE") || !strings.Contains(dtStart.Value, "T")
	out.Floating = !strings.HasSuffix(dtStart.Value, "Z") && !loadable(out.StartTZ)

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		// Stable across refreshes as long as the feed and the event's
		// title/start stay the same.
		name := strings.Join([]string{src.URL, out.Summary, dtStart.Value}, "\n")
		out.UID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}

	out.Banner = parseBanner(ve)

	if t, err := parseICSTime(propValue(ve, ical.ComponentPropertyCreated)); err == nil {
		out.Created = t
	}
	if t, err := parseICSTime(propValue(ve, ical.ComponentPropertyLastModified)); err == nil {
		out.LastModified = t
	}

	out.RawRRule = propValue(ve, ical.ComponentPropertyRrule)

	// EXDATE may repeat and hold comma separated values.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseTimeValue(part, firstParam(p, paramTimezoneID)); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, err := parseTimeValue(rid.Value, firstParam(rid, paramTimezoneID)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

// parseBanner returns the first image attachment referenced by URI.
func parseBanner(ve *ical.VEvent) *model.Media {
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttach) {
		if strings.EqualFold(firstParam(p, paramValue), "BINARY") {
			continue
		}
		mediaType := strings.ToLower(firstParam(p, paramFormatType))
		if !strings.HasPrefix(mediaType, "image/") || strings.TrimSpace(p.Value) == "" {
			continue
		}
		return &model.Media{URL: strings.TrimSpace(p.Value), MediaType: mediaType}
	}
	return nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	p := ve.GetProperty(name)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

func firstParam(p *ical.IANAProperty, name string) string {
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func loadable(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// parseTimeValue reads a DATE or DATE-TIME the way golang-ical reads
// DTSTART: UTC when suffixed with Z, in tzid when it loads, otherwise as
// wall clock in time.Local.
func parseTimeValue(v, tzid string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	loc := time.Local
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			loc = l
		}
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// parseICSTime parses a DATE or DATE-TIME value without parameter context.
// Floating values are read as UTC.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Floating date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	}
	// Date-only (all-day), e.g., 20250101
	return time.ParseInLocation("20060102", v, time.UTC)
}
