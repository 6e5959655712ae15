package transform

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"eventfed/internal/activity"
	"eventfed/internal/blocks"
	appLog "eventfed/internal/log"
	"eventfed/internal/model"
)

const (
	// eventTimeLayout keeps a numeric offset even for UTC ("+00:00", never "Z").
	eventTimeLayout = "2006-01-02T15:04:05-07:00"
	// publishedLayout is used for published/updated, always in UTC.
	publishedLayout = "2006-01-02T15:04:05Z"
)

var errMissingStart = errors.New("start time is required")

// mapping is the state of one ToObject call. The render filters live here
// and nowhere else, so they vanish with the call.
type mapping struct {
	ev          model.Event
	attachments AttachmentProvider
	filters     []blocks.Filter

	loc    *time.Location
	locErr error
	locSet bool
}

// location resolves the schedule's time zone once per call.
func (m *mapping) location() (*time.Location, error) {
	if !m.locSet {
		m.locSet = true
		if m.ev.TimeZone == "" {
			m.loc = m.ev.Start.Location()
		} else {
			m.loc, m.locErr = time.LoadLocation(m.ev.TimeZone)
			if m.locErr != nil {
				m.locErr = fmt.Errorf("timezone %q: %w", m.ev.TimeZone, m.locErr)
			}
		}
	}
	return m.loc, m.locErr
}

// field maps one object property. apply leaves the property untouched when
// the event has no value for it.
type field struct {
	name  string
	apply func(m *mapping, obj *activity.Event) error
}

// postFields is the generic mapping shared by all published items.
var postFields = []field{
	{name: "id", apply: mapID},
	{name: "url", apply: mapURL},
	{name: "attributedTo", apply: mapAttributedTo},
	{name: "name", apply: mapName},
	{name: "content", apply: mapContent},
	{name: "published", apply: mapPublished},
	{name: "updated", apply: mapUpdated},
	{name: "attachment", apply: mapMediaAttachments},
}

// eventOverrides customises postFields for events.
var eventOverrides = []field{
	{name: "location", apply: mapLocation},
	{name: "startTime", apply: mapStartTime},
	{name: "endTime", apply: mapEndTime},
	{name: "timezone", apply: mapTimezone},
	{name: "attachment", apply: mapEventAttachments},
	{name: "isOnline", apply: mapIsOnline},
	{name: "eventStatus", apply: mapEventStatus},
	{name: "maximumAttendeeCapacity", apply: mapCapacity},
}

var eventFields = withOverrides(postFields, eventOverrides)

// withOverrides replaces base fields by name and appends the rest, keeping
// the base order.
func withOverrides(base, overrides []field) []field {
	out := make([]field, len(base), len(base)+len(overrides))
	copy(out, base)
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].name == o.name {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}

func mapID(m *mapping, obj *activity.Event) error {
	obj.ID = m.ev.URL
	return nil
}

func mapURL(m *mapping, obj *activity.Event) error {
	obj.URL = m.ev.URL
	return nil
}

func mapAttributedTo(m *mapping, obj *activity.Event) error {
	obj.AttributedTo = m.ev.Author
	return nil
}

func mapName(m *mapping, obj *activity.Event) error {
	obj.Name = strings.TrimSpace(m.ev.Title)
	return nil
}

func mapContent(m *mapping, obj *activity.Event) error {
	html, err := blocks.Render(m.ev.Description, m.filters...)
	if err != nil {
		return err
	}
	html = strings.TrimSpace(html)
	if html == "" {
		return nil
	}
	obj.Content = html
	obj.MediaType = "text/html"
	if m.ev.Language != "" {
		obj.ContentMap = map[string]string{m.ev.Language: html}
	}
	return nil
}

func mapPublished(m *mapping, obj *activity.Event) error {
	if !m.ev.Published.IsZero() {
		obj.Published = m.ev.Published.UTC().Format(publishedLayout)
	}
	return nil
}

func mapUpdated(m *mapping, obj *activity.Event) error {
	if !m.ev.Updated.IsZero() {
		obj.Updated = m.ev.Updated.UTC().Format(publishedLayout)
	}
	return nil
}

func mapMediaAttachments(m *mapping, obj *activity.Event) error {
	obj.Attachment = append([]activity.Attachment(nil), m.attachments.Attachments(m.ev)...)
	return nil
}

func mapLocation(m *mapping, obj *activity.Event) error {
	obj.Location = activity.NewPlace(m.ev.VenueAddress())
	return nil
}

func mapStartTime(m *mapping, obj *activity.Event) error {
	if m.ev.Start.IsZero() {
		return errMissingStart
	}
	loc, err := m.location()
	if err != nil {
		return err
	}
	obj.StartTime = m.ev.Start.In(loc).Format(eventTimeLayout)
	return nil
}

func mapEndTime(m *mapping, obj *activity.Event) error {
	if m.ev.End.IsZero() {
		return nil
	}
	if m.ev.End.Before(m.ev.Start) {
		appLog.Debug("transform: end before start",
			"event", m.ev.ID,
			"start", m.ev.Start.Format(time.RFC3339),
			"end", m.ev.End.Format(time.RFC3339),
		)
	}
	loc, err := m.location()
	if err != nil {
		return err
	}
	obj.EndTime = m.ev.End.In(loc).Format(eventTimeLayout)
	return nil
}

func mapTimezone(m *mapping, obj *activity.Event) error {
	loc, err := m.location()
	if err != nil {
		return err
	}
	// time.Local has no IANA name worth publishing.
	if name := loc.String(); name != "Local" {
		obj.Timezone = name
	}
	return nil
}

// mapEventAttachments relabels the first media attachment as the banner
// and appends the event website.
func mapEventAttachments(m *mapping, obj *activity.Event) error {
	attachments := append([]activity.Attachment(nil), m.attachments.Attachments(m.ev)...)
	if len(attachments) > 0 {
		attachments[0].Type = activity.TypeDocument
		attachments[0].Name = "Banner"
	}
	if href := escapeURL(m.ev.ExternalLink); href != "" {
		attachments = append(attachments, activity.Attachment{
			Type:      activity.TypeLink,
			Name:      "Website",
			Href:      href,
			MediaType: "text/html",
		})
	}
	if len(attachments) > 0 {
		obj.Attachment = attachments
	}
	return nil
}

func mapIsOnline(m *mapping, obj *activity.Event) error {
	obj.IsOnline = m.ev.OnlineMeetingLink() != ""
	return nil
}

func mapEventStatus(m *mapping, obj *activity.Event) error {
	if m.ev.Status == "" {
		return nil
	}
	return obj.SetEventStatus(m.ev.Status)
}

func mapCapacity(m *mapping, obj *activity.Event) error {
	if m.ev.Capacity == 0 {
		return nil
	}
	return obj.SetMaximumAttendeeCapacity(m.ev.Capacity)
}

// escapeURL cleans a link for use as an href: spaces are encoded, characters
// outside the URL alphabet are stripped and a missing scheme becomes http.
// It returns "" unless the result is an absolute http(s) URL.
func escapeURL(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), " ", "%20")
	raw = strings.Map(func(r rune) rune {
		if r >= 0x80 || strings.ContainsRune(urlAlphabet, r) {
			return r
		}
		return -1
	}, raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, ":") && !strings.ContainsRune("/#?", rune(raw[0])) {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return ""
	}
	return u.String()
}

// urlAlphabet is the ASCII kept by escapeURL.
const urlAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789" +
	"-~+_.?#=!&;,/:%@$|*'()[]"
