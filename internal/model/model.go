package model

import (
	"strings"
	"time"
)

// KindEvent is the item kind of calendar events.
const KindEvent = "event"

// Venue is a snapshot of venue data taken when the event is read.
// An empty FullAddress means the event has no physical location.
type Venue struct {
	Name        string
	FullAddress string
}

// Media references an uploaded file such as a banner image.
type Media struct {
	URL       string
	MediaType string // e.g. "image/jpeg"
	Alt       string
	Width     int
	Height    int
}

// Event is a host calendar event as seen by the federation layer. It is
// read-only to the transformer.
type Event struct {
	// ID identifies the event within its source; for expanded recurring
	// events it includes the instance key.
	ID       string
	SourceID string // calendar source ID

	// URL is the public address of the event; it doubles as the object id.
	URL string
	// Author is the actor URL the event is attributed to.
	Author string

	Title string
	// Description is raw HTML and may contain block markup.
	Description string
	Language    string

	// Start / End carry the event's own location.
	Start time.Time
	End   time.Time
	// TimeZone is the IANA name the schedule is expressed in.
	TimeZone string

	Venue        *Venue
	OnlineLink   string
	ExternalLink string
	Banner       *Media

	ContentWarning string

	// Capacity is the maximum number of attendees; zero means unlimited.
	Capacity int
	// Status is an FEP-8a8e event status; empty means scheduled.
	Status string

	Published time.Time
	Updated   time.Time
}

// Kind reports the item kind used for transformer selection.
func (e Event) Kind() string {
	return KindEvent
}

// VenueAddress returns the venue's full address or "" when there is none.
func (e Event) VenueAddress() string {
	if e.Venue == nil {
		return ""
	}
	return strings.TrimSpace(e.Venue.FullAddress)
}

// OnlineMeetingLink returns the online meeting URL or "" when the event is
// not held online.
func (e Event) OnlineMeetingLink() string {
	return strings.TrimSpace(e.OnlineLink)
}
