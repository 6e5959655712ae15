package activity

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrInvalidValue is returned by setters that reject a value.
var ErrInvalidValue = errors.New("invalid value")

// FEP-8a8e event statuses (schema.org EventStatusType).
const (
	EventScheduled   = "EventScheduled"
	EventCancelled   = "EventCancelled"
	EventMovedOnline = "EventMovedOnline"
	EventPostponed   = "EventPostponed"
	EventRescheduled = "EventRescheduled"
)

var eventStatuses = map[string]bool{
	EventScheduled:   true,
	EventCancelled:   true,
	EventMovedOnline: true,
	EventPostponed:   true,
	EventRescheduled: true,
}

// JSONLDContext returns the context of an Event. Later entries override
// earlier ones for colliding terms, so ActivityStreams wins over schema.org.
// Each call returns a fresh slice.
func JSONLDContext() []string {
	return []string{
		ContextSchemaOrg,
		ContextFEP8a8e,
		ContextActivityStreams,
	}
}

// Event is an ActivityStreams Event carrying the FEP-8a8e extension fields.
//
// See https://www.w3.org/TR/activitystreams-vocabulary/#dfn-event and
// https://w3id.org/fep/8a8e.
type Event struct {
	Context []string `json:"@context"`
	Object

	// Timezone is the IANA zone of the schedule.
	Timezone string `json:"timezone,omitempty"`
	IsOnline bool   `json:"isOnline"`

	status   string
	capacity *int
}

// NewEvent returns an Event with the default status and the FEP-8a8e
// context; all other fields are unset.
func NewEvent() *Event {
	return &Event{
		Context: JSONLDContext(),
		Object:  Object{Type: TypeEvent},
		status:  EventScheduled,
	}
}

// ObjectType reports the ActivityStreams type.
func (e *Event) ObjectType() string {
	return e.Type
}

func (e *Event) EventStatus() string {
	return e.status
}

// SetEventStatus sets one of the FEP-8a8e statuses.
func (e *Event) SetEventStatus(status string) error {
	if !eventStatuses[status] {
		return fmt.Errorf("activity: event status %q: %w", status, ErrInvalidValue)
	}
	e.status = status
	return nil
}

// MaximumAttendeeCapacity returns the capacity and whether it is set.
func (e *Event) MaximumAttendeeCapacity() (int, bool) {
	if e.capacity == nil {
		return 0, false
	}
	return *e.capacity, true
}

// SetMaximumAttendeeCapacity sets how many places the event has. n must be
// positive.
func (e *Event) SetMaximumAttendeeCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("activity: maximum attendee capacity %d: %w", n, ErrInvalidValue)
	}
	e.capacity = &n
	return nil
}

// ClearMaximumAttendeeCapacity removes the capacity.
func (e *Event) ClearMaximumAttendeeCapacity() {
	e.capacity = nil
}

// MarshalJSON encodes the event as compacted JSON-LD.
func (e Event) MarshalJSON() ([]byte, error) {
	type plain Event
	data, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}

	status := e.status
	if status == "" {
		status = EventScheduled
	}
	members := []member{{key: "eventStatus", value: status}}
	if e.capacity != nil {
		members = append(members, member{key: "maximumAttendeeCapacity", value: *e.capacity})
	}
	members = append(members, sortedExtensions(e.Extensions)...)

	return appendMembers(data, members)
}
