// Package activity models the ActivityStreams 2.0 objects published by
// eventfed: the FEP-8a8e Event and the sub-objects it carries.
package activity

import (
	"bytes"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
)

const (
	ContextSchemaOrg       = "https://schema.org/"
	ContextFEP8a8e         = "https://w3id.org/fep/8a8e"
	ContextActivityStreams = "https://www.w3.org/ns/activitystreams"

	// PublicCollection addresses everyone.
	PublicCollection = "https://www.w3.org/ns/activitystreams#Public"
)

// Object type names.
const (
	TypeEvent             = "Event"
	TypePlace             = "Place"
	TypeDocument          = "Document"
	TypeImage             = "Image"
	TypeAudio             = "Audio"
	TypeVideo             = "Video"
	TypeLink              = "Link"
	TypeOrderedCollection = "OrderedCollection"
)

// Place is a physical location.
type Place struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewPlace returns a Place named after its address, or nil when address
// is empty so that a location is never half populated.
func NewPlace(address string) *Place {
	if address == "" {
		return nil
	}
	return &Place{Type: TypePlace, Name: address, Address: address}
}

// Attachment is a Document, media object or Link attached to an object.
// Media objects use URL, Links use Href.
type Attachment struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	URL       string `json:"url,omitempty"`
	Href      string `json:"href,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Object holds the properties shared by all published objects.
type Object struct {
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type"`
	URL          string            `json:"url,omitempty"`
	AttributedTo string            `json:"attributedTo,omitempty"`
	Name         string            `json:"name,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	SummaryMap   map[string]string `json:"summaryMap,omitempty"`
	Content      string            `json:"content,omitempty"`
	ContentMap   map[string]string `json:"contentMap,omitempty"`
	MediaType    string            `json:"mediaType,omitempty"`
	Published    string            `json:"published,omitempty"`
	Updated      string            `json:"updated,omitempty"`
	StartTime    string            `json:"startTime,omitempty"`
	EndTime      string            `json:"endTime,omitempty"`
	Location     *Place            `json:"location,omitempty"`
	Attachment   []Attachment      `json:"attachment,omitempty"`
	To           []string          `json:"to,omitempty"`
	Cc           []string          `json:"cc,omitempty"`
	Audience     []string          `json:"audience,omitempty"`
	Sensitive    bool              `json:"sensitive,omitempty"`

	// Extensions are compact-IRI members such as "dcterms:subject".
	// They are written after the regular members, sorted by key.
	Extensions map[string]any `json:"-"`
}

// MarkSensitive flags the object as sensitive with warning as its summary.
// Any language map for the summary is dropped so it cannot contradict it.
func (o *Object) MarkSensitive(warning string) {
	o.Sensitive = true
	o.Summary = warning
	o.SummaryMap = nil
}

// reservedMembers are the keys encoded from typed fields of an Event.
var reservedMembers = map[string]bool{
	"@context": true, "id": true, "type": true, "url": true, "attributedTo": true,
	"name": true, "summary": true, "summaryMap": true, "content": true,
	"contentMap": true, "mediaType": true, "published": true, "updated": true,
	"startTime": true, "endTime": true, "location": true, "attachment": true,
	"to": true, "cc": true, "audience": true, "sensitive": true,
	"timezone": true, "isOnline": true, "eventStatus": true,
	"maximumAttendeeCapacity": true,
}

// SetExtension stores an extension member; a nil value removes it. Keys
// owned by a typed field are rejected.
func (o *Object) SetExtension(key string, value any) error {
	if key == "" || reservedMembers[key] {
		return fmt.Errorf("activity: extension %q: %w", key, ErrInvalidValue)
	}
	if value == nil {
		delete(o.Extensions, key)
		return nil
	}
	if o.Extensions == nil {
		o.Extensions = make(map[string]any)
	}
	o.Extensions[key] = value
	return nil
}

// member is a JSON member appended after struct encoding.
type member struct {
	key   string
	value any
}

func sortedExtensions(ext map[string]any) []member {
	out := make([]member, 0, len(ext))
	for k, v := range ext {
		out = append(out, member{key: k, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// appendMembers splices members into an encoded JSON object.
func appendMembers(obj []byte, members []member) ([]byte, error) {
	if len(members) == 0 {
		return obj, nil
	}
	end := bytes.LastIndexByte(obj, '}')
	if end < 0 {
		return nil, fmt.Errorf("activity: encoded value is not an object")
	}

	var buf bytes.Buffer
	buf.Grow(len(obj) + 64*len(members))
	buf.Write(obj[:end])
	empty := len(bytes.TrimSpace(obj[1:end])) == 0
	for _, m := range members {
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.value)
		if err != nil {
			return nil, fmt.Errorf("activity: encode %s: %w", m.key, err)
		}
		if !empty {
			buf.WriteByte(',')
		}
		empty = false
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
