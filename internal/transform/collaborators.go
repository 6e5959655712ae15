package transform

import (
	"strings"

	"eventfed/internal/activity"
	"eventfed/internal/model"
)

// AttachmentProvider returns the generic media attachments of an item.
type AttachmentProvider interface {
	Attachments(ev model.Event) []activity.Attachment
}

// AudienceResolver sets addressing on a populated object in place.
type AudienceResolver interface {
	SetAudience(obj *activity.Event, ev model.Event)
}

// ContentWarnings looks up the content warning of an item; "" means none.
type ContentWarnings interface {
	ContentWarning(ev model.Event) string
}

// MediaAttachments exposes the banner as the only media attachment, typed
// after its media type.
type MediaAttachments struct{}

func (MediaAttachments) Attachments(ev model.Event) []activity.Attachment {
	if ev.Banner == nil || ev.Banner.URL == "" {
		return nil
	}
	return []activity.Attachment{{
		Type:      typeForMediaType(ev.Banner.MediaType),
		Name:      ev.Banner.Alt,
		URL:       ev.Banner.URL,
		MediaType: ev.Banner.MediaType,
		Width:     ev.Banner.Width,
		Height:    ev.Banner.Height,
	}}
}

func typeForMediaType(mt string) string {
	switch {
	case strings.HasPrefix(mt, "image/"):
		return activity.TypeImage
	case strings.HasPrefix(mt, "audio/"):
		return activity.TypeAudio
	case strings.HasPrefix(mt, "video/"):
		return activity.TypeVideo
	default:
		return activity.TypeDocument
	}
}

// PublicAudience addresses the public collection and the author's
// followers.
type PublicAudience struct{}

func (PublicAudience) SetAudience(obj *activity.Event, ev model.Event) {
	obj.To = []string{activity.PublicCollection}
	if ev.Author != "" {
		obj.Cc = []string{strings.TrimRight(ev.Author, "/") + "/followers"}
	}
}

// EventWarnings reads the warning stored on the event record.
type EventWarnings struct{}

func (EventWarnings) ContentWarning(ev model.Event) string {
	return strings.TrimSpace(ev.ContentWarning)
}
