// Package transform maps host calendar events onto FEP-8a8e ActivityStreams
// Event objects.
package transform

import (
	"errors"
	"fmt"
	"time"

	"eventfed/internal/activity"
	"eventfed/internal/blocks"
	appLog "eventfed/internal/log"
	"eventfed/internal/metrics"
	"eventfed/internal/model"
)

// ErrMappingFailure matches every *MappingError.
var ErrMappingFailure = errors.New("mapping failure")

// MappingError reports the field whose mapping aborted a transformation.
type MappingError struct {
	Field string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("transform: map %s: %v", e.Field, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

func (e *MappingError) Is(target error) bool { return target == ErrMappingFailure }

// DCTermsSubject is the extension member carrying the content warning.
const DCTermsSubject = "dcterms:subject"

// Options configures transformers. Zero-valued collaborators are replaced
// by MediaAttachments, PublicAudience and EventWarnings.
type Options struct {
	// BlockNamespace is the host's own block namespace; its blocks are
	// not rendered into federated content.
	BlockNamespace string

	Attachments AttachmentProvider
	Audience    AudienceResolver
	Warnings    ContentWarnings

	// Metrics may be nil.
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.BlockNamespace == "" {
		o.BlockNamespace = "gatherpress"
	}
	if o.Attachments == nil {
		o.Attachments = MediaAttachments{}
	}
	if o.Audience == nil {
		o.Audience = PublicAudience{}
	}
	if o.Warnings == nil {
		o.Warnings = EventWarnings{}
	}
	return o
}

// EventTransformer turns one event into an ActivityStreams Event.
type EventTransformer struct {
	ev   model.Event
	opts Options
}

func NewEventTransformer(ev model.Event, opts Options) *EventTransformer {
	return &EventTransformer{ev: ev, opts: opts.withDefaults()}
}

// ToObject builds the Event object. On error no object is returned.
func (t *EventTransformer) ToObject() (obj *activity.Event, err error) {
	started := time.Now()
	defer func() { t.opts.Metrics.ObserveTransform(started, err) }()

	m := &mapping{
		ev:          t.ev,
		attachments: t.opts.Attachments,
		filters:     []blocks.Filter{blocks.SuppressNamespace(t.opts.BlockNamespace)},
	}

	obj = activity.NewEvent()
	for _, f := range eventFields {
		if ferr := f.apply(m, obj); ferr != nil {
			appLog.Debug("transform aborted", "event", t.ev.ID, "field", f.name, "err", ferr.Error())
			return nil, &MappingError{Field: f.name, Err: ferr}
		}
	}

	t.opts.Audience.SetAudience(obj, t.ev)

	if warning := t.opts.Warnings.ContentWarning(t.ev); warning != "" {
		obj.MarkSensitive(warning)
		if err := obj.SetExtension(DCTermsSubject, warning); err != nil {
			return nil, &MappingError{Field: DCTermsSubject, Err: err}
		}
	}

	return obj, nil
}

// Transform implements ObjectTransformer.
func (t *EventTransformer) Transform() (Object, error) {
	obj, err := t.ToObject()
	if err != nil {
		return nil, err
	}
	return obj, nil
}
