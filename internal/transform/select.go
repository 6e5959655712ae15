package transform

import "eventfed/internal/model"

// Object is a publishable ActivityStreams object.
type Object interface {
	ObjectType() string
}

// ObjectTransformer turns a host item into an Object.
type ObjectTransformer interface {
	Transform() (Object, error)
}

// Item is anything the host may publish.
type Item interface {
	Kind() string
}

// Factory selects transformers for host items.
type Factory struct {
	opts Options
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// For returns an EventTransformer for events and fallback for anything else.
func (f *Factory) For(item Item, fallback ObjectTransformer) ObjectTransformer {
	switch ev := item.(type) {
	case model.Event:
		if ev.Kind() == model.KindEvent {
			return f.Event(ev)
		}
	case *model.Event:
		if ev != nil && ev.Kind() == model.KindEvent {
			return f.Event(*ev)
		}
	}
	return fallback
}

// Event returns a transformer for ev.
func (f *Factory) Event(ev model.Event) *EventTransformer {
	return NewEventTransformer(ev, f.opts)
}
