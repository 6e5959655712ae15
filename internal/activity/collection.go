package activity

// OrderedCollection lists published events.
type OrderedCollection struct {
	Context      []string `json:"@context"`
	ID           string   `json:"id,omitempty"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []*Event `json:"orderedItems"`
}

// NewOrderedCollection wraps items; a nil slice is encoded as [].
func NewOrderedCollection(id string, items []*Event) *OrderedCollection {
	if items == nil {
		items = []*Event{}
	}
	return &OrderedCollection{
		Context:      JSONLDContext(),
		ID:           id,
		Type:         TypeOrderedCollection,
		TotalItems:   len(items),
		OrderedItems: items,
	}
}
