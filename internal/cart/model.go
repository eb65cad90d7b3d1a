package cart

import "storefront-orderflow/internal/order"

// Line is one product (and color) in the cart. UnitPrice is the price
// seen when the line was added and becomes the order item snapshot.
type Line struct {
	ProductID string  `json:"productId"`
	ColorID   *string `json:"colorId,omitempty"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unitPrice"`
}

func (l Line) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitPrice
}

func (l Line) Item() order.Item {
	return order.Item{
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: l.UnitPrice,
		ColorID:   l.ColorID,
	}
}

type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventCleared EventKind = "cleared"
)

// Event describes one cart change together with the totals after it.
type Event struct {
	Kind     EventKind `json:"kind"`
	Line     *Line     `json:"line,omitempty"`
	Count    int       `json:"count"`
	Subtotal int64     `json:"subtotal"`
}

// State is the serializable form of a cart.
type State struct {
	Lines []Line `json:"lines"`
}
