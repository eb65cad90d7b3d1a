package cart

import (
	"sync"

	"storefront-orderflow/internal/order"
)

const DefaultListenerBuffer = 16

type key struct {
	productID string
	colorID   string
}

func keyOf(productID string, colorID *string) key {
	k := key{productID: productID}
	if colorID != nil {
		k.colorID = *colorID
	}
	return k
}

// Cart is the single owner of the shopper's cart lines. Views listen for
// typed events instead of keeping copies of their own.
type Cart struct {
	mu        sync.Mutex
	lines     []Line
	listeners map[int]chan Event
	nextID    int
}

func New() *Cart {
	return &Cart{listeners: make(map[int]chan Event)}
}

// Restore rebuilds a cart from its serialized state. Lines sharing a
// product and color are merged.
func Restore(s State) (*Cart, error) {
	c := New()
	for _, l := range s.Lines {
		if err := validLine(l); err != nil {
			return nil, err
		}
		if i := c.indexLocked(keyOf(l.ProductID, l.ColorID)); i >= 0 {
			c.lines[i].Quantity += l.Quantity
			continue
		}
		c.lines = append(c.lines, l)
	}
	return c, nil
}

func validLine(l Line) error {
	if l.ProductID == "" || l.UnitPrice < 0 {
		return ErrInvalidLine
	}
	if l.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Listen returns a channel of cart events and a func that stops it.
// A listener that falls behind is closed rather than blocking the cart.
func (c *Cart) Listen(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan Event, buffer)
	c.listeners[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if ch, ok := c.listeners[id]; ok {
			delete(c.listeners, id)
			close(ch)
		}
	}
}

// Add puts a line in the cart, adding to the quantity of an existing
// line for the same product and color.
func (c *Cart) Add(l Line) (Line, error) {
	if err := validLine(l); err != nil {
		return Line{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kind := EventAdded
	i := c.indexLocked(keyOf(l.ProductID, l.ColorID))
	if i >= 0 {
		c.lines[i].Quantity += l.Quantity
		c.lines[i].UnitPrice = l.UnitPrice
		if l.Name != "" {
			c.lines[i].Name = l.Name
		}
		kind = EventUpdated
	} else {
		c.lines = append(c.lines, l)
		i = len(c.lines) - 1
	}

	out := c.lines[i]
	c.emitLocked(kind, &out)
	return out, nil
}

// SetQuantity replaces a line's quantity. Zero or less removes it.
func (c *Cart) SetQuantity(productID string, colorID *string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(keyOf(productID, colorID))
	if i < 0 {
		return ErrCartItemNotFound
	}
	if qty <= 0 {
		c.removeLocked(i)
		return nil
	}
	if c.lines[i].Quantity == qty {
		return nil
	}

	c.lines[i].Quantity = qty
	out := c.lines[i]
	c.emitLocked(EventUpdated, &out)
	return nil
}

func (c *Cart) Remove(productID string, colorID *string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexLocked(keyOf(productID, colorID))
	if i < 0 {
		return ErrCartItemNotFound
	}
	c.removeLocked(i)
	return nil
}

func (c *Cart) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) == 0 {
		return ErrCartEmpty
	}
	c.lines = nil
	c.emitLocked(EventCleared, nil)
	return nil
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Items converts the cart into order items with their price snapshots.
func (c *Cart) Items() []order.Item {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]order.Item, 0, len(c.lines))
	for _, l := range c.lines {
		out = append(out, l.Item())
	}
	return out
}

func (c *Cart) Subtotal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subtotalLocked()
}

func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *Cart) State() State {
	return State{Lines: c.Lines()}
}

func (c *Cart) indexLocked(k key) int {
	for i, l := range c.lines {
		if keyOf(l.ProductID, l.ColorID) == k {
			return i
		}
	}
	return -1
}

func (c *Cart) removeLocked(i int) {
	removed := c.lines[i]
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	c.emitLocked(EventRemoved, &removed)
}

func (c *Cart) subtotalLocked() int64 {
	var total int64
	for _, l := range c.lines {
		total += l.Subtotal()
	}
	return total
}

func (c *Cart) countLocked() int {
	n := 0
	for _, l := range c.lines {
		n += l.Quantity
	}
	return n
}

func (c *Cart) emitLocked(kind EventKind, l *Line) {
	ev := Event{
		Kind:     kind,
		Line:     l,
		Count:    c.countLocked(),
		Subtotal: c.subtotalLocked(),
	}
	for id, ch := range c.listeners {
		select {
		case ch <- ev:
		default:
			delete(c.listeners, id)
			close(ch)
		}
	}
}
