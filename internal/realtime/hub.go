package realtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/order"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	DefaultClientBuffer = 32
	forwardQueueSize    = 256
	forwardTimeout      = 2 * time.Second
)

// Forwarder relays a published snapshot to other hub instances.
type Forwarder interface {
	Forward(ctx context.Context, orderID string, snapshot *order.Order) error
}

// Client is one connected subscriber. Its outbound queue is closed when the
// hub drops it.
type Client struct {
	id    string
	send  chan []byte
	rooms map[string]struct{}
}

func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Client{
		id:    id,
		send:  make(chan []byte, buffer),
		rooms: make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Outbound() <-chan []byte { return c.send }

type Stats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Clients   int   `json:"clients"`
	Rooms     int   `json:"rooms"`

	// ForwardDropped counts snapshots not relayed because the forward queue was full.
	ForwardDropped int64 `json:"forward_dropped"`
}

// Hub fans order snapshots out to the clients that joined the order's room.
// Each client has a bounded queue; a client whose queue is full is dropped
// and expected to reconnect and refetch.
type Hub struct {
	mu        sync.Mutex
	clients   map[string]*Client
	rooms     map[string]map[string]*Client
	forwarder Forwarder
	forwards  chan forwardJob

	published      *atomic.Int64
	delivered      *atomic.Int64
	dropped        *atomic.Int64
	forwardDropped *atomic.Int64
}

type forwardJob struct {
	orderID  string
	snapshot *order.Order
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		forwards: make(chan forwardJob, forwardQueueSize),

		published:      atomic.NewInt64(0),
		delivered:      atomic.NewInt64(0),
		dropped:        atomic.NewInt64(0),
		forwardDropped: atomic.NewInt64(0),
	}
}

// SetForwarder must be called before the hub is shared. Snapshots are only
// relayed while RunForwarder is running.
func (h *Hub) SetForwarder(f Forwarder) {
	h.forwarder = f
}

// RunForwarder drains the forward queue until ctx is done. A single drainer
// keeps snapshots of one order in publish order.
func (h *Hub) RunForwarder(ctx context.Context) {
	if h.forwarder == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-h.forwards:
			h.forward(ctx, job)
		}
	}
}

func (h *Hub) forward(ctx context.Context, job forwardJob) {
	ctx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()
	if err := h.forwarder.Forward(ctx, job.orderID, job.snapshot); err != nil {
		logger.L().Warn("failed to forward snapshot",
			zap.String("layer", "realtime"),
			zap.String("order_id", job.orderID),
			zap.Error(err),
		)
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// Unregister removes the client from every room and closes its queue.
// Unknown ids are ignored.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		h.removeLocked(c)
	}
}

func (h *Hub) removeLocked(c *Client) {
	for orderID := range c.rooms {
		h.leaveLocked(orderID, c)
	}
	delete(h.clients, c.id)
	close(c.send)
}

// Join is idempotent for the same pair.
func (h *Hub) Join(orderID, clientID string) error {
	if orderID == "" {
		return ErrEmptyRoom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}

	room, ok := h.rooms[orderID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[orderID] = room
	}
	room[clientID] = c
	c.rooms[orderID] = struct{}{}
	return nil
}

// Leave is safe to call for a room that was never joined.
func (h *Hub) Leave(orderID, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		h.leaveLocked(orderID, c)
	}
}

func (h *Hub) leaveLocked(orderID string, c *Client) {
	delete(c.rooms, orderID)
	room, ok := h.rooms[orderID]
	if !ok {
		return
	}
	delete(room, c.id)
	if len(room) == 0 {
		delete(h.rooms, orderID)
	}
}

// Publish delivers the full snapshot to the local room and queues it for
// other instances. It never blocks on a slow client or on the forwarder.
func (h *Hub) Publish(orderID string, snapshot *order.Order) {
	log := logger.L().With(
		zap.String("layer", "realtime"),
		zap.String("method", "Publish"),
		zap.String("order_id", orderID),
	)

	payload, err := EncodeFrame(EventUpdateOrder, UpdateOrder{Order: snapshot})
	if err != nil {
		log.Error("failed to encode snapshot", zap.Error(err))
		return
	}

	h.published.Inc()
	n := h.Deliver(orderID, payload)
	log.Debug("snapshot delivered", zap.Int("recipients", n), zap.Int64("version", snapshot.Version))

	if h.forwarder == nil {
		return
	}
	select {
	case h.forwards <- forwardJob{orderID: orderID, snapshot: snapshot}:
	default:
		h.forwardDropped.Inc()
		log.Warn("forward queue full, snapshot not relayed")
	}
}

// Deliver queues an encoded frame for every member of the room and returns
// how many clients accepted it.
func (h *Hub) Deliver(orderID string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.rooms[orderID] {
		select {
		case c.send <- payload:
			n++
		default:
			logger.L().Warn("dropping slow client",
				zap.String("layer", "realtime"),
				zap.String("client_id", c.id),
				zap.String("order_id", orderID),
			)
			h.removeLocked(c)
			h.dropped.Inc()
		}
	}
	h.delivered.Add(int64(n))
	return n
}

// Send queues a frame for a single client.
func (h *Hub) Send(clientID string, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		h.removeLocked(c)
		h.dropped.Inc()
		return false
	}
}

func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Members(orderID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.rooms[orderID]))
	for id := range h.rooms[orderID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	clients, rooms := len(h.clients), len(h.rooms)
	h.mu.Unlock()

	return Stats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Clients:   clients,
		Rooms:     rooms,

		ForwardDropped: h.forwardDropped.Load(),
	}
}
