package subscriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/realtime"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Fetcher reads the current order snapshot over REST.
type Fetcher interface {
	GetOrder(ctx context.Context, id string) (*order.Order, error)
}

type Config struct {
	URL         string
	Header      http.Header
	Dialer      *websocket.Dialer
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxFailures int
}

func (c Config) withDefaults() Config {
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	return c
}

// SocketURL turns an API base url into its websocket endpoint.
func SocketURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

type View struct {
	Order *order.Order
	Stale bool
}

// Subscriber keeps the local view of every mounted order in sync with
// the realtime rooms. Snapshots replace the view whole.
type Subscriber struct {
	cfg   Config
	fetch Fetcher
	log   *zap.Logger

	mu       sync.Mutex
	views    map[string]*order.Order
	conn     *websocket.Conn
	stale    bool
	failures int
	onChange []func(*order.Order)
	onStale  []func(bool)

	writeMu sync.Mutex
}

func New(cfg Config, fetch Fetcher, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{
		cfg:   cfg.withDefaults(),
		fetch: fetch,
		log:   log.With(zap.String("layer", "subscriber")),
		views: make(map[string]*order.Order),
	}
}

func (s *Subscriber) OnChange(fn func(*order.Order)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// OnStale is told when repeated recovery failures make the views
// untrustworthy, and again once they are fresh.
func (s *Subscriber) OnStale(fn func(bool)) {
	s.mu.Lock()
	s.onStale = append(s.onStale, fn)
	s.mu.Unlock()
}

// Mount joins the order's room and loads its current snapshot. The room
// stays mounted when the fetch fails and is resynced on reconnect.
func (s *Subscriber) Mount(ctx context.Context, orderID string) (*order.Order, error) {
	s.mu.Lock()
	if _, ok := s.views[orderID]; !ok {
		s.views[orderID] = nil
	}
	s.mu.Unlock()

	if err := s.send(realtime.EventJoinOrderRoom, orderID); err != nil && !errors.Is(err, ErrDisconnected) {
		s.log.Warn("join failed", zap.String("order_id", orderID), zap.Error(err))
	}

	o, err := s.fetch.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.Apply(o)

	v, _ := s.View(orderID)
	return v.Order, nil
}

// Unmount drops the local view and leaves the room. It returns ErrNotMounted
// for an order that was never mounted or is already gone.
func (s *Subscriber) Unmount(orderID string) error {
	s.mu.Lock()
	_, ok := s.views[orderID]
	delete(s.views, orderID)
	s.mu.Unlock()

	if !ok {
		return ErrNotMounted
	}
	if err := s.send(realtime.EventLeaveOrderRoom, orderID); err != nil && !errors.Is(err, ErrDisconnected) {
		s.log.Warn("leave failed", zap.String("order_id", orderID), zap.Error(err))
	}
	return nil
}

func (s *Subscriber) View(orderID string) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.views[orderID]
	if !ok {
		return View{}, false
	}
	v := View{Stale: s.stale}
	if o != nil {
		v.Order = o.Clone()
	}
	return v, true
}

func (s *Subscriber) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.views))
	for id := range s.views {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Subscriber) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Apply replaces the view of a mounted order. Snapshots for unmounted
// orders, older versions and identical repeats change nothing.
func (s *Subscriber) Apply(o *order.Order) bool {
	if o == nil {
		return false
	}

	s.mu.Lock()
	current, mounted := s.views[o.ID]
	if !mounted {
		s.mu.Unlock()
		return false
	}
	if current != nil {
		if o.Version < current.Version || sameSnapshot(current, o) {
			s.mu.Unlock()
			return false
		}
	}
	next := o.Clone()
	s.views[o.ID] = next
	listeners := append([]func(*order.Order){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(next.Clone())
	}
	return true
}

func sameSnapshot(a, b *order.Order) bool {
	if a.Version != b.Version {
		return false
	}
	x, err1 := json.Marshal(a)
	y, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && bytes.Equal(x, y)
}

// Run keeps the socket up until ctx ends. Every successful connect
// rejoins all mounted rooms and refetches their snapshots.
func (s *Subscriber) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, _, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
		if err != nil {
			s.fail(err)
		} else {
			backoff = s.cfg.MinBackoff
			s.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

func (s *Subscriber) serve(ctx context.Context, conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	s.log.Info("socket connected")
	if err := s.resync(ctx); err != nil {
		s.fail(err)
	} else {
		s.markFresh()
	}

	err := s.readLoop(conn)

	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	conn.Close()

	if ctx.Err() == nil {
		s.log.Warn("socket dropped", zap.Error(err))
	}
}

func (s *Subscriber) resync(ctx context.Context) error {
	var firstErr error
	for _, id := range s.Rooms() {
		if err := s.send(realtime.EventJoinOrderRoom, id); err != nil {
			return err
		}
		o, err := s.fetch.GetOrder(ctx, id)
		if err != nil {
			s.log.Warn("refetch failed", zap.String("order_id", id), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.Apply(o)
	}
	return firstErr
}

func (s *Subscriber) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("malformed frame", zap.Error(err))
			continue
		}

		switch frame.Event {
		case realtime.EventUpdateOrder:
			var msg realtime.UpdateOrder
			if err := json.Unmarshal(frame.Data, &msg); err != nil || msg.Order == nil {
				s.log.Warn("malformed update", zap.Error(err))
				continue
			}
			s.Apply(msg.Order)
		case realtime.EventError:
			var msg realtime.ErrorMessage
			_ = json.Unmarshal(frame.Data, &msg)
			s.log.Warn("server rejected frame", zap.String("message", msg.Message))
		}
	}
}

func (s *Subscriber) send(event, orderID string) error {
	payload, err := realtime.EncodeFrame(event, realtime.RoomRequest{OrderID: orderID})
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Subscriber) fail(err error) {
	s.mu.Lock()
	s.failures++
	flip := !s.stale && s.failures >= s.cfg.MaxFailures
	if flip {
		s.stale = true
	}
	failures := s.failures
	listeners := append([]func(bool){}, s.onStale...)
	s.mu.Unlock()

	s.log.Warn("realtime recovery failed", zap.Int("failures", failures), zap.Error(err))
	if flip {
		for _, fn := range listeners {
			fn(true)
		}
	}
}

func (s *Subscriber) markFresh() {
	s.mu.Lock()
	s.failures = 0
	flip := s.stale
	s.stale = false
	listeners := append([]func(bool){}, s.onStale...)
	s.mu.Unlock()

	if flip {
		for _, fn := range listeners {
			fn(false)
		}
	}
}
