package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"storefront-orderflow/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// JoinAuthorizer decides whether the connection's session may watch an
// order. A nil authorizer admits every join.
type JoinAuthorizer func(ctx context.Context, orderID string) error

// Server upgrades HTTP requests to order sockets bound to a Hub.
type Server struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	buffer    int
	authorize JoinAuthorizer
}

func NewServer(hub *Hub, authorize JoinAuthorizer) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		buffer:    DefaultClientBuffer,
		authorize: authorize,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context()).With(zap.String("layer", "realtime"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), s.buffer)
	s.hub.Register(client)
	log = log.With(zap.String("client_id", client.ID()))
	log.Info("socket connected")

	go s.writePump(conn, client, log)
	s.readPump(r.Context(), conn, client, log)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, c *Client, log *zap.Logger) {
	defer func() {
		s.hub.Unregister(c.ID())
		conn.Close()
		log.Info("socket disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("socket read failed", zap.Error(err))
			}
			return
		}
		s.handle(ctx, c, data, log)
	}
}

func (s *Server) handle(ctx context.Context, c *Client, data []byte, log *zap.Logger) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.reject(c, "malformed frame")
		return
	}

	var req RoomRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.reject(c, "malformed payload")
			return
		}
	}

	switch frame.Event {
	case EventJoinOrderRoom:
		if s.authorize != nil {
			if err := s.authorize(ctx, req.OrderID); err != nil {
				log.Info("join refused", zap.String("order_id", req.OrderID), zap.Error(err))
				s.reject(c, err.Error())
				return
			}
		}
		if err := s.hub.Join(req.OrderID, c.ID()); err != nil {
			s.reject(c, err.Error())
			return
		}
		log.Debug("joined room", zap.String("order_id", req.OrderID))

	case EventLeaveOrderRoom:
		s.hub.Leave(req.OrderID, c.ID())
		log.Debug("left room", zap.String("order_id", req.OrderID))

	default:
		s.reject(c, "unknown event: "+frame.Event)
	}
}

func (s *Server) reject(c *Client, msg string) {
	payload, err := EncodeFrame(EventError, ErrorMessage{Message: msg})
	if err != nil {
		return
	}
	s.hub.Send(c.ID(), payload)
}

// writePump is the only writer on conn.
func (s *Server) writePump(conn *websocket.Conn, c *Client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("socket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
