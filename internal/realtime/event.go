package realtime

import (
	"encoding/json"

	"storefront-orderflow/internal/order"
)

// Wire events exchanged over the order socket.
const (
	EventJoinOrderRoom  = "joinOrderRoom"
	EventLeaveOrderRoom = "leaveOrderRoom"
	EventUpdateOrder    = "updateOrder"
	EventError          = "error"
)

type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type RoomRequest struct {
	OrderID string `json:"orderId"`
}

type UpdateOrder struct {
	Order *order.Order `json:"order"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
