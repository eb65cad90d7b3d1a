package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/order"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type envelope struct {
	Origin  string       `json:"origin"`
	OrderID string       `json:"orderId"`
	Order   *order.Order `json:"order"`
}

// Bridge shares hub publishes between instances over a Redis channel.
// Messages an instance sent itself are skipped on receipt.
type Bridge struct {
	client   *redis.Client
	pub      redisPublisher
	channel  string
	instance string
	hub      *Hub
}

func NewBridge(client *redis.Client, channel string, hub *Hub) *Bridge {
	return &Bridge{
		client:   client,
		pub:      client,
		channel:  channel,
		instance: uuid.NewString(),
		hub:      hub,
	}
}

func (b *Bridge) Forward(ctx context.Context, orderID string, snapshot *order.Order) error {
	msg, err := json.Marshal(envelope{Origin: b.instance, OrderID: orderID, Order: snapshot})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := b.pub.Publish(ctx, b.channel, msg).Err(); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// Run delivers snapshots published by other instances until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	logger.L().Info("redis bridge subscribed",
		zap.String("channel", b.channel),
		zap.String("instance", b.instance),
	)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(msg.Payload)
		}
	}
}

func (b *Bridge) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.L().Warn("invalid bridge message", zap.Error(err))
		return
	}
	if env.Origin == b.instance || env.OrderID == "" {
		return
	}

	frame, err := EncodeFrame(EventUpdateOrder, UpdateOrder{Order: env.Order})
	if err != nil {
		logger.L().Warn("failed to encode bridged snapshot", zap.Error(err))
		return
	}
	b.hub.Deliver(env.OrderID, frame)
}
