package transport

import (
	"context"

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/realtime"
)

// ActorFrom maps the request session onto the order actor model.
func ActorFrom(ctx context.Context) (order.Actor, bool) {
	s, ok := auth.SessionFrom(ctx)
	if !ok {
		return order.Actor{}, false
	}

	kind := order.ActorCustomer
	if s.IsAdmin() {
		kind = order.ActorAdmin
	}
	return order.Actor{Kind: kind, ID: s.UserID}, true
}

// JoinAuthorizer lets a socket join an order room only when its session
// could read that order over REST.
func JoinAuthorizer(orders order.Service) realtime.JoinAuthorizer {
	return func(ctx context.Context, orderID string) error {
		actor, ok := ActorFrom(ctx)
		if !ok {
			return order.ErrForbidden
		}
		_, err := orders.GetOrderDetail(ctx, orderID, actor)
		return err
	}
}
