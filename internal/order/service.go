package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/voucher"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher receives the full snapshot after every committed transition.
type Publisher interface {
	Publish(orderID string, snapshot *Order)
}

// Pricer prices a checkout, with or without a voucher.
type Pricer interface {
	Evaluate(ctx context.Context, code string, subtotal int64) (*voucher.Evaluation, error)
	Quote(subtotal int64) voucher.Evaluation
}

type VoucherFinder interface {
	GetByID(ctx context.Context, id uuid.UUID) (*voucher.Voucher, error)
}

type Service interface {
	CreateOrder(ctx context.Context, in CreateInput) (*Order, error)
	GetOrderDetail(ctx context.Context, id string, a Actor) (*Order, error)
	GetOrders(ctx context.Context, filter ListFilter, a Actor) ([]*Order, error)
	UpdateOrderStatus(ctx context.Context, id string, c Change, a Actor) (*Order, error)
	ApplyPaymentCallback(ctx context.Context, id string, status PaymentStatus) (*Order, error)
}

type service struct {
	repo      Repository
	pricer    Pricer
	vouchers  VoucherFinder
	machine   *StateMachine
	publisher Publisher
	nowFunc   func() time.Time
}

func NewService(repo Repository, pricer Pricer, vouchers VoucherFinder, machine *StateMachine, publisher Publisher) Service {
	return &service{
		repo:      repo,
		pricer:    pricer,
		vouchers:  vouchers,
		machine:   machine,
		publisher: publisher,
		nowFunc:   time.Now,
	}
}

func (s *service) CreateOrder(ctx context.Context, in CreateInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.String("payment_method", string(in.PaymentMethod)),
		zap.Int("item_count", len(in.Items)),
	)

	log.Info("create order started")

	if !in.PaymentMethod.Valid() {
		return nil, ErrInvalidMethod
	}
	if len(in.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if !in.Address.Complete() {
		return nil, ErrMissingAddress
	}

	// 1. Subtotal from item snapshots
	var subtotal int64
	items := make([]Item, 0, len(in.Items))
	for i, item := range in.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			log.Warn("invalid item", zap.Int("index", i), zap.String("product_id", item.ProductID))
			return nil, fmt.Errorf("%w: line %d", ErrInvalidItem, i+1)
		}
		subtotal += item.Subtotal()
		items = append(items, item)
	}

	// 2. Price, re-evaluating the voucher against live state
	eval, err := s.price(ctx, in, subtotal)
	if err != nil {
		log.Info("voucher rejected at checkout", zap.Error(err))
		return nil, err
	}

	if in.TotalAmount != eval.FinalTotal {
		log.Warn("client total mismatch",
			zap.Int64("client_total", in.TotalAmount),
			zap.Int64("server_total", eval.FinalTotal),
		)
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrTotalMismatch, eval.FinalTotal, in.TotalAmount)
	}

	now := s.nowFunc()
	o := &Order{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		Status:         StatusPending,
		PaymentStatus:  PaymentUnpaid,
		PaymentMethod:  in.PaymentMethod,
		Subtotal:       eval.Subtotal,
		VAT:            eval.VAT,
		ShippingFee:    eval.FinalShipping,
		DiscountAmount: eval.DiscountAmount,
		TotalAmount:    eval.FinalTotal,
		VoucherID:      eval.VoucherID,
		Items:          items,
		Address:        in.Address,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	log = log.With(zap.String("order_id", o.ID), zap.Int64("total", o.TotalAmount))

	// 3. Persist and redeem in one transaction
	if err := s.repo.CreateOrderTx(ctx, o); err != nil {
		if errors.Is(err, voucher.ErrExhausted) {
			log.Info("voucher exhausted at commit")
		} else {
			log.Error("failed to create order", zap.Error(err))
		}
		return nil, err
	}

	log.Info("order created successfully")
	return o, nil
}

func (s *service) price(ctx context.Context, in CreateInput, subtotal int64) (*voucher.Evaluation, error) {
	code := in.VoucherCode
	if code == "" && in.VoucherID != nil {
		v, err := s.vouchers.GetByID(ctx, *in.VoucherID)
		if err != nil {
			return nil, err
		}
		code = v.Code
	}

	if code == "" {
		q := s.pricer.Quote(subtotal)
		return &q, nil
	}
	return s.pricer.Evaluate(ctx, code, subtotal)
}

func (s *service) GetOrderDetail(ctx context.Context, id string, a Actor) (*Order, error) {
	o, err := s.repo.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Kind == ActorCustomer && o.UserID != a.ID {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) GetOrders(ctx context.Context, filter ListFilter, a Actor) ([]*Order, error) {
	switch a.Kind {
	case ActorAdmin, ActorSystem:
	case ActorCustomer:
		filter.UserID = &a.ID
	default:
		return nil, ErrForbidden
	}
	return s.repo.FetchOrders(ctx, filter)
}

// UpdateOrderStatus runs one read-validate-write cycle. A concurrent
// writer yields ErrConflict; the caller re-reads and decides again.
func (s *service) UpdateOrderStatus(ctx context.Context, id string, c Change, a Actor) (*Order, error) {
	ctx = logger.WithOrderID(ctx, id)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "UpdateOrderStatus"),
		zap.String("actor", string(a.Kind)),
	)

	current, err := s.repo.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Kind == ActorCustomer && current.UserID != a.ID {
		return nil, ErrForbidden
	}

	return s.commit(ctx, log, current, c, a)
}

func (s *service) commit(ctx context.Context, log *zap.Logger, current *Order, c Change, a Actor) (*Order, error) {
	next, err := s.machine.Transition(current, c, a, s.nowFunc())
	if err != nil {
		log.Info("transition rejected", zap.Error(err))
		return nil, err
	}

	if err := s.repo.UpdateState(ctx, next, current.Version); err != nil {
		if errors.Is(err, ErrConflict) {
			log.Warn("concurrent order update", zap.Int64("version", current.Version))
		} else if !errors.Is(err, ErrOrderNotFound) {
			log.Error("failed to update order", zap.Error(err))
		}
		return nil, err
	}

	log.Info("order transitioned",
		zap.String("from_status", string(current.Status)),
		zap.String("to_status", string(next.Status)),
		zap.String("payment_status", string(next.PaymentStatus)),
		zap.Int64("version", next.Version),
	)

	if s.publisher != nil {
		s.publisher.Publish(next.ID, next.Clone())
	}
	return next, nil
}

// ApplyPaymentCallback records a gateway payment result. Gateways retry
// callbacks, so a repeated "paid" for a paid order succeeds without a write.
func (s *service) ApplyPaymentCallback(ctx context.Context, id string, status PaymentStatus) (*Order, error) {
	ctx = logger.WithOrderID(ctx, id)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ApplyPaymentCallback"),
		zap.String("payment_status", string(status)),
	)

	current, err := s.repo.GetOrderDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.PaymentStatus == status {
		log.Info("duplicate payment callback ignored")
		return current, nil
	}

	return s.commit(ctx, log, current, Change{PaymentStatus: &status}, Actor{Kind: ActorGateway})
}
