package checkout

import (
	"context"
	"errors"

	"storefront-orderflow/internal/cart"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/transport"
	"storefront-orderflow/internal/voucher"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// API is the part of the order REST API checkout talks to. It is bound
// to the shopper's session.
type API interface {
	ApplyVoucher(ctx context.Context, code string, orderTotal int64) (*voucher.Evaluation, error)
	CreateOrder(ctx context.Context, req transport.CreateOrderRequest) (*transport.CreateOrderResponse, error)
	UpdateStatus(ctx context.Context, id string, change order.Change) (*order.Order, error)
}

// Joiner starts tracking an order in realtime.
type Joiner interface {
	Mount(ctx context.Context, orderID string) (*order.Order, error)
}

type Orchestrator struct {
	api    API
	joiner Joiner
	quote  *voucher.Engine
	log    *zap.Logger
}

// NewOrchestrator prices voucher-less orders locally with pricing, which
// must match the server's shipping fee and VAT.
func NewOrchestrator(api API, joiner Joiner, pricing voucher.Pricing, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		api:    api,
		joiner: joiner,
		quote:  voucher.NewEngine(nil, pricing),
		log:    log.With(zap.String("layer", "checkout")),
	}
}

// Start opens a draft attempt over a copy of the cart's lines.
func (o *Orchestrator) Start(c *cart.Cart, addr order.Address, method order.PaymentMethod) (*Attempt, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	if !addr.Complete() {
		return nil, ErrMissingAddress
	}
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}

	return &Attempt{
		id:            uuid.NewString(),
		state:         StateDraft,
		lines:         lines,
		address:       addr,
		paymentMethod: method,
	}, nil
}

// ApplyVoucher dry-runs a code against the attempt's subtotal. It may be
// repeated; a rejected code leaves the previous evaluation in place.
func (o *Orchestrator) ApplyVoucher(ctx context.Context, a *Attempt, code string) (*voucher.Evaluation, error) {
	a.mu.Lock()
	if a.state != StateDraft && a.state != StateVoucherEvaluated {
		defer a.mu.Unlock()
		return nil, &StateError{Step: "apply voucher", State: a.state}
	}
	subtotal := a.subtotal()
	a.mu.Unlock()

	eval, err := o.api.ApplyVoucher(ctx, code, subtotal)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.err = err
		o.log.Info("voucher rejected", zap.String("attempt_id", a.id), zap.String("code", code), zap.Error(err))
		return nil, err
	}
	if eval.Code == "" {
		eval.Code = voucher.NormalizeCode(code)
	}
	a.evaluation = eval
	a.err = nil
	a.state = StateVoucherEvaluated
	return eval, nil
}

// RemoveVoucher drops an evaluated voucher and returns to draft.
func (o *Orchestrator) RemoveVoucher(a *Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateVoucherEvaluated {
		return &StateError{Step: "remove voucher", State: a.state}
	}
	a.evaluation = nil
	a.state = StateDraft
	return nil
}

// Submit creates the order. COD completes at once; prepaid methods wait
// for payment with the transfer reference attached.
func (o *Orchestrator) Submit(ctx context.Context, a *Attempt) (*Result, error) {
	log := o.log.With(zap.String("method", "Submit"), zap.String("attempt_id", a.id))

	a.mu.Lock()
	prev := a.state
	if prev != StateDraft && prev != StateVoucherEvaluated {
		a.mu.Unlock()
		return nil, &StateError{Step: "submit", State: prev}
	}
	req := o.buildRequest(a)
	a.state = StateSubmitted
	a.mu.Unlock()

	resp, err := o.api.CreateOrder(ctx, req)
	if err != nil {
		a.mu.Lock()
		a.state = prev
		a.err = err
		if errors.Is(err, voucher.ErrExhausted) && a.evaluation != nil {
			a.state = StateVoucherEvaluated
		}
		a.mu.Unlock()

		log.Warn("order submit failed", zap.Error(err))
		return nil, err
	}

	a.mu.Lock()
	a.order = resp.Order.Clone()
	a.err = nil
	if resp.QRCodeURL != "" || resp.BankInfo != nil || len(resp.Instructions) > 0 {
		a.reference = &payment.Reference{
			QRCodeURL:    resp.QRCodeURL,
			BankInfo:     resp.BankInfo,
			Instructions: resp.Instructions,
		}
	}
	if a.paymentMethod.Prepaid() && resp.Order.PaymentStatus != order.PaymentPaid {
		a.state = StateAwaitingPayment
	} else {
		a.state = StateCompleted
	}
	res := &Result{State: a.state, Order: a.order.Clone(), Reference: a.reference}
	a.mu.Unlock()

	log.Info("order submitted",
		zap.String("order_id", res.Order.ID),
		zap.String("state", string(res.State)),
		zap.Int64("total", res.Order.TotalAmount),
	)

	o.track(ctx, res.Order.ID)
	return res, nil
}

func (o *Orchestrator) buildRequest(a *Attempt) transport.CreateOrderRequest {
	req := transport.CreateOrderRequest{
		PaymentMethod: a.paymentMethod,
		Items:         make([]transport.ItemRequest, 0, len(a.lines)),
		Address: transport.AddressRequest{
			ReceiverName: a.address.ReceiverName,
			Phone:        a.address.Phone,
			Line1:        a.address.Line1,
			Line2:        a.address.Line2,
			Ward:         a.address.Ward,
			District:     a.address.District,
			Province:     a.address.Province,
			Country:      a.address.Country,
		},
	}
	for _, l := range a.lines {
		req.Items = append(req.Items, transport.ItemRequest{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			ColorID:   l.ColorID,
		})
	}

	if a.evaluation != nil {
		req.VoucherID = a.evaluation.VoucherID
		req.VoucherCode = a.evaluation.Code
		req.TotalAmount = a.evaluation.FinalTotal
	} else {
		req.TotalAmount = o.quote.Quote(a.subtotal()).FinalTotal
	}
	return req
}

// ConfirmPaid records the shopper saying they have paid. It changes
// nothing on the server; the gateway callback does that.
func (o *Orchestrator) ConfirmPaid(a *Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAwaitingPayment {
		return &StateError{Step: "confirm paid", State: a.state}
	}
	a.state = StatePaidConfirmed
	return nil
}

func (o *Orchestrator) Complete(a *Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StatePaidConfirmed {
		return &StateError{Step: "complete", State: a.state}
	}
	a.state = StateCompleted
	return nil
}

// Cancel withdraws an order still awaiting payment. Once the gateway has
// confirmed payment it is refused.
func (o *Orchestrator) Cancel(ctx context.Context, a *Attempt) (*order.Order, error) {
	a.mu.Lock()
	if a.state != StateAwaitingPayment {
		defer a.mu.Unlock()
		return nil, &StateError{Step: "cancel", State: a.state}
	}
	if a.order.PaymentStatus == order.PaymentPaid {
		defer a.mu.Unlock()
		return nil, ErrAlreadyPaid
	}
	id := a.order.ID
	a.mu.Unlock()

	cancelled := order.StatusCancelled
	updated, err := o.api.UpdateStatus(ctx, id, order.Change{Status: &cancelled})

	a.mu.Lock()
	if err != nil {
		a.err = err
		a.mu.Unlock()
		o.log.Warn("cancel failed", zap.String("attempt_id", a.id), zap.String("order_id", id), zap.Error(err))
		return nil, err
	}
	// A concurrent gateway callback may have moved the attempt on.
	if a.state != StateAwaitingPayment {
		state := a.state
		a.mu.Unlock()
		return nil, &StateError{Step: "cancel", State: state}
	}
	a.order = updated.Clone()
	a.err = nil
	a.state = StateCancelled
	a.mu.Unlock()

	o.track(ctx, id)
	return updated, nil
}

// Observe feeds a realtime snapshot of the attempt's order back into the
// attempt. A paid order completes a waiting attempt; a cancelled one
// cancels it. It reports whether the attempt changed.
func (o *Orchestrator) Observe(a *Attempt, snap *order.Order) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.order == nil || snap == nil || snap.ID != a.order.ID || snap.Version < a.order.Version {
		return false
	}

	changed := snap.Version > a.order.Version
	a.order = snap.Clone()

	if a.state == StateAwaitingPayment || a.state == StatePaidConfirmed {
		switch {
		case snap.Status == order.StatusCancelled:
			a.state = StateCancelled
			changed = true
		case snap.PaymentStatus == order.PaymentPaid:
			a.state = StateCompleted
			changed = true
		}
	}
	return changed
}

func (o *Orchestrator) track(ctx context.Context, orderID string) {
	if o.joiner == nil {
		return
	}
	if _, err := o.joiner.Mount(ctx, orderID); err != nil {
		o.log.Warn("order tracking not started", zap.String("order_id", orderID), zap.Error(err))
	}
}
