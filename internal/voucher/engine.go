package voucher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront-orderflow/internal/logger"

	"go.uber.org/zap"
)

// Lookup resolves a normalized voucher code.
type Lookup interface {
	GetByCode(ctx context.Context, code string) (*Voucher, error)
}

// Engine evaluates voucher codes against an order subtotal. It never
// writes: redemption is the store's job at order creation.
type Engine struct {
	lookup  Lookup
	pricing Pricing
	nowFunc func() time.Time
}

func NewEngine(lookup Lookup, pricing Pricing) *Engine {
	return &Engine{
		lookup:  lookup,
		pricing: pricing,
		nowFunc: time.Now,
	}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (e *Engine) Pricing() Pricing {
	return e.pricing
}

func (e *Engine) Evaluate(ctx context.Context, code string, subtotal int64) (*Evaluation, error) {
	code = NormalizeCode(code)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "voucher"),
		zap.String("method", "Evaluate"),
		zap.String("code", code),
		zap.Int64("subtotal", subtotal),
	)

	if subtotal < 0 {
		return nil, ErrInvalidSubtotal
	}
	if code == "" {
		return nil, ErrNotFound
	}

	v, err := e.lookup.GetByCode(ctx, code)
	if err != nil {
		log.Info("voucher lookup failed", zap.Error(err))
		return nil, err
	}

	if err := Check(v, subtotal, e.nowFunc()); err != nil {
		log.Info("voucher rejected", zap.Error(err))
		return nil, err
	}

	eval := e.price(v, subtotal)

	log.Debug("voucher evaluated",
		zap.Int64("discount", eval.DiscountAmount),
		zap.Int64("final_shipping", eval.FinalShipping),
		zap.Int64("final_total", eval.FinalTotal),
	)
	return &eval, nil
}

// Quote prices a subtotal without any voucher.
func (e *Engine) Quote(subtotal int64) Evaluation {
	return e.price(nil, subtotal)
}

func (e *Engine) price(v *Voucher, subtotal int64) Evaluation {
	vat := subtotal * e.pricing.VATPercent / 100
	eval := Evaluation{
		Subtotal:         subtotal,
		VAT:              vat,
		StandardShipping: e.pricing.ShippingFee,
		FinalShipping:    e.pricing.ShippingFee,
	}

	if v != nil {
		id := v.ID
		eval.VoucherID = &id
		eval.Code = v.Code
		eval.DiscountType = v.DiscountType
		eval.DiscountAmount, eval.FinalShipping = Discount(v, subtotal, e.pricing.ShippingFee)
	}

	eval.FinalTotal = subtotal + vat + eval.FinalShipping - eval.DiscountAmount
	if eval.FinalTotal < 0 {
		eval.FinalTotal = 0
	}
	return eval
}

// Check applies the eligibility rules in order: active flag, validity
// window, minimum order value, usage limit.
func Check(v *Voucher, subtotal int64, now time.Time) error {
	if !v.IsActive {
		return ErrInactive
	}
	if v.StartDate != nil && now.Before(*v.StartDate) {
		return ErrOutOfWindow
	}
	if v.EndDate != nil && now.After(*v.EndDate) {
		return ErrOutOfWindow
	}
	if v.MinOrderValue != nil && subtotal < *v.MinOrderValue {
		return ErrBelowMinimum
	}
	if v.UsageLimit != nil && v.UsedCount >= *v.UsageLimit {
		return ErrExhausted
	}
	return nil
}

// Discount returns the discount amount and the shipping fee left to pay.
// The amount is always within [0, subtotal].
func Discount(v *Voucher, subtotal, shippingFee int64) (discount, finalShipping int64) {
	finalShipping = shippingFee

	switch v.DiscountType {
	case DiscountPercent:
		discount = subtotal * v.DiscountValue / 100
		if v.MaxDiscount != nil && discount > *v.MaxDiscount {
			discount = *v.MaxDiscount
		}
	case DiscountFixed:
		discount = v.DiscountValue
	case DiscountFreeship:
		finalShipping = 0
	}

	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, finalShipping
}

// Validate checks a voucher definition before it is stored.
func Validate(in CreateInput) error {
	if NormalizeCode(in.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidVoucher)
	}
	if !in.DiscountType.Valid() {
		return fmt.Errorf("%w: unknown discount type %q", ErrInvalidVoucher, in.DiscountType)
	}
	if in.DiscountType != DiscountFreeship && in.DiscountValue <= 0 {
		return fmt.Errorf("%w: discount value is required", ErrInvalidVoucher)
	}
	if in.DiscountType == DiscountPercent && in.DiscountValue > 100 {
		return fmt.Errorf("%w: percent discount above 100", ErrInvalidVoucher)
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return fmt.Errorf("%w: negative usage limit", ErrInvalidVoucher)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidVoucher)
	}
	return nil
}
