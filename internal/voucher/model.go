package voucher

import (
	"time"

	"github.com/google/uuid"
)

type DiscountType string

const (
	DiscountPercent  DiscountType = "percent"
	DiscountFixed    DiscountType = "fixed"
	DiscountFreeship DiscountType = "freeship"
)

func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercent, DiscountFixed, DiscountFreeship:
		return true
	}
	return false
}

type Voucher struct {
	ID   uuid.UUID
	Code string

	DiscountType  DiscountType
	DiscountValue int64
	MaxDiscount   *int64 // percent only
	MinOrderValue *int64

	UsageLimit *int64
	UsedCount  int64

	StartDate *time.Time
	EndDate   *time.Time
	IsActive  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pricing holds the shop-wide fees applied to every checkout.
type Pricing struct {
	ShippingFee int64
	VATPercent  int64
}

// Evaluation is the priced outcome of a checkout with or without a voucher.
type Evaluation struct {
	VoucherID    *uuid.UUID   `json:"voucherId,omitempty"`
	Code         string       `json:"code,omitempty"`
	DiscountType DiscountType `json:"discountType,omitempty"`

	Subtotal         int64 `json:"subtotal"`
	VAT              int64 `json:"vat"`
	StandardShipping int64 `json:"standardShipping"`
	FinalShipping    int64 `json:"finalShipping"`
	DiscountAmount   int64 `json:"discountAmount"`
	FinalTotal       int64 `json:"finalTotal"`
}

type CreateInput struct {
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	MaxDiscount   *int64
	MinOrderValue *int64
	UsageLimit    *int64
	StartDate     *time.Time
	EndDate       *time.Time
}
