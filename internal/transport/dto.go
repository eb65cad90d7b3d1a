package transport

import (
	"time"

	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/voucher"

	"github.com/google/uuid"
)

type ApplyVoucherRequest struct {
	Code       string `json:"code" validate:"required"`
	OrderTotal int64  `json:"orderTotal" validate:"gte=0"`
}

type ItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	UnitPrice int64   `json:"unitPrice" validate:"gte=0"`
	ColorID   *string `json:"colorId,omitempty"`
}

type AddressRequest struct {
	ReceiverName string  `json:"receiverName" validate:"required"`
	Phone        string  `json:"phone" validate:"required"`
	Line1        string  `json:"line1" validate:"required"`
	Line2        *string `json:"line2,omitempty"`
	Ward         string  `json:"ward"`
	District     string  `json:"district"`
	Province     string  `json:"province" validate:"required"`
	Country      string  `json:"country"`
}

type CreateOrderRequest struct {
	PaymentMethod order.PaymentMethod `json:"paymentMethod" validate:"required,oneof=COD BANK GATEWAY"`
	VoucherID     *uuid.UUID          `json:"voucherId,omitempty"`
	VoucherCode   string              `json:"voucherCode,omitempty"`
	TotalAmount   int64               `json:"totalAmount" validate:"gte=0"`
	Items         []ItemRequest       `json:"items" validate:"required,min=1,dive"`
	Address       AddressRequest      `json:"address"`
}

type CreateOrderResponse struct {
	Order        *order.Order      `json:"order"`
	QRCodeURL    string            `json:"qrCodeUrl,omitempty"`
	BankInfo     *payment.BankInfo `json:"bankInfo,omitempty"`
	Instructions []string          `json:"instructions,omitempty"`
}

type UpdateStatusRequest struct {
	Status        *order.Status        `json:"status,omitempty" validate:"omitempty,oneof=pending confirmed processing shipping delivered cancelled"`
	PaymentStatus *order.PaymentStatus `json:"paymentStatus,omitempty" validate:"omitempty,oneof=unpaid paid failed"`
}

type OrderResponse struct {
	Order *order.Order `json:"order"`
}

type OrdersResponse struct {
	Orders []*order.Order `json:"orders"`
}

type CreateVoucherRequest struct {
	Code          string     `json:"code" validate:"required,max=64"`
	DiscountType  string     `json:"discountType" validate:"required,oneof=percent fixed freeship"`
	DiscountValue int64      `json:"discountValue" validate:"gte=0"`
	MaxDiscount   *int64     `json:"maxDiscount,omitempty" validate:"omitempty,gte=0"`
	MinOrderValue *int64     `json:"minOrderValue,omitempty" validate:"omitempty,gte=0"`
	UsageLimit    *int64     `json:"usageLimit,omitempty" validate:"omitempty,gte=0"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
}

type SetVoucherActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type VoucherResponse struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	DiscountType  string     `json:"discountType"`
	DiscountValue int64      `json:"discountValue"`
	MaxDiscount   *int64     `json:"maxDiscount,omitempty"`
	MinOrderValue *int64     `json:"minOrderValue,omitempty"`
	UsageLimit    *int64     `json:"usageLimit,omitempty"`
	UsedCount     int64      `json:"usedCount"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	IsActive      bool       `json:"isActive"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (r CreateOrderRequest) toInput(userID string) order.CreateInput {
	items := make([]order.Item, len(r.Items))
	for i, it := range r.Items {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			ColorID:   it.ColorID,
		}
	}

	return order.CreateInput{
		UserID:        userID,
		PaymentMethod: r.PaymentMethod,
		VoucherCode:   r.VoucherCode,
		VoucherID:     r.VoucherID,
		TotalAmount:   r.TotalAmount,
		Items:         items,
		Address: order.Address{
			ReceiverName: r.Address.ReceiverName,
			Phone:        r.Address.Phone,
			Line1:        r.Address.Line1,
			Line2:        r.Address.Line2,
			Ward:         r.Address.Ward,
			District:     r.Address.District,
			Province:     r.Address.Province,
			Country:      r.Address.Country,
		},
	}
}

func (r CreateVoucherRequest) toInput() voucher.CreateInput {
	return voucher.CreateInput{
		Code:          r.Code,
		DiscountType:  voucher.DiscountType(r.DiscountType),
		DiscountValue: r.DiscountValue,
		MaxDiscount:   r.MaxDiscount,
		MinOrderValue: r.MinOrderValue,
		UsageLimit:    r.UsageLimit,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
	}
}

func toVoucherResponse(v *voucher.Voucher) VoucherResponse {
	return VoucherResponse{
		ID:            v.ID,
		Code:          v.Code,
		DiscountType:  string(v.DiscountType),
		DiscountValue: v.DiscountValue,
		MaxDiscount:   v.MaxDiscount,
		MinOrderValue: v.MinOrderValue,
		UsageLimit:    v.UsageLimit,
		UsedCount:     v.UsedCount,
		StartDate:     v.StartDate,
		EndDate:       v.EndDate,
		IsActive:      v.IsActive,
	}
}
