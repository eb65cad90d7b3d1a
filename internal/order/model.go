package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// progress is the position of a status in the forward sequence.
// Cancelled sits outside of it.
var progress = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipping:   3,
	StatusDelivered:  4,
}

func (s Status) Valid() bool {
	_, ok := progress[s]
	return ok || s == StatusCancelled
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "COD"
	PaymentBank    PaymentMethod = "BANK"
	PaymentGateway PaymentMethod = "GATEWAY"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentBank, PaymentGateway:
		return true
	}
	return false
}

// Prepaid methods must be paid before the order is confirmed.
func (m PaymentMethod) Prepaid() bool {
	return m == PaymentBank || m == PaymentGateway
}

// Item prices are snapshots taken at checkout.
type Item struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice int64   `json:"unitPrice"`
	ColorID   *string `json:"colorId,omitempty"`
}

func (i Item) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitPrice
}

type Address struct {
	ReceiverName string  `json:"receiverName"`
	Phone        string  `json:"phone"`
	Line1        string  `json:"line1"`
	Line2        *string `json:"line2,omitempty"`
	Ward         string  `json:"ward"`
	District     string  `json:"district"`
	Province     string  `json:"province"`
	Country      string  `json:"country"`
}

// Complete reports whether every field a shipment needs is filled in.
func (a Address) Complete() bool {
	for _, f := range []string{a.ReceiverName, a.Phone, a.Line1, a.Province} {
		if strings.TrimSpace(f) == "" {
			return false
		}
	}
	return true
}

// Order is also the snapshot pushed to realtime subscribers, so it is
// always sent whole.
type Order struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`

	Subtotal       int64      `json:"subtotal"`
	VAT            int64      `json:"vat"`
	ShippingFee    int64      `json:"shippingFee"`
	DiscountAmount int64      `json:"discountAmount"`
	TotalAmount    int64      `json:"totalAmount"`
	VoucherID      *uuid.UUID `json:"voucherId,omitempty"`

	Items   []Item  `json:"items"`
	Address Address `json:"address"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share item slices.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]Item, len(o.Items))
	copy(c.Items, o.Items)
	if o.VoucherID != nil {
		id := *o.VoucherID
		c.VoucherID = &id
	}
	return &c
}

type ActorKind string

const (
	ActorAdmin    ActorKind = "admin"
	ActorCustomer ActorKind = "customer"
	ActorGateway  ActorKind = "gateway"
	ActorSystem   ActorKind = "system"
)

type Actor struct {
	Kind ActorKind
	ID   string
}

// Change is a requested transition; nil fields stay as they are.
type Change struct {
	Status        *Status        `json:"status,omitempty"`
	PaymentStatus *PaymentStatus `json:"paymentStatus,omitempty"`
}

type CreateInput struct {
	UserID        string
	PaymentMethod PaymentMethod
	VoucherCode   string
	VoucherID     *uuid.UUID
	TotalAmount   int64
	Items         []Item
	Address       Address
}

type ListFilter struct {
	Status *Status
	UserID *string
	Limit  int32
	Offset int32
}
