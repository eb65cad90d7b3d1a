package voucher

import "errors"

var (
	ErrNotFound     = errors.New("voucher not found")
	ErrInactive     = errors.New("voucher is inactive")
	ErrOutOfWindow  = errors.New("voucher is not valid at this time")
	ErrBelowMinimum = errors.New("order subtotal is below the voucher minimum")
	ErrExhausted    = errors.New("voucher usage limit reached")

	ErrInvalidSubtotal = errors.New("order subtotal must not be negative")
	ErrInvalidVoucher  = errors.New("invalid voucher definition")
	ErrDuplicateCode   = errors.New("voucher code already exists")

	PgUniqueViolation = "23505"
)
