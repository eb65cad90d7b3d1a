package transport

import (
	"errors"
	"net/http"

	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/voucher"
)

// Error codes carried in the "error" field of every failure response.
const (
	CodeInvalidJSON      = "invalid_json"
	CodeValidationFailed = "validation_failed"
	CodeInternal         = "internal"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorTable = []errorMapping{
	{voucher.ErrNotFound, http.StatusNotFound, "voucher_not_found"},
	{voucher.ErrInactive, http.StatusUnprocessableEntity, "voucher_inactive"},
	{voucher.ErrOutOfWindow, http.StatusUnprocessableEntity, "voucher_out_of_window"},
	{voucher.ErrBelowMinimum, http.StatusUnprocessableEntity, "voucher_below_minimum"},
	{voucher.ErrExhausted, http.StatusConflict, "voucher_exhausted"},
	{voucher.ErrInvalidSubtotal, http.StatusBadRequest, "invalid_subtotal"},
	{voucher.ErrInvalidVoucher, http.StatusBadRequest, "invalid_voucher"},
	{voucher.ErrDuplicateCode, http.StatusConflict, "duplicate_code"},

	{order.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{order.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{order.ErrConflict, http.StatusConflict, "conflict"},
	{order.ErrForbidden, http.StatusForbidden, "forbidden"},
	{order.ErrTotalMismatch, http.StatusConflict, "total_mismatch"},
	{order.ErrEmptyOrder, http.StatusBadRequest, "empty_order"},
	{order.ErrInvalidItem, http.StatusBadRequest, "invalid_item"},
	{order.ErrInvalidMethod, http.StatusBadRequest, "invalid_payment_method"},
	{order.ErrMissingAddress, http.StatusBadRequest, "missing_address"},
}

// Classify maps a domain error to its HTTP status and error code.
func Classify(err error) (int, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// ErrorForCode is the inverse of Classify for API consumers. Unknown codes
// return nil.
func ErrorForCode(code string) error {
	for _, m := range errorTable {
		if m.code == code {
			return m.err
		}
	}
	return nil
}
