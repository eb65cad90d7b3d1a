package transport

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/voucher"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{voucher.ErrNotFound, http.StatusNotFound, "voucher_not_found"},
		{fmt.Errorf("wrapped: %w", voucher.ErrBelowMinimum), http.StatusUnprocessableEntity, "voucher_below_minimum"},
		{voucher.ErrExhausted, http.StatusConflict, "voucher_exhausted"},
		{&order.TransitionError{From: order.StatusDelivered, To: order.StatusCancelled, Reason: "terminal"}, http.StatusUnprocessableEntity, "invalid_transition"},
		{order.ErrConflict, http.StatusConflict, "conflict"},
		{order.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := Classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestErrorForCode_RoundTrips(t *testing.T) {
	for _, m := range errorTable {
		assert.Equal(t, m.err, ErrorForCode(m.code), m.code)
	}
	assert.Nil(t, ErrorForCode("nope"))
}
