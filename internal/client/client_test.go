package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/transport"
	"storefront-orderflow/internal/voucher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ApplyVoucher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/voucher/apply", r.URL.Path)
		var req transport.ApplyVoucherRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Code {
		case "SALE10":
			writeJSON(w, http.StatusOK, voucher.Evaluation{DiscountAmount: 200000, FinalTotal: 3130000})
		default:
			writeJSON(w, http.StatusUnprocessableEntity, transport.ErrorResponse{Error: "voucher_out_of_window", Message: "expired"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	eval, err := c.ApplyVoucher(ctx, "SALE10", 3000000)
	require.NoError(t, err)
	assert.Equal(t, int64(200000), eval.DiscountAmount)

	_, err = c.ApplyVoucher(ctx, "OLD", 3000000)
	assert.ErrorIs(t, err, voucher.ErrOutOfWindow)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, "expired", apiErr.Message)
}

func TestClient_SendsSessionToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "/order/ord-1", r.URL.Path)
		writeJSON(w, http.StatusOK, transport.OrderResponse{Order: &order.Order{ID: "ord-1", Version: 2}})
	}))
	defer srv.Close()

	c := New(srv.URL, WithSession(&auth.Session{UserID: "u1", Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}))

	o, err := c.GetOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), o.Version)
}

func TestClient_SessionExpiry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusUnauthorized, transport.ErrorResponse{Error: "session_expired"})
	}))
	defer srv.Close()

	t.Run("known locally", func(t *testing.T) {
		c := New(srv.URL, WithSession(&auth.Session{Token: "tok", ExpiresAt: time.Now().Add(-time.Minute)}))
		_, err := c.GetOrder(context.Background(), "ord-1")
		assert.ErrorIs(t, err, auth.ErrSessionExpired)
		assert.Equal(t, 0, calls)
	})

	t.Run("reported by server", func(t *testing.T) {
		c := New(srv.URL, WithSession(&auth.Session{Token: "tok"}))
		_, err := c.GetOrder(context.Background(), "ord-1")
		assert.ErrorIs(t, err, auth.ErrSessionExpired)
		assert.Equal(t, 1, calls)
	})
}

func TestClient_UpdateStatusAndList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/order/update-status/ord-1":
			var req transport.UpdateStatusRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.NotNil(t, req.Status)
			assert.Nil(t, req.PaymentStatus)
			if *req.Status == order.StatusConfirmed {
				writeJSON(w, http.StatusConflict, transport.ErrorResponse{Error: "conflict"})
				return
			}
			writeJSON(w, http.StatusOK, transport.OrderResponse{Order: &order.Order{ID: "ord-1", Status: *req.Status}})
		case r.Method == http.MethodGet && r.URL.Path == "/orders":
			assert.Equal(t, "pending", r.URL.Query().Get("status"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, transport.OrdersResponse{Orders: []*order.Order{{ID: "a"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	cancelled := order.StatusCancelled
	o, err := c.UpdateStatus(ctx, "ord-1", order.Change{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)

	confirmed := order.StatusConfirmed
	_, err = c.UpdateStatus(ctx, "ord-1", order.Change{Status: &confirmed})
	assert.ErrorIs(t, err, order.ErrConflict)

	pending := order.StatusPending
	list, err := c.ListOrders(ctx, order.ListFilter{Status: &pending, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).GetOrder(context.Background(), "ord-1")
	assert.ErrorIs(t, err, ErrNetworkFailure)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetOrder(context.Background(), "ord-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, transport.CodeInternal, apiErr.Code)
}
