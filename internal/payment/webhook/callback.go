package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"

	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 1 << 20
	conflictAttempts = 3
)

// OrderUpdater is the slice of the order service the gateway callback needs.
type OrderUpdater interface {
	GetOrderDetail(ctx context.Context, id string, a order.Actor) (*order.Order, error)
	ApplyPaymentCallback(ctx context.Context, id string, status order.PaymentStatus) (*order.Order, error)
}

// Payload is the JSON body the payment gateway posts.
type Payload struct {
	EventID string `json:"eventId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
}

type Handler struct {
	orders OrderUpdater
	repo   payment.Repository
	token  string
}

func NewHandler(orders OrderUpdater, repo payment.Repository, token string) *Handler {
	return &Handler{orders: orders, repo: repo, token: token}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("provider", payment.ProviderGateway),
	)

	// 1. Verify callback token
	got := r.Header.Get("x-callback-token")
	if h.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		log.Warn("invalid callback token")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}

	// 2. Parse body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable_body"})
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil || p.OrderID == "" || p.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_payload"})
		return
	}

	ctx = logger.WithOrderID(ctx, p.OrderID)
	log = log.With(zap.String("order_id", p.OrderID), zap.String("status", p.Status))

	var target order.PaymentStatus
	switch p.Status {
	case payment.CallbackPaid:
		target = order.PaymentPaid
	case payment.CallbackFailed, payment.CallbackExpired:
		target = order.PaymentFailed
	default:
		log.Info("ignoring callback status")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if p.EventID == "" {
		p.EventID = p.OrderID + ":" + p.Status
	}

	// 3. Record event; retries of the same event are acknowledged once
	webhookID, dup, err := h.repo.SaveWebhook(ctx, payment.ProviderGateway, p.EventID, p.OrderID, p.Status, body)
	if err != nil {
		log.Error("failed to save webhook", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
		return
	}
	if dup {
		log.Info("duplicate webhook acknowledged", zap.String("event_id", p.EventID))
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	// 4. Apply
	status, reason := h.apply(ctx, p, target)
	if reason != "" {
		log.Warn("callback rejected", zap.String("reason", reason))
		if err := h.repo.MarkWebhookFailed(ctx, webhookID, reason); err != nil {
			log.Error("failed to mark webhook failed", zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": reason})
		return
	}

	if err := h.repo.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}

	log.Info("payment callback applied")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// apply returns an HTTP status and a failure reason, or "" on success.
func (h *Handler) apply(ctx context.Context, p Payload, target order.PaymentStatus) (int, string) {
	if target == order.PaymentPaid && p.Amount > 0 {
		o, err := h.orders.GetOrderDetail(ctx, p.OrderID, order.Actor{Kind: order.ActorSystem})
		if err != nil {
			return statusFor(err), err.Error()
		}
		if o.TotalAmount != p.Amount {
			return http.StatusBadRequest, fmt.Sprintf("amount mismatch: webhook=%d order=%d", p.Amount, o.TotalAmount)
		}
	}

	var err error
	for i := 0; i < conflictAttempts; i++ {
		_, err = h.orders.ApplyPaymentCallback(ctx, p.OrderID, target)
		if !errors.Is(err, order.ErrConflict) {
			break
		}
	}
	if err != nil {
		return statusFor(err), err.Error()
	}
	return http.StatusOK, ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
