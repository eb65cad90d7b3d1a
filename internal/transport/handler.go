package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/realtime"
	"storefront-orderflow/internal/voucher"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// VoucherPricer dry-runs a voucher against a subtotal.
type VoucherPricer interface {
	Evaluate(ctx context.Context, code string, subtotal int64) (*voucher.Evaluation, error)
}

// VoucherAdmin manages voucher definitions.
type VoucherAdmin interface {
	Create(ctx context.Context, in voucher.CreateInput) (*voucher.Voucher, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type PaymentReferencer interface {
	ReferenceFor(o *order.Order) *payment.Reference
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type StatsSource interface {
	Stats() realtime.Stats
}

// Handler serves the order lifecycle REST API.
type Handler struct {
	orders   order.Service
	pricer   VoucherPricer
	vouchers VoucherAdmin
	payments PaymentReferencer
	db       Pinger
	hub      StatsSource
	validate *validator.Validate
}

func NewHandler(
	orders order.Service,
	pricer VoucherPricer,
	vouchers VoucherAdmin,
	payments PaymentReferencer,
	db Pinger,
	hub StatsSource,
) *Handler {
	return &Handler{
		orders:   orders,
		pricer:   pricer,
		vouchers: vouchers,
		payments: payments,
		db:       db,
		hub:      hub,
		validate: validator.New(),
	}
}

// ApplyVoucher prices a cart against a voucher without redeeming it.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	var req ApplyVoucherRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	eval, err := h.pricer.Evaluate(r.Context(), req.Code, req.OrderTotal)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var req CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req.toInput(actor.ID))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := CreateOrderResponse{Order: o}
	if ref := h.payments.ReferenceFor(o); ref != nil {
		resp.QRCodeURL = ref.QRCodeURL
		resp.BankInfo = ref.BankInfo
		resp.Instructions = ref.Instructions
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	o, err := h.orders.GetOrderDetail(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OrderResponse{Order: o})
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	q := r.URL.Query()

	var filter order.ListFilter
	if s := q.Get("status"); s != "" {
		status := order.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "unknown status "+s)
			return
		}
		filter.Status = &status
	}
	if v, err := strconv.ParseInt(q.Get("limit"), 10, 32); err == nil {
		filter.Limit = int32(v)
	}
	if v, err := strconv.ParseInt(q.Get("offset"), 10, 32); err == nil && v > 0 {
		filter.Offset = int32(v)
	}

	orders, err := h.orders.GetOrders(r.Context(), filter, actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	logger.FromCtx(r.Context()).Info("status change requested",
		zap.String("order_id", id),
		zap.String("actor", string(actor.Kind)),
	)

	o, err := h.orders.UpdateOrderStatus(r.Context(), id, order.Change{
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
	}, actor)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, OrderResponse{Order: o})
}

func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var req CreateVoucherRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	v, err := h.vouchers.Create(r.Context(), req.toInput())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toVoucherResponse(v))
}

func (h *Handler) SetVoucherActive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "invalid voucher id")
		return
	}

	var req SetVoucherActiveRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	if err := h.vouchers.SetActive(r.Context(), id, *req.IsActive); err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.hub != nil {
		resp["realtime"] = h.hub.Stats()
	}

	writeJSON(w, status, resp)
}
