package transport

import (
	"net/http"

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Handler  *Handler
	Sessions middleware.SessionParser
	Limiter  *middleware.Limiter
	Webhook  http.Handler
	Socket   http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Auth(cfg.Sessions))
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware)
	}

	r.Get("/health", h.Health)
	r.Post("/voucher/apply", h.ApplyVoucher)
	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/webhook/payment", cfg.Webhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession())

		r.Post("/order/create", h.CreateOrder)
		r.Get("/order/{id}", h.GetOrder)
		r.Get("/orders", h.ListOrders)
		r.Put("/order/update-status/{id}", h.UpdateStatus)
		if cfg.Socket != nil {
			r.Method(http.MethodGet, "/ws", cfg.Socket)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(auth.RoleAdmin))

		r.Post("/admin/vouchers", h.CreateVoucher)
		r.Put("/admin/vouchers/{id}/active", h.SetVoucherActive)
	})

	return r
}
