package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-orderflow/internal/auth"
	"storefront-orderflow/internal/config"
	"storefront-orderflow/internal/db"
	"storefront-orderflow/internal/logger"
	"storefront-orderflow/internal/middleware"
	"storefront-orderflow/internal/order"
	"storefront-orderflow/internal/payment"
	"storefront-orderflow/internal/payment/webhook"
	"storefront-orderflow/internal/realtime"
	"storefront-orderflow/internal/transport"
	"storefront-orderflow/internal/voucher"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionTTL      = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// Swapped in tests.
var (
	initDBFunc      = db.NewDatabase
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	router, cleanup, err := newServer(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- startServerFunc(srv) }()
	logger.L().Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newServer wires every component onto one router. The returned cleanup
// releases what the wiring opened.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, func(), error) {
	sessions, err := auth.NewManager(cfg.SecretKey, sessionTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("session manager: %w", err)
	}

	hub := realtime.NewHub()
	cleanup := func() {}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		bridge := realtime.NewBridge(client, cfg.RedisChannel, hub)
		hub.SetForwarder(bridge)
		go hub.RunForwarder(ctx)

		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("redis bridge stopped", zap.Error(err))
			}
		}()
		cleanup = func() { _ = client.Close() }
	}

	voucherRepo := voucher.NewRepository(database)
	engine := voucher.NewEngine(voucherRepo, voucher.Pricing{
		ShippingFee: cfg.ShippingFee,
		VATPercent:  cfg.VATPercent,
	})

	orderRepo := order.NewRepository(database, voucherRepo)
	machine := order.NewStateMachine(order.ParseCODPolicy(cfg.CODPaymentPolicy))
	orderSvc := order.NewService(orderRepo, engine, voucherRepo, machine, hub)

	paymentRepo := payment.NewRepository(database)
	callbacks := webhook.NewHandler(orderSvc, paymentRepo, cfg.PaymentCallbackToken)

	handler := transport.NewHandler(orderSvc, engine, voucherRepo, payment.NewBank(cfg), database, hub)

	router := transport.NewRouter(transport.RouterConfig{
		Handler:  handler,
		Sessions: sessions,
		Limiter:  middleware.NewLimiter(ctx, "/webhook/payment", "/order/create", "/voucher/apply"),
		Webhook:  callbacks,
		Socket:   realtime.NewServer(hub, transport.JoinAuthorizer(orderSvc)),
	})

	return router, cleanup, nil
}
