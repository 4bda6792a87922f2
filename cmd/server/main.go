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

	"eastleigh-be/internal/config"
	"eastleigh-be/internal/db"
	"eastleigh-be/internal/logger"
	"eastleigh-be/internal/metrics"
	"eastleigh-be/internal/middleware"
	"eastleigh-be/internal/payment"
	"eastleigh-be/internal/payment/api"
	"eastleigh-be/internal/payment/webhook"
	"eastleigh-be/internal/property"
	"eastleigh-be/internal/receipt"
	"eastleigh-be/internal/router"
	"eastleigh-be/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	initDBFunc      = db.NewDatabase
	initRedisFunc   = db.NewRedis
	startServerFunc = func(srv *http.Server) error { return srv.ListenAndServe() }
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server exited", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	database, err := initDBFunc(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	rdb, err := initRedisFunc(cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	app, err := newServer(cfg, database, rdb, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.sweeper.Start(ctx)
	defer app.sweeper.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("HTTP server listening", zap.String("addr", srv.Addr))
		errCh <- startServerFunc(srv)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.L().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type server struct {
	handler http.Handler
	sweeper *payment.Sweeper
}

func newServer(cfg *config.Config, database *sql.DB, rdb *redis.Client, reg *prometheus.Registry) (*server, error) {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewDBStatsCollector(database, "postgres"))
	m := metrics.NewPayments(reg)

	receipts, err := newSequencer(cfg.ReceiptSequencer, database, rdb)
	if err != nil {
		return nil, err
	}

	repo := payment.NewRepository(database)
	svc := payment.NewService(
		repo,
		receipts,
		user.NewRepository(database),
		property.NewRepository(database),
		cfg.Amounts,
		m,
		payment.NewMpesaGateway(cfg.Mpesa),
		payment.NewEvcGateway(cfg.Waafi),
	)

	handler := router.New(router.Deps{
		Payments:  api.NewHandler(svc),
		Webhook:   webhook.NewWebhookHandler(payment.NewReconciler(repo, m)),
		Limiter:   middleware.NewRateLimiter(cfg.InternalKey, "/payments/", router.CallbackPath),
		JWTSecret: []byte(cfg.JWTSecret),
		DB:        database,
		Gatherer:  reg,
	})

	return &server{
		handler: handler,
		sweeper: payment.NewSweeper(repo, cfg.Sweep, m),
	}, nil
}

func newSequencer(kind string, database *sql.DB, rdb *redis.Client) (payment.ReceiptSequencer, error) {
	if kind == "" {
		kind = receipt.KindLedger
		if rdb != nil {
			kind = receipt.KindRedis
		}
	}

	switch kind {
	case receipt.KindLedger:
		return receipt.NewLedgerSequencer(database), nil
	case receipt.KindCounter:
		return receipt.NewCounterSequencer(database), nil
	case receipt.KindRedis:
		if rdb == nil {
			return nil, errors.New("RECEIPT_SEQUENCER=redis requires REDIS_ADDR")
		}
		return receipt.NewRedisSequencer(rdb, database), nil
	default:
		return nil, fmt.Errorf("unknown RECEIPT_SEQUENCER %q", kind)
	}
}
