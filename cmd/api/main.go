// HTTP API - оформление и выдача заказов, баллы, рефералы, купоны, распродажа
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/loyalty/rewards/internal/api/http"
	"github.com/glkeru/loyalty/rewards/internal/app"
	"github.com/glkeru/loyalty/rewards/internal/config"
	tracing "github.com/glkeru/loyalty/rewards/observability/otel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}
	if err := cfg.Require("REWARDS_CATALOG_URL"); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// tracing
	shutdown, err := tracing.InitTracer(ctx, logger, cfg.OtelEndpoint, "rewards-api")
	if err != nil {
		panic(err)
	}
	defer shutdown()

	// services
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	defer a.Close()

	// api handlers
	r := api.NewHandler(api.Services{
		Orders:    a.Orders,
		Loyalty:   a.Loyalty,
		Referrals: a.Referrals,
		Coupons:   a.Coupons,
		FlashSale: a.FlashSale,
		Checkout:  a.Checkout,
	}, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", otelhttp.NewHandler(r, "rewards-api"))

	srv := &http.Server{
		Handler:      mux,
		Addr:         cfg.HTTPAddr,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()
	logger.Info("http server started", zap.String("addr", cfg.HTTPAddr))

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
