// Package main runs the transaction signing gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradewind-labs/signing_service/internal/auth"
	"github.com/tradewind-labs/signing_service/internal/config"
	"github.com/tradewind-labs/signing_service/internal/dispatch"
	"github.com/tradewind-labs/signing_service/internal/httpapi"
	"github.com/tradewind-labs/signing_service/internal/metrics"
	"github.com/tradewind-labs/signing_service/internal/middleware"
	"github.com/tradewind-labs/signing_service/internal/wallet"
	"github.com/tradewind-labs/signing_service/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := flag.String("config", "config.yaml", "Path to gateway configuration file")
	flag.Parse()

	// .env is optional; explicit environment always wins
	_ = godotenv.Load()
	if v := os.Getenv("GATEWAY_CONFIG"); v != "" {
		*configPath = v
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	log := logger.New(logger.Config{
		Component: "gateway",
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
	})

	store, err := auth.NewStore(cfg.Users, log)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenService(cfg.SecretKey, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, store)

	broadcastTimeout := time.Duration(cfg.BroadcastTimeoutSecs) * time.Second
	registry, err := wallet.NewRegistry(wallet.RegistryConfig{
		Wallets: cfg.Wallets,
		Timeout: broadcastTimeout,
		Log:     log,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatcher := dispatch.New(dispatch.Config{
		Registry:         registry,
		Log:              log,
		Metrics:          m,
		BroadcastTimeout: broadcastTimeout,
	})

	handler := httpapi.NewHandler(httpapi.Config{
		Store:      store,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		Registry:   registry,
		Log:        log,
	})

	router := mux.NewRouter()
	var corsOrigins []string
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	router.Use(middleware.NewTracingMiddleware(log).Handler)
	router.Use(middleware.NewCORSMiddleware(corsOrigins).Handler)
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.NewAuthMiddleware(tokens, log, httpapi.SkipAuthPaths()).Handler)
	if cfg.RateLimit != nil {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		limiter.StartCleanup(10 * time.Minute)
		router.Use(limiter.Handler)
	}
	handler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: broadcastTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("signing gateway listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}

	log.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
