package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicepay/internal/amqp"
	"voicepay/internal/auth"
	"voicepay/internal/config"
	"voicepay/internal/dispatch"
	apphttp "voicepay/internal/http"
	applog "voicepay/internal/log"
	"voicepay/internal/market"
	"voicepay/internal/oracle"
	"voicepay/internal/portfolio"
	"voicepay/internal/resolver"
	"voicepay/internal/saga"
	"voicepay/internal/storage"
	"voicepay/internal/transfer"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is best-effort on the server side: transfers still commit when
	// the broker is down, the audit worker catches up later.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, transfer events will not be published", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	var priceSources []market.PriceSource
	if cfg.QuoteBaseURL != "" {
		priceSources = append(priceSources, market.NewQuoteSource(cfg.QuoteBaseURL, cfg.QuoteAPIKey))
	}
	priceSources = append(priceSources, market.NewFallbackSource(nil))
	prices := market.NewChain(priceSources...)

	machine := saga.NewMachine(repo, resolver.New(repo))
	pf := portfolio.NewService(repo, prices)
	authSvc := auth.NewService(repo, auth.Config{
		GoogleClientID:     cfg.GoogleClientID,
		GoogleClientSecret: cfg.GoogleClientSecret,
		RedirectURL:        cfg.GoogleRedirectURL,
		JWTSecret:          cfg.JWTSecret,
		TokenTTL:           cfg.TokenTTL,
	})
	oracleClient := oracle.NewClient(cfg.OracleBaseURL, cfg.OracleAPIKey, cfg.OracleModel)
	dispatcher := dispatch.NewDispatcher(oracleClient, machine, repo, pf, authSvc)
	executor := transfer.NewExecutor(repo, amqpClient)

	srv := apphttp.NewServer(":"+cfg.Port, dispatcher, executor, pf, repo, authSvc, machine)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB
	srv.Handler = applog.Middleware(logger)(srv.Handler)

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting voicepay server", "port", cfg.Port, "amqp_connected", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
