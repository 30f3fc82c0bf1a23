/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"casino-payments-go/internal/common"
	"casino-payments-go/internal/config"
	"casino-payments-go/internal/dispatch"
	"casino-payments-go/internal/health"
	"casino-payments-go/internal/rates"
	"casino-payments-go/internal/reconciler"

	"go.uber.org/zap"
)

const (
	exitStartupFailure    = 1
	exitInvariantViolated = 2
)

func main() {
	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		os.Exit(exitStartupFailure)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting casino payment service")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize services", zap.Error(err))
		os.Exit(exitStartupFailure)
	}
	defer services.Close()

	// Startup auth check. A transport failure is tolerated; reconciliation
	// retries on its own schedule and health reporting covers the gap.
	identCtx, identCancel := context.WithTimeout(ctx, 10*time.Second)
	identity, err := services.Client.GetMe(identCtx)
	identCancel()
	if err != nil {
		zap.L().Warn("Provider identity check failed", zap.Error(err))
	} else {
		zap.L().Info("Connected to payment provider",
			zap.Int64("app_id", identity.AppID),
			zap.String("app_name", identity.Name),
			zap.String("processing_bot", identity.PaymentProcessingBotUsername))
	}

	assets, err := common.LoadAssetConfig(cfg.AssetsFile)
	if err != nil {
		logger.Error("Failed to load asset configuration", zap.Error(err))
		os.Exit(exitStartupFailure)
	}

	rateCache := rates.NewCache(services.Client, cfg.Rates)
	if err := rateCache.Refresh(ctx); err != nil {
		zap.L().Warn("Initial rate refresh failed, quotes unavailable until rates arrive", zap.Error(err))
	}
	go rateCache.Run(ctx, cfg.Rates.RefreshInterval)

	recon := reconciler.New(reconciler.Config{
		Client:        services.Client,
		Registry:      services.Store,
		Ledger:        services.Store,
		Quoter:        rateCache,
		Interval:      cfg.Reconciler.Interval,
		PendingMinAge: cfg.Reconciler.PendingMinAge,
		ExpiryGrace:   cfg.Reconciler.ExpiryGrace,
		PageSize:      cfg.Reconciler.PageSize,
		Fatal: func(err error) {
			zap.L().Error("FATAL: ledger invariant violated, shutting down", zap.Error(err))
			loggerCleanup()
			os.Exit(exitInvariantViolated)
		},
	})
	recon.Start(ctx)

	facade := dispatch.New(dispatch.Config{
		Ledger:   services.Store,
		Registry: services.Store,
		Rates:    rateCache,
		Client:   services.Client,
		Orphans:  recon,
		Assets:   assets,
	})
	// The chat layer drives deposits and game debits through this facade;
	// it receives the reference at integration time.
	zap.L().Info("Dispatch facade ready", zap.Int("assets", len(assets)))

	healthServer := health.NewServer(cfg.Health.Port, cfg.Reconciler.Interval, recon, rateCache, services.Store)
	healthServer.Start()

	zap.L().Info("Casino payment service running",
		zap.Int("port", cfg.Health.Port),
		zap.Duration("reconcile_interval", cfg.Reconciler.Interval),
		zap.Duration("rate_refresh_interval", cfg.Rates.RefreshInterval))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received")

	// Stop taking new work, then cancel the rate refresher immediately.
	facade.Close()
	cancel()

	// The in-flight reconciliation tick finishes under its own deadlines.
	recon.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("Health server shutdown failed", zap.Error(err))
	}

	zap.L().Info("Casino payment service stopped gracefully")
}
