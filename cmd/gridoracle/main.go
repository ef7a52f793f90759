package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voltbridge/gridoracle/internal/api"
	"github.com/voltbridge/gridoracle/internal/config"
	"github.com/voltbridge/gridoracle/internal/fraud"
	"github.com/voltbridge/gridoracle/internal/ledger"
	"github.com/voltbridge/gridoracle/internal/logger"
	"github.com/voltbridge/gridoracle/internal/metrics"
	"github.com/voltbridge/gridoracle/internal/models"
	"github.com/voltbridge/gridoracle/internal/queue"
	"github.com/voltbridge/gridoracle/internal/settlement"
	"github.com/voltbridge/gridoracle/internal/telegram"
	"github.com/voltbridge/gridoracle/internal/weather"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Trade ledger: the durable source of truth, replayed before anything
	// else so restart never reprocesses a decided submission.
	tradeLedger, err := ledger.New(cfg.Ledger.DBPath)
	if err != nil {
		logger.Fatal("Failed to open trade ledger: %v", err)
	}
	defer func() {
		if err := tradeLedger.Close(); err != nil {
			logger.Error("Failed to close trade ledger: %v", err)
		}
	}()
	logger.Info("Trade ledger open at %s (%d events replayed)", cfg.Ledger.DBPath, tradeLedger.EventCount())

	// Weather oracle client with TTL cache.
	weatherClient := weather.NewClient(
		cfg.Weather.APIBaseURL,
		cfg.Weather.Timeout,
		cfg.Fraud.SolarMaxOutputKWh,
		weather.ClientConfig{
			MaxRetries:     cfg.Weather.MaxRetries,
			RetryDelayBase: cfg.Weather.RetryDelayBase,
		},
	)
	weatherService, err := weather.NewService(weatherClient, cfg.Weather.CacheTTL)
	if err != nil {
		logger.Fatal("Failed to initialize weather service: %v", err)
	}
	defer weatherService.Close()

	// Fraud rule engine state.
	history := fraud.NewHistoryStore(cfg.Fraud.HistoryMaxRecords)
	rules := fraud.Rules{
		RateLimitEnabled:        cfg.Fraud.RateLimitEnabled,
		MaxSubmissionsPerWindow: cfg.Fraud.MaxSubmissionsPerWindow,
		MaxKWhPerWindow:         cfg.Fraud.MaxKWhPerWindow,
		RateWindow:              cfg.Fraud.RateWindow,
		PlausibilityEnabled:     cfg.Fraud.PlausibilityEnabled,
		MaxSingleTradeKWh:       cfg.Fraud.MaxSingleTradeKWh,
		BatteryCapacityKWh:      cfg.Fraud.BatteryCapacityKWh,
		ChargeEfficiency:        cfg.Fraud.ChargeEfficiency,
		WeatherRuleEnabled:      cfg.Fraud.WeatherRuleEnabled,
		WeatherFailOpen:         cfg.Fraud.WeatherFailOpen,
	}

	// Operator alerts.
	var alerter settlement.Alerter
	var notifier queue.Notifier
	if cfg.Telegram.Enabled {
		telegramClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		alerter = telegramClient
		notifier = telegramClient
		logger.Info("Telegram operator alerts enabled")
	} else {
		logger.Debug("Telegram operator alerts disabled")
	}

	// Settlement path.
	var submitter settlement.BatchSubmitter
	if cfg.Settlement.Enabled {
		backend, err := settlement.Dial(cfg.Settlement.RPCURL)
		if err != nil {
			logger.Fatal("Failed to dial settlement RPC: %v", err)
		}
		defer backend.Close()

		submitter, err = settlement.NewSubmitter(backend, settlement.SubmitterConfig{
			ContractAddress: cfg.Settlement.ContractAddress,
			PrivateKey:      cfg.Settlement.PrivateKey,
			ChainID:         cfg.Settlement.ChainID,
			GasLimit:        cfg.Settlement.GasLimit,
			GasPriceGwei:    cfg.Settlement.GasPriceGwei,
			Confirmations:   cfg.Settlement.Confirmations,
			ConfirmTimeout:  cfg.Settlement.ConfirmTimeout,
			PollInterval:    cfg.Settlement.PollInterval,
		})
		if err != nil {
			logger.Fatal("Failed to initialize settlement submitter: %v", err)
		}
	} else {
		submitter = settlement.DryRun{}
		logger.Warn("Settlement disabled: batches will be confirmed in dry-run mode")
	}

	tradeQueue := queue.New()
	registry := settlement.NewRegistry()
	processor := settlement.NewProcessor(tradeLedger, registry, submitter, alerter, tradeQueue.NextBatchSeq)

	scheduler := queue.NewScheduler(
		tradeQueue,
		cfg.Batch.SizeThreshold,
		cfg.Batch.MaxAge,
		cfg.Batch.SchedulerInterval,
		func(ctx context.Context, batch *models.Batch) error {
			metrics.QueueDepth.Set(float64(tradeQueue.Len()))
			return processor.Process(ctx, batch)
		},
		notifier,
	)

	service := api.NewService(tradeLedger, history, weatherService, tradeQueue, registry, processor, rules, api.Config{
		Latitude:         cfg.Weather.Latitude,
		Longitude:        cfg.Weather.Longitude,
		UnitPrice:        cfg.Settlement.UnitPrice,
		RequireSignature: cfg.Fraud.RequireSignature,
	})

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Run(ctx)
	}()
	go runHousekeeping(ctx, history, cfg.Fraud.RateWindow)

	logger.Info("Oracle listening on %s (batch size threshold: %d, max age: %v)",
		cfg.Server.ListenAddr, cfg.Batch.SizeThreshold, cfg.Batch.MaxAge)
	if err := service.Serve(ctx, cfg.Server.ListenAddr, cfg.Server.RequestTimeout); err != nil {
		logger.Error("HTTP server stopped: %v", err)
	}

	// The scheduler's shutdown drain may still be settling a final batch;
	// the ledger must stay open until its outcome is recorded.
	cancel()
	<-schedulerDone
	logger.Info("Service stopped")
}

// runHousekeeping ages out seller history well past the rate window.
func runHousekeeping(ctx context.Context, history *fraud.HistoryStore, rateWindow time.Duration) {
	ticker := time.NewTicker(rateWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			history.Prune(2*rateWindow, now)
		}
	}
}
