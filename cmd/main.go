package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"marketwatch/internal/api"
	"marketwatch/internal/config"
	"marketwatch/internal/dispatch"
	"marketwatch/internal/engine"
	"marketwatch/internal/enrich"
	"marketwatch/internal/logging"
	"marketwatch/internal/market"
	"marketwatch/internal/models"
	"marketwatch/internal/providers"
	"marketwatch/internal/registry"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Market data client
	binance := market.NewBinanceClient(cfg.Market.BinanceBaseURL, cfg.Market.FetchTimeout)

	// Enrichment is optional; without an API key alerts go out raw.
	var enricher enrich.Enricher
	if cfg.Enrich.GeminiAPIKey != "" {
		g, err := enrich.NewGeminiEnricher(context.Background(), logger, cfg.Enrich.GeminiAPIKey, cfg.Enrich.GeminiModel)
		if err != nil {
			logger.Errorf("Failed to init Gemini enricher: %v", err)
			log.Fatalf("Gemini init failed: %v", err)
		}
		enricher = g
	} else {
		logger.Warnf("GEMINI_API_KEY not set, alerts will not be enriched")
	}

	// Notification channels
	hub := dispatch.NewHub(logger)
	dispatcher := dispatch.New(logger, cfg.Notification.SendTimeout)
	dispatcher.Register("telegram", func(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error {
		return providers.SendTelegram(ctx, event, message, params, logger, cfg)
	})
	dispatcher.Register("email", func(ctx context.Context, event models.AlertEvent, message string, params models.ChannelParams) error {
		return providers.SendEmail(ctx, event, message, params, cfg)
	})
	dispatcher.Register("websocket", hub.Send)
	if cfg.Kafka.Broker != "" {
		publisher, err := providers.NewKafkaPublisher(cfg.Kafka.Broker, cfg.Kafka.AlertTopic)
		if err != nil {
			logger.Errorf("Failed to init Kafka publisher: %v", err)
			log.Fatalf("Kafka init failed: %v", err)
		}
		defer publisher.Close()
		dispatcher.Register("kafka", publisher.Send)
	} else {
		logger.Warnf("KAFKA_BROKER not set, kafka channel disabled")
	}

	// Initialize engine
	eng := engine.New(registry.New(), binance, enricher, dispatcher, logger, engine.Options{
		MaxConsecutiveFailures: cfg.Monitor.MaxConsecutiveFailures,
		FailureBackoff:         cfg.Monitor.FailureBackoff,
		NotifyPolicy:           cfg.Monitor.NotifyPolicy,
		FetchTimeout:           cfg.Market.FetchTimeout,
		EnrichTimeout:          cfg.Enrich.Timeout,
		ReapInterval:           cfg.Monitor.ReapInterval,
	})
	eng.Start()

	// Start API server
	handler := api.NewHandler(eng, logger, hub)
	router := api.NewRouter(logger, cfg, handler)
	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	eng.Stop()
	logger.Infof("Service stopped")
}
