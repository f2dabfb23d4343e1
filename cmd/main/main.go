package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/cache"
	"github.com/daniel-neiva/nexcrm-sub000/internal/config"
	"github.com/daniel-neiva/nexcrm-sub000/internal/gateway"
	"github.com/daniel-neiva/nexcrm-sub000/internal/ingestion"
	"github.com/daniel-neiva/nexcrm-sub000/internal/jetstream"
	"github.com/daniel-neiva/nexcrm-sub000/internal/llm"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/realtime"
	"github.com/daniel-neiva/nexcrm-sub000/internal/storage"
	"github.com/daniel-neiva/nexcrm-sub000/internal/usecase"
	"github.com/daniel-neiva/nexcrm-sub000/internal/webhook"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Account.ID == "" {
		fmt.Println("ACCOUNT_ID is required")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting NexCRM messaging processor",
		zap.String("environment", cfg.Environment),
		zap.String("account_id", cfg.Account.ID),
		zap.String("nats_url", cfg.NATS.URL),
	)

	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	jsClient, err := jetstream.NewClient(cfg.NATS.URL, cfg.NATS.PublishAckWait)
	if err != nil {
		logger.Log.Fatal("Failed to initialize JetStream client", zap.Error(err))
	}

	lidCache := cache.NewLIDCache(postgresRepo, cfg.Account.ID)
	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)
	completer := llm.NewClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxTokens, cfg.AI.Timeout)
	notifier := realtime.NewNATSNotifier(jsClient.NatsConn(), cfg.NATS.RealtimePrefix)

	service := usecase.NewEventService(
		postgresRepo,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		postgresRepo,
		lidCache,
		gatewayClient,
		completer,
		notifier,
		cfg.Account.ID,
		cfg.AI.HistoryLimit,
		cfg.Processing.ReadOverrideWindow,
	)

	aiWorker, err := usecase.NewAIReplyWorker(cfg.WorkerPools.AIReply, cfg.Account.ID, service.ProcessAIReply, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize AI reply worker pool", zap.Error(err))
	}
	service.SetAIWorker(aiWorker)

	// Durable and queue group names are account scoped so multiple accounts
	// can share one NATS cluster.
	consumerCfg := cfg.NATS.Events
	consumerCfg.Consumer += cfg.Account.ID
	consumerCfg.QueueGroup += cfg.Account.ID

	consumer := ingestion.NewTriggerConsumer(jsClient, service, consumerCfg, cfg.Account.ID)
	if err := consumer.Setup(); err != nil {
		logger.Log.Fatal("Failed to set up event trigger consumer", zap.Error(err))
	}
	if err := consumer.Start(); err != nil {
		logger.Log.Fatal("Failed to start event trigger consumer", zap.Error(err))
	}

	publisher := ingestion.NewTriggerPublisher(jsClient, cfg.NATS.Events.Subject, cfg.Account.ID)
	handler := webhook.NewHandler(cfg.Webhook.Secret, cfg.Account.ID, postgresRepo, publisher)
	server := webhook.NewServer(cfg.Server.Port, handler, postgresRepo, cfg.Metrics.Enabled, logger.Log)
	server.Start()

	logger.Log.Info("Webhook endpoints available",
		zap.String("webhook", fmt.Sprintf("http://localhost:%d/webhook", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop the webhook server first so no new events arrive mid-drain.
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping webhook server")
		start := time.Now()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping webhook server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Webhook server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping webhook server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping event trigger consumer")
		start := time.Now()
		consumer.Stop()
		logger.Log.Info("[shutdown] Event trigger consumer stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping event trigger consumer",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping AI reply worker pool")
		start := time.Now()
		aiWorker.Stop()
		logger.Log.Info("[shutdown] AI reply worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping AI reply worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}

		logger.Log.Info("[shutdown] Closing JetStream connection")
		jsStart := time.Now()
		jsClient.Close()
		logger.Log.Info("[shutdown] JetStream connection closed",
			zap.Duration("duration", time.Since(jsStart)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("NexCRM messaging processor shutdown complete")
}

func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
