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

	"copytrade/internal/api"
	"copytrade/internal/api/handlers"
	"copytrade/internal/config"
	"copytrade/internal/exchange"
	"copytrade/internal/models"
	"copytrade/internal/repository"
	"copytrade/internal/service"
	"copytrade/internal/websocket"
	"copytrade/pkg/crypto"
	"copytrade/pkg/ratelimit"
	"copytrade/pkg/retry"
	"copytrade/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database",
			utils.String("dsn", cfg.Database.DSNWithoutPassword()),
			utils.Err(err),
		)
	}
	defer db.Close()
	logger.Info("connected to database", utils.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	credentialRepo := repository.NewCredentialRepository(db)
	userRepo := repository.NewUserRepository(db)
	signalRepo := repository.NewSignalRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Шифрование ключей бирж
	var vaultOpts []crypto.VaultOption
	if cfg.Security.DeterministicEncryption {
		vaultOpts = append(vaultOpts, crypto.WithDeterministicNonce())
	}
	vault, err := crypto.NewVault(cfg.Security.EncryptionKey, vaultOpts...)
	if err != nil {
		logger.Fatal("failed to init credential vault", utils.Err(err))
	}

	// Клиенты бирж: общий HTTP пул, лимиты на биржу, кэш по ключам
	httpClient := exchange.NewHTTPClient(exchange.DefaultHTTPClientConfig())
	factory := exchange.NewFactory(exchange.Options{
		HTTPClient: httpClient,
		Limiter:    ratelimit.NewMultiLimiter(cfg.Exchanges.RateLimits),
		BaseURLs:   cfg.Exchanges.BaseURLs,
		RecvWindow: cfg.Exchanges.RecvWindow,
	})

	setupRetry := retry.DefaultConfig()
	setupRetry.MaxAttempts = uint(cfg.Exchanges.SetupRetries)
	setupRetry.OnRetry = func(err error, delay time.Duration) {
		logger.Warn("exchange setup retry", utils.Err(err), utils.Elapsed(delay))
	}
	registry := exchange.NewRegistry(factory.Build, setupRetry)

	// Уведомления
	hub := websocket.NewHub(cfg.Server.AllowedOrigins)
	go hub.Run()

	// Журнал аудита
	auditSink := service.NewAuditSink(auditRepo, cfg.Audit.Buffer)

	// Сервисы
	syncService := service.NewSyncService(credentialRepo, vault, registry, auditSink, service.SyncConfig{
		CallTimeout:   cfg.Sync.CallTimeout,
		ExchangeDelay: cfg.Sync.ExchangeDelay,
	})

	statuses := make([]models.UserStatus, 0, len(cfg.Sync.Statuses))
	for _, st := range cfg.Sync.Statuses {
		statuses = append(statuses, models.UserStatus(st))
	}
	scheduler := service.NewScheduler(syncService, userRepo, service.SchedulerConfig{
		Concurrency:   cfg.Sync.Concurrency,
		Statuses:      statuses,
		ClientIdleTTL: cfg.Sync.ClientIdleTTL,
	})
	scheduler.SetNotifier(hub)
	scheduler.SetClientPruner(registry)

	dispatcher := service.NewDispatcher(credentialRepo, userRepo, signalRepo, vault, registry, auditSink, service.DispatcherConfig{
		DefaultAmount: cfg.Dispatch.DefaultOrderAmount,
		Concurrency:   cfg.Dispatch.Concurrency,
		CallTimeout:   cfg.Sync.CallTimeout,
		Timeout:       cfg.Dispatch.Timeout,
	})
	dispatcher.SetNotifier(hub)

	credentialService := service.NewCredentialService(credentialRepo, vault, registry, auditSink)
	credentialService.SetSyncTrigger(scheduler)

	// Фоновые циклы
	bgCtx, stopBackground := context.WithCancel(context.Background())
	if cfg.Sync.Interval > 0 {
		go scheduler.Run(bgCtx, cfg.Sync.Interval)
	}
	if cfg.Audit.Retention > 0 {
		go auditSink.RunRetention(bgCtx, cfg.Audit.RetentionInterval, cfg.Audit.Retention)
	}

	// HTTP
	syncHandler := handlers.NewSyncHandler(scheduler)
	router := api.SetupRoutes(&api.Dependencies{
		Dispatcher:        dispatcher,
		Credentials:       credentialService,
		Sync:              syncHandler,
		Audit:             auditSink,
		WebSocket:         hub.ServeWS,
		WebhookSecretHash: cfg.Security.WebhookSecretHash,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	stopBackground()
	syncHandler.Wait()
	credentialService.Wait()
	hub.Stop()

	// аудит закрывается последним: фоновые синхронизации пишут в него до конца
	auditSink.Close()
	exchange.CloseIdle(httpClient)

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
