package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/council-autonomy-gate/internal/admission"
	"github.com/xela07ax/council-autonomy-gate/internal/audit"
	"github.com/xela07ax/council-autonomy-gate/internal/connectors"
	"github.com/xela07ax/council-autonomy-gate/internal/domain"
	"github.com/xela07ax/council-autonomy-gate/internal/infra"
	"github.com/xela07ax/council-autonomy-gate/internal/infra/auth"
	"github.com/xela07ax/council-autonomy-gate/internal/notify"
	"github.com/xela07ax/council-autonomy-gate/internal/repository/postgres"
	"github.com/xela07ax/council-autonomy-gate/internal/safety"
	"github.com/xela07ax/council-autonomy-gate/internal/server"
	"github.com/xela07ax/council-autonomy-gate/internal/trust"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При завершении main() или срабатывании SIGTERM, cancel() остановит слушателей
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store, err := postgres.NewStore(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	defer store.Close()

	// Проверяем соединение с таймаутом
	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	// RSA ключи: публичный обязателен для защищенного периметра,
	// приватный — для выпуска токенов на /auth/token
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("invalid RSA public key", zap.Error(err))
	}
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("invalid RSA private key", zap.Error(err))
	}

	// 3. Control Plane (реестры и менеджеры)
	registry := safety.NewRegistry(store, rdb, logger)
	if err := registry.Refresh(appCtx); err != nil {
		logger.Fatal("boundary registry warmup failed", zap.Error(err))
	}
	go registry.StartListener(appCtx)

	trustStore := trust.NewStore(store, cfg.Trust.RejectionCountsAsFailure, logger)
	if err := trustStore.Warmup(appCtx); err != nil {
		logger.Fatal("trust store warmup failed", zap.Error(err))
	}

	suspension := admission.NewSuspensionManager(rdb, logger)
	if err := suspension.Init(appCtx); err != nil {
		logger.Fatal("suspension manager init failed", zap.Error(err))
	}
	go suspension.StartListener(appCtx)

	// Журнал решений: данные летят в базу пачками
	trail := audit.NewTrail(store, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval, logger)
	trail.Start()
	defer trail.Stop()

	// 4. Execution Layer (Исполнение + Надежность)
	connector := &connectors.MockChannelConnector{}
	safeConnector := admission.NewReliabilityWrapper(connector, admission.ReliabilitySettings{
		CBMaxRequests: cfg.Engine.CBMaxRequests,
		CBInterval:    cfg.Engine.CBInterval,
		CBTimeout:     cfg.Engine.CBTimeout,
	})
	executor := admission.NewSimulatedExecutor(safeConnector)

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := admission.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	// 5. Core (сборка контроллера допуска)
	controller := admission.NewController(
		admission.Options{
			SafetyLevel:       domain.SafetyLevel(cfg.Engine.SafetyLevel),
			AutoApproveScore:  cfg.Trust.AutoApproveScore,
			QueueSize:         cfg.Engine.QueueSize,
			ExecTimeoutFactor: cfg.Engine.ExecTimeoutFactor,
		},
		trustStore,
		registry,
		executor,
		trail,
		notify.NewRedisNotifier(rdb, logger),
		suspension,
		metrics,
		logger,
	)

	// Воркеры очереди исполнения
	for i := 0; i < cfg.Engine.Workers; i++ {
		go admission.NewWorker(controller, logger).Run(appCtx)
	}

	// 6. HTTP Server (Dependency Injection слоев)
	authService := server.NewAuthService(store, privateKey, cfg.Auth.TokenTTL, logger)
	validator := auth.NewBaseValidator(publicKey)

	apiServer := server.New(
		logger,
		validator,
		server.NewAuthHandler(authService, logger),
		server.NewOperationHandler(controller, logger),
		server.NewAgentHandler(trustStore, suspension, logger),
		server.NewBoundaryHandler(registry, logger),
		server.NewStatusHandler(controller, logger),
		server.NewAuditHandler(store, logger),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("autonomy gate started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("autonomy gate stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	logger.Info("autonomy gate exited properly")
}
