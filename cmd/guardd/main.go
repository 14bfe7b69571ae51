package main

import (
	"context"
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

	"github.com/xela07ax/agentguard-core/internal/agents"
	"github.com/xela07ax/agentguard-core/internal/approval"
	"github.com/xela07ax/agentguard-core/internal/audit"
	"github.com/xela07ax/agentguard-core/internal/engine"
	"github.com/xela07ax/agentguard-core/internal/infra"
	"github.com/xela07ax/agentguard-core/internal/infra/auth"
	"github.com/xela07ax/agentguard-core/internal/mask"
	"github.com/xela07ax/agentguard-core/internal/notify"
	"github.com/xela07ax/agentguard-core/internal/ratelimit"
	"github.com/xela07ax/agentguard-core/internal/repository/postgres"
	"github.com/xela07ax/agentguard-core/internal/server"
	"github.com/xela07ax/agentguard-core/internal/server/handler"
	"github.com/xela07ax/agentguard-core/internal/server/service"
	"github.com/xela07ax/agentguard-core/internal/upstream"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин.
	// При завершении main() cancel() остановит слушателей и воркеров.
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	store, err := postgres.NewStore(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to init postgres", zap.Error(err))
	}
	defer store.Close()

	if err := store.Ping(appCtx); err != nil {
		logger.Fatal("postgres is unreachable", zap.Error(err))
	}

	// Метрики
	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)

	// Экспортируем метрики для Prometheus
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(":9090", mux); err != nil {
			logger.Error("metrics endpoint stopped", zap.Error(err))
		}
	}()

	// Журнал решений: события летят в базу пачками, не задерживая hot path
	trail := audit.NewTrail(store, cfg.Engine.AuditBufferSize, cfg.Engine.AuditFlushInterval, logger).
		WithFillGauge(metrics.AuditBufferFill)
	trail.Start()

	// 3. Control Plane: мгновенная блокировка агентов
	blocklist := agents.NewBlocklist(rdb, logger)
	disabledIDs, err := store.ListDisabledAgentIDs(appCtx)
	if err != nil {
		logger.Fatal("failed to load disabled agents", zap.Error(err))
	}
	if err := blocklist.Init(appCtx, disabledIDs); err != nil {
		logger.Fatal("failed to init agent blocklist", zap.Error(err))
	}
	go blocklist.StartListener(appCtx)

	// 4. Core: движок решений + лимитер
	limiter := ratelimit.NewLimiter(rdb, logger).
		WithFailOpenCounter(metrics.LimiterFailOpen)
	eng := engine.NewEngine(store, limiter, metrics, logger)

	// Первичный прогрев кэша политик. Неуспех не фатален: кэш догрузится
	// лениво при первом запросе либо по сигналу из Pub/Sub.
	if err := eng.Refresh(appCtx); err != nil {
		logger.Warn("initial policy cache load failed, will retry lazily", zap.Error(err))
	}
	go engine.ListenPolicyUpdates(appCtx, rdb, eng, logger)

	// 5. Execution Layer: исполнение одобренных заявок + надежность
	caller := upstream.NewReliabilityCaller(&upstream.SimulatedCaller{}, cfg.Engine)
	notifier := notify.NewLogSender(logger)
	executor := approval.NewExecutor(store, store, caller, notifier, metrics, cfg.Approval.NotifyRecipient, logger)

	approvalSvc := approval.NewService(store, executor, notifier, cfg.Approval, logger)
	go approvalSvc.Run(appCtx)

	sweeper := approval.NewSweeper(approvalSvc, cfg.Approval.SweepSchedule, logger)
	if err := sweeper.Start(appCtx); err != nil {
		logger.Fatal("failed to start approval sweeper", zap.Error(err))
	}

	// 6. Операторская аутентификация (RS256)
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse operator public key", zap.Error(err))
	}
	validator := auth.NewOperatorVerifier(pubKey)

	// 7. Сервисы и HTTP-граница
	decisionSvc := service.NewDecisionService(eng, trail, approvalSvc, logger)
	policySvc := service.NewPolicyAdminService(store, rdb, logger)
	agentSvc := service.NewAgentAdminService(store, rdb, logger)
	masker := mask.NewMasker(logger)

	srvHandler := server.New(
		logger,
		validator,
		store,
		blocklist,
		handler.NewEvaluateHandler(decisionSvc),
		handler.NewMaskHandler(masker),
		handler.NewApprovalHandler(approvalSvc),
		handler.NewPolicyHandler(policySvc),
		handler.NewAgentHandler(agentSvc),
		handler.NewOverviewHandler(store),
	)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr(),
		Handler:      srvHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("agentguard core started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("agentguard core stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	cancel()       // Останавливаем фоновые горутины
	sweeper.Stop() // Дожидаемся завершения активного свипа
	trail.Stop()   // Дожимаем буфер аудита в базу

	logger.Info("agentguard core exited properly")
}
