package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-taskgate/internal/approval"
	"github.com/xela07ax/spaceai-taskgate/internal/audit"
	"github.com/xela07ax/spaceai-taskgate/internal/connectors"
	"github.com/xela07ax/spaceai-taskgate/internal/engine"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"github.com/xela07ax/spaceai-taskgate/internal/repository/postgres"
	"github.com/xela07ax/spaceai-taskgate/internal/risk"
	"github.com/xela07ax/spaceai-taskgate/internal/runs"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Runner.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Контекст для управления жизненным циклом фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Метрики
	reg := prometheus.NewRegistry()
	engineMetrics := engine.NewMetrics(reg)
	approvalMetrics := approval.NewMetrics(reg)

	// 1. Инфраструктура и ресурсы
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
	}

	var (
		pool *pgxpool.Pool
		db   *sql.DB
	)
	if cfg.Database.URL != "" {
		dbCtx, dbCancel := context.WithTimeout(appCtx, 10*time.Second)
		pool, err = postgres.NewPool(dbCtx, cfg.Database)
		if err == nil {
			err = postgres.EnsureSchema(dbCtx, pool)
		}
		if err == nil {
			db, err = postgres.OpenDB(dbCtx, cfg.Database)
		}
		dbCancel()
		if err != nil {
			logger.Fatal("database unreachable", zap.Error(err))
		}
		defer pool.Close()
		defer db.Close()
	} else {
		logger.Warn("database.url is empty, approvals and audit stay in memory")
	}

	// 2. HITL гейт
	var store approval.Store = approval.NewMemoryStore()
	if pool != nil {
		store = postgres.NewApprovalRepo(pool)
	}

	var broker approval.Broker
	notifier := approval.MultiNotifier{approval.NewLogNotifier(logger)}
	if rdb != nil {
		broker = approval.NewRedisBroker(rdb, logger)
		notifier = append(notifier, approval.NewRedisNotifier(rdb))
	} else {
		// Решения из отдельного процесса консоли сюда не дойдут: гейт закроется по таймауту
		logger.Warn("redis disabled, decisions are delivered only within this process")
		memBroker := approval.NewMemoryBroker()
		defer memBroker.Close()
		broker = memBroker
	}

	gate := approval.NewGate(store, broker, notifier, logger,
		approval.WithDefaultTimeout(cfg.Approval.DefaultTimeout),
		approval.WithGateMetrics(approvalMetrics),
	)
	approvals := approval.NewService(store, broker, logger)
	go approvals.RunSweeper(appCtx, cfg.Approval.SweepInterval, cfg.Approval.Retention)

	// 3. Таблица индикаторов риска
	initial := risk.Default()
	if cfg.Risk.RulesFile != "" {
		rules, err := risk.LoadRulesFile(cfg.Risk.RulesFile)
		if err != nil {
			logger.Fatal("failed to load rules file", zap.String("path", cfg.Risk.RulesFile), zap.Error(err))
		}
		if initial, err = risk.NewClassifier(rules); err != nil {
			logger.Fatal("invalid rules file", zap.String("path", cfg.Risk.RulesFile), zap.Error(err))
		}
	}

	var ruleRepo risk.RuleRepository
	if cfg.Risk.UseDatabase {
		ruleRepo = postgres.NewRuleRepo(db)
	}
	rules := risk.NewRuleCache(initial, ruleRepo, logger)
	if err := rules.Refresh(appCtx); err != nil {
		logger.Warn("rule warmup failed, serving with initial table", zap.Error(err))
	}
	if rdb != nil && ruleRepo != nil {
		go rules.StartListener(appCtx, rdb)
	}

	// 4. Execution Layer (Исполнение + Надежность)
	var runner engine.Executor
	if cfg.Runner.Mock {
		runner = &connectors.MockRunner{MinLatency: 50 * time.Millisecond, MaxLatency: 300 * time.Millisecond}
		logger.Warn("using mock runner")
	} else {
		runner = connectors.NewHTTPRunner(cfg.Runner.URL, cfg.Runner.Timeout)
	}
	safeExecutor := engine.NewReliabilityWrapper(runner, cfg.Engine, engineMetrics)

	runStore := runs.NewStore(cfg.Engine.RunsCapacity)

	var auditStorage audit.StorageInterface = audit.NewLogStorage(logger)
	if db != nil {
		auditStorage = postgres.NewAuditRepo(db)
	}
	journal := audit.NewJournal(auditStorage, audit.Options{
		BufferSize:    cfg.Engine.AuditBufferSize,
		BatchSize:     cfg.Engine.AuditBatchSize,
		FlushInterval: cfg.Engine.AuditFlushInterval,
		BufferFill:    engineMetrics.AuditBufferFill,
	}, logger)
	journal.Start()

	// 5. Core
	dispatcher := engine.NewDispatcher(rules, gate, safeExecutor, runStore, journal, engineMetrics, logger, cfg.Approval.DefaultTimeout)

	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			logger.Fatal("invalid public key", zap.Error(err))
		}
		validator = auth.NewBaseValidator(pub)
	} else {
		logger.Warn("auth public key not configured, data plane accepts unauthenticated tasks")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine.NewRouter(engine.NewHandler(dispatcher, runStore, approvals, logger), validator),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return appCtx },
	}

	// Экспортируем метрики для Prometheus
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// gRPC health для балансировщиков
	grpcSrv, healthSrv := engine.NewGRPCServer(logger)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("failed to listen gRPC", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health server started", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()
	engine.MarkServing(healthSrv)

	// 6. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("taskgate started", zap.String("addr", srv.Addr), zap.Int("rules", len(rules.Classifier().Rules())))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("taskgate stopping...")
	healthSrv.Shutdown()

	// Запросы могут висеть на гейте: отменяем ожидание, гейт вернет TIMED_OUT
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.RegisterOnShutdown(cancel)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	cancel()

	journal.Stop()
	runStore.Clear()
	logger.Info("taskgate exited properly")
}
