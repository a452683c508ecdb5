package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-taskgate/internal/approval"
	"github.com/xela07ax/spaceai-taskgate/internal/console/handler"
	"github.com/xela07ax/spaceai-taskgate/internal/console/server"
	"github.com/xela07ax/spaceai-taskgate/internal/console/service"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"github.com/xela07ax/spaceai-taskgate/internal/infra/auth"
	"github.com/xela07ax/spaceai-taskgate/internal/repository/postgres"
)

// Первый оператор заводится из ENV, дальше пользователи живут в таблице users
const (
	adminUserEnv     = "CONSOLE_ADMIN_USER"
	adminPasswordEnv = "CONSOLE_ADMIN_PASSWORD"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Database.URL == "" {
		logger.Fatal("database.url is required for the console")
	}

	// 1. Инициализация ресурсов
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	db, err := postgres.OpenDB(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()
	cancel()

	var (
		rdb    *redis.Client
		broker approval.Broker
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		broker = approval.NewRedisBroker(rdb, logger)
	} else {
		// Решение сохранится в БД, ждущий шлюз заберет его по своему таймауту
		logger.Warn("redis disabled, gateways will not be woken up by decisions")
		broker = approval.NewMemoryBroker()
	}

	// 2. Ключи RS256
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key is required to issue tokens", zap.Error(err))
	}
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key is required to verify tokens", zap.Error(err))
	}

	// 3. Инициализация слоев (Dependency Injection)
	users := postgres.NewUserRepo(db)
	if err := bootstrapAdmin(users, cfg.Auth.BcryptCost); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	}

	authSvc := service.NewAuthService(users, auth.NewSigner(privKey, cfg.Auth.TokenTTL))
	approvals := approval.NewService(postgres.NewApprovalRepo(pool), broker, logger)
	rulesSvc := service.NewRuleService(postgres.NewRuleRepo(db), rdb, logger)
	auditSvc := service.NewAuditService(postgres.NewAuditRepo(db))

	console := server.NewConsoleServer(
		logger,
		auth.NewBaseValidator(pubKey),
		handler.NewAuthHandler(authSvc, logger),
		handler.NewApprovalHandler(approvals, logger),
		handler.NewRuleHandler(rulesSvc, logger),
		handler.NewAuditHandler(auditSvc),
	)

	// 4. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	logger.Info("console exited properly")
}

func bootstrapAdmin(users *postgres.UserRepo, cost int) error {
	password := os.Getenv(adminPasswordEnv)
	if password == "" {
		return nil
	}
	username := os.Getenv(adminUserEnv)
	if username == "" {
		username = "admin"
	}

	hash, err := service.HashPassword(password, cost)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return users.UpsertUser(ctx, &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Scopes:       map[string]bool{domain.ScopeAdmin: true},
	})
}
