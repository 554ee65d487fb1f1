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

	"go.uber.org/zap"

	"github.com/qs3c/billing_go_server/config"
	"github.com/qs3c/billing_go_server/internal/api"
	"github.com/qs3c/billing_go_server/internal/api/handler"
	"github.com/qs3c/billing_go_server/internal/billing"
	"github.com/qs3c/billing_go_server/internal/database"
	"github.com/qs3c/billing_go_server/internal/pkg/logger"
	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
	"github.com/qs3c/billing_go_server/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.Log)
	defer zlog.Sync()

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}
	zlog.Info("database connected")

	// Redis 只用于事件发布，连不上时不发布事件
	var publisher service.EventPublisher
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Warn("redis unavailable, billing events disabled", zap.Error(err))
	} else {
		defer rdb.Close()
		publisher = pubsub.NewPublisher(rdb, cfg.Billing.EventsChannel)
		zlog.Info("redis connected", zap.String("channel", cfg.Billing.EventsChannel))
	}

	if cfg.Stripe.Secret == "" {
		zlog.Warn("stripe secret is empty, provider calls will fail")
	}
	provider := billing.NewStripeProvider(cfg.Stripe.Secret)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)

	// 初始化 Service
	authService := service.NewAuthService(userRepo, cfg)
	subService := service.NewSubscriptionService(userRepo, subRepo, provider, publisher, cfg, zlog)
	customerService := service.NewCustomerService(userRepo, provider, publisher, cfg, zlog)
	webhookService := service.NewWebhookService(userRepo, subRepo, eventRepo, publisher, cfg.Stripe.WebhookSecret, zlog)

	// 初始化 Router
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewBillingHandler(customerService),
		handler.NewSubscriptionHandler(subService),
		handler.NewWebhookHandler(webhookService),
		subService,
		cfg,
		zlog,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	zlog.Info("server stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}
