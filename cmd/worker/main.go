package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/billing_go_server/config"
	"github.com/qs3c/billing_go_server/internal/database"
	"github.com/qs3c/billing_go_server/internal/pkg/cron"
	"github.com/qs3c/billing_go_server/internal/pkg/logger"
	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
)

// worker 常驻进程：定时扫描结束的订阅，同时把事件频道里的消息写到日志
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.Log)
	defer zlog.Sync()

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	defer rdb.Close()

	publisher := pubsub.NewPublisher(rdb, cfg.Billing.EventsChannel)
	interval := time.Duration(cfg.Billing.SweepIntervalMinutes) * time.Minute
	sweeper := cron.NewService(repository.NewSubscriptionRepository(db), publisher, interval, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		zlog.Info("received shutdown signal")
		cancel()
	}()

	sweeper.Start()
	defer sweeper.Stop()

	subscriber := pubsub.NewSubscriber(rdb, publisher.Channel())
	err = subscriber.Subscribe(ctx, func(e *pubsub.BillingEvent) {
		zlog.Info("billing event",
			zap.String("type", e.Type),
			zap.Int64("user_id", e.UserID),
			zap.Int64("subscription_id", e.SubscriptionID),
			zap.String("name", e.Name),
			zap.String("plan", e.Plan),
		)
	})
	if err != nil && ctx.Err() == nil {
		zlog.Error("event subscription stopped", zap.Error(err))
	}
	zlog.Info("worker shutdown complete")
}
