package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/billing_go_server/config"
	"github.com/qs3c/billing_go_server/internal/database"
	"github.com/qs3c/billing_go_server/internal/pkg/cron"
	"github.com/qs3c/billing_go_server/internal/pkg/logger"
	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
	"github.com/qs3c/billing_go_server/internal/service"
)

var (
	since  = flag.Duration("since", time.Hour, "Look back window for ended subscriptions")
	dryRun = flag.Bool("dry-run", false, "Only count ended subscriptions, don't publish events")
)

// sweeper 单次扫描，适合交给系统 cron 调度
func main() {
	flag.Parse()

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

	var publisher service.EventPublisher
	if !*dryRun {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			zlog.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		publisher = pubsub.NewPublisher(rdb, cfg.Billing.EventsChannel)
	}

	sweeper := cron.NewService(repository.NewSubscriptionRepository(db), publisher, *since, zlog)
	sweeper.Since(time.Now().Add(-*since))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := sweeper.RunNow(ctx)
	if err != nil {
		zlog.Fatal("sweep failed", zap.Int("found", res.Found), zap.Int("published", res.Published), zap.Error(err))
	}
	zlog.Info("sweep completed",
		zap.Int("found", res.Found),
		zap.Int("published", res.Published),
		zap.Bool("dry_run", *dryRun),
	)
}
