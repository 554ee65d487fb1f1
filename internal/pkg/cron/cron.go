package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/billing_go_server/internal/pkg/pubsub"
	"github.com/qs3c/billing_go_server/internal/repository"
	"github.com/qs3c/billing_go_server/internal/service"
)

const defaultInterval = 5 * time.Minute

// Result 一轮扫描的结果；没有配置发布器时 Published 恒为 0
type Result struct {
	Found     int
	Published int
}

// Service 定时扫描刚刚结束的订阅并发布 subscription.ended 事件，只读不写
type Service struct {
	subRepo   *repository.SubscriptionRepository
	publisher service.EventPublisher
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	lastRun  time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewService interval <= 0 时按 5 分钟；首次扫描覆盖最近一个周期
func NewService(
	subRepo *repository.SubscriptionRepository,
	publisher service.EventPublisher,
	interval time.Duration,
	logger *zap.Logger,
) *Service {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		subRepo:   subRepo,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		lastRun:   time.Now().UTC().Add(-interval),
		stopChan:  make(chan struct{}),
	}
}

// Since 设置下一次扫描的起点
func (s *Service) Since(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = t.UTC()
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
}

// Stop 停止定时任务并等待当前一轮结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunNow(context.Background()); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// RunNow 扫描 (lastRun, now] 内结束的订阅，以及这段时间内才写入结束时间的订阅。
// 有事件发布失败时不推进 lastRun，下一轮会重发
func (s *Service) RunNow(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	subs, err := s.subRepo.ListEndedBetween(s.lastRun, now)
	if err != nil {
		return Result{}, fmt.Errorf("list ended subscriptions: %w", err)
	}

	res := Result{Found: len(subs)}
	for _, sub := range subs {
		if s.publisher == nil {
			break
		}
		err := s.publisher.Publish(ctx, &pubsub.BillingEvent{
			Type:           pubsub.EventSubscriptionEnded,
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			Name:           sub.Name,
			Plan:           sub.StripePlan,
			Quantity:       sub.Quantity,
			EndsAt:         sub.EndsAt,
			OccurredAt:     now,
		})
		if err != nil {
			return res, fmt.Errorf("publish ended event for subscription %d: %w", sub.ID, err)
		}
		res.Published++
	}

	if res.Found > 0 {
		s.logger.Info("ended subscriptions swept",
			zap.Time("from", s.lastRun),
			zap.Time("to", now),
			zap.Int("found", res.Found),
			zap.Int("published", res.Published),
			zap.Bool("dry_run", s.publisher == nil),
		)
	}
	s.lastRun = now
	return res, nil
}
