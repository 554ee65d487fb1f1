package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultChannel 未配置 billing.events_channel 时使用
const DefaultChannel = "billing_events"

// 订阅生命周期事件类型
const (
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionSwapped  = "subscription.swapped"
	EventQuantityUpdated      = "subscription.quantity_updated"
	EventSubscriptionCanceled = "subscription.cancelled"
	EventSubscriptionResumed  = "subscription.resumed"
	EventSubscriptionEnded    = "subscription.ended"
	EventCustomerCreated      = "customer.created"
	EventCardUpdated          = "customer.card_updated"
)

// BillingEvent 本地订阅状态变化后发出的通知
type BillingEvent struct {
	Type           string     `json:"type"`
	UserID         int64      `json:"user_id"`
	SubscriptionID int64      `json:"subscription_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Plan           string     `json:"plan,omitempty"`
	Quantity       int        `json:"quantity,omitempty"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Channel() string {
	return p.channel
}

// Publish 发布计费事件
func (p *Publisher) Publish(ctx context.Context, event *BillingEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal billing event: %w", err)
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client  *redis.Client
	channel string
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client, channel string) *Subscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Subscriber{client: client, channel: channel}
}

// Subscribe 阻塞消费计费事件，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*BillingEvent)) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event BillingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
