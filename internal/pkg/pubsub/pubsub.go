package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBillingEvents = "billing_events"
)

// 账单事件类型
const (
	EventInstallmentPaid   = "installment_paid"
	EventChargeDeclined    = "charge_declined"
	EventReminderSent      = "reminder_sent"
	EventScheduleStopped   = "schedule_stopped"
	EventInstallmentUnpaid = "installment_unpaid"
)

// BillingEvent 账单状态变化通知
type BillingEvent struct {
	Type           string    `json:"type"`
	ParentID       int64     `json:"parent_id"`
	PaymentID      int64     `json:"payment_id,omitempty"`
	InstallmentIDs []int64   `json:"installment_ids,omitempty"`
	ScheduleID     int64     `json:"schedule_id,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	ChargeID       string    `json:"charge_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish 发布账单事件
func (p *Publisher) Publish(ctx context.Context, event *BillingEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal billing event: %w", err)
	}

	return p.client.Publish(ctx, ChannelBillingEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅账单事件，直到 ctx 取消
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*BillingEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelBillingEvents)
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
