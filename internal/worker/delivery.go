// Package worker 消费 Redis 提醒队列，把排队的催缴提醒发送出去
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/queue"
)

// popTimeout 单次阻塞取消息的等待时间
const popTimeout = 5 * time.Second

// ErrDropped 超过重试次数后丢弃消息
var ErrDropped = errors.New("提醒消息超过重试次数已丢弃")

// Deliverer 提醒投递器。sender 必须是直接发送的实现，不能再写回队列。
type Deliverer struct {
	queue       *queue.Queue
	sender      notify.Sender
	maxAttempts int
}

func NewDeliverer(q *queue.Queue, sender notify.Sender, maxAttempts int) *Deliverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Deliverer{
		queue:       q,
		sender:      sender,
		maxAttempts: maxAttempts,
	}
}

// Deliver 发送一条消息。失败时计数加一并放回队尾，达到上限后丢弃并返回 ErrDropped。
func (d *Deliverer) Deliver(ctx context.Context, msg *queue.ReminderMessage) error {
	err := d.sender.Send(ctx, &notify.Message{
		ParentID:   msg.ParentID,
		ScheduleID: msg.ScheduleID,
		To:         msg.To,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Metadata:   msg.Metadata,
	})
	if err == nil {
		return nil
	}

	msg.Attempts++
	if errors.Is(err, notify.ErrNoRecipient) || msg.Attempts >= d.maxAttempts {
		log.Printf("Reminder for schedule %d dropped after %d attempts: %v", msg.ScheduleID, msg.Attempts, err)
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}

	if pushErr := d.queue.Push(ctx, msg); pushErr != nil {
		return fmt.Errorf("requeue reminder for schedule %d: %w", msg.ScheduleID, pushErr)
	}
	log.Printf("Reminder for schedule %d requeued (attempt %d): %v", msg.ScheduleID, msg.Attempts, err)
	return err
}

// Run 循环取消息并投递，直到 ctx 取消
func (d *Deliverer) Run(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", workerID)
			return
		default:
		}

		msg, err := d.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("Worker %d: failed to pop reminder: %v", workerID, err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		if err := d.Deliver(ctx, msg); err == nil {
			log.Printf("Worker %d: reminder for schedule %d delivered to parent %d", workerID, msg.ScheduleID, msg.ParentID)
		}
	}
}
