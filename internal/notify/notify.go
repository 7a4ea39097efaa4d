// Package notify 把催缴提醒投递给家长
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/qs3c/installment_billing/internal/pkg/email"
	"github.com/qs3c/installment_billing/internal/pkg/queue"
)

// 投递渠道
const (
	ChannelEmail = "email"
	ChannelQueue = "queue"
)

var ErrNoRecipient = errors.New("家长没有可用的联系邮箱")

// Message 一条待发送的提醒
type Message struct {
	ParentID   int64
	ScheduleID int64
	To         string
	Subject    string
	Body       string
	Metadata   map[string]string
}

// Sender 消息发送能力，调用方只关心成功或失败
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// EmailSender 通过 SMTP 直接发送
type EmailSender struct {
	mail *email.Service
}

func NewEmailSender(mail *email.Service) *EmailSender {
	return &EmailSender{mail: mail}
}

func (s *EmailSender) Send(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mail.SendHTML(msg.To, msg.Subject, msg.Body)
}

// QueueSender 写入 Redis 队列，由 worker 进程异步发送
type QueueSender struct {
	q *queue.Queue
}

func NewQueueSender(q *queue.Queue) *QueueSender {
	return &QueueSender{q: q}
}

func (s *QueueSender) Send(ctx context.Context, msg *Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	return s.q.Push(ctx, &queue.ReminderMessage{
		ScheduleID: msg.ScheduleID,
		ParentID:   msg.ParentID,
		To:         msg.To,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Channel:    ChannelEmail,
		Metadata:   msg.Metadata,
	})
}

// NewSender 根据配置的渠道选择实现
func NewSender(channel string, mail *email.Service, q *queue.Queue) (Sender, error) {
	switch channel {
	case "", ChannelEmail:
		return NewEmailSender(mail), nil
	case ChannelQueue:
		if q == nil {
			return nil, fmt.Errorf("notify: queue channel requires redis")
		}
		return NewQueueSender(q), nil
	default:
		return nil, fmt.Errorf("notify: unknown channel %q", channel)
	}
}
