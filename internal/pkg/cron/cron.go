// Package cron 驱动周期任务：每日逾期扣款扫描与按分钟间隔的提醒发送
package cron

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/qs3c/installment_billing/internal/service"
)

// ChargeRunner 逾期分期批量扣款
type ChargeRunner interface {
	ChargeOverdue(ctx context.Context) (*service.BatchResult, error)
}

// OverdueMarker 标记逾期付款记录
type OverdueMarker interface {
	MarkOverduePayments(ctx context.Context) (int64, error)
}

// ReminderRunner 处理到期提醒
type ReminderRunner interface {
	RunDue(ctx context.Context) (*service.RunResult, error)
}

type Service struct {
	charges          ChargeRunner
	overdue          OverdueMarker
	reminders        ReminderRunner
	scanHour         int
	reminderInterval time.Duration
	stopChan         chan struct{}
	stopOnce         sync.Once
	wg               sync.WaitGroup
	now              func() time.Time
}

// NewService scanHour 为每日扣款扫描的 UTC 小时，reminderMinutes 为提醒轮询间隔
func NewService(charges ChargeRunner, overdue OverdueMarker, reminders ReminderRunner, scanHour, reminderMinutes int) *Service {
	if scanHour < 0 || scanHour > 23 {
		scanHour = 0
	}
	if reminderMinutes <= 0 {
		reminderMinutes = 60
	}
	return &Service{
		charges:          charges,
		overdue:          overdue,
		reminders:        reminders,
		scanHour:         scanHour,
		reminderInterval: time.Duration(reminderMinutes) * time.Minute,
		stopChan:         make(chan struct{}),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	s.wg.Add(2)
	go s.runDailyChargeScan()
	go s.runReminderLoop()
	log.Printf("Cron service started (charge scan at %02d:00 UTC, reminders every %s)", s.scanHour, s.reminderInterval)
}

// Stop 停止定时任务并等待进行中的一轮结束
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	log.Println("Cron service stopped")
}

// nextScanAt 下一次扣款扫描时间，恰好在整点时推到次日
func nextScanAt(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runDailyChargeScan 每日扣款扫描任务
func (s *Service) runDailyChargeScan() {
	defer s.wg.Done()

	timer := time.NewTimer(nextScanAt(s.now(), s.scanHour).Sub(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-timer.C:
			ctx, cancel := s.runContext()
			if err := s.RunChargeScan(ctx); err != nil {
				log.Printf("Charge scan failed: %v", err)
			}
			cancel()
			timer.Reset(nextScanAt(s.now(), s.scanHour).Sub(s.now()))
		}
	}
}

// runReminderLoop 按固定间隔处理到期提醒
func (s *Service) runReminderLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := s.runContext()
			if err := s.RunReminders(ctx); err != nil {
				log.Printf("Reminder run failed: %v", err)
			}
			cancel()
		}
	}
}

// runContext 在 Stop 时取消的上下文
func (s *Service) runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// RunChargeScan 先标记逾期付款记录，再对到期分期批量扣款
func (s *Service) RunChargeScan(ctx context.Context) error {
	log.Println("Starting overdue charge scan...")

	if s.overdue != nil {
		n, err := s.overdue.MarkOverduePayments(ctx)
		if err != nil {
			log.Printf("Failed to mark overdue payments: %v", err)
		} else if n > 0 {
			log.Printf("Marked %d payments overdue", n)
		}
	}

	if s.charges == nil {
		return nil
	}
	result, err := s.charges.ChargeOverdue(ctx)
	if err != nil {
		return err
	}
	log.Printf("Overdue charge scan completed: attempted=%d succeeded=%d skipped=%d failed=%d",
		result.Attempted, result.Succeeded, result.Skipped, result.Failed)
	return nil
}

// RunReminders 处理一轮到期提醒
func (s *Service) RunReminders(ctx context.Context) error {
	if s.reminders == nil {
		return nil
	}
	result, err := s.reminders.RunDue(ctx)
	if err != nil {
		return err
	}
	if result.Processed > 0 {
		log.Printf("Reminder run completed: processed=%d sent=%d failed=%d stopped=%d",
			result.Processed, result.Sent, result.Failed, result.Stopped)
	}
	return nil
}

// RunNow 立即执行一轮扣款扫描和提醒（用于测试或手动触发）
func (s *Service) RunNow(ctx context.Context) error {
	log.Println("Manual billing run triggered...")
	return errors.Join(s.RunChargeScan(ctx), s.RunReminders(ctx))
}
