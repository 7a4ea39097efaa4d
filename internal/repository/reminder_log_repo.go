package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

// ReminderLogRepository 只追加的提醒发送日志
type ReminderLogRepository struct {
	db *gorm.DB
}

func NewReminderLogRepository(db *gorm.DB) *ReminderLogRepository {
	return &ReminderLogRepository{db: db}
}

// Append 追加一条发送日志
func (r *ReminderLogRepository) Append(ctx context.Context, entry *model.RecurringReminderLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListBySchedule 按时间顺序获取计划的发送日志
func (r *ReminderLogRepository) ListBySchedule(ctx context.Context, scheduleID int64) ([]*model.RecurringReminderLog, error) {
	var logs []*model.RecurringReminderLog
	err := r.db.WithContext(ctx).
		Where("schedule_id = ?", scheduleID).
		Order("sent_at ASC, id ASC").
		Find(&logs).Error
	return logs, err
}
