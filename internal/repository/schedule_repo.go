package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create 创建提醒计划
func (r *ScheduleRepository) Create(ctx context.Context, schedule *model.RecurringReminderSchedule) error {
	return r.db.WithContext(ctx).Create(schedule).Error
}

// GetByID 根据 ID 获取提醒计划
func (r *ScheduleRepository) GetByID(ctx context.Context, id int64) (*model.RecurringReminderSchedule, error) {
	var schedule model.RecurringReminderSchedule
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// ListDue 获取到期的有效提醒计划，按 next_send_at 升序
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.RecurringReminderSchedule, error) {
	var schedules []*model.RecurringReminderSchedule
	query := r.db.WithContext(ctx).
		Where("active = ? AND next_send_at <= ?", true, now).
		Order("next_send_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&schedules).Error
	return schedules, err
}

// ListByParentIDs 获取家长的提醒计划，activeOnly 为 true 时只返回有效计划
func (r *ScheduleRepository) ListByParentIDs(ctx context.Context, parentIDs []int64, activeOnly bool) ([]*model.RecurringReminderSchedule, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	var schedules []*model.RecurringReminderSchedule
	query := r.db.WithContext(ctx).Where("parent_id IN ?", parentIDs)
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	err := query.Order("id ASC").Find(&schedules).Error
	return schedules, err
}

// ListByParent 分页获取家长的提醒计划
func (r *ScheduleRepository) ListByParent(ctx context.Context, parentID int64, page, pageSize int) ([]*model.RecurringReminderSchedule, int64, error) {
	var schedules []*model.RecurringReminderSchedule
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RecurringReminderSchedule{}).
		Where("parent_id = ?", parentID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&schedules).Error
	if err != nil {
		return nil, 0, err
	}

	return schedules, total, nil
}

// Deactivate 停用提醒计划，已停用的计划不再变化，返回是否发生变化
func (r *ScheduleRepository) Deactivate(ctx context.Context, id int64, reason string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.RecurringReminderSchedule{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":         false,
			"stopped_reason": reason,
		})
	return result.RowsAffected > 0, result.Error
}

// RecordSend 发送尝试完成后推进提醒节奏
func (r *ScheduleRepository) RecordSend(ctx context.Context, id int64, sentAt, nextSendAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.RecurringReminderSchedule{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"sent_count":   gorm.Expr("sent_count + 1"),
			"last_sent_at": sentAt,
			"next_send_at": nextSendAt,
		}).Error
}

// UpdateLink 缓存最近一次生成的付款链接
func (r *ScheduleRepository) UpdateLink(ctx context.Context, id int64, url, linkID string) error {
	return r.db.WithContext(ctx).Model(&model.RecurringReminderSchedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_link_url": url,
			"payment_link_id":  linkID,
		}).Error
}

// UpdateReferences 替换计划引用的分期集合与合计金额
func (r *ScheduleRepository) UpdateReferences(ctx context.Context, id int64, ids model.Int64Array, combinedTotal int64) error {
	return r.db.WithContext(ctx).Model(&model.RecurringReminderSchedule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"installment_ids": ids,
			"combined_total":  combinedTotal,
		}).Error
}
