package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type InstallmentRepository struct {
	db *gorm.DB
}

func NewInstallmentRepository(db *gorm.DB) *InstallmentRepository {
	return &InstallmentRepository{db: db}
}

// CreateBatch 批量创建分期
func (r *InstallmentRepository) CreateBatch(ctx context.Context, installments []*model.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&installments).Error
}

// GetByID 根据 ID 获取分期
func (r *InstallmentRepository) GetByID(ctx context.Context, id int64) (*model.Installment, error) {
	var installment model.Installment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&installment).Error
	if err != nil {
		return nil, err
	}
	return &installment, nil
}

// GetByIDs 批量获取分期，不存在的 ID 不会出现在结果中
func (r *InstallmentRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Installment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var installments []*model.Installment
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("due_date ASC, id ASC").
		Find(&installments).Error
	return installments, err
}

// ListByPlanID 按期数获取计划下的分期
func (r *InstallmentRepository) ListByPlanID(ctx context.Context, planID int64) ([]*model.Installment, error) {
	var installments []*model.Installment
	err := r.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("installment_number ASC").
		Find(&installments).Error
	return installments, err
}

// ListIDsByPlanID 获取计划下全部分期 ID
func (r *InstallmentRepository) ListIDsByPlanID(ctx context.Context, planID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("plan_id = ?", planID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// ListDuePending 获取到期（due_date <= now）仍待支付的分期，按到期日升序
func (r *InstallmentRepository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]*model.Installment, error) {
	var installments []*model.Installment
	query := r.db.WithContext(ctx).
		Where("status = ? AND due_date <= ?", model.InstallmentStatusPending, now).
		Order("due_date ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&installments).Error
	return installments, err
}

// ListByDueRange 按到期日区间和状态查询分期
func (r *InstallmentRepository) ListByDueRange(ctx context.Context, from, to time.Time, status string) ([]*model.Installment, error) {
	var installments []*model.Installment
	query := r.db.WithContext(ctx).Where("due_date >= ? AND due_date < ?", from, to)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("due_date ASC, id ASC").Find(&installments).Error
	return installments, err
}

// CountUnpaidByPlan 计划下未支付的分期数
func (r *InstallmentRepository) CountUnpaidByPlan(ctx context.Context, planID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("plan_id = ? AND status <> ?", planID, model.InstallmentStatusPaid).
		Count(&count).Error
	return count, err
}

// LatestPaidAt 计划下最后一次支付时间
func (r *InstallmentRepository) LatestPaidAt(ctx context.Context, planID int64) (*time.Time, error) {
	var installment model.Installment
	err := r.db.WithContext(ctx).
		Where("plan_id = ? AND paid_at IS NOT NULL", planID).
		Order("paid_at DESC").
		First(&installment).Error
	if err != nil {
		return nil, err
	}
	return installment.PaidAt, nil
}

// Settlement 一次结算写入的字段
type Settlement struct {
	PaidAt   time.Time
	ChargeID string
	// 为 0 时按分期金额记账
	AmountPaid int64
}

// MarkPaid 把尚未支付的分期标记为已支付，返回实际发生变化的分期数。
// 已支付的分期保持原 paid_at 和扣款 ID，重复结算是空操作。
func (r *InstallmentRepository) MarkPaid(ctx context.Context, ids []int64, s Settlement) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	updates := map[string]interface{}{
		"status":            model.InstallmentStatusPaid,
		"paid_at":           s.PaidAt,
		"last_charge_error": "",
	}
	if s.ChargeID != "" {
		updates["processor_charge_id"] = s.ChargeID
	}
	if s.AmountPaid > 0 {
		updates["amount_paid"] = s.AmountPaid
	} else {
		updates["amount_paid"] = gorm.Expr("amount")
	}

	result := r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("id IN ? AND status <> ?", ids, model.InstallmentStatusPaid).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// RecordAttempt 记录一次扣款尝试，分期保持待支付
func (r *InstallmentRepository) RecordAttempt(ctx context.Context, id int64, at time.Time, chargeErr string) error {
	return r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("id = ? AND status <> ?", id, model.InstallmentStatusPaid).
		Updates(map[string]interface{}{
			"charge_attempts":   gorm.Expr("charge_attempts + 1"),
			"last_attempt_at":   at,
			"last_charge_error": chargeErr,
			"status":            model.InstallmentStatusPending,
		}).Error
}

// MarkFailed 标记分期扣款失败（可通过 Reopen 重新进入待支付）
func (r *InstallmentRepository) MarkFailed(ctx context.Context, id int64, reason string) error {
	return r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("id = ? AND status = ?", id, model.InstallmentStatusPending).
		Updates(map[string]interface{}{
			"status":            model.InstallmentStatusFailed,
			"last_charge_error": reason,
		}).Error
}

// Reopen 人工撤销已支付的分期：恢复为待支付，并推进扣款代次使下一次扣款换用新的幂等键
func (r *InstallmentRepository) Reopen(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":              model.InstallmentStatusPending,
			"paid_at":             nil,
			"processor_charge_id": "",
			"amount_paid":         0,
			"charge_generation":   gorm.Expr("charge_generation + 1"),
		}).Error
}

// IncrementRemindersSent 提醒发送后累加分期的提醒次数
func (r *InstallmentRepository) IncrementRemindersSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&model.Installment{}).
		Where("id IN ?", ids).
		Update("reminders_sent", gorm.Expr("reminders_sent + 1")).Error
}

// DeleteByPlanID 删除计划下的全部分期
func (r *InstallmentRepository) DeleteByPlanID(ctx context.Context, planID int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("plan_id = ?", planID).Delete(&model.Installment{})
	return result.RowsAffected, result.Error
}
