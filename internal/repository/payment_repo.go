package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create 创建付款记录
func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// GetByID 根据 ID 获取付款记录
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaid 标记为已支付，已支付的记录保持原 paid_at 不变
func (r *PaymentRepository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status <> ?", id, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":  model.PaymentStatusPaid,
			"paid_at": paidAt,
		})
	return result.RowsAffected > 0, result.Error
}

// Reopen 人工撤销支付后把记录恢复为待支付
func (r *PaymentRepository) Reopen(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", id, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":  model.PaymentStatusPending,
			"paid_at": nil,
		}).Error
}

// MarkOverdue 把存在逾期未付分期的待支付记录标记为逾期
func (r *PaymentRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	overdue := r.db.Model(&model.Installment{}).
		Select("payment_id").
		Where("status = ? AND due_date < ?", model.InstallmentStatusPending, now)

	result := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("status = ? AND id IN (?)", model.PaymentStatusPending, overdue).
		Update("status", model.PaymentStatusOverdue)
	return result.RowsAffected, result.Error
}

// DeleteByPlanID 删除计划下的付款记录
func (r *PaymentRepository) DeleteByPlanID(ctx context.Context, planID int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("plan_id = ?", planID).Delete(&model.Payment{})
	return result.RowsAffected, result.Error
}
