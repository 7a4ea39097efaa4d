package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create 创建付款计划（不含分期）
func (r *PlanRepository) Create(ctx context.Context, plan *model.PaymentPlan) error {
	return r.db.WithContext(ctx).Omit("Installments").Create(plan).Error
}

// GetByID 根据 ID 获取计划
func (r *PlanRepository) GetByID(ctx context.Context, id int64) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetWithInstallments 获取计划及按期数排序的分期
func (r *PlanRepository) GetWithInstallments(ctx context.Context, id int64) (*model.PaymentPlan, error) {
	var plan model.PaymentPlan
	err := r.db.WithContext(ctx).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("installment_number ASC")
		}).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdateStatus 更新计划状态
func (r *PlanRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.db.WithContext(ctx).Model(&model.PaymentPlan{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete 删除计划
func (r *PlanRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result := r.db.WithContext(ctx).Delete(&model.PaymentPlan{}, id)
	return result.RowsAffected, result.Error
}
