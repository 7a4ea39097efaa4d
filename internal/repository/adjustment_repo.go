package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type AdjustmentRepository struct {
	db *gorm.DB
}

func NewAdjustmentRepository(db *gorm.DB) *AdjustmentRepository {
	return &AdjustmentRepository{db: db}
}

// Create 写入人工调整审计
func (r *AdjustmentRepository) Create(ctx context.Context, adjustment *model.InstallmentAdjustment) error {
	return r.db.WithContext(ctx).Create(adjustment).Error
}

// ListByInstallment 获取分期的调整历史
func (r *AdjustmentRepository) ListByInstallment(ctx context.Context, installmentID int64) ([]*model.InstallmentAdjustment, error) {
	var adjustments []*model.InstallmentAdjustment
	err := r.db.WithContext(ctx).
		Where("installment_id = ?", installmentID).
		Order("created_at ASC, id ASC").
		Find(&adjustments).Error
	return adjustments, err
}
