package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

type ParentRepository struct {
	db *gorm.DB
}

func NewParentRepository(db *gorm.DB) *ParentRepository {
	return &ParentRepository{db: db}
}

// Create 创建家长
func (r *ParentRepository) Create(ctx context.Context, parent *model.Parent) error {
	return r.db.WithContext(ctx).Create(parent).Error
}

// GetByID 根据 ID 获取家长
func (r *ParentRepository) GetByID(ctx context.Context, id int64) (*model.Parent, error) {
	var parent model.Parent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&parent).Error
	if err != nil {
		return nil, err
	}
	return &parent, nil
}

// SetProcessorCustomer 保存支付处理方的客户 ID
func (r *ParentRepository) SetProcessorCustomer(ctx context.Context, id int64, customerID string) error {
	return r.db.WithContext(ctx).Model(&model.Parent{}).
		Where("id = ?", id).
		Update("processor_customer_id", customerID).Error
}

// ClearProcessorCustomer 处理方报告客户无效时清空客户与默认支付方式
func (r *ParentRepository) ClearProcessorCustomer(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&model.Parent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processor_customer_id":     "",
			"default_payment_method_id": "",
		}).Error
}
