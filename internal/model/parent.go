package model

import (
	"time"
)

// Parent 付款人（家长）账户
type Parent struct {
	ID                     int64     `gorm:"primaryKey" json:"id"`
	Name                   string    `gorm:"size:100;not null" json:"name"`
	Email                  string    `gorm:"size:100;index" json:"email"`
	Phone                  string    `gorm:"size:30" json:"phone,omitempty"`
	ProcessorCustomerID    string    `gorm:"size:100" json:"processor_customer_id,omitempty"`
	DefaultPaymentMethodID string    `gorm:"size:100" json:"default_payment_method_id,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (Parent) TableName() string {
	return "parents"
}

// CanChargeOffSession 是否已保存可用于离线扣款的客户与支付方式
func (p *Parent) CanChargeOffSession() bool {
	return p.ProcessorCustomerID != "" && p.DefaultPaymentMethodID != ""
}
