package model

import (
	"time"
)

// 付款记录状态
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
	PaymentStatusFailed  = "failed"
)

// Payment 一笔应付款（计划的主记录或一次性收费）
type Payment struct {
	ID            int64         `gorm:"primaryKey" json:"id"`
	ParentID      int64         `gorm:"not null;index" json:"parent_id"`
	PlanID        *int64        `gorm:"index" json:"plan_id,omitempty"`
	Amount        int64         `gorm:"not null" json:"amount"`
	DueDate       time.Time     `gorm:"not null;index" json:"due_date"`
	Status        string        `gorm:"size:20;default:pending;index" json:"status"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	PaymentMethod PaymentMethod `gorm:"size:20" json:"payment_method"`
	Notes         string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
