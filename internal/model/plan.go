package model

import (
	"time"
)

// 付款计划状态
const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusCancelled = "cancelled"
)

// PaymentPlan 分期付款计划
type PaymentPlan struct {
	ID                int64         `gorm:"primaryKey" json:"id"`
	ParentID          int64         `gorm:"not null;index" json:"parent_id"`
	TotalAmount       int64         `gorm:"not null" json:"total_amount"`
	InstallmentAmount int64         `gorm:"not null" json:"installment_amount"`
	InstallmentCount  int           `gorm:"not null" json:"installment_count"`
	StartDate         time.Time     `gorm:"not null" json:"start_date"`
	IntervalUnit      string        `gorm:"size:10;not null;default:month" json:"interval_unit"` // day, week, month
	IntervalCount     int           `gorm:"not null;default:1" json:"interval_count"`
	PaymentMethod     PaymentMethod `gorm:"size:20;not null;default:card" json:"payment_method"`
	Status            string        `gorm:"size:20;default:active;index" json:"status"`
	Notes             string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`

	// 关联
	Installments []*Installment `gorm:"foreignKey:PlanID" json:"installments,omitempty"`
}

func (PaymentPlan) TableName() string {
	return "payment_plans"
}
