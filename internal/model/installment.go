package model

import (
	"time"
)

// 分期状态
const (
	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
	InstallmentStatusFailed  = "failed"
)

// Installment 计划中的一期扣款
type Installment struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	PaymentID         int64      `gorm:"not null;index" json:"payment_id"`
	ParentID          int64      `gorm:"not null;index" json:"parent_id"`
	PlanID            int64      `gorm:"not null;index;uniqueIndex:ux_installments_plan_number,priority:1" json:"plan_id"`
	InstallmentNumber int        `gorm:"not null;uniqueIndex:ux_installments_plan_number,priority:2" json:"installment_number"`
	TotalInstallments int        `gorm:"not null" json:"total_installments"`
	Amount            int64      `gorm:"not null" json:"amount"`
	AmountPaid        int64      `gorm:"default:0" json:"amount_paid"`
	DueDate           time.Time  `gorm:"not null;index" json:"due_date"`
	Status            string     `gorm:"size:20;default:pending;index" json:"status"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ProcessorChargeID string     `gorm:"size:100" json:"processor_charge_id,omitempty"`
	RemindersSent     int        `gorm:"default:0" json:"reminders_sent"`
	ChargeAttempts    int        `gorm:"default:0" json:"charge_attempts"`
	LastChargeError   string     `gorm:"type:text" json:"last_charge_error,omitempty"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	ChargeGeneration  int        `gorm:"default:0" json:"charge_generation"` // 每次人工撤销支付后加一
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (Installment) TableName() string {
	return "installments"
}

// IsPaid 是否已支付
func (i *Installment) IsPaid() bool {
	return i.Status == InstallmentStatusPaid
}
