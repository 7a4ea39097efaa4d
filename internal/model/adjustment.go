package model

import (
	"time"
)

// 人工调整动作
const (
	AdjustmentUnmarkPaid = "unmark_paid"
	AdjustmentMarkPaid   = "mark_paid"
)

// InstallmentAdjustment 工作人员对分期状态的人工调整审计记录
type InstallmentAdjustment struct {
	ID               int64      `gorm:"primaryKey" json:"id"`
	InstallmentID    int64      `gorm:"not null;index" json:"installment_id"`
	Action           string     `gorm:"size:20;not null" json:"action"`
	Actor            string     `gorm:"size:100;not null" json:"actor"`
	Reason           string     `gorm:"type:text;not null" json:"reason"`
	PreviousStatus   string     `gorm:"size:20" json:"previous_status"`
	PreviousPaidAt   *time.Time `json:"previous_paid_at,omitempty"`
	PreviousChargeID string     `gorm:"size:100" json:"previous_charge_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (InstallmentAdjustment) TableName() string {
	return "installment_adjustments"
}
