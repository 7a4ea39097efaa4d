package model

import (
	"time"
)

// 提醒频率单位
const (
	FrequencyDays  = "days"
	FrequencyWeeks = "weeks"
)

// 提醒发送结果
const (
	ReminderLogSent   = "sent"
	ReminderLogFailed = "failed"
)

// RecurringReminderSchedule 周期性催缴提醒计划
type RecurringReminderSchedule struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	ParentID       int64      `gorm:"not null;index" json:"parent_id"`
	InstallmentIDs Int64Array `gorm:"type:json" json:"installment_ids"`
	CombinedTotal  int64      `gorm:"not null" json:"combined_total"`
	FrequencyValue int        `gorm:"not null" json:"frequency_value"`
	FrequencyUnit  string     `gorm:"size:10;not null" json:"frequency_unit"` // days, weeks
	StopOnPayment  bool       `json:"stop_on_payment"`
	StopOnReply    bool       `json:"stop_on_reply"`
	MaxReminders   int        `gorm:"not null" json:"max_reminders"`
	SentCount      int        `gorm:"default:0" json:"sent_count"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	NextSendAt     time.Time  `gorm:"not null;index" json:"next_send_at"`
	Active         bool       `gorm:"index" json:"active"`
	StoppedReason  string     `gorm:"size:30" json:"stopped_reason,omitempty"`
	PaymentLinkURL string     `gorm:"size:500" json:"payment_link_url,omitempty"`
	PaymentLinkID  string     `gorm:"size:100" json:"payment_link_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (RecurringReminderSchedule) TableName() string {
	return "recurring_reminder_schedules"
}

// RecurringReminderLog 每次发送尝试的追加式日志，写入后不再修改
type RecurringReminderLog struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	ScheduleID     int64      `gorm:"not null;index" json:"schedule_id"`
	ParentID       int64      `gorm:"not null;index" json:"parent_id"`
	InstallmentIDs Int64Array `gorm:"type:json" json:"installment_ids"`
	Amount         int64      `json:"amount"`
	SentAt         time.Time  `gorm:"not null;index" json:"sent_at"`
	Outcome        string     `gorm:"size:20;not null" json:"outcome"`
	ErrorDetail    string     `gorm:"type:text" json:"error_detail,omitempty"`
	LinkURL        string     `gorm:"size:500" json:"link_url,omitempty"`
}

func (RecurringReminderLog) TableName() string {
	return "recurring_reminder_logs"
}
