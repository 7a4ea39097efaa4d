package dto

// CreateScheduleRequest 创建周期提醒计划
type CreateScheduleRequest struct {
	ParentID       int64   `json:"parent_id" binding:"required,gt=0"`
	InstallmentIDs []int64 `json:"installment_ids" binding:"required,min=1,dive,gt=0"`
	CombinedTotal  int64   `json:"combined_total,omitempty" binding:"omitempty,gt=0"`
	FrequencyValue int     `json:"frequency_value" binding:"required,min=1,max=52"`
	FrequencyUnit  string  `json:"frequency_unit" binding:"required"`
	StopOnPayment  *bool   `json:"stop_on_payment,omitempty"`
	StopOnReply    *bool   `json:"stop_on_reply,omitempty"`
	MaxReminders   int     `json:"max_reminders,omitempty" binding:"omitempty,min=1,max=100"`
}

// ReplyReceivedRequest 收到家长回复
type ReplyReceivedRequest struct {
	ParentID int64 `json:"parent_id" binding:"required,gt=0"`
}

// ReplyReceivedResponse 因回复而停用的计划
type ReplyReceivedResponse struct {
	ParentID    int64   `json:"parent_id"`
	Deactivated []int64 `json:"deactivated"`
}

// ListSchedulesQuery 分页查询家长的提醒计划
type ListSchedulesQuery struct {
	ParentID int64 `form:"parent_id" binding:"required,gt=0"`
	Page     int   `form:"page" binding:"omitempty,min=1"`
	PageSize int   `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// CreatePaymentLinkRequest 为若干分期生成合并付款链接
type CreatePaymentLinkRequest struct {
	ParentID       int64   `json:"parent_id" binding:"required,gt=0"`
	InstallmentIDs []int64 `json:"installment_ids" binding:"required,min=1,dive,gt=0"`
}

// PaymentLinkResponse 付款链接
type PaymentLinkResponse struct {
	URL            string  `json:"url"`
	LinkID         string  `json:"link_id"`
	Total          int64   `json:"total"`
	InstallmentIDs []int64 `json:"installment_ids"`
	Skipped        []int64 `json:"skipped,omitempty"`
}
