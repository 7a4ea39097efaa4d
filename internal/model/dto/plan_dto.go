package dto

import "github.com/qs3c/installment_billing/internal/model"

// CreatePlanRequest 创建分期付款计划请求，金额单位为分
type CreatePlanRequest struct {
	ParentID          int64  `json:"parent_id" binding:"required,gt=0"`
	TotalAmount       int64  `json:"total_amount" binding:"required,gt=0"`
	InstallmentAmount int64  `json:"installment_amount,omitempty" binding:"omitempty,gt=0"`
	InstallmentCount  int    `json:"installment_count" binding:"required,min=1,max=120"`
	StartDate         string `json:"start_date" binding:"required"` // 2006-01-02
	IntervalUnit      string `json:"interval_unit,omitempty" binding:"omitempty,max=10"`
	IntervalCount     int    `json:"interval_count,omitempty" binding:"omitempty,min=1,max=12"`
	PaymentMethod     string `json:"payment_method,omitempty" binding:"omitempty,max=30"`
	Notes             string `json:"notes,omitempty" binding:"omitempty,max=2000"`
}

// UnmarkInstallmentRequest 撤销分期已支付状态
type UnmarkInstallmentRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}

// MarkInstallmentPaidRequest 人工登记线下付款
type MarkInstallmentPaidRequest struct {
	Note string `json:"note,omitempty" binding:"omitempty,max=500"`
}

// DeletePlanResponse 删除计划结果
type DeletePlanResponse struct {
	PlanID              int64   `json:"plan_id"`
	DeletedInstallments int64   `json:"deleted_installments"`
	DeletedPayments     int64   `json:"deleted_payments"`
	PrunedSchedules     []int64 `json:"pruned_schedules,omitempty"`
}

// SchedulePreviewItem 生成器预览中的一期
type SchedulePreviewItem struct {
	InstallmentNumber int    `json:"installment_number"`
	DueDate           string `json:"due_date"`
	Amount            int64  `json:"amount"`
}

// NewSchedulePreview 把生成的分期转为预览条目
func NewSchedulePreview(installments []*model.Installment) []SchedulePreviewItem {
	items := make([]SchedulePreviewItem, 0, len(installments))
	for _, inst := range installments {
		items = append(items, SchedulePreviewItem{
			InstallmentNumber: inst.InstallmentNumber,
			DueDate:           inst.DueDate.Format("2006-01-02"),
			Amount:            inst.Amount,
		})
	}
	return items
}
