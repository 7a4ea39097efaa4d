package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
)

// Date 返回 UTC 零点
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TestParent 创建测试家长（默认已保存卡）
func TestParent(t *testing.T, db *gorm.DB, opts ...func(*model.Parent)) *model.Parent {
	t.Helper()

	n := time.Now().UnixNano()
	parent := &model.Parent{
		Name:                   fmt.Sprintf("Parent %d", n%10000),
		Email:                  fmt.Sprintf("parent_%d@example.com", n),
		ProcessorCustomerID:    fmt.Sprintf("cus_%d", n),
		DefaultPaymentMethodID: fmt.Sprintf("pm_%d", n),
	}

	for _, opt := range opts {
		opt(parent)
	}

	if err := db.Create(parent).Error; err != nil {
		t.Fatalf("Failed to create test parent: %v", err)
	}

	return parent
}

// WithoutPaymentMethod 未保存任何支付方式
func WithoutPaymentMethod() func(*model.Parent) {
	return func(p *model.Parent) {
		p.ProcessorCustomerID = ""
		p.DefaultPaymentMethodID = ""
	}
}

// WithPaymentMethod 指定处理方客户与支付方式
func WithPaymentMethod(customerID, paymentMethodID string) func(*model.Parent) {
	return func(p *model.Parent) {
		p.ProcessorCustomerID = customerID
		p.DefaultPaymentMethodID = paymentMethodID
	}
}

// WithParentEmail 设置邮箱
func WithParentEmail(email string) func(*model.Parent) {
	return func(p *model.Parent) {
		p.Email = email
	}
}

// PlanFixture 测试计划及其主付款记录和分期
type PlanFixture struct {
	Plan         *model.PaymentPlan
	Payment      *model.Payment
	Installments []*model.Installment
}

// PlanOptions 测试计划参数
type PlanOptions struct {
	Amounts       []int64
	StartDate     time.Time
	PaymentMethod model.PaymentMethod
}

// WithAmounts 指定每期金额（决定期数）
func WithAmounts(amounts ...int64) func(*PlanOptions) {
	return func(o *PlanOptions) {
		o.Amounts = amounts
	}
}

// WithStartDate 指定首期到期日（之后每期间隔 1 个月）
func WithStartDate(start time.Time) func(*PlanOptions) {
	return func(o *PlanOptions) {
		o.StartDate = start
	}
}

// WithPlanPaymentMethod 指定付款方式
func WithPlanPaymentMethod(method model.PaymentMethod) func(*PlanOptions) {
	return func(o *PlanOptions) {
		o.PaymentMethod = method
	}
}

// TestPlan 直接写库创建计划、主付款记录与分期，不经过生成器
func TestPlan(t *testing.T, db *gorm.DB, parentID int64, opts ...func(*PlanOptions)) *PlanFixture {
	t.Helper()

	o := &PlanOptions{
		Amounts:       []int64{5000, 5000, 5000},
		StartDate:     Date(2025, time.January, 15),
		PaymentMethod: model.PaymentMethodCard,
	}
	for _, opt := range opts {
		opt(o)
	}

	var total int64
	for _, a := range o.Amounts {
		total += a
	}

	plan := &model.PaymentPlan{
		ParentID:          parentID,
		TotalAmount:       total,
		InstallmentAmount: o.Amounts[0],
		InstallmentCount:  len(o.Amounts),
		StartDate:         o.StartDate,
		IntervalUnit:      "month",
		IntervalCount:     1,
		PaymentMethod:     o.PaymentMethod,
		Status:            model.PlanStatusActive,
	}
	if err := db.Omit("Installments").Create(plan).Error; err != nil {
		t.Fatalf("Failed to create test plan: %v", err)
	}

	payment := &model.Payment{
		ParentID:      parentID,
		PlanID:        &plan.ID,
		Amount:        total,
		DueDate:       o.StartDate,
		Status:        model.PaymentStatusPending,
		PaymentMethod: o.PaymentMethod,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("Failed to create test payment: %v", err)
	}

	installments := make([]*model.Installment, 0, len(o.Amounts))
	for i, amount := range o.Amounts {
		installments = append(installments, &model.Installment{
			PaymentID:         payment.ID,
			ParentID:          parentID,
			PlanID:            plan.ID,
			InstallmentNumber: i + 1,
			TotalInstallments: len(o.Amounts),
			Amount:            amount,
			DueDate:           o.StartDate.AddDate(0, i, 0),
			Status:            model.InstallmentStatusPending,
		})
	}
	if err := db.Create(&installments).Error; err != nil {
		t.Fatalf("Failed to create test installments: %v", err)
	}

	return &PlanFixture{Plan: plan, Payment: payment, Installments: installments}
}

// InstallmentIDs 返回全部分期 ID
func (f *PlanFixture) InstallmentIDs() []int64 {
	ids := make([]int64, 0, len(f.Installments))
	for _, inst := range f.Installments {
		ids = append(ids, inst.ID)
	}
	return ids
}

// TestSchedule 创建测试提醒计划（默认每周、最多 3 次）
func TestSchedule(t *testing.T, db *gorm.DB, parentID int64, installmentIDs []int64, opts ...func(*model.RecurringReminderSchedule)) *model.RecurringReminderSchedule {
	t.Helper()

	schedule := &model.RecurringReminderSchedule{
		ParentID:       parentID,
		InstallmentIDs: model.Int64Array(installmentIDs),
		CombinedTotal:  10000,
		FrequencyValue: 1,
		FrequencyUnit:  model.FrequencyWeeks,
		StopOnPayment:  true,
		StopOnReply:    true,
		MaxReminders:   3,
		NextSendAt:     Date(2025, time.February, 1),
		Active:         true,
	}

	for _, opt := range opts {
		opt(schedule)
	}

	if err := db.Create(schedule).Error; err != nil {
		t.Fatalf("Failed to create test schedule: %v", err)
	}

	return schedule
}

// WithNextSendAt 设置下次发送时间
func WithNextSendAt(at time.Time) func(*model.RecurringReminderSchedule) {
	return func(s *model.RecurringReminderSchedule) {
		s.NextSendAt = at
	}
}

// WithMaxReminders 设置最大提醒次数与已发送次数
func WithMaxReminders(limit, sent int) func(*model.RecurringReminderSchedule) {
	return func(s *model.RecurringReminderSchedule) {
		s.MaxReminders = limit
		s.SentCount = sent
	}
}

// WithStopFlags 设置停止条件
func WithStopFlags(onPayment, onReply bool) func(*model.RecurringReminderSchedule) {
	return func(s *model.RecurringReminderSchedule) {
		s.StopOnPayment = onPayment
		s.StopOnReply = onReply
	}
}

// Inactive 已停用的计划
func Inactive() func(*model.RecurringReminderSchedule) {
	return func(s *model.RecurringReminderSchedule) {
		s.Active = false
	}
}
