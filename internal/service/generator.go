package service

import (
	"errors"
	"time"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/cadence"
)

var (
	ErrInvalidAmount           = errors.New("金额必须大于 0")
	ErrInvalidInstallmentCount = errors.New("分期数必须大于 0")
	ErrInstallmentAmountTooBig = errors.New("每期金额过大，最后一期金额不足")
	ErrInvalidStartDate        = errors.New("开始日期无效")
)

// PlanDefinition 生成分期所需的计划参数
type PlanDefinition struct {
	TotalAmount       int64
	InstallmentAmount int64 // 为 0 时取 TotalAmount / InstallmentCount 向下取整
	InstallmentCount  int
	StartDate         time.Time
	Period            cadence.Period
}

// GenerateInstallments 按计划生成有序分期。
// 第 i 期（从 0 开始）到期日为 StartDate 加 i 个周期，除不尽的余数计入最后一期，合计恒等于总额。
// 返回的分期尚未关联计划、付款记录和家长。
func GenerateInstallments(def PlanDefinition) ([]*model.Installment, error) {
	if def.TotalAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if def.InstallmentCount < 1 {
		return nil, ErrInvalidInstallmentCount
	}
	if def.StartDate.IsZero() {
		return nil, ErrInvalidStartDate
	}
	if def.InstallmentAmount < 0 {
		return nil, ErrInvalidAmount
	}

	period := def.Period
	if period.Count == 0 {
		period = cadence.Monthly()
	}

	count := def.InstallmentCount
	amount := def.InstallmentAmount
	if count == 1 {
		amount = def.TotalAmount
	}
	if amount == 0 {
		amount = def.TotalAmount / int64(count)
		if amount == 0 {
			return nil, ErrInvalidAmount
		}
	}

	last := def.TotalAmount - amount*int64(count-1)
	if last <= 0 {
		return nil, ErrInstallmentAmountTooBig
	}

	installments := make([]*model.Installment, 0, count)
	for i := 0; i < count; i++ {
		a := amount
		if i == count-1 {
			a = last
		}
		installments = append(installments, &model.Installment{
			InstallmentNumber: i + 1,
			TotalInstallments: count,
			Amount:            a,
			DueDate:           period.Nth(def.StartDate, i),
			Status:            model.InstallmentStatusPending,
		})
	}
	return installments, nil
}
