package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/repository"
)

// 提醒计划停用原因
const (
	StopReasonPayment      = "payment_received"
	StopReasonReply        = "reply_received"
	StopReasonMaxReminders = "max_reminders"
	StopReasonDangling     = "installments_missing"
	StopReasonDeleted      = "installments_deleted"
)

// settleResult 一次结算的结果
type settleResult struct {
	Installments        []*model.Installment
	Changed             int64
	CompletedPlans      []int64
	DeactivatedSchedule []int64
}

// settleInstallments 把分期标记为已支付，汇总计划与主付款记录，并停用引用这些分期的提醒计划。
// 必须在事务内调用；每一步都可重复执行，重放时不产生变化。
func settleInstallments(ctx context.Context, tx *repository.Store, ids []int64, s repository.Settlement) (*settleResult, error) {
	changed, err := tx.Installments.MarkPaid(ctx, ids, s)
	if err != nil {
		return nil, fmt.Errorf("mark installments paid: %w", err)
	}

	installments, err := tx.Installments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload installments: %w", err)
	}

	result := &settleResult{Installments: installments, Changed: changed}

	plans := make(map[int64]int64) // plan -> primary payment
	parentSet := make(map[int64]bool)
	var parentIDs []int64
	for _, inst := range installments {
		plans[inst.PlanID] = inst.PaymentID
		if !parentSet[inst.ParentID] {
			parentSet[inst.ParentID] = true
			parentIDs = append(parentIDs, inst.ParentID)
		}
	}

	for planID, paymentID := range plans {
		completed, err := rollUpPlan(ctx, tx, planID, paymentID)
		if err != nil {
			return nil, err
		}
		if completed {
			result.CompletedPlans = append(result.CompletedPlans, planID)
		}
	}

	schedules, err := tx.Schedules.ListByParentIDs(ctx, parentIDs, true)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	for _, sched := range schedules {
		if !sched.StopOnPayment || !sched.InstallmentIDs.Overlaps(ids) {
			continue
		}
		stopped, err := tx.Schedules.Deactivate(ctx, sched.ID, StopReasonPayment)
		if err != nil {
			return nil, fmt.Errorf("deactivate schedule %d: %w", sched.ID, err)
		}
		if stopped {
			log.Printf("Reminder schedule %d deactivated: payment received", sched.ID)
			result.DeactivatedSchedule = append(result.DeactivatedSchedule, sched.ID)
		}
	}

	return result, nil
}

// rollUpPlan 计划下全部分期已支付时，主付款记录转为已支付、计划转为已完成
func rollUpPlan(ctx context.Context, tx *repository.Store, planID, paymentID int64) (bool, error) {
	unpaid, err := tx.Installments.CountUnpaidByPlan(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("count unpaid installments: %w", err)
	}
	if unpaid > 0 {
		return false, nil
	}

	paidAt, err := tx.Installments.LatestPaidAt(ctx, planID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("latest paid_at: %w", err)
	}
	if paidAt != nil {
		if _, err := tx.Payments.MarkPaid(ctx, paymentID, *paidAt); err != nil {
			return false, fmt.Errorf("mark payment paid: %w", err)
		}
	}

	plan, err := tx.Plans.GetByID(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get plan: %w", err)
	}
	if plan.Status != model.PlanStatusActive {
		return false, nil
	}
	if err := tx.Plans.UpdateStatus(ctx, planID, model.PlanStatusCompleted); err != nil {
		return false, fmt.Errorf("complete plan: %w", err)
	}
	log.Printf("Payment plan %d completed", planID)
	return true, nil
}
