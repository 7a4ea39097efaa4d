package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/pkg/cadence"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/repository"
)

var (
	ErrParentNotFound         = errors.New("家长不存在")
	ErrPlanNotFound           = errors.New("付款计划不存在")
	ErrInstallmentNotFound    = errors.New("分期不存在")
	ErrInstallmentNotPaid     = errors.New("分期尚未支付")
	ErrInstallmentAlreadyPaid = errors.New("分期已支付")
	ErrActorRequired          = errors.New("必须提供操作人")
	ErrReasonRequired         = errors.New("必须填写原因")
	ErrInvalidInterval        = errors.New("无效的分期周期")
)

const dateLayout = "2006-01-02"

type PlanService struct {
	store     *repository.Store
	publisher EventPublisher
	now       func() time.Time
}

func NewPlanService(store *repository.Store, publisher EventPublisher) *PlanService {
	return &PlanService{
		store:     store,
		publisher: publisher,
		now:       defaultNow,
	}
}

// planDefinition 校验请求并转换为生成器参数
func planDefinition(req *dto.CreatePlanRequest) (PlanDefinition, error) {
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.StartDate), time.UTC)
	if err != nil {
		return PlanDefinition{}, ErrInvalidStartDate
	}

	count := req.IntervalCount
	if count == 0 {
		count = 1
	}
	period, err := cadence.Parse(req.IntervalUnit, count)
	if err != nil {
		return PlanDefinition{}, ErrInvalidInterval
	}

	return PlanDefinition{
		TotalAmount:       req.TotalAmount,
		InstallmentAmount: req.InstallmentAmount,
		InstallmentCount:  req.InstallmentCount,
		StartDate:         start,
		Period:            period,
	}, nil
}

// Preview 只生成分期，不落库
func (s *PlanService) Preview(req *dto.CreatePlanRequest) ([]*model.Installment, error) {
	def, err := planDefinition(req)
	if err != nil {
		return nil, err
	}
	return GenerateInstallments(def)
}

// CreatePlan 创建计划，并在同一事务中写入主付款记录和全部分期
func (s *PlanService) CreatePlan(ctx context.Context, req *dto.CreatePlanRequest) (*model.PaymentPlan, error) {
	def, err := planDefinition(req)
	if err != nil {
		return nil, err
	}
	installments, err := GenerateInstallments(def)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Parents.GetByID(ctx, req.ParentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}

	method := model.PaymentMethodCard
	if req.PaymentMethod != "" {
		method = model.ParsePaymentMethod(req.PaymentMethod)
	}

	plan := &model.PaymentPlan{
		ParentID:          req.ParentID,
		TotalAmount:       def.TotalAmount,
		InstallmentAmount: installments[0].Amount,
		InstallmentCount:  def.InstallmentCount,
		StartDate:         def.StartDate,
		IntervalUnit:      string(def.Period.Unit),
		IntervalCount:     def.Period.Count,
		PaymentMethod:     method,
		Status:            model.PlanStatusActive,
		Notes:             req.Notes,
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Plans.Create(ctx, plan); err != nil {
			return fmt.Errorf("create plan: %w", err)
		}

		payment := &model.Payment{
			ParentID:      plan.ParentID,
			PlanID:        &plan.ID,
			Amount:        plan.TotalAmount,
			DueDate:       plan.StartDate,
			Status:        model.PaymentStatusPending,
			PaymentMethod: method,
			Notes:         plan.Notes,
		}
		if err := tx.Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		for _, inst := range installments {
			inst.PaymentID = payment.ID
			inst.ParentID = plan.ParentID
			inst.PlanID = plan.ID
		}
		if err := tx.Installments.CreateBatch(ctx, installments); err != nil {
			return fmt.Errorf("create installments: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	plan.Installments = installments
	log.Printf("Payment plan %d created for parent %d: %d installments, total %d",
		plan.ID, plan.ParentID, plan.InstallmentCount, plan.TotalAmount)
	return plan, nil
}

// GetPlan 获取计划及按期号排序的分期
func (s *PlanService) GetPlan(ctx context.Context, planID int64) (*model.PaymentPlan, error) {
	plan, err := s.store.Plans.GetWithInstallments(ctx, planID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// DeletePlan 级联删除计划、主付款记录和分期，并从提醒计划中移除被删除的分期引用
func (s *PlanService) DeletePlan(ctx context.Context, planID int64) (*dto.DeletePlanResponse, error) {
	resp := &dto.DeletePlanResponse{PlanID: planID}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		plan, err := tx.Plans.GetByID(ctx, planID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		installments, err := tx.Installments.ListByPlanID(ctx, planID)
		if err != nil {
			return err
		}
		amounts := make(map[int64]int64, len(installments))
		ids := make([]int64, 0, len(installments))
		for _, inst := range installments {
			amounts[inst.ID] = inst.Amount
			ids = append(ids, inst.ID)
		}

		if resp.DeletedInstallments, err = tx.Installments.DeleteByPlanID(ctx, planID); err != nil {
			return err
		}
		if resp.DeletedPayments, err = tx.Payments.DeleteByPlanID(ctx, planID); err != nil {
			return err
		}
		if _, err = tx.Plans.Delete(ctx, planID); err != nil {
			return err
		}

		resp.PrunedSchedules, err = pruneScheduleReferences(ctx, tx, plan.ParentID, ids, amounts)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Payment plan %d deleted: %d installments, %d payments, %d schedules pruned",
		planID, resp.DeletedInstallments, resp.DeletedPayments, len(resp.PrunedSchedules))
	return resp, nil
}

// pruneScheduleReferences 从家长的提醒计划中移除已删除的分期，引用全部被移除的计划随之停用
func pruneScheduleReferences(ctx context.Context, tx *repository.Store, parentID int64, deleted []int64, amounts map[int64]int64) ([]int64, error) {
	if len(deleted) == 0 {
		return nil, nil
	}

	schedules, err := tx.Schedules.ListByParentIDs(ctx, []int64{parentID}, false)
	if err != nil {
		return nil, err
	}

	var pruned []int64
	for _, sched := range schedules {
		if !sched.InstallmentIDs.Overlaps(deleted) {
			continue
		}

		remaining := subtractIDs(sched.InstallmentIDs, deleted)
		total := sched.CombinedTotal
		for _, id := range sched.InstallmentIDs {
			if !model.Int64Array(remaining).Contains(id) {
				total -= amounts[id]
			}
		}
		if total < 0 {
			total = 0
		}

		if err := tx.Schedules.UpdateReferences(ctx, sched.ID, remaining, total); err != nil {
			return nil, err
		}
		if len(remaining) == 0 {
			if _, err := tx.Schedules.Deactivate(ctx, sched.ID, StopReasonDeleted); err != nil {
				return nil, err
			}
		}
		pruned = append(pruned, sched.ID)
	}
	return pruned, nil
}

// UnmarkInstallment 人工撤销分期的已支付状态，这是 paid → pending 的唯一路径
func (s *PlanService) UnmarkInstallment(ctx context.Context, installmentID int64, actor, reason string) (*model.Installment, error) {
	actor = strings.TrimSpace(actor)
	reason = strings.TrimSpace(reason)
	if actor == "" {
		return nil, ErrActorRequired
	}
	if reason == "" {
		return nil, ErrReasonRequired
	}

	var updated *model.Installment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		inst, err := tx.Installments.GetByID(ctx, installmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInstallmentNotFound
			}
			return err
		}
		if !inst.IsPaid() {
			return ErrInstallmentNotPaid
		}

		if err := tx.Adjustments.Create(ctx, &model.InstallmentAdjustment{
			InstallmentID:    inst.ID,
			Action:           model.AdjustmentUnmarkPaid,
			Actor:            actor,
			Reason:           reason,
			PreviousStatus:   inst.Status,
			PreviousPaidAt:   inst.PaidAt,
			PreviousChargeID: inst.ProcessorChargeID,
		}); err != nil {
			return err
		}

		if err := tx.Installments.Reopen(ctx, inst.ID); err != nil {
			return err
		}
		if err := tx.Payments.Reopen(ctx, inst.PaymentID); err != nil {
			return err
		}

		plan, err := tx.Plans.GetByID(ctx, inst.PlanID)
		if err != nil {
			return err
		}
		if plan.Status == model.PlanStatusCompleted {
			if err := tx.Plans.UpdateStatus(ctx, plan.ID, model.PlanStatusActive); err != nil {
				return err
			}
		}

		updated, err = tx.Installments.GetByID(ctx, inst.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Installment %d unmarked as paid by %s", installmentID, actor)
	publish(ctx, s.publisher, &pubsub.BillingEvent{
		Type:           pubsub.EventInstallmentUnpaid,
		ParentID:       updated.ParentID,
		PaymentID:      updated.PaymentID,
		InstallmentIDs: []int64{updated.ID},
		Amount:         updated.Amount,
		Reason:         reason,
	})
	return updated, nil
}

// MarkInstallmentPaid 工作人员登记线下付款，与处理方扣款成功走同一结算路径
func (s *PlanService) MarkInstallmentPaid(ctx context.Context, installmentID int64, actor, note string) (*model.Installment, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrActorRequired
	}
	note = strings.TrimSpace(note)
	if note == "" {
		note = "manual payment"
	}

	now := s.now()
	var result *settleResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		inst, err := tx.Installments.GetByID(ctx, installmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInstallmentNotFound
			}
			return err
		}
		if inst.IsPaid() {
			return ErrInstallmentAlreadyPaid
		}

		if err := tx.Adjustments.Create(ctx, &model.InstallmentAdjustment{
			InstallmentID:  inst.ID,
			Action:         model.AdjustmentMarkPaid,
			Actor:          actor,
			Reason:         note,
			PreviousStatus: inst.Status,
		}); err != nil {
			return err
		}

		result, err = settleInstallments(ctx, tx, []int64{inst.ID}, repository.Settlement{PaidAt: now})
		return err
	})
	if err != nil {
		return nil, err
	}

	inst := result.Installments[0]
	log.Printf("Installment %d marked paid manually by %s", inst.ID, actor)
	publish(ctx, s.publisher, &pubsub.BillingEvent{
		Type:           pubsub.EventInstallmentPaid,
		ParentID:       inst.ParentID,
		PaymentID:      inst.PaymentID,
		InstallmentIDs: []int64{inst.ID},
		Amount:         inst.Amount,
		Reason:         "manual",
		OccurredAt:     now,
	})
	return inst, nil
}

// MarkOverduePayments 把存在逾期分期的主付款记录标记为逾期
func (s *PlanService) MarkOverduePayments(ctx context.Context) (int64, error) {
	n, err := s.store.Payments.MarkOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark overdue payments: %w", err)
	}
	if n > 0 {
		log.Printf("Marked %d payments overdue", n)
	}
	return n, nil
}
