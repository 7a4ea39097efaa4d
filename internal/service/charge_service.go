package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
)

// ChargeStatus 扣款尝试结果
type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeFailed    ChargeStatus = "failed"
	ChargeSkipped   ChargeStatus = "skipped"
)

// 扣款结果原因
const (
	ReasonNotFound             = "not_found"
	ReasonAlreadyPaid          = "already_paid"
	ReasonInProgress           = "in_progress"
	ReasonManualPaymentMethod  = "manual_payment_method"
	ReasonNoPaymentMethod      = "no_payment_method"
	ReasonRequiresAction       = "requires_action"
	ReasonCardDeclined         = "card_declined"
	ReasonTimeout              = "timeout"
	ReasonInvalidCustomer      = "invalid_customer"
	ReasonProcessorUnavailable = "processor_unavailable"
	ReasonIdempotencyConflict  = "idempotency_conflict"
	ReasonProcessorError       = "processor_error"
	ReasonInternalError        = "internal_error"
)

// ChargeOutcome 单个分期的扣款结果，业务失败不是 error
type ChargeOutcome struct {
	InstallmentID int64        `json:"installment_id"`
	Status        ChargeStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	ChargeID      string       `json:"charge_id,omitempty"`
	Amount        int64        `json:"amount,omitempty"`
	DeclineCode   string       `json:"decline_code,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// BatchResult 批量扣款汇总
type BatchResult struct {
	Attempted int              `json:"attempted"`
	Succeeded int              `json:"succeeded"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	Results   []*ChargeOutcome `json:"results"`
}

// ChargeService 对单个分期执行离线扣款并更新分期与付款状态
type ChargeService struct {
	store     *repository.Store
	proc      processor.Processor
	locker    Locker
	publisher EventPublisher
	procCfg   *config.ProcessorConfig
	billCfg   *config.BillingConfig
	now       func() time.Time
}

func NewChargeService(store *repository.Store, proc processor.Processor, locker Locker, publisher EventPublisher, cfg *config.Config) *ChargeService {
	return &ChargeService{
		store:     store,
		proc:      proc,
		locker:    locker,
		publisher: publisher,
		procCfg:   &cfg.Processor,
		billCfg:   &cfg.Billing,
		now:       defaultNow,
	}
}

// IdempotencyKey 由分期 ID 和扣款代次确定的幂等键。
// 同一代次内的重试复用同一个键；人工撤销支付后代次加一，下一次扣款是新的请求。
func IdempotencyKey(installmentID int64, generation int) string {
	key := "inst:" + strconv.FormatInt(installmentID, 10)
	if generation > 0 {
		key += ":r" + strconv.Itoa(generation)
	}
	return key
}

// ChargeKey 分期当前代次的幂等键
func (s *ChargeService) ChargeKey(ctx context.Context, installmentID int64) (string, error) {
	inst, err := s.store.Installments.GetByID(ctx, installmentID)
	if err != nil {
		return "", err
	}
	return IdempotencyKey(inst.ID, inst.ChargeGeneration), nil
}

// AttemptCharge 对一个分期发起扣款。
// 已支付、不存在、非刷卡计划或同一家长正在处理时返回 skipped；
// 拒付、超时、缺少支付方式等返回 failed，分期保持待支付。
// 只有账本读写失败才返回 error。
func (s *ChargeService) AttemptCharge(ctx context.Context, installmentID int64) (*ChargeOutcome, error) {
	outcome := &ChargeOutcome{InstallmentID: installmentID}

	inst, err := s.store.Installments.GetByID(ctx, installmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skip(outcome, ReasonNotFound), nil
		}
		return nil, err
	}
	if inst.IsPaid() {
		return skip(outcome, ReasonAlreadyPaid), nil
	}

	release, err := s.locker.Acquire(ctx, parentLockKey(inst.ParentID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return skip(outcome, ReasonInProgress), nil
		}
		return nil, fmt.Errorf("acquire parent lock: %w", err)
	}
	defer release()

	// 持锁后重新读取，等待期间可能已被其他路径结算
	inst, err = s.store.Installments.GetByID(ctx, installmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skip(outcome, ReasonNotFound), nil
		}
		return nil, err
	}
	if inst.IsPaid() {
		return skip(outcome, ReasonAlreadyPaid), nil
	}
	outcome.Amount = inst.Amount

	plan, err := s.store.Plans.GetByID(ctx, inst.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skip(outcome, ReasonNotFound), nil
		}
		return nil, err
	}
	if !plan.PaymentMethod.AutoChargeable() {
		return skip(outcome, ReasonManualPaymentMethod), nil
	}

	parent, err := s.store.Parents.GetByID(ctx, inst.ParentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if parent == nil || !parent.CanChargeOffSession() {
		log.Printf("Charge skipped for installment %d: parent %d has no payment method on file", inst.ID, inst.ParentID)
		outcome.Status = ChargeFailed
		outcome.Reason = ReasonNoPaymentMethod
		outcome.Message = "no saved payment method for parent"
		return outcome, nil
	}

	req := &processor.ChargeRequest{
		CustomerID:      parent.ProcessorCustomerID,
		PaymentMethodID: parent.DefaultPaymentMethodID,
		Amount:          inst.Amount,
		Currency:        s.procCfg.Currency,
		Description:     fmt.Sprintf("Installment %d of %d", inst.InstallmentNumber, inst.TotalInstallments),
		Metadata: map[string]string{
			MetaSource:         SourceInstallmentCharge,
			MetaParentID:       strconv.FormatInt(inst.ParentID, 10),
			MetaPaymentID:      strconv.FormatInt(inst.PaymentID, 10),
			MetaInstallmentID:  strconv.FormatInt(inst.ID, 10),
			MetaInstallmentIDs: strconv.FormatInt(inst.ID, 10),
			MetaGeneration:     strconv.Itoa(inst.ChargeGeneration),
		},
		IdempotencyKey: IdempotencyKey(inst.ID, inst.ChargeGeneration),
	}

	log.Printf("Charging installment %d: amount %d, parent %d", inst.ID, inst.Amount, inst.ParentID)
	charge, err := s.charge(ctx, req)
	if err != nil {
		return s.recordFailure(ctx, inst, parent, outcome, err)
	}

	switch charge.Status {
	case processor.ChargeSucceeded:
		return s.recordSuccess(ctx, inst, outcome, charge)
	case processor.ChargeRequiresAction:
		outcome.ChargeID = charge.ID
		return s.recordDecline(ctx, inst, outcome, ReasonRequiresAction, "", "payment requires customer authentication")
	default:
		outcome.ChargeID = charge.ID
		return s.recordDecline(ctx, inst, outcome, ReasonCardDeclined, charge.DeclineCode, charge.FailureMessage)
	}
}

// charge 调用处理方，幂等键冲突时换用带时间戳的键重试一次
func (s *ChargeService) charge(ctx context.Context, req *processor.ChargeRequest) (*processor.Charge, error) {
	charge, err := s.callProcessor(ctx, req)
	if err == nil || !errors.Is(err, processor.ErrIdempotencyConflict) {
		return charge, err
	}

	retry := *req
	retry.IdempotencyKey = fmt.Sprintf("%s:%d", req.IdempotencyKey, s.now().Unix())
	log.Printf("Idempotency key %s conflicted, retrying with %s", req.IdempotencyKey, retry.IdempotencyKey)
	return s.callProcessor(ctx, &retry)
}

func (s *ChargeService) callProcessor(ctx context.Context, req *processor.ChargeRequest) (*processor.Charge, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.procCfg.Timeout())
	defer cancel()
	return s.proc.ChargeOffSession(callCtx, req)
}

func (s *ChargeService) recordSuccess(ctx context.Context, inst *model.Installment, outcome *ChargeOutcome, charge *processor.Charge) (*ChargeOutcome, error) {
	now := s.now()
	amount := charge.Amount
	if amount <= 0 {
		amount = inst.Amount
	}

	var result *settleResult
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Installments.RecordAttempt(ctx, inst.ID, now, ""); err != nil {
			return err
		}
		var err error
		result, err = settleInstallments(ctx, tx, []int64{inst.ID}, repository.Settlement{
			PaidAt:     now,
			ChargeID:   charge.ID,
			AmountPaid: amount,
		})
		return err
	})
	if err != nil {
		// 扣款已成功但账本写入失败，等待回调补记
		log.Printf("Charge %s succeeded but settling installment %d failed: %v", charge.ID, inst.ID, err)
		return nil, fmt.Errorf("settle installment %d: %w", inst.ID, err)
	}

	log.Printf("Installment %d paid: charge %s, amount %d", inst.ID, charge.ID, amount)
	publish(ctx, s.publisher, &pubsub.BillingEvent{
		Type:           pubsub.EventInstallmentPaid,
		ParentID:       inst.ParentID,
		PaymentID:      inst.PaymentID,
		InstallmentIDs: []int64{inst.ID},
		Amount:         amount,
		ChargeID:       charge.ID,
		OccurredAt:     now,
	})
	if len(result.DeactivatedSchedule) > 0 {
		publishStopped(ctx, s.publisher, inst.ParentID, result.DeactivatedSchedule, StopReasonPayment)
	}

	outcome.Status = ChargeSucceeded
	outcome.ChargeID = charge.ID
	outcome.Amount = amount
	return outcome, nil
}

// recordFailure 把处理方错误归类为结果原因并记录尝试
func (s *ChargeService) recordFailure(ctx context.Context, inst *model.Installment, parent *model.Parent, outcome *ChargeOutcome, chargeErr error) (*ChargeOutcome, error) {
	var perr *processor.Error
	declineCode := ""
	if errors.As(chargeErr, &perr) {
		declineCode = perr.DeclineCode
	}

	var reason string
	switch {
	case errors.Is(chargeErr, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(chargeErr, processor.ErrInvalidCustomer):
		reason = ReasonInvalidCustomer
		s.recreateCustomer(ctx, parent)
	case errors.Is(chargeErr, processor.ErrIdempotencyConflict):
		reason = ReasonIdempotencyConflict
	case errors.Is(chargeErr, processor.ErrCardDeclined):
		reason = ReasonCardDeclined
	case errors.Is(chargeErr, processor.ErrUnavailable):
		reason = ReasonProcessorUnavailable
	default:
		reason = ReasonProcessorError
	}

	if ctx.Err() != nil {
		// 调用方取消，不记录尝试
		return nil, ctx.Err()
	}
	return s.recordDecline(ctx, inst, outcome, reason, declineCode, chargeErr.Error())
}

func (s *ChargeService) recordDecline(ctx context.Context, inst *model.Installment, outcome *ChargeOutcome, reason, declineCode, message string) (*ChargeOutcome, error) {
	now := s.now()
	detail := reason
	if declineCode != "" {
		detail = reason + " (" + declineCode + ")"
	}
	if message != "" {
		detail = detail + ": " + message
	}

	if err := s.store.Installments.RecordAttempt(ctx, inst.ID, now, detail); err != nil {
		return nil, fmt.Errorf("record charge attempt: %w", err)
	}
	if limit := s.billCfg.MaxChargeAttempts; limit > 0 && inst.ChargeAttempts+1 >= limit {
		if err := s.store.Installments.MarkFailed(ctx, inst.ID, detail); err != nil {
			return nil, fmt.Errorf("mark installment failed: %w", err)
		}
		log.Printf("Installment %d marked failed after %d attempts", inst.ID, inst.ChargeAttempts+1)
	}

	log.Printf("Charge for installment %d failed: %s", inst.ID, detail)
	publish(ctx, s.publisher, &pubsub.BillingEvent{
		Type:           pubsub.EventChargeDeclined,
		ParentID:       inst.ParentID,
		PaymentID:      inst.PaymentID,
		InstallmentIDs: []int64{inst.ID},
		Amount:         inst.Amount,
		ChargeID:       outcome.ChargeID,
		Reason:         reason,
		OccurredAt:     now,
	})

	outcome.Status = ChargeFailed
	outcome.Reason = reason
	outcome.DeclineCode = declineCode
	outcome.Message = message
	return outcome, nil
}

// recreateCustomer 处理方报告客户无效时清空并重建客户，旧支付方式随之作废
func (s *ChargeService) recreateCustomer(ctx context.Context, parent *model.Parent) {
	if err := s.store.Parents.ClearProcessorCustomer(ctx, parent.ID); err != nil {
		log.Printf("Failed to clear processor customer for parent %d: %v", parent.ID, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.procCfg.Timeout())
	defer cancel()

	customerID, err := s.proc.CreateCustomer(callCtx, parent.Name, parent.Email)
	if err != nil {
		log.Printf("Failed to recreate processor customer for parent %d: %v", parent.ID, err)
		return
	}
	if err := s.store.Parents.SetProcessorCustomer(ctx, parent.ID, customerID); err != nil {
		log.Printf("Failed to save processor customer for parent %d: %v", parent.ID, err)
		return
	}
	log.Printf("Processor customer recreated for parent %d", parent.ID)
}

// ChargeOverdue 顺序处理所有到期待支付分期，单个失败不影响其余分期
func (s *ChargeService) ChargeOverdue(ctx context.Context) (*BatchResult, error) {
	installments, err := s.store.Installments.ListDuePending(ctx, s.now(), s.billCfg.OverdueBatchLimit)
	if err != nil {
		return nil, fmt.Errorf("list due installments: %w", err)
	}

	result := &BatchResult{Results: make([]*ChargeOutcome, 0, len(installments))}
	for _, inst := range installments {
		if ctx.Err() != nil {
			break
		}

		outcome, err := s.AttemptCharge(ctx, inst.ID)
		if err != nil {
			log.Printf("Charge attempt for installment %d errored: %v", inst.ID, err)
			outcome = &ChargeOutcome{
				InstallmentID: inst.ID,
				Status:        ChargeFailed,
				Reason:        ReasonInternalError,
				Message:       err.Error(),
			}
		}

		result.Attempted++
		switch outcome.Status {
		case ChargeSucceeded:
			result.Succeeded++
		case ChargeSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		result.Results = append(result.Results, outcome)
	}

	log.Printf("Overdue charge run: attempted=%d succeeded=%d skipped=%d failed=%d",
		result.Attempted, result.Succeeded, result.Skipped, result.Failed)
	return result, nil
}

func skip(outcome *ChargeOutcome, reason string) *ChargeOutcome {
	outcome.Status = ChargeSkipped
	outcome.Reason = reason
	return outcome
}

func publishStopped(ctx context.Context, p EventPublisher, parentID int64, scheduleIDs []int64, reason string) {
	for _, id := range scheduleIDs {
		publish(ctx, p, &pubsub.BillingEvent{
			Type:       pubsub.EventScheduleStopped,
			ParentID:   parentID,
			ScheduleID: id,
			Reason:     reason,
		})
	}
}
