package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
)

var ErrInvalidSignature = errors.New("回调签名无效")

// 回调处理结果
const (
	WebhookProcessed = "processed"
	WebhookDuplicate = "duplicate"
	WebhookIgnored   = "ignored"
)

// WebhookResult 回调处理结果
type WebhookResult struct {
	EventID              string  `json:"event_id"`
	Status               string  `json:"status"`
	Reason               string  `json:"reason,omitempty"`
	InstallmentIDs       []int64 `json:"installment_ids,omitempty"`
	Settled              int64   `json:"settled"`
	DeactivatedSchedules []int64 `json:"deactivated_schedules,omitempty"`
}

// WebhookService 消费处理方回调，把分期、付款与提醒计划与处理方记录对齐
type WebhookService struct {
	store     *repository.Store
	proc      processor.Processor
	publisher EventPublisher
	now       func() time.Time
}

func NewWebhookService(store *repository.Store, proc processor.Processor, publisher EventPublisher) *WebhookService {
	return &WebhookService{
		store:     store,
		proc:      proc,
		publisher: publisher,
		now:       defaultNow,
	}
}

var handledEventTypes = map[string]bool{
	processor.EventCheckoutCompleted: true,
	processor.EventPaymentSucceeded:  true,
}

var recognizedSources = map[string]bool{
	SourceInstallmentCharge: true,
	SourceInstallmentLink:   true,
	SourceCombinedReminder:  true,
}

// HandleEvent 验签并处理一个回调。
// 验签失败返回 ErrInvalidSignature 且不改动任何状态；无关事件返回 ignored；
// 账本写入失败返回 error，由处理方稍后重投。
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := s.proc.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		log.Printf("Webhook rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookResult{EventID: event.ID}

	if !handledEventTypes[event.Type] {
		result.Status = WebhookIgnored
		result.Reason = "unhandled event type " + event.Type
		return result, nil
	}

	source := event.Metadata[MetaSource]
	record, err := s.store.Events.Record(ctx, &model.ProcessorEvent{
		EventID:   event.ID,
		EventType: event.Type,
		Source:    source,
		Metadata:  toJSONMap(event.Metadata),
	})
	if err != nil {
		return nil, fmt.Errorf("record event %s: %w", event.ID, err)
	}
	if record.ProcessedAt != nil {
		result.Status = WebhookDuplicate
		return result, nil
	}

	if !recognizedSources[source] {
		log.Printf("Webhook %s ignored: unrecognized source %q", event.ID, source)
		result.Status = WebhookIgnored
		result.Reason = "unrecognized source"
		return result, s.markProcessed(ctx, record.ID, "")
	}

	ids, err := s.resolveInstallments(ctx, event.Metadata)
	if err != nil {
		s.markFailed(ctx, record.ID, err)
		return nil, err
	}
	if len(ids) == 0 {
		log.Printf("Webhook %s ignored: no installments referenced", event.ID)
		result.Status = WebhookIgnored
		result.Reason = "no installments referenced"
		return result, s.markProcessed(ctx, record.ID, "")
	}

	if source == SourceInstallmentCharge && len(ids) == 1 {
		stale, err := s.staleCharge(ctx, ids[0], event.Metadata[MetaGeneration])
		if err != nil {
			s.markFailed(ctx, record.ID, err)
			return nil, err
		}
		if stale {
			log.Printf("Webhook %s ignored: charge predates manual reversal of installment %d", event.ID, ids[0])
			result.Status = WebhookIgnored
			result.Reason = "stale charge generation"
			return result, s.markProcessed(ctx, record.ID, "")
		}
	}

	paidAt := s.now()
	if !event.Created.IsZero() {
		paidAt = event.Created.UTC().Truncate(time.Second)
	}
	settlement := repository.Settlement{PaidAt: paidAt, ChargeID: event.ObjectID}
	if len(ids) == 1 && event.Amount > 0 {
		settlement.AmountPaid = event.Amount
	}

	var settled *settleResult
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		settled, err = settleInstallments(ctx, tx, ids, settlement)
		if err != nil {
			return err
		}
		return tx.Events.MarkProcessed(ctx, record.ID, s.now(), "")
	})
	if err != nil {
		log.Printf("Webhook %s settlement failed: %v", event.ID, err)
		s.markFailed(ctx, record.ID, err)
		return nil, fmt.Errorf("settle webhook %s: %w", event.ID, err)
	}

	result.Status = WebhookProcessed
	result.Settled = settled.Changed
	result.DeactivatedSchedules = settled.DeactivatedSchedule
	for _, inst := range settled.Installments {
		result.InstallmentIDs = append(result.InstallmentIDs, inst.ID)
	}
	if missing := subtractIDs(ids, result.InstallmentIDs); len(missing) > 0 {
		log.Printf("Warning: webhook %s references missing installments %v", event.ID, missing)
	}
	log.Printf("Webhook %s (%s) settled %d of %d installments, %d schedules deactivated",
		event.ID, source, settled.Changed, len(ids), len(settled.DeactivatedSchedule))

	if settled.Changed > 0 && len(settled.Installments) > 0 {
		first := settled.Installments[0]
		var amount int64
		for _, inst := range settled.Installments {
			amount += inst.AmountPaid
		}
		publish(ctx, s.publisher, &pubsub.BillingEvent{
			Type:           pubsub.EventInstallmentPaid,
			ParentID:       first.ParentID,
			PaymentID:      first.PaymentID,
			InstallmentIDs: result.InstallmentIDs,
			Amount:         amount,
			ChargeID:       event.ObjectID,
			Reason:         source,
			OccurredAt:     paidAt,
		})
	}
	if len(settled.DeactivatedSchedule) > 0 && len(settled.Installments) > 0 {
		publishStopped(ctx, s.publisher, settled.Installments[0].ParentID, settled.DeactivatedSchedule, StopReasonPayment)
	}
	return result, nil
}

// resolveInstallments 从元数据取分期 ID；只有付款 ID 时取其计划下的全部分期
func (s *WebhookService) resolveInstallments(ctx context.Context, metadata map[string]string) ([]int64, error) {
	ids := parseIDs(metadata[MetaInstallmentIDs])
	if len(ids) == 0 {
		ids = parseIDs(metadata[MetaInstallmentID])
	}
	if len(ids) > 0 {
		return ids, nil
	}

	paymentID, err := strconv.ParseInt(metadata[MetaPaymentID], 10, 64)
	if err != nil || paymentID <= 0 {
		return nil, nil
	}
	payment, err := s.store.Payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if payment.PlanID == nil {
		return nil, nil
	}
	return s.store.Installments.ListIDsByPlanID(ctx, *payment.PlanID)
}

// staleCharge 扣款发生在分期被人工撤销之前时返回 true
func (s *WebhookService) staleCharge(ctx context.Context, installmentID int64, raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	generation, err := strconv.Atoi(raw)
	if err != nil {
		return false, nil
	}
	inst, err := s.store.Installments.GetByID(ctx, installmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return generation < inst.ChargeGeneration, nil
}

func (s *WebhookService) markProcessed(ctx context.Context, id int64, processingErr string) error {
	if err := s.store.Events.MarkProcessed(ctx, id, s.now(), processingErr); err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

// markFailed 记录处理错误，事件保持未处理以便重投时再次处理
func (s *WebhookService) markFailed(ctx context.Context, id int64, cause error) {
	if err := s.store.Events.MarkProcessed(ctx, id, s.now(), cause.Error()); err != nil {
		log.Printf("Failed to record webhook processing error: %v", err)
	}
}

func toJSONMap(m map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
