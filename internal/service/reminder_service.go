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
	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/cadence"
	"github.com/qs3c/installment_billing/internal/pkg/email"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/money"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/repository"
)

var (
	ErrScheduleNotFound   = errors.New("提醒计划不存在")
	ErrInvalidFrequency   = errors.New("提醒频率无效，单位只能是 days 或 weeks")
	ErrInvalidInstallment = errors.New("分期不存在或不属于该家长")
	ErrInvalidTotal       = errors.New("提醒合计金额必须大于 0")
)

// 提醒处理结果
const (
	ReminderSent            = "sent"
	ReminderFailed          = "failed"
	ReminderStoppedMax      = "stopped_max"
	ReminderStoppedDangling = "stopped_dangling"
	ReminderSkipped         = "skipped"
	ReminderError           = "error"
)

// ReminderResult 单个提醒计划的处理结果
type ReminderResult struct {
	ScheduleID int64      `json:"schedule_id"`
	ParentID   int64      `json:"parent_id"`
	Outcome    string     `json:"outcome"`
	Error      string     `json:"error,omitempty"`
	LinkURL    string     `json:"link_url,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
	NextSendAt *time.Time `json:"next_send_at,omitempty"`
}

// RunResult 一次 RunDue 的汇总
type RunResult struct {
	Processed int               `json:"processed"`
	Sent      int               `json:"sent"`
	Failed    int               `json:"failed"`
	Stopped   int               `json:"stopped"`
	Results   []*ReminderResult `json:"results"`
}

// ReminderService 周期催缴提醒：建立计划、选出到期计划、发送并推进节奏
type ReminderService struct {
	store     *repository.Store
	links     *PaymentLinkService
	sender    notify.Sender
	locker    Locker
	publisher EventPublisher
	cfg       *config.BillingConfig
	currency  string
	now       func() time.Time
}

func NewReminderService(store *repository.Store, links *PaymentLinkService, sender notify.Sender, locker Locker, publisher EventPublisher, cfg *config.Config) *ReminderService {
	return &ReminderService{
		store:     store,
		links:     links,
		sender:    sender,
		locker:    locker,
		publisher: publisher,
		cfg:       &cfg.Billing,
		currency:  cfg.Processor.Currency,
		now:       defaultNow,
	}
}

// reminderPeriod 提醒频率只支持天和周
func reminderPeriod(unit string, value int) (cadence.Period, string, error) {
	period, err := cadence.Parse(unit, value)
	if err != nil || unit == "" {
		return cadence.Period{}, "", ErrInvalidFrequency
	}
	switch period.Unit {
	case cadence.Day:
		return period, model.FrequencyDays, nil
	case cadence.Week:
		return period, model.FrequencyWeeks, nil
	}
	return cadence.Period{}, "", ErrInvalidFrequency
}

// CreateSchedule 建立提醒计划，首次发送在一个周期之后
func (s *ReminderService) CreateSchedule(ctx context.Context, req *dto.CreateScheduleRequest) (*model.RecurringReminderSchedule, error) {
	period, unit, err := reminderPeriod(req.FrequencyUnit, req.FrequencyValue)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.Parents.GetByID(ctx, req.ParentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, err
	}

	ids := parseIDs(joinIDs(req.InstallmentIDs))
	if len(ids) == 0 {
		return nil, ErrInvalidInstallment
	}
	installments, err := s.store.Installments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(installments) != len(ids) {
		return nil, ErrInvalidInstallment
	}

	var outstanding int64
	for _, inst := range installments {
		if inst.ParentID != req.ParentID {
			return nil, ErrInvalidInstallment
		}
		if !inst.IsPaid() {
			outstanding += inst.Amount
		}
	}

	total := req.CombinedTotal
	if total == 0 {
		total = outstanding
	}
	if total <= 0 {
		return nil, ErrInvalidTotal
	}

	maxReminders := req.MaxReminders
	if maxReminders == 0 {
		maxReminders = s.cfg.DefaultMaxReminders
	}
	if maxReminders <= 0 {
		maxReminders = 1
	}

	stopOnPayment, stopOnReply := true, true
	if req.StopOnPayment != nil {
		stopOnPayment = *req.StopOnPayment
	}
	if req.StopOnReply != nil {
		stopOnReply = *req.StopOnReply
	}

	now := s.now()
	schedule := &model.RecurringReminderSchedule{
		ParentID:       req.ParentID,
		InstallmentIDs: model.Int64Array(ids),
		CombinedTotal:  total,
		FrequencyValue: period.Count,
		FrequencyUnit:  unit,
		StopOnPayment:  stopOnPayment,
		StopOnReply:    stopOnReply,
		MaxReminders:   maxReminders,
		NextSendAt:     period.Next(now),
		Active:         true,
	}
	if err := s.store.Schedules.Create(ctx, schedule); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	log.Printf("Reminder schedule %d created for parent %d: every %s, max %d",
		schedule.ID, schedule.ParentID, period, schedule.MaxReminders)
	return schedule, nil
}

// DueSchedules 到期的有效计划，按 next_send_at 升序，limit <= 0 时使用配置值
func (s *ReminderService) DueSchedules(ctx context.Context, limit int) ([]*model.RecurringReminderSchedule, error) {
	if limit <= 0 {
		limit = s.cfg.ReminderBatchLimit
	}
	return s.store.Schedules.ListDue(ctx, s.now(), limit)
}

// RunDue 依次处理到期计划，单个计划的失败不影响其余计划
func (s *ReminderService) RunDue(ctx context.Context) (*RunResult, error) {
	schedules, err := s.DueSchedules(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}

	result := &RunResult{Results: make([]*ReminderResult, 0, len(schedules))}
	for _, sched := range schedules {
		if ctx.Err() != nil {
			break
		}

		res, err := s.processSchedule(ctx, sched)
		if err != nil {
			log.Printf("Reminder schedule %d errored: %v", sched.ID, err)
			res = &ReminderResult{
				ScheduleID: sched.ID,
				ParentID:   sched.ParentID,
				Outcome:    ReminderError,
				Error:      err.Error(),
			}
		}

		result.Processed++
		switch res.Outcome {
		case ReminderSent:
			result.Sent++
		case ReminderStoppedMax, ReminderStoppedDangling:
			result.Stopped++
		case ReminderFailed, ReminderError:
			result.Failed++
		}
		result.Results = append(result.Results, res)
	}

	log.Printf("Reminder run: processed=%d sent=%d failed=%d stopped=%d",
		result.Processed, result.Sent, result.Failed, result.Stopped)
	return result, nil
}

func (s *ReminderService) processSchedule(ctx context.Context, sched *model.RecurringReminderSchedule) (*ReminderResult, error) {
	res := &ReminderResult{ScheduleID: sched.ID, ParentID: sched.ParentID}

	if sched.SentCount >= sched.MaxReminders {
		return s.stop(ctx, sched, res, ReminderStoppedMax, StopReasonMaxReminders)
	}

	period, _, err := reminderPeriod(sched.FrequencyUnit, sched.FrequencyValue)
	if err != nil {
		return nil, fmt.Errorf("schedule %d: %w", sched.ID, err)
	}

	release, err := s.locker.Acquire(ctx, parentLockKey(sched.ParentID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			res.Outcome = ReminderSkipped
			res.Error = "parent is being processed"
			return res, nil
		}
		return nil, fmt.Errorf("acquire parent lock: %w", err)
	}
	defer release()

	installments, err := s.store.Installments.GetByIDs(ctx, sched.InstallmentIDs)
	if err != nil {
		return nil, err
	}
	found := make([]int64, 0, len(installments))
	for _, inst := range installments {
		found = append(found, inst.ID)
	}
	if len(installments) == 0 {
		log.Printf("Warning: reminder schedule %d references only missing installments %v", sched.ID, []int64(sched.InstallmentIDs))
		return s.stop(ctx, sched, res, ReminderStoppedDangling, StopReasonDangling)
	}

	// 缺失的分期从计划中移除，合计金额不超过剩余分期之和
	total := sched.CombinedTotal
	missing := subtractIDs(sched.InstallmentIDs, found)
	if len(missing) > 0 {
		log.Printf("Warning: reminder schedule %d references missing installments %v", sched.ID, missing)
		res.Warnings = append(res.Warnings, fmt.Sprintf("missing installments %v removed", missing))
		var remaining int64
		for _, inst := range installments {
			remaining += inst.Amount
		}
		if remaining < total {
			total = remaining
		}
	}

	parent, err := s.store.Parents.GetByID(ctx, sched.ParentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if parent == nil {
		log.Printf("Warning: reminder schedule %d references missing parent %d", sched.ID, sched.ParentID)
		parent = &model.Parent{ID: sched.ParentID}
	}

	linkURL, linkID := s.refreshLink(ctx, sched, found, len(missing) > 0)
	res.LinkURL = linkURL

	subject, body, err := email.RenderReminder(&email.Reminder{
		Organization: s.cfg.OrganizationName,
		ParentName:   parent.Name,
		Total:        money.Format(total, s.currency),
		Lines:        reminderLines(installments, s.currency),
		LinkURL:      linkURL,
		Sequence:     sched.SentCount + 1,
		MaxReminders: sched.MaxReminders,
	})
	if err != nil {
		return nil, err
	}

	sendErr := s.sender.Send(ctx, &notify.Message{
		ParentID:   sched.ParentID,
		ScheduleID: sched.ID,
		To:         parent.Email,
		Subject:    subject,
		Body:       body,
		Metadata: map[string]string{
			MetaScheduleID:     strconv.FormatInt(sched.ID, 10),
			MetaInstallmentIDs: joinIDs(found),
		},
	})

	now := s.now()
	next := period.Next(now)
	entry := &model.RecurringReminderLog{
		ScheduleID:     sched.ID,
		ParentID:       sched.ParentID,
		InstallmentIDs: model.Int64Array(found),
		Amount:         total,
		SentAt:         now,
		Outcome:        model.ReminderLogSent,
		LinkURL:        linkURL,
	}
	if sendErr != nil {
		entry.Outcome = model.ReminderLogFailed
		entry.ErrorDetail = sendErr.Error()
	}

	// 发送失败同样推进节奏并计入次数
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.ReminderLogs.Append(ctx, entry); err != nil {
			return err
		}
		if len(missing) > 0 {
			if err := tx.Schedules.UpdateReferences(ctx, sched.ID, model.Int64Array(found), total); err != nil {
				return err
			}
		}
		if linkURL != sched.PaymentLinkURL {
			if err := tx.Schedules.UpdateLink(ctx, sched.ID, linkURL, linkID); err != nil {
				return err
			}
		}
		if sendErr == nil {
			if err := tx.Installments.IncrementRemindersSent(ctx, found); err != nil {
				return err
			}
		}
		return tx.Schedules.RecordSend(ctx, sched.ID, now, next)
	})
	if err != nil {
		return nil, fmt.Errorf("record reminder send: %w", err)
	}
	res.NextSendAt = &next

	if sendErr != nil {
		log.Printf("Reminder for schedule %d failed: %v", sched.ID, sendErr)
		res.Outcome = ReminderFailed
		res.Error = sendErr.Error()
		return res, nil
	}

	log.Printf("Reminder %d/%d sent for schedule %d, next at %s",
		sched.SentCount+1, sched.MaxReminders, sched.ID, next.Format(time.RFC3339))
	publish(ctx, s.publisher, &pubsub.BillingEvent{
		Type:           pubsub.EventReminderSent,
		ParentID:       sched.ParentID,
		InstallmentIDs: found,
		ScheduleID:     sched.ID,
		Amount:         total,
		OccurredAt:     now,
	})
	res.Outcome = ReminderSent
	return res, nil
}

// refreshLink 按配置重新生成合并付款链接，失败时退回缓存链接。
// 引用的分期有变化时缓存链接已失效，force 为 true 时不再使用缓存。
func (s *ReminderService) refreshLink(ctx context.Context, sched *model.RecurringReminderSchedule, ids []int64, force bool) (string, string) {
	cachedURL, cachedID := sched.PaymentLinkURL, sched.PaymentLinkID
	if force {
		cachedURL, cachedID = "", ""
	}
	if s.links == nil || (!s.cfg.RefreshReminderLinks && cachedURL != "") {
		return cachedURL, cachedID
	}

	link, err := s.links.Build(ctx, sched.ParentID, ids, SourceCombinedReminder, map[string]string{
		MetaScheduleID: strconv.FormatInt(sched.ID, 10),
	})
	if err != nil {
		log.Printf("Payment link refresh for schedule %d failed, using cached link: %v", sched.ID, err)
		return cachedURL, cachedID
	}
	return link.URL, link.LinkID
}

func (s *ReminderService) stop(ctx context.Context, sched *model.RecurringReminderSchedule, res *ReminderResult, outcome, reason string) (*ReminderResult, error) {
	if _, err := s.store.Schedules.Deactivate(ctx, sched.ID, reason); err != nil {
		return nil, fmt.Errorf("deactivate schedule %d: %w", sched.ID, err)
	}
	log.Printf("Reminder schedule %d stopped: %s", sched.ID, reason)
	publishStopped(ctx, s.publisher, sched.ParentID, []int64{sched.ID}, reason)
	res.Outcome = outcome
	return res, nil
}

// StopOnReply 家长回复后停用其设置了回复即停的有效计划
func (s *ReminderService) StopOnReply(ctx context.Context, parentID int64) (*dto.ReplyReceivedResponse, error) {
	schedules, err := s.store.Schedules.ListByParentIDs(ctx, []int64{parentID}, true)
	if err != nil {
		return nil, err
	}

	resp := &dto.ReplyReceivedResponse{ParentID: parentID, Deactivated: []int64{}}
	for _, sched := range schedules {
		if !sched.StopOnReply {
			continue
		}
		stopped, err := s.store.Schedules.Deactivate(ctx, sched.ID, StopReasonReply)
		if err != nil {
			return nil, err
		}
		if stopped {
			log.Printf("Reminder schedule %d deactivated: reply received", sched.ID)
			resp.Deactivated = append(resp.Deactivated, sched.ID)
		}
	}
	publishStopped(ctx, s.publisher, parentID, resp.Deactivated, StopReasonReply)
	return resp, nil
}

// ListSchedules 分页查询家长的提醒计划
func (s *ReminderService) ListSchedules(ctx context.Context, parentID int64, page, pageSize int) ([]*model.RecurringReminderSchedule, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return s.store.Schedules.ListByParent(ctx, parentID, page, pageSize)
}

// GetSchedule 获取提醒计划
func (s *ReminderService) GetSchedule(ctx context.Context, id int64) (*model.RecurringReminderSchedule, error) {
	sched, err := s.store.Schedules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return sched, nil
}

func reminderLines(installments []*model.Installment, currency string) []email.ReminderLine {
	lines := make([]email.ReminderLine, 0, len(installments))
	for _, inst := range installments {
		if inst.IsPaid() {
			continue
		}
		lines = append(lines, email.ReminderLine{
			Label:   fmt.Sprintf("Installment %d of %d", inst.InstallmentNumber, inst.TotalInstallments),
			DueDate: inst.DueDate.Format("Jan 2, 2006"),
			Amount:  money.Format(inst.Amount, currency),
		})
	}
	return lines
}
