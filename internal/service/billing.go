package service

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
)

// 付款元数据来源，回调据此识别本系统发起的收款
const (
	SourceInstallmentCharge = "installment_charge"
	SourceInstallmentLink   = "installment_link"
	SourceCombinedReminder  = "combined_reminder"
)

// 元数据键
const (
	MetaSource         = "source"
	MetaParentID       = "parent_id"
	MetaPaymentID      = "payment_id"
	MetaInstallmentID  = "installment_id"
	MetaInstallmentIDs = "installment_ids"
	MetaScheduleID     = "schedule_id"
	MetaGeneration     = "charge_generation"
)

// Locker 家长级互斥，同一家长同一时间最多一个扣款或提醒在执行
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// EventPublisher 计费事件广播
type EventPublisher interface {
	Publish(ctx context.Context, event *pubsub.BillingEvent) error
}

func parentLockKey(parentID int64) string {
	return "parent:" + strconv.FormatInt(parentID, 10)
}

func defaultNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// publish 尽力广播，失败只记日志
func publish(ctx context.Context, p EventPublisher, event *pubsub.BillingEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish billing event %s: %v", event.Type, err)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

// parseIDs 解析逗号分隔的 ID 列表，忽略空白和无法解析的项
func parseIDs(raw string) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// subtractIDs 返回 a 中不属于 b 的 ID
func subtractIDs(a []int64, b []int64) []int64 {
	drop := make(map[int64]bool, len(b))
	for _, id := range b {
		drop[id] = true
	}
	out := make([]int64, 0, len(a))
	for _, id := range a {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
