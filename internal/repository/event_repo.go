package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/installment_billing/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByEventID 根据处理方事件 ID 获取事件
func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*model.ProcessorEvent, error) {
	var event model.ProcessorEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// Record 记录事件，事件 ID 已存在时返回已有记录
func (r *EventRepository) Record(ctx context.Context, event *model.ProcessorEvent) (*model.ProcessorEvent, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event).Error
	if err != nil {
		return nil, err
	}
	return r.GetByEventID(ctx, event.EventID)
}

// MarkProcessed 记录处理完成时间，processingErr 非空表示处理失败
func (r *EventRepository) MarkProcessed(ctx context.Context, id int64, at time.Time, processingErr string) error {
	updates := map[string]interface{}{
		"processing_error": processingErr,
	}
	if processingErr == "" {
		updates["processed_at"] = at
	}
	return r.db.WithContext(ctx).Model(&model.ProcessorEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
