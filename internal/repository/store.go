package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store 聚合全部账本仓储，Transaction 内的仓储共享同一事务
type Store struct {
	db *gorm.DB

	Parents      *ParentRepository
	Plans        *PlanRepository
	Payments     *PaymentRepository
	Installments *InstallmentRepository
	Adjustments  *AdjustmentRepository
	Schedules    *ScheduleRepository
	ReminderLogs *ReminderLogRepository
	Events       *EventRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Parents:      NewParentRepository(db),
		Plans:        NewPlanRepository(db),
		Payments:     NewPaymentRepository(db),
		Installments: NewInstallmentRepository(db),
		Adjustments:  NewAdjustmentRepository(db),
		Schedules:    NewScheduleRepository(db),
		ReminderLogs: NewReminderLogRepository(db),
		Events:       NewEventRepository(db),
	}
}

// Transaction 在单个数据库事务中执行 fn，fn 必须只使用传入的 tx 仓储
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
