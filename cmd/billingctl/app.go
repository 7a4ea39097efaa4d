package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/database"
	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/email"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/pkg/queue"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
	"github.com/qs3c/installment_billing/internal/service"
)

// app 命令行一次运行所需的服务
type app struct {
	cfg       *config.Config
	rdb       *redis.Client
	proc      processor.Processor
	plans     *service.PlanService
	charges   *service.ChargeService
	reminders *service.ReminderService
	webhooks  *service.WebhookService
}

// loadApp 连接数据库并组装服务。Redis 不可用时使用进程内锁。
func loadApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		return nil, err
	}

	var (
		locker    service.Locker = lock.NewLocalLocker()
		publisher service.EventPublisher
		reminderQ *queue.Queue
	)
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Redis unavailable, using in-process locks: %v", err)
		rdb = nil
	} else {
		locker = lock.NewRedisLocker(rdb, "billing:lock:", cfg.Billing.LockTTL())
		publisher = pubsub.NewPublisher(rdb)
		reminderQ = queue.NewQueue(rdb, cfg.Queue.ReminderQueue)
	}

	proc, err := processor.New(&cfg.Processor)
	if err != nil {
		return nil, err
	}

	sender, err := notify.NewSender(cfg.Billing.MessageChannel, email.NewService(&cfg.Email), reminderQ)
	if err != nil {
		return nil, err
	}

	store := repository.NewStore(db)
	links := service.NewPaymentLinkService(store, proc, &cfg.Processor)
	return &app{
		cfg:       cfg,
		rdb:       rdb,
		proc:      proc,
		plans:     service.NewPlanService(store, publisher),
		charges:   service.NewChargeService(store, proc, locker, publisher, cfg),
		reminders: service.NewReminderService(store, links, sender, locker, publisher, cfg),
		webhooks:  service.NewWebhookService(store, proc, publisher),
	}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
