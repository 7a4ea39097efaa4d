package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/database"
	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/cron"
	"github.com/qs3c/installment_billing/internal/pkg/email"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/pkg/queue"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
	"github.com/qs3c/installment_billing/internal/service"
	"github.com/qs3c/installment_billing/internal/worker"
)

// maxDeliveryAttempts 单条排队提醒的最大发送次数
const maxDeliveryAttempts = 3

func main() {
	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// worker 依赖 Redis：跨进程锁与提醒队列
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	proc, err := processor.New(&cfg.Processor)
	if err != nil {
		log.Fatalf("Failed to init payment processor: %v", err)
	}

	reminderQ := queue.NewQueue(rdb, cfg.Queue.ReminderQueue)
	publisher := pubsub.NewPublisher(rdb)
	locker := lock.NewRedisLocker(rdb, "billing:lock:", cfg.Billing.LockTTL())
	mailer := notify.NewEmailSender(email.NewService(&cfg.Email))

	sender, err := notify.NewSender(cfg.Billing.MessageChannel, email.NewService(&cfg.Email), reminderQ)
	if err != nil {
		log.Fatalf("Failed to init reminder sender: %v", err)
	}

	store := repository.NewStore(db)
	planService := service.NewPlanService(store, publisher)
	chargeService := service.NewChargeService(store, proc, locker, publisher, cfg)
	linkService := service.NewPaymentLinkService(store, proc, &cfg.Processor)
	reminderService := service.NewReminderService(store, linkService, sender, locker, publisher, cfg)

	cronService := cron.NewService(chargeService, planService, reminderService,
		cfg.Billing.ChargeScanHour, cfg.Billing.ReminderIntervalMinutes)
	deliverer := worker.NewDeliverer(reminderQ, mailer, maxDeliveryAttempts)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	cronService.Start()

	workers := cfg.Queue.MaxWorkers
	if workers <= 0 {
		workers = 1
	}
	log.Printf("Worker started, max workers: %d", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			deliverer.Run(ctx, workerID)
		}(i)
	}

	// 等待 context 取消
	<-ctx.Done()
	cronService.Stop()
	wg.Wait()
	log.Println("Worker shutdown complete")
}
