package main

import (
	"fmt"
	"log"
	"os"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/api"
	"github.com/qs3c/installment_billing/internal/api/handler"
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
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connected")

	// Redis 可选：不可用时退化为进程内锁，且不广播事件
	var (
		locker    service.Locker = lock.NewLocalLocker()
		publisher service.EventPublisher
		reminderQ *queue.Queue
	)
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Printf("Warning: Redis unavailable, using in-process locks: %v", err)
	} else {
		locker = lock.NewRedisLocker(rdb, "billing:lock:", cfg.Billing.LockTTL())
		publisher = pubsub.NewPublisher(rdb)
		reminderQ = queue.NewQueue(rdb, cfg.Queue.ReminderQueue)
		log.Println("Redis connected")
	}

	// 初始化支付处理方
	proc, err := processor.New(&cfg.Processor)
	if err != nil {
		log.Fatalf("Failed to init payment processor: %v", err)
	}
	log.Printf("Payment processor mode: %s", cfg.Processor.Mode)

	sender, err := notify.NewSender(cfg.Billing.MessageChannel, email.NewService(&cfg.Email), reminderQ)
	if err != nil {
		log.Fatalf("Failed to init reminder sender: %v", err)
	}

	// 初始化 Service
	store := repository.NewStore(db)
	planService := service.NewPlanService(store, publisher)
	chargeService := service.NewChargeService(store, proc, locker, publisher, cfg)
	linkService := service.NewPaymentLinkService(store, proc, &cfg.Processor)
	reminderService := service.NewReminderService(store, linkService, sender, locker, publisher, cfg)
	webhookService := service.NewWebhookService(store, proc, publisher)

	// 初始化 Router
	router := api.NewRouter(
		handler.NewPlanHandler(planService),
		handler.NewChargeHandler(chargeService),
		handler.NewWebhookHandler(webhookService),
		handler.NewReminderHandler(reminderService),
		handler.NewPaymentLinkHandler(linkService),
		cfg,
	)
	engine := router.Setup()

	// 启动服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
