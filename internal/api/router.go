package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/api/handler"
	"github.com/qs3c/installment_billing/internal/api/middleware"
)

type Router struct {
	planHandler     *handler.PlanHandler
	chargeHandler   *handler.ChargeHandler
	webhookHandler  *handler.WebhookHandler
	reminderHandler *handler.ReminderHandler
	linkHandler     *handler.PaymentLinkHandler
	cfg             *config.Config
}

func NewRouter(
	planHandler *handler.PlanHandler,
	chargeHandler *handler.ChargeHandler,
	webhookHandler *handler.WebhookHandler,
	reminderHandler *handler.ReminderHandler,
	linkHandler *handler.PaymentLinkHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		planHandler:     planHandler,
		chargeHandler:   chargeHandler,
		webhookHandler:  webhookHandler,
		reminderHandler: reminderHandler,
		linkHandler:     linkHandler,
		cfg:             cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 处理方回调，靠签名认证
		api.POST("/billing/webhook", r.webhookHandler.Handle)

		// 员工与定时任务接口
		billing := api.Group("/billing")
		billing.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 计划
			billing.POST("/plans", r.planHandler.Create)
			billing.POST("/plans/preview", r.planHandler.Preview)
			billing.GET("/plans/:id", r.planHandler.Get)
			billing.DELETE("/plans/:id", r.planHandler.Delete)

			// 分期
			billing.POST("/installments/:id/charge", r.chargeHandler.Charge)
			billing.POST("/installments/:id/unmark", r.planHandler.Unmark)
			billing.POST("/installments/:id/mark-paid", r.planHandler.MarkPaid)
			billing.POST("/charges/overdue", r.chargeHandler.ChargeOverdue)

			// 提醒
			reminders := billing.Group("/reminders")
			{
				reminders.POST("/run", r.reminderHandler.Run)
				reminders.POST("/schedules", r.reminderHandler.CreateSchedule)
				reminders.GET("/schedules", r.reminderHandler.ListSchedules)
				reminders.GET("/schedules/:id", r.reminderHandler.GetSchedule)
				reminders.POST("/replies", r.reminderHandler.ReplyReceived)
			}

			billing.POST("/payment-links", r.linkHandler.Create)
		}
	}

	return engine
}
