package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/api/middleware"
	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
	"github.com/qs3c/installment_billing/internal/service"
	"github.com/qs3c/installment_billing/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testActor = "bursar@northside.example"

// recordingSender 记录发出的提醒
type recordingSender struct {
	mu       sync.Mutex
	messages []*notify.Message
}

func (s *recordingSender) Send(ctx context.Context, msg *notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type testContext struct {
	DB      *gorm.DB
	Sandbox *processor.Sandbox
	Sender  *recordingSender
	Router  *gin.Engine
}

// setupBilling 用内存库与沙箱处理方组装全部计费接口
func setupBilling(t *testing.T) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Processor: config.ProcessorConfig{
			Mode:                      config.ProcessorModeSandbox,
			Currency:                  "usd",
			TimeoutSeconds:            5,
			WebhookSecret:             "whsec_handler",
			SignatureToleranceSeconds: 300,
			SandboxPath:               filepath.Join(t.TempDir(), "sandbox.db"),
			SuccessURL:                "https://club.example.com/paid",
		},
		Billing: config.BillingConfig{
			OverdueBatchLimit:   100,
			ReminderBatchLimit:  50,
			DefaultMaxReminders: 3,
			OrganizationName:    "Northside Swim Club",
		},
	}

	sb, err := processor.OpenSandbox(&cfg.Processor)
	require.NoError(t, err)
	t.Cleanup(func() { sb.Close() })

	store := repository.NewStore(db)
	locker := lock.NewLocalLocker()
	sender := &recordingSender{}

	plans := service.NewPlanService(store, nil)
	charges := service.NewChargeService(store, sb, locker, nil, cfg)
	links := service.NewPaymentLinkService(store, sb, &cfg.Processor)
	reminders := service.NewReminderService(store, links, sender, locker, nil, cfg)
	webhooks := service.NewWebhookService(store, sb, nil)

	planHandler := NewPlanHandler(plans)
	chargeHandler := NewChargeHandler(charges)
	reminderHandler := NewReminderHandler(reminders)
	linkHandler := NewPaymentLinkHandler(links)
	webhookHandler := NewWebhookHandler(webhooks)

	router := gin.New()
	router.POST("/billing/webhook", webhookHandler.Handle)

	staff := router.Group("/billing")
	staff.Use(func(c *gin.Context) {
		c.Set(middleware.StaffIDKey, int64(7))
		c.Set(middleware.ActorKey, testActor)
		c.Next()
	})
	staff.POST("/plans", planHandler.Create)
	staff.POST("/plans/preview", planHandler.Preview)
	staff.GET("/plans/:id", planHandler.Get)
	staff.DELETE("/plans/:id", planHandler.Delete)
	staff.POST("/installments/:id/charge", chargeHandler.Charge)
	staff.POST("/installments/:id/unmark", planHandler.Unmark)
	staff.POST("/installments/:id/mark-paid", planHandler.MarkPaid)
	staff.POST("/charges/overdue", chargeHandler.ChargeOverdue)
	staff.POST("/reminders/run", reminderHandler.Run)
	staff.POST("/reminders/schedules", reminderHandler.CreateSchedule)
	staff.GET("/reminders/schedules", reminderHandler.ListSchedules)
	staff.GET("/reminders/schedules/:id", reminderHandler.GetSchedule)
	staff.POST("/reminders/replies", reminderHandler.ReplyReceived)
	staff.POST("/payment-links", linkHandler.Create)

	return &testContext{DB: db, Sandbox: sb, Sender: sender, Router: router}
}

func (tc *testContext) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	tc.Router.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}
