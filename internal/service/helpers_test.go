package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/installment_billing/config"
	"github.com/qs3c/installment_billing/internal/notify"
	"github.com/qs3c/installment_billing/internal/pkg/lock"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/repository"
	"github.com/qs3c/installment_billing/internal/testutil"
)

// fakeProcessor 记录调用并按测试设定返回结果
type fakeProcessor struct {
	mu          sync.Mutex
	charges     []processor.ChargeRequest
	links       []processor.LinkRequest
	customers   int
	chargeFn    func(req *processor.ChargeRequest) (*processor.Charge, error)
	hang        bool // 扣款阻塞到 ctx 结束
	linkErr     error
	customerErr error
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{}
}

func (f *fakeProcessor) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.customerErr != nil {
		return "", f.customerErr
	}
	f.customers++
	return fmt.Sprintf("cus_new_%d", f.customers), nil
}

func (f *fakeProcessor) ChargeOffSession(ctx context.Context, req *processor.ChargeRequest) (*processor.Charge, error) {
	f.mu.Lock()
	f.charges = append(f.charges, *req)
	n := len(f.charges)
	fn := f.chargeFn
	hang := f.hang
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if fn != nil {
		return fn(req)
	}
	return &processor.Charge{
		ID:     fmt.Sprintf("ch_%d", n),
		Status: processor.ChargeSucceeded,
		Amount: req.Amount,
	}, nil
}

func (f *fakeProcessor) CreatePaymentLink(ctx context.Context, req *processor.LinkRequest) (*processor.PaymentLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	f.links = append(f.links, *req)
	n := len(f.links)
	return &processor.PaymentLink{
		ID:  fmt.Sprintf("plink_%d", n),
		URL: fmt.Sprintf("https://pay.example.com/l/%d", n),
	}, nil
}

func (f *fakeProcessor) VerifyWebhook(payload []byte, signatureHeader string) (*processor.Event, error) {
	return nil, processor.ErrInvalidSignature
}

func (f *fakeProcessor) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charges)
}

// fakeSender 记录发送的消息
type fakeSender struct {
	mu       sync.Mutex
	messages []*notify.Message
	err      error
}

func (s *fakeSender) Send(ctx context.Context, msg *notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakePublisher 记录广播的事件
type fakePublisher struct {
	mu     sync.Mutex
	events []*pubsub.BillingEvent
	err    error
}

func (p *fakePublisher) Publish(ctx context.Context, event *pubsub.BillingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// heldLocker 对指定键始终返回未获取
type heldLocker struct {
	held map[string]bool
}

func (l *heldLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l.held[key] {
		return nil, lock.ErrNotAcquired
	}
	return func() {}, nil
}

var errStoreDown = errors.New("store unavailable")

func testConfig() *config.Config {
	return &config.Config{
		Processor: config.ProcessorConfig{
			Mode:           config.ProcessorModeSandbox,
			Currency:       "usd",
			TimeoutSeconds: 5,
			WebhookSecret:  "whsec_test",
		},
		Billing: config.BillingConfig{
			OverdueBatchLimit:   100,
			ReminderBatchLimit:  50,
			DefaultMaxReminders: 3,
			OrganizationName:    "Northside Swim Club",
		},
	}
}

// testEnv 服务测试环境
type testEnv struct {
	db        *gorm.DB
	store     *repository.Store
	cfg       *config.Config
	proc      *fakeProcessor
	sender    *fakeSender
	publisher *fakePublisher
	locker    *lock.LocalLocker

	plans     *PlanService
	charges   *ChargeService
	links     *PaymentLinkService
	reminders *ReminderService
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	env := &testEnv{
		db:        db,
		store:     repository.NewStore(db),
		cfg:       testConfig(),
		proc:      newFakeProcessor(),
		sender:    &fakeSender{},
		publisher: &fakePublisher{},
		locker:    lock.NewLocalLocker(),
	}

	env.plans = NewPlanService(env.store, env.publisher)
	env.charges = NewChargeService(env.store, env.proc, env.locker, env.publisher, env.cfg)
	env.links = NewPaymentLinkService(env.store, env.proc, &env.cfg.Processor)
	env.reminders = NewReminderService(env.store, env.links, env.sender, env.locker, env.publisher, env.cfg)
	env.setNow(testutil.Date(2025, time.March, 1).Add(9 * time.Hour))
	return env
}

// setNow 固定所有服务的当前时间
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.plans.now = clock
	e.charges.now = clock
	e.reminders.now = clock
}

// openSandbox 打开临时沙箱处理方
func openSandbox(t *testing.T, cfg *config.ProcessorConfig) *processor.Sandbox {
	t.Helper()

	c := *cfg
	c.SandboxPath = filepath.Join(t.TempDir(), "sandbox.db")
	sb, err := processor.OpenSandbox(&c)
	if err != nil {
		t.Fatalf("Failed to open sandbox: %v", err)
	}
	t.Cleanup(func() { sb.Close() })
	return sb
}
