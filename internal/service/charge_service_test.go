package service

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/pubsub"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/testutil"
)

func declineWith(code string) func(*processor.ChargeRequest) (*processor.Charge, error) {
	return func(req *processor.ChargeRequest) (*processor.Charge, error) {
		return nil, &processor.Error{
			StatusCode:  402,
			Type:        "card_error",
			Code:        processor.CodeCardDeclined,
			DeclineCode: code,
			Message:     "Your card was declined.",
		}
	}
}

func TestChargeService_AttemptCharge_Idempotent(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID, testutil.WithAmounts(5000))
	instID := fx.Installments[0].ID

	first, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSucceeded, first.Status)
	assert.Equal(t, "ch_1", first.ChargeID)
	assert.Equal(t, int64(5000), first.Amount)

	second, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSkipped, second.Status)
	assert.Equal(t, ReasonAlreadyPaid, second.Reason)

	require.Equal(t, 1, env.proc.chargeCount())
	req := env.proc.charges[0]
	assert.Equal(t, IdempotencyKey(instID, 0), req.IdempotencyKey)
	assert.Equal(t, parent.ProcessorCustomerID, req.CustomerID)
	assert.Equal(t, parent.DefaultPaymentMethodID, req.PaymentMethodID)
	assert.Equal(t, SourceInstallmentCharge, req.Metadata[MetaSource])
	assert.Equal(t, strconv.FormatInt(instID, 10), req.Metadata[MetaInstallmentIDs])
	assert.Equal(t, "usd", req.Currency)

	inst, err := env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPaid, inst.Status)
	assert.Equal(t, "ch_1", inst.ProcessorChargeID)
	assert.Equal(t, int64(5000), inst.AmountPaid)
	assert.Equal(t, 1, inst.ChargeAttempts)
	require.NotNil(t, inst.PaidAt)

	plan, err := env.store.Plans.GetByID(ctx, fx.Plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanStatusCompleted, plan.Status)

	assert.Contains(t, env.publisher.types(), pubsub.EventInstallmentPaid)
}

func TestChargeService_AttemptCharge_NoPaymentMethod(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db, testutil.WithoutPaymentMethod())
	fx := testutil.TestPlan(t, env.db, parent.ID)

	outcome, err := env.charges.AttemptCharge(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, outcome.Status)
	assert.Equal(t, ReasonNoPaymentMethod, outcome.Reason)
	assert.Zero(t, env.proc.chargeCount())

	inst, err := env.store.Installments.GetByID(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPending, inst.Status)
}

func TestChargeService_AttemptCharge_Skipped(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)

	outcome, err := env.charges.AttemptCharge(ctx, 424242)
	require.NoError(t, err)
	assert.Equal(t, ChargeSkipped, outcome.Status)
	assert.Equal(t, ReasonNotFound, outcome.Reason)

	check := testutil.TestPlan(t, env.db, parent.ID, testutil.WithPlanPaymentMethod(model.PaymentMethodCheck))
	outcome, err = env.charges.AttemptCharge(ctx, check.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSkipped, outcome.Status)
	assert.Equal(t, ReasonManualPaymentMethod, outcome.Reason)

	card := testutil.TestPlan(t, env.db, parent.ID)
	locked := NewChargeService(env.store, env.proc, &heldLocker{held: map[string]bool{parentLockKey(parent.ID): true}}, nil, env.cfg)
	outcome, err = locked.AttemptCharge(ctx, card.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSkipped, outcome.Status)
	assert.Equal(t, ReasonInProgress, outcome.Reason)

	assert.Zero(t, env.proc.chargeCount())
}

func TestChargeService_AttemptCharge_Declined(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID)
	instID := fx.Installments[0].ID

	env.proc.chargeFn = declineWith("insufficient_funds")

	outcome, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, outcome.Status)
	assert.Equal(t, ReasonCardDeclined, outcome.Reason)
	assert.Equal(t, "insufficient_funds", outcome.DeclineCode)
	assert.NotEmpty(t, outcome.Message)

	inst, err := env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPending, inst.Status)
	assert.Equal(t, 1, inst.ChargeAttempts)
	assert.Contains(t, inst.LastChargeError, "insufficient_funds")
	assert.Nil(t, inst.PaidAt)

	assert.Contains(t, env.publisher.types(), pubsub.EventChargeDeclined)
}

func TestChargeService_AttemptCharge_ChargeStatusFailed(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID)

	env.proc.chargeFn = func(req *processor.ChargeRequest) (*processor.Charge, error) {
		return &processor.Charge{ID: "ch_action", Status: processor.ChargeRequiresAction, Amount: req.Amount}, nil
	}

	outcome, err := env.charges.AttemptCharge(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, outcome.Status)
	assert.Equal(t, ReasonRequiresAction, outcome.Reason)
	assert.Equal(t, "ch_action", outcome.ChargeID)

	inst, err := env.store.Installments.GetByID(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPending, inst.Status)
}

func TestChargeService_AttemptCharge_ProcessorErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"timeout", fmt.Errorf("post /v1/charges: %w", context.DeadlineExceeded), ReasonTimeout},
		{"unavailable", &processor.Error{StatusCode: 503, Code: "api_error", Message: "try later"}, ReasonProcessorUnavailable},
		{"rate limited", &processor.Error{StatusCode: 429, Code: "rate_limit", Message: "slow down"}, ReasonProcessorUnavailable},
		{"unknown", &processor.Error{StatusCode: 400, Code: "amount_too_small", Message: "too small"}, ReasonProcessorError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			ctx := context.Background()
			parent := testutil.TestParent(t, env.db)
			fx := testutil.TestPlan(t, env.db, parent.ID)

			env.proc.chargeFn = func(*processor.ChargeRequest) (*processor.Charge, error) {
				return nil, tt.err
			}

			outcome, err := env.charges.AttemptCharge(ctx, fx.Installments[0].ID)
			require.NoError(t, err)
			assert.Equal(t, ChargeFailed, outcome.Status)
			assert.Equal(t, tt.reason, outcome.Reason)

			inst, err := env.store.Installments.GetByID(ctx, fx.Installments[0].ID)
			require.NoError(t, err)
			assert.Equal(t, model.InstallmentStatusPending, inst.Status)
			assert.Nil(t, inst.PaidAt)
		})
	}
}

func TestChargeService_AttemptCharge_HungProcessorTimesOut(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID)
	instID := fx.Installments[0].ID

	env.cfg.Processor.TimeoutSeconds = 1
	env.proc.hang = true

	start := time.Now()
	outcome, err := env.charges.AttemptCharge(ctx, instID)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, outcome.Status)
	assert.Equal(t, ReasonTimeout, outcome.Reason)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Equal(t, 1, env.proc.chargeCount())

	inst, err := env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPending, inst.Status)
	assert.Nil(t, inst.PaidAt)
	assert.Empty(t, inst.ProcessorChargeID)
	assert.Equal(t, 1, inst.ChargeAttempts)
}

func TestChargeService_AttemptCharge_IdempotencyConflictRetry(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID)
	instID := fx.Installments[0].ID

	calls := 0
	env.proc.chargeFn = func(req *processor.ChargeRequest) (*processor.Charge, error) {
		calls++
		if calls == 1 {
			return nil, &processor.Error{StatusCode: 409, Code: processor.CodeIdempotencyConflict, Message: "key in use"}
		}
		return &processor.Charge{ID: "ch_retry", Status: processor.ChargeSucceeded, Amount: req.Amount}, nil
	}

	outcome, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSucceeded, outcome.Status)

	require.Equal(t, 2, env.proc.chargeCount())
	now := env.charges.now()
	assert.Equal(t, IdempotencyKey(instID, 0), env.proc.charges[0].IdempotencyKey)
	assert.Equal(t, fmt.Sprintf("inst:%d:%d", instID, now.Unix()), env.proc.charges[1].IdempotencyKey)
}

func TestChargeService_AttemptCharge_AfterUnmarkChargesAgain(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	sb := openSandbox(t, &env.cfg.Processor)
	charges := NewChargeService(env.store, sb, env.locker, env.publisher, env.cfg)
	charges.now = env.charges.now

	customerID, err := sb.CreateCustomer(ctx, "Ana Ruiz", "ana@example.com")
	require.NoError(t, err)
	parent := testutil.TestParent(t, env.db, testutil.WithPaymentMethod(customerID, "pm_card_visa"))
	fx := testutil.TestPlan(t, env.db, parent.ID, testutil.WithAmounts(4500))
	instID := fx.Installments[0].ID

	first, err := charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	require.Equal(t, ChargeSucceeded, first.Status)

	_, err = env.plans.UnmarkInstallment(ctx, instID, "staff:1", "charge refunded")
	require.NoError(t, err)

	key, err := charges.ChargeKey(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("inst:%d:r1", instID), key)

	second, err := charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	require.Equal(t, ChargeSucceeded, second.Status)
	assert.NotEqual(t, first.ChargeID, second.ChargeID)

	recorded, err := sb.Charges()
	require.NoError(t, err)
	assert.Len(t, recorded, 2)

	inst, err := env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPaid, inst.Status)
	assert.Equal(t, second.ChargeID, inst.ProcessorChargeID)
}

func TestChargeService_AttemptCharge_ConflictTwice(t *testing.T) {
	env := setupEnv(t)
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID)

	env.proc.chargeFn = func(*processor.ChargeRequest) (*processor.Charge, error) {
		return nil, &processor.Error{StatusCode: 409, Code: processor.CodeIdempotencyConflict}
	}

	outcome, err := env.charges.AttemptCharge(context.Background(), fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonIdempotencyConflict, outcome.Reason)
	assert.Equal(t, 2, env.proc.chargeCount())
}

func TestChargeService_AttemptCharge_InvalidCustomer(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	parent := testutil.TestParent(t, env.db, testutil.WithPaymentMethod("cus_gone", "pm_card"))
	fx := testutil.TestPlan(t, env.db, parent.ID)

	env.proc.chargeFn = func(*processor.ChargeRequest) (*processor.Charge, error) {
		return nil, &processor.Error{StatusCode: 400, Code: processor.CodeResourceMissing, Param: "customer", Message: "No such customer"}
	}

	outcome, err := env.charges.AttemptCharge(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ChargeFailed, outcome.Status)
	assert.Equal(t, ReasonInvalidCustomer, outcome.Reason)

	updated, err := env.store.Parents.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_new_1", updated.ProcessorCustomerID)
	assert.Empty(t, updated.DefaultPaymentMethodID)

	// 新客户尚未绑定支付方式
	outcome, err = env.charges.AttemptCharge(ctx, fx.Installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, ReasonNoPaymentMethod, outcome.Reason)
	assert.Equal(t, 1, env.proc.chargeCount())
}

func TestChargeService_MaxChargeAttempts(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	env.cfg.Billing.MaxChargeAttempts = 2
	parent := testutil.TestParent(t, env.db)
	fx := testutil.TestPlan(t, env.db, parent.ID, testutil.WithAmounts(5000))
	instID := fx.Installments[0].ID

	env.proc.chargeFn = declineWith("generic_decline")

	_, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	inst, err := env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPending, inst.Status)

	_, err = env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	inst, err = env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusFailed, inst.Status)
	assert.Equal(t, 2, inst.ChargeAttempts)

	// 失败的分期不再进入批量扫描
	batch, err := env.charges.ChargeOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, batch.Attempted)

	// 显式重试：failed → pending → paid
	env.proc.chargeFn = nil
	outcome, err := env.charges.AttemptCharge(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, ChargeSucceeded, outcome.Status)

	inst, err = env.store.Installments.GetByID(ctx, instID)
	require.NoError(t, err)
	assert.Equal(t, model.InstallmentStatusPaid, inst.Status)
}

func TestChargeService_ChargeOverdue(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	payer := testutil.TestParent(t, env.db)
	noCard := testutil.TestParent(t, env.db, testutil.WithoutPaymentMethod())
	decliner := testutil.TestParent(t, env.db, testutil.WithPaymentMethod("cus_decliner", "pm_decline"))

	paid := testutil.TestPlan(t, env.db, payer.ID, testutil.WithAmounts(5000),
		testutil.WithStartDate(testutil.Date(2025, time.January, 15)))
	missing := testutil.TestPlan(t, env.db, noCard.ID, testutil.WithAmounts(4000),
		testutil.WithStartDate(testutil.Date(2025, time.February, 1)))
	declined := testutil.TestPlan(t, env.db, decliner.ID, testutil.WithAmounts(3000),
		testutil.WithStartDate(testutil.Date(2025, time.February, 10)))
	testutil.TestPlan(t, env.db, payer.ID, testutil.WithAmounts(9000),
		testutil.WithStartDate(testutil.Date(2025, time.April, 1)))

	sched := testutil.TestSchedule(t, env.db, payer.ID, paid.InstallmentIDs())

	env.proc.chargeFn = func(req *processor.ChargeRequest) (*processor.Charge, error) {
		if req.PaymentMethodID == "pm_decline" {
			return &processor.Charge{ID: "ch_declined", Status: processor.ChargeFailed, DeclineCode: "generic_decline"}, nil
		}
		return &processor.Charge{ID: "ch_ok", Status: processor.ChargeSucceeded, Amount: req.Amount}, nil
	}

	result, err := env.charges.ChargeOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Skipped)
	require.Len(t, result.Results, 3)

	assert.Equal(t, paid.Installments[0].ID, result.Results[0].InstallmentID)
	assert.Equal(t, ChargeSucceeded, result.Results[0].Status)
	assert.Equal(t, missing.Installments[0].ID, result.Results[1].InstallmentID)
	assert.Equal(t, ReasonNoPaymentMethod, result.Results[1].Reason)
	assert.Equal(t, declined.Installments[0].ID, result.Results[2].InstallmentID)
	assert.Equal(t, ReasonCardDeclined, result.Results[2].Reason)
	assert.Equal(t, "generic_decline", result.Results[2].DeclineCode)

	assert.Equal(t, 2, env.proc.chargeCount())

	stopped, err := env.store.Schedules.GetByID(ctx, sched.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Active)

	// 再次运行只剩两个未结清的分期
	again, err := env.charges.ChargeOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempted)
	assert.Zero(t, again.Succeeded)
}
