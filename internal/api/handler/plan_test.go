package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/testutil"
)

func TestPlanHandler_Create_Success(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)

	w := tc.do(t, "POST", "/billing/plans", map[string]interface{}{
		"parent_id":         parent.ID,
		"total_amount":      100000,
		"installment_count": 3,
		"start_date":        "2025-01-15",
	})

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	data := dataMap(t, resp)
	installments, ok := data["installments"].([]interface{})
	require.True(t, ok)
	require.Len(t, installments, 3)

	last := installments[2].(map[string]interface{})
	assert.Equal(t, float64(33334), last["amount"])
	assert.Equal(t, "card", data["payment_method"])
}

func TestPlanHandler_Create_Validation(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{
			name: "missing total",
			body: map[string]interface{}{"parent_id": parent.ID, "installment_count": 3, "start_date": "2025-01-15"},
			code: response.CodeParamError,
		},
		{
			name: "bad start date",
			body: map[string]interface{}{"parent_id": parent.ID, "total_amount": 9000, "installment_count": 3, "start_date": "15/01/2025"},
			code: response.CodeParamError,
		},
		{
			name: "installment amount too big",
			body: map[string]interface{}{"parent_id": parent.ID, "total_amount": 9000, "installment_amount": 5000, "installment_count": 3, "start_date": "2025-01-15"},
			code: response.CodeParamError,
		},
		{
			name: "unknown parent",
			body: map[string]interface{}{"parent_id": 999999, "total_amount": 9000, "installment_count": 3, "start_date": "2025-01-15"},
			code: response.CodeResourceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tc.do(t, "POST", "/billing/plans", tt.body)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.code, resp.Code)
		})
	}

	var count int64
	tc.DB.Model(&model.Installment{}).Count(&count)
	assert.Zero(t, count)
}

func TestPlanHandler_Preview(t *testing.T) {
	tc := setupBilling(t)

	w := tc.do(t, "POST", "/billing/plans/preview", map[string]interface{}{
		"parent_id":         1,
		"total_amount":      10000,
		"installment_count": 2,
		"start_date":        "2025-01-31",
	})

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	items := dataMap(t, resp)["installments"].([]interface{})
	require.Len(t, items, 2)
	assert.Equal(t, "2025-02-28", items[1].(map[string]interface{})["due_date"])

	var count int64
	tc.DB.Model(&model.PaymentPlan{}).Count(&count)
	assert.Zero(t, count)
}

func TestPlanHandler_Get(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)
	fx := testutil.TestPlan(t, tc.DB, parent.ID)

	w := tc.do(t, "GET", fmt.Sprintf("/billing/plans/%d", fx.Plan.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Len(t, dataMap(t, resp)["installments"], 3)

	w = tc.do(t, "GET", "/billing/plans/999999", nil)
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)

	w = tc.do(t, "GET", "/billing/plans/abc", nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestPlanHandler_Delete(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)
	fx := testutil.TestPlan(t, tc.DB, parent.ID)
	sched := testutil.TestSchedule(t, tc.DB, parent.ID, fx.InstallmentIDs())

	w := tc.do(t, "DELETE", fmt.Sprintf("/billing/plans/%d", fx.Plan.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	data := dataMap(t, resp)
	assert.Equal(t, float64(3), data["deleted_installments"])
	assert.Equal(t, []interface{}{float64(sched.ID)}, data["pruned_schedules"])

	var reloaded model.RecurringReminderSchedule
	require.NoError(t, tc.DB.First(&reloaded, sched.ID).Error)
	assert.False(t, reloaded.Active)
	assert.Empty(t, reloaded.InstallmentIDs)
}

func TestPlanHandler_MarkPaidAndUnmark(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)
	fx := testutil.TestPlan(t, tc.DB, parent.ID, testutil.WithPlanPaymentMethod(model.PaymentMethodCash))
	inst := fx.Installments[0]

	w := tc.do(t, "POST", fmt.Sprintf("/billing/installments/%d/mark-paid", inst.ID), nil)
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, model.InstallmentStatusPaid, dataMap(t, resp)["status"])

	// 已支付的分期不能再次登记
	w = tc.do(t, "POST", fmt.Sprintf("/billing/installments/%d/mark-paid", inst.ID), map[string]string{"note": "check #1002"})
	assert.Equal(t, response.CodeBusinessRule, parseResponse(t, w).Code)

	// 撤销必须填写原因
	w = tc.do(t, "POST", fmt.Sprintf("/billing/installments/%d/unmark", inst.ID), map[string]string{})
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = tc.do(t, "POST", fmt.Sprintf("/billing/installments/%d/unmark", inst.ID), map[string]string{"reason": "check bounced"})
	resp = parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, model.InstallmentStatusPending, dataMap(t, resp)["status"])

	var adjustments []model.InstallmentAdjustment
	require.NoError(t, tc.DB.Where("installment_id = ?", inst.ID).Order("id").Find(&adjustments).Error)
	require.Len(t, adjustments, 2)
	assert.Equal(t, testActor, adjustments[1].Actor)
	assert.Equal(t, "check bounced", adjustments[1].Reason)
}
