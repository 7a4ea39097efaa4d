package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/testutil"
)

func TestPaymentLinkHandler_Create(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)
	fx := testutil.TestPlan(t, tc.DB, parent.ID, testutil.WithAmounts(3000, 4000, 5000))
	require.NoError(t, tc.DB.Model(&model.Installment{}).Where("id = ?", fx.Installments[0].ID).
		Update("status", model.InstallmentStatusPaid).Error)

	w := tc.do(t, "POST", "/billing/payment-links", map[string]interface{}{
		"parent_id":       parent.ID,
		"installment_ids": fx.InstallmentIDs(),
	})
	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)

	data := dataMap(t, resp)
	assert.Equal(t, float64(9000), data["total"])
	assert.Contains(t, data["url"], "/pay/plink_")
	assert.Equal(t, []interface{}{float64(fx.Installments[0].ID)}, data["skipped"])
}

func TestPaymentLinkHandler_NothingOutstanding(t *testing.T) {
	tc := setupBilling(t)
	parent := testutil.TestParent(t, tc.DB)
	fx := testutil.TestPlan(t, tc.DB, parent.ID, testutil.WithAmounts(3000))
	require.NoError(t, tc.DB.Model(&model.Installment{}).Where("id = ?", fx.Installments[0].ID).
		Update("status", model.InstallmentStatusPaid).Error)

	w := tc.do(t, "POST", "/billing/payment-links", map[string]interface{}{
		"parent_id":       parent.ID,
		"installment_ids": fx.InstallmentIDs(),
	})
	assert.Equal(t, response.CodeBusinessRule, parseResponse(t, w).Code)

	w = tc.do(t, "POST", "/billing/payment-links", map[string]interface{}{
		"parent_id":       999999,
		"installment_ids": fx.InstallmentIDs(),
	})
	assert.Equal(t, response.CodeResourceNotFound, parseResponse(t, w).Code)
}
