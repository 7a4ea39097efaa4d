package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/service"
)

type ChargeHandler struct {
	chargeService *service.ChargeService
}

func NewChargeHandler(chargeService *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{chargeService: chargeService}
}

// Charge 对单个分期发起离线扣款。扣款失败以业务码返回，data 中带结果明细。
// POST /api/v1/billing/installments/:id/charge
func (h *ChargeHandler) Charge(c *gin.Context) {
	installmentID, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的分期ID")
		return
	}

	outcome, err := h.chargeService.AttemptCharge(c.Request.Context(), installmentID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	writeChargeOutcome(c, outcome)
}

// ChargeOverdue 扫描到期未付分期并逐个扣款
// POST /api/v1/billing/charges/overdue
func (h *ChargeHandler) ChargeOverdue(c *gin.Context) {
	result, err := h.chargeService.ChargeOverdue(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

func writeChargeOutcome(c *gin.Context, outcome *service.ChargeOutcome) {
	switch outcome.Status {
	case service.ChargeSucceeded:
		response.Success(c, outcome)
	case service.ChargeSkipped:
		switch outcome.Reason {
		case service.ReasonNotFound:
			response.ErrorWithData(c, response.CodeResourceNotFound, service.ErrInstallmentNotFound.Error(), outcome)
		case service.ReasonInProgress:
			response.ErrorWithData(c, response.CodeDuplicateAction, "该家长的扣款正在处理中", outcome)
		default:
			response.SuccessWithMessage(c, "skipped", outcome)
		}
	default:
		message := outcome.Message
		if message == "" {
			message = outcome.Reason
		}
		code := response.CodeBusinessRule
		switch outcome.Reason {
		case service.ReasonTimeout, service.ReasonProcessorUnavailable, service.ReasonProcessorError:
			code = response.CodeUpstreamError
		}
		response.ErrorWithData(c, code, message, outcome)
	}
}
