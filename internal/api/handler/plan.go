package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/api/middleware"
	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/service"
)

type PlanHandler struct {
	planService *service.PlanService
}

func NewPlanHandler(planService *service.PlanService) *PlanHandler {
	return &PlanHandler{planService: planService}
}

// Create 创建分期付款计划
// POST /api/v1/billing/plans
func (h *PlanHandler) Create(c *gin.Context) {
	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	plan, err := h.planService.CreatePlan(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, plan)
}

// Preview 预览分期安排，不落库
// POST /api/v1/billing/plans/preview
func (h *PlanHandler) Preview(c *gin.Context) {
	var req dto.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	installments, err := h.planService.Preview(&req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"installments": dto.NewSchedulePreview(installments),
	})
}

// Get 获取计划及其分期
// GET /api/v1/billing/plans/:id
func (h *PlanHandler) Get(c *gin.Context) {
	planID, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的计划ID")
		return
	}

	plan, err := h.planService.GetPlan(c.Request.Context(), planID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, plan)
}

// Delete 删除计划并清理提醒计划中的分期引用
// DELETE /api/v1/billing/plans/:id
func (h *PlanHandler) Delete(c *gin.Context) {
	planID, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的计划ID")
		return
	}

	result, err := h.planService.DeletePlan(c.Request.Context(), planID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.SuccessWithMessage(c, "删除成功", result)
}

// Unmark 撤销分期已支付状态，操作人取自令牌
// POST /api/v1/billing/installments/:id/unmark
func (h *PlanHandler) Unmark(c *gin.Context) {
	installmentID, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的分期ID")
		return
	}

	var req dto.UnmarkInstallmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	inst, err := h.planService.UnmarkInstallment(c.Request.Context(), installmentID, middleware.GetActor(c), req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, inst)
}

// MarkPaid 人工登记线下付款
// POST /api/v1/billing/installments/:id/mark-paid
func (h *PlanHandler) MarkPaid(c *gin.Context) {
	installmentID, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的分期ID")
		return
	}

	var req dto.MarkInstallmentPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, err.Error())
			return
		}
	}

	inst, err := h.planService.MarkInstallmentPaid(c.Request.Context(), installmentID, middleware.GetActor(c), req.Note)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, inst)
}
