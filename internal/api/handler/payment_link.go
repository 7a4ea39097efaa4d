package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/service"
)

type PaymentLinkHandler struct {
	linkService *service.PaymentLinkService
}

func NewPaymentLinkHandler(linkService *service.PaymentLinkService) *PaymentLinkHandler {
	return &PaymentLinkHandler{linkService: linkService}
}

// Create 为未支付分期生成合并付款链接
// POST /api/v1/billing/payment-links
func (h *PaymentLinkHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	link, err := h.linkService.CreateLink(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, link)
}
