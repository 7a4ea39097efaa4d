package handler

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/processor"
	"github.com/qs3c/installment_billing/internal/service"
)

// maxWebhookBody 回调请求体上限
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService *service.WebhookService
}

func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// Handle 接收处理方回调。返回真实 HTTP 状态：处理方依据状态码决定是否重投。
// POST /api/v1/billing/webhook
func (h *WebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.WithStatus(c, http.StatusBadRequest, response.CodeParamError, "无法读取请求体")
		return
	}
	if len(payload) > maxWebhookBody {
		log.Printf("Webhook rejected: body exceeds %d bytes", maxWebhookBody)
		response.WithStatus(c, http.StatusRequestEntityTooLarge, response.CodeParamError, "请求体过大")
		return
	}

	result, err := h.webhookService.HandleEvent(c.Request.Context(), payload, c.GetHeader(processor.SignatureHeader))
	if err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			response.WithStatus(c, http.StatusBadRequest, response.CodeAuthFailed, service.ErrInvalidSignature.Error())
			return
		}
		log.Printf("Webhook processing failed: %v", err)
		response.WithStatus(c, http.StatusInternalServerError, response.CodeServerError, "")
		return
	}

	response.Success(c, result)
}
