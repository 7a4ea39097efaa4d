package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/service"
)

// writeServiceError 把服务层哨兵错误映射为响应码，未知错误记录日志后返回 5000
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrParentNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrInstallmentNotFound),
		errors.Is(err, service.ErrScheduleNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidInstallmentCount),
		errors.Is(err, service.ErrInstallmentAmountTooBig),
		errors.Is(err, service.ErrInvalidStartDate),
		errors.Is(err, service.ErrInvalidInterval),
		errors.Is(err, service.ErrInvalidFrequency),
		errors.Is(err, service.ErrInvalidInstallment),
		errors.Is(err, service.ErrInvalidTotal),
		errors.Is(err, service.ErrActorRequired),
		errors.Is(err, service.ErrReasonRequired):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrInstallmentNotPaid),
		errors.Is(err, service.ErrInstallmentAlreadyPaid),
		errors.Is(err, service.ErrNothingOutstanding):
		response.BusinessError(c, err.Error())
	case errors.Is(err, service.ErrLinkUnavailable):
		response.UpstreamError(c, err.Error())
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		response.ServerError(c, "")
	}
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
