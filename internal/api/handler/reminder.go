package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/installment_billing/internal/model/dto"
	"github.com/qs3c/installment_billing/internal/pkg/response"
	"github.com/qs3c/installment_billing/internal/service"
)

type ReminderHandler struct {
	reminderService *service.ReminderService
}

func NewReminderHandler(reminderService *service.ReminderService) *ReminderHandler {
	return &ReminderHandler{reminderService: reminderService}
}

// Run 处理所有到期的提醒计划
// POST /api/v1/billing/reminders/run
func (h *ReminderHandler) Run(c *gin.Context) {
	result, err := h.reminderService.RunDue(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}

// CreateSchedule 为家长的若干分期建立周期提醒
// POST /api/v1/billing/reminders/schedules
func (h *ReminderHandler) CreateSchedule(c *gin.Context) {
	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sched, err := h.reminderService.CreateSchedule(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, sched)
}

// ListSchedules 分页查询家长的提醒计划
// GET /api/v1/billing/reminders/schedules?parent_id=
func (h *ReminderHandler) ListSchedules(c *gin.Context) {
	var q dto.ListSchedulesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.ParamError(c, err.Error())
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 20
	}

	items, total, err := h.reminderService.ListSchedules(c.Request.Context(), q.ParentID, q.Page, q.PageSize)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.SuccessPage(c, total, q.Page, q.PageSize, items)
}

// GetSchedule 获取单个提醒计划
// GET /api/v1/billing/reminders/schedules/:id
func (h *ReminderHandler) GetSchedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		response.ParamError(c, "无效的提醒计划ID")
		return
	}

	sched, err := h.reminderService.GetSchedule(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, sched)
}

// ReplyReceived 家长回复后停用其设置了 stop_on_reply 的提醒
// POST /api/v1/billing/reminders/replies
func (h *ReminderHandler) ReplyReceived(c *gin.Context) {
	var req dto.ReplyReceivedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	result, err := h.reminderService.StopOnReply(c.Request.Context(), req.ParentID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, result)
}
