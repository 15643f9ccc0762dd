package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"echelon/backend/internal/dto"
	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// EventHandler 限量活动 HTTP 处理器
type EventHandler struct {
	eventSvc         service.EventService
	participationSvc service.ParticipationService
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(eventSvc service.EventService, participationSvc service.ParticipationService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc, participationSvc: participationSvc}
}

// ListVisibleEvents 当前用户等级可参与的活动
// GET /api/v1/events
func (h *EventHandler) ListVisibleEvents(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	events, err := h.eventSvc.ListVisible(c.Request.Context(), userID, time.Now().UTC())
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OKList(c, events, len(events))
}

// ListUpcomingEvents 所有未结束的活动
// GET /api/v1/events/upcoming
func (h *EventHandler) ListUpcomingEvents(c *gin.Context) {
	events, err := h.eventSvc.ListUpcoming(c.Request.Context(), time.Now().UTC())
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OKList(c, events, len(events))
}

// GetEvent 活动详情
// GET /api/v1/events/:id
func (h *EventHandler) GetEvent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "活动ID不能为空")
		return
	}

	event, err := h.eventSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OK(c, event)
}

// CreateEvent 创建限量活动（管理员）
// POST /api/v1/events
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req dto.CreateEventRequest
	if !bindJSON(c, &req) {
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	event, err := h.eventSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.Created(c, event)
}

// Participate 参与活动（抢占一份库存）
// POST /api/v1/events/:id/participate
func (h *EventHandler) Participate(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "活动ID不能为空")
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.participationSvc.Participate(c.Request.Context(), userID, id, time.Now().UTC())
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OK(c, result)
}
