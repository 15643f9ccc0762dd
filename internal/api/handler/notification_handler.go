package handler

import (
	"github.com/gin-gonic/gin"

	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// NotificationHandler 通知 HTTP 处理器
type NotificationHandler struct {
	notificationSvc service.NotificationService
}

// NewNotificationHandler 创建 NotificationHandler
func NewNotificationHandler(notificationSvc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationSvc: notificationSvc}
}

// ListNotifications 当前用户的通知（含全员广播），最新在前
// GET /api/v1/notifications?limit=5
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		response.BadRequest(c, 10001, "limit 必须为非负整数")
		return
	}

	list, err := h.notificationSvc.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		handleEngineError(c, err)
		return
	}

	response.OKList(c, list, len(list))
}
