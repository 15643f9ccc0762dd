package handler

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportLeaderboard 导出积分排行榜
// GET /api/v1/export/leaderboard?limit=100
func (h *ExportHandler) ExportLeaderboard(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		response.BadRequest(c, 10001, "limit 必须为非负整数")
		return
	}

	buf, filename, err := h.exportSvc.ExportLeaderboard(c.Request.Context(), limit, time.Now())
	if err != nil {
		handleEngineError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
