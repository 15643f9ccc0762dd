package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// ── 业务码 ──
// 200xx 活动与参与；210xx 结账入账；220xx 导出；503xx 存储暂不可用

const (
	codeEventNotFound    = 20001
	codeEventExpired     = 20002
	codeTierMismatch     = 20003
	codeSoldOut          = 20004
	codeEventInvalid     = 20005
	codeUserNotFound     = 20006
	codePurchaseInvalid  = 21001
	codePurchaseDup      = 21002
	codeExportEmpty      = 22001
	codeStoreUnavailable = 50301
)

// retryAfterSeconds 存储暂不可用时建议的重试间隔
const retryAfterSeconds = 1

// handleEngineError 引擎错误 → HTTP 响应
// 终态业务结果原样返回；只有 ErrStoreUnavailable 附带 Retry-After
func handleEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, codeEventNotFound, "活动不存在")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, codeUserNotFound, "用户不存在")
	case errors.Is(err, service.ErrEventExpired):
		response.Gone(c, codeEventExpired, "活动已结束")
	case errors.Is(err, service.ErrTierMismatch):
		response.Forbidden(c, codeTierMismatch, "会员等级不符合活动要求")
	case errors.Is(err, service.ErrSoldOut):
		response.Conflict(c, codeSoldOut, "活动已售罄")
	case errors.Is(err, service.ErrEventInvalid):
		response.ErrorWithDetails(c, http.StatusBadRequest, codeEventInvalid, "活动参数不合法", err.Error())
	case errors.Is(err, service.ErrPurchaseInvalid):
		response.ErrorWithDetails(c, http.StatusBadRequest, codePurchaseInvalid, "结账参数不合法", err.Error())
	case errors.Is(err, service.ErrPurchaseDuplicate):
		response.Conflict(c, codePurchaseDup, "该订单已入账")
	case errors.Is(err, service.ErrExportEmpty):
		response.NotFound(c, codeExportEmpty, "排行榜暂无数据")
	case errors.Is(err, service.ErrStoreUnavailable):
		response.ServiceUnavailable(c, codeStoreUnavailable, "服务繁忙，请稍后重试", retryAfterSeconds)
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
