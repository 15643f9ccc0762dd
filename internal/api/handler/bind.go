package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"echelon/backend/pkg/response"
)

// bindJSON 绑定请求体；失败时写入响应并返回 false
// 超过 BodyLimit 的请求体返回 413，其余返回 400
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return false
	}

	response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
	return false
}
