package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"echelon/backend/internal/service"
	"echelon/backend/pkg/response"
)

// EnsureAccount 首次见到外部身份时在积分账本中开户
// 必须挂在 JWTAuth 之后
func EnsureAccount(ledger service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		if userID == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		if err := ledger.EnsureAccount(c.Request.Context(), userID, c.GetString("username")); err != nil {
			if errors.Is(err, service.ErrStoreUnavailable) {
				response.ServiceUnavailable(c, 50301, "服务繁忙，请稍后重试", 1)
			} else {
				_ = c.Error(err)
				response.InternalError(c)
			}
			c.Abort()
			return
		}

		c.Next()
	}
}
