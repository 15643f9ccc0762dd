package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"echelon/backend/pkg/response"
)

// WebhookSecretHeader 外部电商回调携带的共享密钥头
const WebhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth 校验回调共享密钥（常量时间比较）
func WebhookAuth(secret string) gin.HandlerFunc {
	expected := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(WebhookSecretHeader))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			response.Unauthorized(c, 10002, "回调签名无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
