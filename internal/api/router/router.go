package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/api/handler"
	"echelon/backend/internal/api/middleware"
	"echelon/backend/internal/service"
	"echelon/backend/pkg/jwt"
	"echelon/backend/pkg/redis"
)

// maxBodyBytes 请求体上限，业务请求均为小 JSON
const maxBodyBytes = 1 << 20

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时跳过限流与 Token 吊销检查；gatherer 为 nil 时不暴露 /metrics
func Setup(
	cfg *config.Config,
	h *handler.Handler,
	ledger service.LedgerService,
	jwtMgr *jwt.Manager,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	logger *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	auth := middleware.JWTAuth(jwtMgr, rdb, logger)
	account := middleware.EnsureAccount(ledger)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 公开路由
		v1.GET("/events/upcoming", h.Event.ListUpcomingEvents)
		v1.GET("/events/:id", h.Event.GetEvent)
		v1.GET("/leaderboard", h.Ledger.GetLeaderboard)

		// 外部电商结账回调（共享密钥）
		v1.POST("/purchases/complete", middleware.WebhookAuth(cfg.Commerce.WebhookSecret), h.Ledger.CompletePurchase)

		// 实时推送通道（Token 可放在 query 中）
		v1.GET("/ws", auth, h.WS.Connect)

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(auth, account)
		{
			// 活动模块
			events := authorized.Group("/events")
			{
				events.GET("", h.Event.ListVisibleEvents)
				events.POST("", middleware.RoleAuth("admin"), h.Event.CreateEvent)
				events.POST("/:id/participate",
					middleware.RateLimit(rdb, cfg.RateLimit.ParticipateLimit, cfg.RateLimit.ParticipateWindow),
					h.Event.Participate)
			}

			// 账本与通知
			authorized.GET("/me/ledger", h.Ledger.GetMyLedger)
			authorized.GET("/notifications", h.Notification.ListNotifications)

			// 导出模块
			export := authorized.Group("/export")
			{
				export.GET("/leaderboard", middleware.RoleAuth("admin"), h.Export.ExportLeaderboard)
			}
		}
	}

	return r
}
