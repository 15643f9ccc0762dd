package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echelon/backend/internal/notify"
)

// 客户端只发送控制帧，业务消息单向下行
const wsReadLimit = 512

// WSHandler 实时推送连接处理器
type WSHandler struct {
	hub          *notify.Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewWSHandler 创建 WSHandler
// allowOrigins 为空时不校验 Origin
func NewWSHandler(hub *notify.Hub, allowOrigins []string, pingInterval time.Duration, logger *zap.Logger) *WSHandler {
	origins := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		origins[strings.TrimRight(o, "/")] = true
	}

	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Connect 升级为 WebSocket 并注册到连接注册表，阻塞直到客户端断开
// GET /api/v1/ws?token=<access_token>
func (h *WSHandler) Connect(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 失败时已写入 HTTP 错误响应
		h.logger.Warn("WebSocket 升级失败", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client, err := h.hub.Register(conn, userID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer h.hub.Unregister(client)

	conn.SetReadLimit(wsReadLimit)
	if h.pingInterval > 0 {
		pongWait := 2 * h.pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	// 连接被 Hub 剔除时底层连接已关闭，ReadMessage 随即返回错误
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
