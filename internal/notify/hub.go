package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/metrics"
)

// ErrHubClosed 连接注册表已关闭（服务停止中）
var ErrHubClosed = errors.New("实时连接注册表已关闭")

// Conn 实时连接的最小写接口，*websocket.Conn 满足该接口
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client 注册到 Hub 的一条实时连接
// 每条连接独占一个发送缓冲与写协程，写操作只发生在写协程中
type Client struct {
	ID     string
	UserID string

	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Done 连接被移除后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hub 实时连接注册表
// 广播对每条连接非阻塞投递：缓冲已满或写失败的连接直接断开，不影响其他连接
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHub 创建连接注册表
func NewHub(cfg *config.WebSocketConfig, m *metrics.Metrics, logger *zap.Logger) *Hub {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 16
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Hub{
		clients:      make(map[*Client]struct{}),
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		pingInterval: cfg.PingInterval,
		metrics:      m,
		logger:       logger,
	}
}

// Register 注册连接并启动其写协程
func (h *Hub) Register(conn Conn, userID string) (*Client, error) {
	c := &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.metrics.ConnectionOpened()
	h.logger.Debug("实时连接已注册", zap.String("client_id", c.ID), zap.String("user_id", userID))

	go h.writePump(c)
	return c, nil
}

// Unregister 客户端主动断开时移除连接
func (h *Hub) Unregister(c *Client) {
	if h.remove(c) {
		h.logger.Debug("实时连接已断开", zap.String("client_id", c.ID))
	}
}

// Broadcast 向所有连接投递一帧，不会阻塞
func (h *Hub) Broadcast(payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c, "发送缓冲已满")
	}
}

// Deliver 本地投递，实现 Transport
func (h *Hub) Deliver(_ context.Context, payload []byte) error {
	h.Broadcast(payload)
	return nil
}

// Len 当前连接数
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭全部连接，此后拒绝新的注册
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	h.logger.Info("实时连接注册表已关闭", zap.Int("closed", len(clients)))
}

// ── 内部 ──

func (h *Hub) writePump(c *Client) {
	var tick <-chan time.Time
	if h.pingInterval > 0 {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := h.write(c, websocket.TextMessage, payload); err != nil {
				h.drop(c, "写入失败", zap.Error(err))
				return
			}
		case <-tick:
			if err := h.write(c, websocket.PingMessage, nil); err != nil {
				h.drop(c, "心跳失败", zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) write(c *Client, messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}

func (h *Hub) drop(c *Client, reason string, fields ...zap.Field) {
	if !h.remove(c) {
		return
	}
	h.metrics.ConnectionDropped()
	h.logger.Warn("实时连接已剔除",
		append([]zap.Field{
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID),
			zap.String("reason", reason),
		}, fields...)...,
	)
}

// remove 只有第一次调用返回 true
func (h *Hub) remove(c *Client) bool {
	removed := false
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()

		close(c.done)
		_ = c.conn.Close()
		h.metrics.ConnectionClosed()
		removed = true
	})
	return removed
}
