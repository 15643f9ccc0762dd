// Package notify 通知扇出：实时连接注册表、跨节点广播与持久化通知
package notify

import "echelon/backend/internal/model"

// Kind 领域事件类型
type Kind string

const (
	KindStockChanged       Kind = "stock_changed"
	KindNewEvent           Kind = "new_event"
	KindLeaderboardChanged Kind = "leaderboard_changed"
	KindUserMessage        Kind = "user_message"
)

// 实时推送帧类型（客户端协议）
const (
	FrameEventUpdate       = "event_update"
	FrameNewEvent          = "new_event"
	FrameLeaderboardUpdate = "leaderboard_update"
)

// Event 发布到扇出组件的领域事件
type Event struct {
	Kind Kind

	// StockChanged
	EventID string
	Stock   int

	// NewEvent
	Event *model.Event

	// UserMessage
	UserID           string
	NotificationType string
	Message          string
	RelatedID        string
}

// StockChanged 活动库存变化
func StockChanged(eventID string, stock int) Event {
	return Event{Kind: KindStockChanged, EventID: eventID, Stock: stock}
}

// NewEvent 新活动上线
func NewEvent(e *model.Event) Event {
	return Event{Kind: KindNewEvent, Event: e}
}

// LeaderboardChanged 排行榜变化信号，不携带数据
func LeaderboardChanged() Event {
	return Event{Kind: KindLeaderboardChanged}
}

// UserMessage 发给单个用户的持久化通知
func UserMessage(userID, notificationType, message, relatedID string) Event {
	return Event{
		Kind:             KindUserMessage,
		UserID:           userID,
		NotificationType: notificationType,
		Message:          message,
		RelatedID:        relatedID,
	}
}

// Frame 实时连接上的 JSON 消息 {type, ...payload}
type Frame struct {
	Type    string       `json:"type"`
	EventID string       `json:"event_id,omitempty"`
	Stock   *int         `json:"stock,omitempty"`
	Event   *model.Event `json:"event,omitempty"`
}

// frame 领域事件对应的实时帧；UserMessage 只做持久化，没有实时帧
func (e Event) frame() (*Frame, bool) {
	switch e.Kind {
	case KindStockChanged:
		stock := e.Stock
		return &Frame{Type: FrameEventUpdate, EventID: e.EventID, Stock: &stock}, true
	case KindNewEvent:
		return &Frame{Type: FrameNewEvent, Event: e.Event}, true
	case KindLeaderboardChanged:
		return &Frame{Type: FrameLeaderboardUpdate}, true
	default:
		return nil, false
	}
}
