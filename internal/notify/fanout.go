package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"echelon/backend/internal/metrics"
	"echelon/backend/internal/model"
	"echelon/backend/internal/repository"
)

// Publisher 通知发布接口；调用方必须在状态变更持久化之后再发布
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Transport 实时帧的投递通道：单节点直接投递到本地 Hub，多节点经 Redis 频道转发
type Transport interface {
	Deliver(ctx context.Context, payload []byte) error
}

// Fanout 通知扇出
//
// 投递规则：
//   - StockChanged / LeaderboardChanged：只推实时帧
//   - NewEvent：写一条全员广播通知，再推实时帧
//   - UserMessage：只写该用户的持久化通知，客户端通过通知列表拉取
type Fanout struct {
	transport     Transport
	notifications repository.NotificationRepository
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewFanout 创建通知扇出组件
func NewFanout(
	transport Transport,
	notifications repository.NotificationRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Fanout {
	return &Fanout{
		transport:     transport,
		notifications: notifications,
		metrics:       m,
		logger:        logger,
	}
}

// Publish 发布一个领域事件
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindNewEvent:
		if ev.Event == nil {
			return fmt.Errorf("new_event 缺少活动数据")
		}
		if err := f.record(ctx, nil, model.NotificationTypeNewEvent,
			fmt.Sprintf("新活动上线：%s（%s 等级专属）", ev.Event.Name, ev.Event.RequiredTier),
			ev.Event.EventID); err != nil {
			return err
		}
	case KindUserMessage:
		if ev.UserID == "" {
			return fmt.Errorf("user_message 缺少用户")
		}
		typ := ev.NotificationType
		if typ == "" {
			typ = model.NotificationTypeMessage
		}
		userID := ev.UserID
		return f.record(ctx, &userID, typ, ev.Message, ev.RelatedID)
	case KindStockChanged, KindLeaderboardChanged:
	default:
		return fmt.Errorf("未知通知类型: %s", ev.Kind)
	}

	return f.broadcast(ctx, ev)
}

func (f *Fanout) record(ctx context.Context, userID *string, typ, message, relatedID string) error {
	n := &model.Notification{
		UserID:  userID,
		Type:    typ,
		Message: message,
	}
	if relatedID != "" {
		n.RelatedID = &relatedID
	}
	if err := f.notifications.Create(ctx, n); err != nil {
		f.logger.Error("写入通知失败", zap.String("type", typ), zap.Error(err))
		return err
	}
	return nil
}

func (f *Fanout) broadcast(ctx context.Context, ev Event) error {
	frame, ok := ev.frame()
	if !ok {
		return nil
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("序列化实时帧失败: %w", err)
	}
	if err := f.transport.Deliver(ctx, payload); err != nil {
		f.logger.Warn("实时帧投递失败", zap.String("type", frame.Type), zap.Error(err))
		return err
	}
	f.metrics.FramePublished(frame.Type)
	return nil
}
