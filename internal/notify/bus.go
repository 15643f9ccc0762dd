package notify

import (
	"context"

	"go.uber.org/zap"

	appredis "echelon/backend/pkg/redis"
)

// DefaultChannel 跨节点实时帧频道
const DefaultChannel = "echelon:fanout"

// Bus 基于 Redis Pub/Sub 的跨节点投递
// Deliver 发布到频道；每个节点的 Run 订阅同一频道并转交本地 Hub
type Bus struct {
	client  *appredis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewBus 创建跨节点广播通道
func NewBus(client *appredis.Client, hub *Hub, logger *zap.Logger) *Bus {
	return &Bus{client: client, channel: DefaultChannel, hub: hub, logger: logger}
}

// Deliver 实现 Transport
func (b *Bus) Deliver(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, b.channel, payload)
}

// Run 订阅频道直到 ctx 取消
func (b *Bus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	b.logger.Info("已订阅跨节点通知频道", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.hub.Broadcast([]byte(msg.Payload))
		}
	}
}
