package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CheckRateLimit 固定窗口计数限流；返回 true 表示放行
// INCR 与 EXPIRE NX 在同一事务内执行，计数 key 总会带上过期时间（需 Redis 7.0+）
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	var incr *goredis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}
