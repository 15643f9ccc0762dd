package redis

import (
	"context"
	"time"
)

// PushJob 任务入队（LPUSH，与 PopJob 的 BRPOP 组成 FIFO）
func (c *Client) PushJob(ctx context.Context, queue string, payload []byte) error {
	return c.rdb.LPush(ctx, queue, payload).Err()
}

// PopJob 阻塞出队，超时无任务时返回 (nil, nil)
func (c *Client) PopJob(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queue).Result()
	if err != nil {
		if isNil(err) {
			return nil, nil
		}
		return nil, err
	}
	// BRPOP 返回 [queue, value]
	if len(res) < 2 {
		return nil, nil
	}
	return []byte(res[1]), nil
}
