package errors

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
)

// ErrStoreTimeout 存储操作超时
var ErrStoreTimeout = errors.New("存储操作超时")

// IsTransient 判断存储层错误是否为暂时性故障（超时 / 连接不可用）
// 业务错误（记录不存在、唯一约束冲突等）一律返回 false
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
