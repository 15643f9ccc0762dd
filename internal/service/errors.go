package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "echelon/backend/pkg/errors"
)

// ── 引擎业务错误 ──
// NotFound / Expired / TierMismatch / SoldOut / Invalid 为终态结果，原样返回调用方，不做自动重试；
// ErrStoreUnavailable 是唯一允许调用方重试的错误

var (
	ErrEventNotFound     = errors.New("活动不存在")
	ErrUserNotFound      = errors.New("用户不存在")
	ErrEventExpired      = errors.New("活动已结束")
	ErrTierMismatch      = errors.New("会员等级不符合活动要求")
	ErrSoldOut           = errors.New("活动已售罄")
	ErrEventInvalid      = errors.New("活动参数不合法")
	ErrStoreUnavailable  = errors.New("存储服务暂时不可用，请稍后重试")
	ErrPurchaseDuplicate = errors.New("该订单已入账")
	ErrPurchaseInvalid   = errors.New("结账参数不合法")
)

// storeContext 为单次存储操作设置超时
func storeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// storeErr 暂时性存储故障统一映射为 ErrStoreUnavailable，其余错误原样返回
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsTransient(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
