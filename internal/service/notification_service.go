package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/dto"
	"echelon/backend/internal/repository"
)

// MaxNotificationLimit 单次拉取通知的上限
const MaxNotificationLimit = 50

// NotificationService 通知查询接口
type NotificationService interface {
	// ListForUser 用户自己的通知与全员广播，最新在前；limit<=0 时取默认条数
	ListForUser(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error)
}

type notificationService struct {
	repo   *repository.Repository
	cfg    *config.EngineConfig
	logger *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(cfg *config.EngineConfig, repo *repository.Repository, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, cfg: cfg, logger: logger}
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, limit int) ([]dto.NotificationResponse, error) {
	if limit <= 0 {
		limit = s.cfg.NotificationLimit
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	list, err := s.repo.Notification.ListForUser(sctx, userID, limit)
	if err != nil {
		s.logger.Error("查询通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, storeErr(err)
	}

	result := make([]dto.NotificationResponse, 0, len(list))
	for _, n := range list {
		result = append(result, dto.NotificationResponse{
			ID:        n.NotificationID,
			Type:      n.Type,
			Message:   n.Message,
			RelatedID: n.RelatedID,
			Broadcast: n.UserID == nil,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, nil
}
