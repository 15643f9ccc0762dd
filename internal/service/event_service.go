package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"echelon/backend/config"
	"echelon/backend/internal/dto"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/tier"
)

// EventService 限量活动业务接口
type EventService interface {
	Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error)
	GetByID(ctx context.Context, id string) (*dto.EventResponse, error)
	// ListVisible 用户当前等级可参与的活动
	ListVisible(ctx context.Context, userID string, now time.Time) ([]dto.EventResponse, error)
	// ListUpcoming 所有未结束的活动，不区分等级
	ListUpcoming(ctx context.Context, now time.Time) ([]dto.EventResponse, error)
}

type eventService struct {
	repo      *repository.Repository
	publisher notify.Publisher
	cfg       *config.EngineConfig
	logger    *zap.Logger
}

// NewEventService 创建 EventService 实例
func NewEventService(
	cfg *config.EngineConfig,
	repo *repository.Repository,
	publisher notify.Publisher,
	logger *zap.Logger,
) EventService {
	return &eventService{repo: repo, publisher: publisher, cfg: cfg, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *eventService) Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: 活动名称不能为空", ErrEventInvalid)
	}
	if !tier.Valid(req.RequiredTier) {
		return nil, fmt.Errorf("%w: 未知等级 %q，可选 %s", ErrEventInvalid, req.RequiredTier, strings.Join(tier.Names(), "/"))
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time 须为 RFC3339 格式", ErrEventInvalid)
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time 须为 RFC3339 格式", ErrEventInvalid)
	}
	if !endTime.After(startTime) {
		return nil, fmt.Errorf("%w: 结束时间必须晚于开始时间", ErrEventInvalid)
	}
	if req.Stock == nil || *req.Stock < 0 {
		return nil, fmt.Errorf("%w: 库存必须为非负整数", ErrEventInvalid)
	}

	event := &model.Event{
		Name:         name,
		RequiredTier: req.RequiredTier,
		StartTime:    startTime.UTC(),
		EndTime:      endTime.UTC(),
		Stock:        *req.Stock,
	}
	if _, err := uuid.Parse(callerID); err == nil {
		event.CreatedBy = &callerID
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.repo.Event.Create(sctx, event); err != nil {
		s.logger.Error("创建活动失败", zap.Error(err))
		return nil, storeErr(err)
	}

	s.logger.Info("活动已创建",
		zap.String("event_id", event.EventID),
		zap.String("required_tier", event.RequiredTier),
		zap.Int("stock", event.Stock),
		zap.String("operator", callerID),
	)

	if err := s.publisher.Publish(ctx, notify.NewEvent(event)); err != nil {
		s.logger.Warn("发布新活动通知失败", zap.String("event_id", event.EventID), zap.Error(err))
	}

	return toEventResponse(event), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *eventService) GetByID(ctx context.Context, id string) (*dto.EventResponse, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrEventNotFound
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	event, err := s.repo.Event.GetByID(sctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询活动失败", zap.String("id", id), zap.Error(err))
		return nil, storeErr(err)
	}

	return toEventResponse(event), nil
}

// ────────────────────── ListVisible ──────────────────────

func (s *eventService) ListVisible(ctx context.Context, userID string, now time.Time) ([]dto.EventResponse, error) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	userTier, err := s.repo.User.GetTier(sctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户等级失败", zap.String("user_id", userID), zap.Error(err))
		return nil, storeErr(err)
	}

	events, err := s.repo.Event.ListVisible(sctx, userTier, now)
	if err != nil {
		s.logger.Error("列出可见活动失败", zap.String("tier", userTier), zap.Error(err))
		return nil, storeErr(err)
	}
	return toEventResponses(events), nil
}

// ────────────────────── ListUpcoming ──────────────────────

func (s *eventService) ListUpcoming(ctx context.Context, now time.Time) ([]dto.EventResponse, error) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	events, err := s.repo.Event.ListUpcoming(sctx, now)
	if err != nil {
		s.logger.Error("列出未结束活动失败", zap.Error(err))
		return nil, storeErr(err)
	}
	return toEventResponses(events), nil
}

// ── 辅助函数 ──

func toEventResponse(e *model.Event) *dto.EventResponse {
	return &dto.EventResponse{
		ID:           e.EventID,
		Name:         e.Name,
		RequiredTier: e.RequiredTier,
		StartTime:    e.StartTime.Format(time.RFC3339),
		EndTime:      e.EndTime.Format(time.RFC3339),
		Stock:        e.Stock,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toEventResponses(events []model.Event) []dto.EventResponse {
	result := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		result = append(result, *toEventResponse(&events[i]))
	}
	return result
}
