package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"echelon/backend/config"
	"echelon/backend/internal/dto"
	"echelon/backend/internal/metrics"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
)

// ParticipationService 活动参与仲裁
type ParticipationService interface {
	// Participate 一次抢占请求：Requested → Rejected(原因) | Committed，两者均为终态
	Participate(ctx context.Context, userID, eventID string, now time.Time) (*dto.ParticipationResponse, error)
}

type participationService struct {
	repo      *repository.Repository
	ledger    LedgerService
	queue     CreditQueue
	publisher notify.Publisher
	cfg       *config.EngineConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewParticipationService 创建 ParticipationService 实例
func NewParticipationService(
	cfg *config.EngineConfig,
	repo *repository.Repository,
	ledger LedgerService,
	queue CreditQueue,
	publisher notify.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) ParticipationService {
	return &participationService{
		repo:      repo,
		ledger:    ledger,
		queue:     queue,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger,
	}
}

// ═══════════════════════════════════════════════════════════
// Participate
// ═══════════════════════════════════════════════════════════
//
// 判定顺序：
//  1. 活动不存在 / 已结束 → ErrEventNotFound / ErrEventExpired
//  2. 用户当前等级（本次奖励之前）≠ 活动要求等级 → ErrTierMismatch
//  3. 原子扣减库存失败 → ErrSoldOut（最终结果，不重试）
//  4. 奖励固定参与积分；入账失败时仍判定成功，任务进入补偿队列
//  5. 提交后发布恰好一条 StockChanged；被拒绝的请求不发布任何通知

func (s *participationService) Participate(ctx context.Context, userID, eventID string, now time.Time) (*dto.ParticipationResponse, error) {
	resp, err := s.participate(ctx, userID, eventID, now)
	s.metrics.ObserveParticipation(outcomeOf(err))
	return resp, err
}

func (s *participationService) participate(ctx context.Context, userID, eventID string, now time.Time) (*dto.ParticipationResponse, error) {
	// 1. 活动
	event, err := s.getEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Expired(now) {
		return nil, ErrEventExpired
	}

	// 2. 等级资格
	userTier, err := s.getTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userTier != event.RequiredTier {
		return nil, ErrTierMismatch
	}

	// 3. 库存
	remaining, err := s.decrementStock(ctx, eventID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ParticipationResponse{
		EventID:        eventID,
		PointsAwarded:  s.cfg.ParticipationPoints,
		RemainingStock: remaining,
	}

	// 4. 积分
	credit := &model.PointCredit{
		CreditID: uuid.New().String(),
		UserID:   userID,
		Amount:   s.cfg.ParticipationPoints,
		Reason:   model.CreditReasonParticipation,
		RefID:    eventID,
	}
	balance, err := s.ledger.ApplyCredit(ctx, credit)
	if err != nil {
		resp.CreditPending = true
		s.enqueueCredit(ctx, credit, err)
	} else {
		points := balance.Points
		resp.Points = &points
		resp.Tier = balance.Tier
	}

	s.logger.Info("活动参与成功",
		zap.String("event_id", eventID),
		zap.String("user_id", userID),
		zap.Int("remaining_stock", remaining),
		zap.Bool("credit_pending", resp.CreditPending),
	)

	// 5. 通知
	if err := s.publisher.Publish(ctx, notify.StockChanged(eventID, remaining)); err != nil {
		s.logger.Warn("发布库存变化失败", zap.String("event_id", eventID), zap.Error(err))
	}

	return resp, nil
}

// ── 内部步骤 ──

func (s *participationService) getEvent(ctx context.Context, eventID string) (*model.Event, error) {
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, ErrEventNotFound
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	event, err := s.repo.Event.GetByID(sctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询活动失败", zap.String("event_id", eventID), zap.Error(err))
		return nil, storeErr(err)
	}
	return event, nil
}

func (s *participationService) getTier(ctx context.Context, userID string) (string, error) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	userTier, err := s.repo.User.GetTier(sctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		s.logger.Error("查询用户等级失败", zap.String("user_id", userID), zap.Error(err))
		return "", storeErr(err)
	}
	return userTier, nil
}

func (s *participationService) decrementStock(ctx context.Context, eventID string) (int, error) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	remaining, ok, err := s.repo.Event.TryDecrementStock(sctx, eventID)
	if err != nil {
		s.logger.Error("扣减库存失败", zap.String("event_id", eventID), zap.Error(err))
		return 0, storeErr(err)
	}
	if !ok {
		return 0, ErrSoldOut
	}
	return remaining, nil
}

// enqueueCredit 库存已扣减，入账失败的任务交给补偿队列
func (s *participationService) enqueueCredit(ctx context.Context, credit *model.PointCredit, cause error) {
	fields := []zap.Field{
		zap.String("credit_id", credit.CreditID),
		zap.String("user_id", credit.UserID),
		zap.String("event_id", credit.RefID),
		zap.Int64("amount", credit.Amount),
		zap.NamedError("cause", cause),
	}

	pushCtx, cancel := storeContext(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	if err := s.queue.Push(pushCtx, &CreditJob{Credit: *credit}); err != nil {
		s.logger.Error("积分补偿任务入队失败，需人工处理", append(fields, zap.Error(err))...)
		return
	}
	s.metrics.ObserveCredit(credit.Reason, "queued")
	s.logger.Warn("积分入账失败，已进入补偿队列", fields...)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrUserNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrEventExpired):
		return metrics.OutcomeExpired
	case errors.Is(err, ErrTierMismatch):
		return metrics.OutcomeTierMismatch
	case errors.Is(err, ErrSoldOut):
		return metrics.OutcomeSoldOut
	default:
		return metrics.OutcomeUnavailable
	}
}
