package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"echelon/backend/config"
	"echelon/backend/internal/dto"
	"echelon/backend/internal/metrics"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/tier"
)

// 结账入账的 credit_id 由订单号派生，同一订单重复回调只会入账一次
var purchaseCreditNamespace = uuid.MustParse("6f1c9a52-3b7e-4d1a-9c0e-2f8b5d7a4e13")

const maxLeaderboardSize = 100

// LedgerService 用户积分账本业务接口
type LedgerService interface {
	// ApplyCredit 按 credit_id 幂等入账，同一 credit_id 重放时返回当前余额且 Applied=false
	ApplyCredit(ctx context.Context, credit *model.PointCredit) (*model.LedgerBalance, error)
	// CompletePurchase 外部电商结账完成：按比例折算积分入账并广播排行榜变化
	CompletePurchase(ctx context.Context, req *dto.CompletePurchaseRequest) (*dto.PurchaseResponse, error)
	GetLedger(ctx context.Context, userID string) (*dto.LedgerResponse, error)
	Leaderboard(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error)
	// EnsureAccount 首次见到外部身份时开户
	EnsureAccount(ctx context.Context, userID, username string) error
}

type ledgerService struct {
	repo      *repository.Repository
	publisher notify.Publisher
	cfg       *config.EngineConfig
	accounts  *lru.Cache[string, struct{}]
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewLedgerService 创建 LedgerService 实例
func NewLedgerService(
	cfg *config.EngineConfig,
	repo *repository.Repository,
	publisher notify.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) LedgerService {
	size := cfg.AccountCacheSize
	if size <= 0 {
		size = 4096
	}
	accounts, _ := lru.New[string, struct{}](size)

	return &ledgerService{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		accounts:  accounts,
		metrics:   m,
		logger:    logger,
	}
}

// ────────────────────── ApplyCredit ──────────────────────

func (s *ledgerService) ApplyCredit(ctx context.Context, credit *model.PointCredit) (*model.LedgerBalance, error) {
	if credit.Amount < 0 {
		return nil, fmt.Errorf("积分入账金额不能为负数: %d", credit.Amount)
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	balance, err := s.repo.User.CreditPoints(sctx, credit)
	if err != nil {
		s.metrics.ObserveCredit(credit.Reason, "failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("积分入账失败",
			zap.String("credit_id", credit.CreditID),
			zap.String("user_id", credit.UserID),
			zap.Int64("amount", credit.Amount),
			zap.Error(err),
		)
		return nil, storeErr(err)
	}

	if !balance.Applied {
		s.metrics.ObserveCredit(credit.Reason, "replayed")
		return balance, nil
	}

	s.metrics.ObserveCredit(credit.Reason, "applied")
	if balance.TierChanged() {
		s.logger.Info("用户等级变化",
			zap.String("user_id", balance.UserID),
			zap.String("from", balance.PreviousTier),
			zap.String("to", balance.Tier),
			zap.Int64("points", balance.Points),
		)
	}
	return balance, nil
}

// ────────────────────── CompletePurchase ──────────────────────

func (s *ledgerService) CompletePurchase(ctx context.Context, req *dto.CompletePurchaseRequest) (*dto.PurchaseResponse, error) {
	if _, err := uuid.Parse(req.UserID); err != nil {
		return nil, fmt.Errorf("%w: user_id 格式错误", ErrPurchaseInvalid)
	}
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order_id 不能为空", ErrPurchaseInvalid)
	}
	cents, err := parseAmountCents(req.Amount.String())
	if err != nil {
		return nil, err
	}
	points := purchasePoints(cents, s.cfg.RewardRate)

	// 1. 结账可能早于用户首次访问本服务
	if err := s.EnsureAccount(ctx, req.UserID, ""); err != nil {
		return nil, err
	}

	// 2. 入账；回调重投时 credit_id 相同，不会重复累加
	credit := &model.PointCredit{
		CreditID: uuid.NewSHA1(purchaseCreditNamespace, []byte(req.OrderID)).String(),
		UserID:   req.UserID,
		Amount:   points,
		Reason:   model.CreditReasonPurchase,
		RefID:    req.OrderID,
	}
	balance, err := s.ApplyCredit(ctx, credit)
	if err != nil {
		return nil, err
	}

	purchase := &model.Purchase{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Amount:        formatCents(cents),
		PointsAwarded: points,
	}
	if !balance.Applied {
		// 首次回调入账后写结账记录失败时，由重投补写
		s.backfillPurchase(ctx, purchase)
		return nil, ErrPurchaseDuplicate
	}

	// 3. 结账记录仅用于对账，写入失败不影响已入账的积分
	s.writePurchase(ctx, purchase)

	// 4. 已提交后再发布
	if err := s.publisher.Publish(ctx, notify.LeaderboardChanged()); err != nil {
		s.logger.Warn("发布排行榜变化失败", zap.Error(err))
	}
	if balance.TierChanged() {
		msg := fmt.Sprintf("恭喜升级为 %s 会员，当前积分 %d", balance.Tier, balance.Points)
		ev := notify.UserMessage(req.UserID, model.NotificationTypeTierUpgrade, msg, "")
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.logger.Warn("发布升级通知失败", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	s.logger.Info("结账积分已入账",
		zap.String("order_id", req.OrderID),
		zap.String("user_id", req.UserID),
		zap.Int64("points", points),
	)

	return &dto.PurchaseResponse{
		PurchaseID:    purchase.PurchaseID,
		OrderID:       req.OrderID,
		PointsAwarded: points,
		Points:        balance.Points,
		Tier:          balance.Tier,
		TierUpgraded:  balance.TierChanged(),
	}, nil
}

func (s *ledgerService) writePurchase(ctx context.Context, purchase *model.Purchase) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()
	if err := s.repo.Purchase.Create(sctx, purchase); err != nil {
		s.logger.Error("写入结账记录失败",
			zap.String("order_id", purchase.OrderID),
			zap.String("user_id", purchase.UserID),
			zap.Error(err),
		)
	}
}

// backfillPurchase 订单已入账但缺少结账记录时补写
func (s *ledgerService) backfillPurchase(ctx context.Context, purchase *model.Purchase) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	existing, err := s.repo.Purchase.GetByOrderID(sctx, purchase.OrderID)
	cancel()

	switch {
	case err == nil:
		s.logger.Info("重复结账回调",
			zap.String("order_id", purchase.OrderID),
			zap.String("purchase_id", existing.PurchaseID),
		)
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.writePurchase(ctx, purchase)
		s.logger.Info("补写结账记录", zap.String("order_id", purchase.OrderID))
	default:
		s.logger.Warn("查询结账记录失败", zap.String("order_id", purchase.OrderID), zap.Error(err))
	}
}

// ────────────────────── GetLedger ──────────────────────

func (s *ledgerService) GetLedger(ctx context.Context, userID string) (*dto.LedgerResponse, error) {
	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	user, err := s.repo.User.GetByID(sctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询积分账本失败", zap.String("user_id", userID), zap.Error(err))
		return nil, storeErr(err)
	}

	resp := &dto.LedgerResponse{
		UserID: user.UserID,
		Points: user.Points,
		Tier:   user.Tier,
	}
	for _, l := range tier.Levels() {
		if l.MinPoints > user.Points {
			resp.NextTier = l.Name
			resp.PointsToNext = l.MinPoints - user.Points
			break
		}
	}
	return resp, nil
}

// ────────────────────── Leaderboard ──────────────────────

func (s *ledgerService) Leaderboard(ctx context.Context, limit int) ([]dto.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = s.cfg.LeaderboardSize
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	users, err := s.repo.User.TopByPoints(sctx, limit)
	if err != nil {
		s.logger.Error("查询排行榜失败", zap.Error(err))
		return nil, storeErr(err)
	}

	result := make([]dto.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		result = append(result, dto.LeaderboardEntry{
			Rank:     i + 1,
			UserID:   u.UserID,
			Username: u.Username,
			Points:   u.Points,
			Tier:     u.Tier,
		})
	}
	return result, nil
}

// ────────────────────── EnsureAccount ──────────────────────

func (s *ledgerService) EnsureAccount(ctx context.Context, userID, username string) error {
	if s.accounts.Contains(userID) {
		return nil
	}

	sctx, cancel := storeContext(ctx, s.cfg.StoreTimeout)
	defer cancel()

	if err := s.repo.User.EnsureAccount(sctx, userID, username); err != nil {
		s.logger.Error("开户失败", zap.String("user_id", userID), zap.Error(err))
		return storeErr(err)
	}
	s.accounts.Add(userID, struct{}{})
	return nil
}
