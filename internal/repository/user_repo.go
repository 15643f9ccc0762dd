package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"echelon/backend/internal/model"
	"echelon/backend/internal/tier"
)

// UserRepository 用户积分账本数据访问接口
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetTier(ctx context.Context, id string) (string, error)
	// EnsureAccount 账本中不存在该用户时以零积分创建
	EnsureAccount(ctx context.Context, id, username string) error
	// CreditPoints 在同一事务内记录入账流水、累加积分并按等级策略重算等级
	CreditPoints(ctx context.Context, credit *model.PointCredit) (*model.LedgerBalance, error)
	TopByPoints(ctx context.Context, limit int) ([]model.User, error)
}

type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) GetTier(ctx context.Context, id string) (string, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Select("tier").
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return "", err
	}
	return user.Tier, nil
}

func (r *userRepo) EnsureAccount(ctx context.Context, id, username string) error {
	user := &model.User{
		UserID:   id,
		Username: username,
		Points:   0,
		Tier:     tier.Default(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(user).Error
}

// ledgerRow UPDATE ... RETURNING 的结果行；tier 为更新前的值
type ledgerRow struct {
	Points int64
	Tier   string
}

func (r *userRepo) CreditPoints(ctx context.Context, credit *model.PointCredit) (*model.LedgerBalance, error) {
	var balance *model.LedgerBalance

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 写入流水；主键冲突说明已入账过
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(credit)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrForeignKeyViolated) {
				return gorm.ErrRecordNotFound
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			var user model.User
			if err := tx.Where("user_id = ?", credit.UserID).First(&user).Error; err != nil {
				return err
			}
			balance = &model.LedgerBalance{
				UserID:       user.UserID,
				Points:       user.Points,
				Tier:         user.Tier,
				PreviousTier: user.Tier,
				Applied:      false,
			}
			return nil
		}

		// 2. 累加积分（持有行锁直到事务结束，同一用户的并发入账串行化）
		var rows []ledgerRow
		err := tx.Raw(`UPDATE users SET points = points + ?, updated_at = NOW() WHERE user_id = ? RETURNING points, tier`,
			credit.Amount, credit.UserID).
			Scan(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return gorm.ErrRecordNotFound
		}

		// 3. 重算等级，与积分同事务提交
		newTier := tier.For(rows[0].Points)
		if newTier != rows[0].Tier {
			if err := tx.Model(&model.User{}).
				Where("user_id = ?", credit.UserID).
				Update("tier", newTier).Error; err != nil {
				return err
			}
		}

		balance = &model.LedgerBalance{
			UserID:       credit.UserID,
			Points:       rows[0].Points,
			Tier:         newTier,
			PreviousTier: rows[0].Tier,
			Applied:      true,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (r *userRepo) TopByPoints(ctx context.Context, limit int) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Order("points DESC, created_at ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
