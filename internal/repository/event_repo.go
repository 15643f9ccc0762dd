package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"echelon/backend/internal/model"
)

// EventRepository 限量活动数据访问接口
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	// ListVisible 指定等级可见的活动：有库存且未结束，按开始时间升序
	ListVisible(ctx context.Context, tier string, now time.Time) ([]model.Event, error)
	// ListUpcoming 全部未结束的活动，按开始时间升序
	ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error)
	// TryDecrementStock 原子地“库存大于 0 时减一”，返回扣减后的库存与是否成功
	TryDecrementStock(ctx context.Context, id string) (int, bool, error)
}

type eventRepo struct {
	db *gorm.DB
}

// NewEventRepo 创建 EventRepository 实例
func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) ListVisible(ctx context.Context, tier string, now time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("required_tier = ? AND stock > 0 AND end_time > ?", tier, now).
		Order("start_time ASC").
		Find(&events).Error
	return events, err
}

func (r *eventRepo) ListUpcoming(ctx context.Context, now time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("end_time > ?", now).
		Order("start_time ASC").
		Find(&events).Error
	return events, err
}

// stockRow UPDATE ... RETURNING 的结果行
type stockRow struct {
	Stock int
}

// TryDecrementStock 单条条件更新完成“检查 + 扣减”，由数据库行锁保证并发下不超卖，多实例部署同样成立
func (r *eventRepo) TryDecrementStock(ctx context.Context, id string) (int, bool, error) {
	var rows []stockRow
	err := r.db.WithContext(ctx).
		Raw(`UPDATE events SET stock = stock - 1, updated_at = NOW() WHERE event_id = ? AND stock > 0 RETURNING stock`, id).
		Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Stock, true, nil
}
