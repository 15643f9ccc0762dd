// Package memrepo 进程内存储实现，用于单实例部署（db.driver=memory）与测试。
// 所有操作在同一把互斥锁内完成，单进程内与数据库实现保持相同的原子性语义。
package memrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"echelon/backend/internal/model"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/tier"
)

// Store 内存数据集
type Store struct {
	mu            sync.Mutex
	events        map[string]*model.Event
	users         map[string]*model.User
	credits       map[string]struct{}
	purchases     map[string]*model.Purchase
	notifications []model.Notification
	now           func() time.Time
}

// New 创建空的内存数据集
func New() *Store {
	return &Store{
		events:    make(map[string]*model.Event),
		users:     make(map[string]*model.User),
		credits:   make(map[string]struct{}),
		purchases: make(map[string]*model.Purchase),
		now:       time.Now,
	}
}

// Repository 以内存数据集构建 Repository 聚合
func (s *Store) Repository() *repository.Repository {
	return &repository.Repository{
		Event:        &eventRepo{s: s},
		User:         &userRepo{s: s},
		Purchase:     &purchaseRepo{s: s},
		Notification: &notificationRepo{s: s},
	}
}

// PutUser 直接写入用户（测试与初始化数据用），等级按积分推导
func (s *Store) PutUser(id string, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.users[id] = &model.User{
		UserID:    id,
		Points:    points,
		Tier:      tier.For(points),
		BaseModel: model.BaseModel{CreatedAt: now, UpdatedAt: now},
	}
}

// ── Event ──

type eventRepo struct{ s *Store }

func (r *eventRepo) Create(_ context.Context, event *model.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	now := r.s.now()
	event.CreatedAt, event.UpdatedAt = now, now
	cp := *event
	r.s.events[event.EventID] = &cp
	return nil
}

func (r *eventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *eventRepo) ListVisible(_ context.Context, tierName string, now time.Time) ([]model.Event, error) {
	return r.list(func(e *model.Event) bool {
		return e.RequiredTier == tierName && e.Stock > 0 && e.EndTime.After(now)
	}), nil
}

func (r *eventRepo) ListUpcoming(_ context.Context, now time.Time) ([]model.Event, error) {
	return r.list(func(e *model.Event) bool {
		return e.EndTime.After(now)
	}), nil
}

func (r *eventRepo) list(keep func(*model.Event) bool) []model.Event {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Event, 0)
	for _, e := range r.s.events {
		if keep(e) {
			out = append(out, *e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].EventID < out[j].EventID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

func (r *eventRepo) TryDecrementStock(_ context.Context, id string) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok || e.Stock <= 0 {
		return 0, false, nil
	}
	e.Stock--
	e.UpdatedAt = r.s.now()
	return e.Stock, true, nil
}

// ── User ──

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) GetTier(ctx context.Context, id string) (string, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Tier, nil
}

func (r *userRepo) EnsureAccount(_ context.Context, id, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; ok {
		return nil
	}
	now := r.s.now()
	r.s.users[id] = &model.User{
		UserID:    id,
		Username:  username,
		Tier:      tier.Default(),
		BaseModel: model.BaseModel{CreatedAt: now, UpdatedAt: now},
	}
	return nil
}

func (r *userRepo) CreditPoints(_ context.Context, credit *model.PointCredit) (*model.LedgerBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[credit.UserID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if _, done := r.s.credits[credit.CreditID]; done {
		return &model.LedgerBalance{
			UserID: u.UserID, Points: u.Points, Tier: u.Tier, PreviousTier: u.Tier, Applied: false,
		}, nil
	}

	r.s.credits[credit.CreditID] = struct{}{}
	prev := u.Tier
	u.Points += credit.Amount
	u.Tier = tier.For(u.Points)
	u.UpdatedAt = r.s.now()
	return &model.LedgerBalance{
		UserID: u.UserID, Points: u.Points, Tier: u.Tier, PreviousTier: prev, Applied: true,
	}, nil
}

func (r *userRepo) TopByPoints(_ context.Context, limit int) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, *u)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Points == out[j].Points {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Points > out[j].Points
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ── Purchase ──

type purchaseRepo struct{ s *Store }

func (r *purchaseRepo) Create(_ context.Context, p *model.Purchase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.purchases[p.OrderID]; ok {
		return gorm.ErrDuplicatedKey
	}
	if _, ok := r.s.users[p.UserID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	if p.PurchaseID == "" {
		p.PurchaseID = uuid.New().String()
	}
	p.CreatedAt = r.s.now()
	cp := *p
	r.s.purchases[p.OrderID] = &cp
	return nil
}

func (r *purchaseRepo) GetByOrderID(_ context.Context, orderID string) (*model.Purchase, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.purchases[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

// ── Notification ──

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(_ context.Context, n *model.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.NotificationID == "" {
		n.NotificationID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.s.now()
	}
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r *notificationRepo) ListForUser(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Notification, 0)
	// 追加顺序即创建顺序，倒序遍历得到最新在前
	for i := len(r.s.notifications) - 1; i >= 0; i-- {
		n := r.s.notifications[i]
		if n.UserID == nil || *n.UserID == userID {
			out = append(out, n)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
