package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"echelon/backend/config"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/repository/memrepo"
)

// ── 测试辅助 ──

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(kind notify.Kind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) all() []notify.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]notify.Event, len(p.events))
	copy(out, p.events)
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			ParticipationPoints:    50,
			RewardRate:             0.8,
			StoreTimeout:           time.Second,
			CreditRetryMaxAttempts: 3,
			CreditRetryBackoff:     time.Millisecond,
			NotificationLimit:      5,
			LeaderboardSize:        10,
			AccountCacheSize:       16,
		},
	}
}

type testEngine struct {
	svc   *Service
	store *memrepo.Store
	repo  *repository.Repository
	pub   *recordingPublisher
	queue CreditQueue
}

func setupTestEngine() *testEngine {
	return setupTestEngineWith(testConfig(), nil)
}

// setupTestEngineWith wrap 非 nil 时可替换部分仓储以注入故障
func setupTestEngineWith(cfg *config.Config, wrap func(*repository.Repository)) *testEngine {
	store := memrepo.New()
	repo := store.Repository()
	if wrap != nil {
		wrap(repo)
	}
	pub := &recordingPublisher{}
	queue := NewMemoryCreditQueue(64)
	return &testEngine{
		svc:   NewService(cfg, repo, pub, queue, nil, zap.NewNop()),
		store: store,
		repo:  repo,
		pub:   pub,
		queue: queue,
	}
}

func newUserID() string { return uuid.New().String() }

func (e *testEngine) addUser(points int64) string {
	id := newUserID()
	e.store.PutUser(id, points)
	return id
}

func (e *testEngine) addEvent(t *testing.T, requiredTier string, stock int, end time.Time) *model.Event {
	t.Helper()
	ev := &model.Event{
		Name:         "Limited Drop",
		RequiredTier: requiredTier,
		StartTime:    end.Add(-24 * time.Hour),
		EndTime:      end,
		Stock:        stock,
	}
	if err := e.repo.Event.Create(context.Background(), ev); err != nil {
		t.Fatalf("创建测试活动失败: %v", err)
	}
	return ev
}

func (e *testEngine) stock(t *testing.T, eventID string) int {
	t.Helper()
	ev, err := e.repo.Event.GetByID(context.Background(), eventID)
	if err != nil {
		t.Fatalf("查询活动失败: %v", err)
	}
	return ev.Stock
}

func (e *testEngine) user(t *testing.T, userID string) *model.User {
	t.Helper()
	u, err := e.repo.User.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("查询用户失败: %v", err)
	}
	return u
}

// ── 故障注入仓储 ──

type failingUserRepo struct {
	repository.UserRepository
	creditErr error
}

func (f *failingUserRepo) CreditPoints(ctx context.Context, credit *model.PointCredit) (*model.LedgerBalance, error) {
	if f.creditErr != nil {
		return nil, f.creditErr
	}
	return f.UserRepository.CreditPoints(ctx, credit)
}

// flakyPurchaseRepo 前 failures 次写入失败
type flakyPurchaseRepo struct {
	repository.PurchaseRepository
	failures int
}

func (f *flakyPurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	if f.failures > 0 {
		f.failures--
		return context.DeadlineExceeded
	}
	return f.PurchaseRepository.Create(ctx, p)
}

// blockingEventRepo 读取活动时阻塞直到 ctx 超时
type blockingEventRepo struct {
	repository.EventRepository
}

func (b *blockingEventRepo) GetByID(ctx context.Context, _ string) (*model.Event, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingUserRepo struct {
	repository.UserRepository
	mu     sync.Mutex
	ensure int
}

func (c *countingUserRepo) EnsureAccount(ctx context.Context, id, username string) error {
	c.mu.Lock()
	c.ensure++
	c.mu.Unlock()
	return c.UserRepository.EnsureAccount(ctx, id, username)
}
