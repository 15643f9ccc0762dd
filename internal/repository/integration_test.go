//go:build integration

package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"echelon/backend/internal/model"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/tier"
	"echelon/backend/pkg/database"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=echelon password=echelon_password dbname=echelon_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	sqlDB, err := testDB.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取 sql.DB 失败: %v\n", err)
		os.Exit(1)
	}
	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		fmt.Fprintf(os.Stderr, "迁移失败: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()
	os.Exit(code)
}

// setupUser 创建测试用户并返回清理函数
func setupUser(t *testing.T, points int64) (string, func()) {
	t.Helper()
	id := uuid.NewString()
	user := &model.User{UserID: id, Username: "it-" + id[:8], Points: points, Tier: tier.For(points)}
	if err := testDB.Create(user).Error; err != nil {
		t.Fatalf("创建用户失败: %v", err)
	}
	return id, func() {
		testDB.Where("user_id = ?", id).Delete(&model.Purchase{})
		testDB.Where("user_id = ?", id).Delete(&model.PointCredit{})
		testDB.Where("user_id = ?", id).Delete(&model.User{})
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Stock never oversells
// ═══════════════════════════════════════════════════════════

func TestEventRepo_ConcurrentDecrement(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()

	now := time.Now().UTC()
	ev := &model.Event{Name: "it-drop", RequiredTier: tier.Solace, StartTime: now, EndTime: now.Add(time.Hour), Stock: 3}
	if err := repo.Event.Create(ctx, ev); err != nil {
		t.Fatalf("创建活动失败: %v", err)
	}
	defer testDB.Where("event_id = ?", ev.EventID).Delete(&model.Event{})

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Event.TryDecrementStock(ctx, ev.EventID)
			if err != nil {
				t.Errorf("TryDecrementStock 失败: %v", err)
				return
			}
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if won != 3 {
		t.Errorf("期望恰好 3 次成功，实际 %d", won)
	}
	got, err := repo.Event.GetByID(ctx, ev.EventID)
	if err != nil {
		t.Fatalf("GetByID 失败: %v", err)
	}
	if got.Stock != 0 {
		t.Errorf("期望库存 0，实际 %d", got.Stock)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Credit idempotency and tier recompute
// ═══════════════════════════════════════════════════════════

func TestUserRepo_CreditPoints_Idempotent(t *testing.T) {
	userID, cleanup := setupUser(t, 6990)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	credit := &model.PointCredit{
		CreditID: uuid.NewString(),
		UserID:   userID,
		Amount:   50,
		Reason:   model.CreditReasonParticipation,
	}

	bal, err := repo.User.CreditPoints(ctx, credit)
	if err != nil {
		t.Fatalf("首次入账失败: %v", err)
	}
	if !bal.Applied || bal.Points != 7040 || bal.Tier != tier.Lovers || bal.PreviousTier != tier.Solace {
		t.Errorf("首次入账结果不符: %+v", bal)
	}

	replay := *credit
	replay.CreatedAt = time.Time{}
	bal, err = repo.User.CreditPoints(ctx, &replay)
	if err != nil {
		t.Fatalf("重放入账失败: %v", err)
	}
	if bal.Applied || bal.Points != 7040 {
		t.Errorf("重放不应重复入账: %+v", bal)
	}

	user, err := repo.User.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID 失败: %v", err)
	}
	if user.Points != 7040 || user.Tier != tier.Lovers {
		t.Errorf("账本状态不符: points=%d tier=%s", user.Points, user.Tier)
	}
}

func TestUserRepo_CreditPoints_UnknownUser(t *testing.T) {
	repo := repository.NewRepository(testDB)
	_, err := repo.User.CreditPoints(context.Background(), &model.PointCredit{
		CreditID: uuid.NewString(),
		UserID:   uuid.NewString(),
		Amount:   1,
		Reason:   model.CreditReasonPurchase,
	})
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("期望 ErrRecordNotFound，实际 %v", err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Purchase order uniqueness
// ═══════════════════════════════════════════════════════════

func TestPurchaseRepo_DuplicateOrder(t *testing.T) {
	userID, cleanup := setupUser(t, 0)
	defer cleanup()

	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	orderID := "it-order-" + uuid.NewString()

	if err := repo.Purchase.Create(ctx, &model.Purchase{OrderID: orderID, UserID: userID, Amount: "12.50", PointsAwarded: 10}); err != nil {
		t.Fatalf("首次写入失败: %v", err)
	}
	err := repo.Purchase.Create(ctx, &model.Purchase{OrderID: orderID, UserID: userID, Amount: "12.50", PointsAwarded: 10})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Errorf("期望 ErrDuplicatedKey，实际 %v", err)
	}
}
