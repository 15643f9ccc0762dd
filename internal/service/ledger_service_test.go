package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"echelon/backend/internal/dto"
	"echelon/backend/internal/model"
	"echelon/backend/internal/notify"
	"echelon/backend/internal/repository"
	"echelon/backend/internal/tier"
)

func newCredit(userID string, amount int64) *model.PointCredit {
	return &model.PointCredit{
		CreditID: uuid.New().String(),
		UserID:   userID,
		Amount:   amount,
		Reason:   model.CreditReasonPurchase,
		RefID:    "test",
	}
}

// ── ApplyCredit 测试 ──

func TestLedger_CreditPointsPromotesTier(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(0)
	ctx := context.Background()

	if u := e.user(t, uid); u.Tier != tier.Solace {
		t.Fatalf("0 积分应为 Solace，实际=%s", u.Tier)
	}

	b, err := e.svc.Ledger.ApplyCredit(ctx, newCredit(uid, 7000))
	if err != nil {
		t.Fatalf("ApplyCredit 失败: %v", err)
	}
	if b.Tier != tier.Lovers || !b.TierChanged() {
		t.Errorf("7000 积分应升级为 Lovers，实际=%s changed=%v", b.Tier, b.TierChanged())
	}

	b, err = e.svc.Ledger.ApplyCredit(ctx, newCredit(uid, 8000))
	if err != nil {
		t.Fatalf("ApplyCredit 失败: %v", err)
	}
	if b.Points != 15000 || b.Tier != tier.Loyal {
		t.Errorf("期望 15000/Loyal，实际=%d/%s", b.Points, b.Tier)
	}

	tierName, _ := e.repo.User.GetTier(ctx, uid)
	if tierName != tier.Loyal {
		t.Errorf("账本等级应为 Loyal，实际=%s", tierName)
	}
}

func TestLedger_CreditReplayIsIdempotent(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(100)
	credit := newCredit(uid, 40)

	first, err := e.svc.Ledger.ApplyCredit(context.Background(), credit)
	if err != nil || !first.Applied {
		t.Fatalf("首次入账应生效: %v", err)
	}
	again, err := e.svc.Ledger.ApplyCredit(context.Background(), credit)
	if err != nil {
		t.Fatalf("重放不应报错: %v", err)
	}
	if again.Applied || again.Points != 140 {
		t.Errorf("重放不应再次入账，实际 applied=%v points=%d", again.Applied, again.Points)
	}
}

func TestLedger_CreditUnknownUser(t *testing.T) {
	e := setupTestEngine()
	_, err := e.svc.Ledger.ApplyCredit(context.Background(), newCredit(newUserID(), 10))
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestLedger_ConcurrentCreditsSameUser(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.svc.Ledger.ApplyCredit(context.Background(), newCredit(uid, 10)); err != nil {
				t.Errorf("ApplyCredit 失败: %v", err)
			}
		}()
	}
	wg.Wait()

	if u := e.user(t, uid); u.Points != 1000 {
		t.Errorf("并发入账不应丢失，期望 1000，实际=%d", u.Points)
	}
}

// ── CompletePurchase 测试 ──

func TestCompletePurchase_RewardRate(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(0)

	resp, err := e.svc.Ledger.CompletePurchase(context.Background(), &dto.CompletePurchaseRequest{
		UserID: uid, OrderID: "order-1", Amount: "100",
	})
	if err != nil {
		t.Fatalf("CompletePurchase 失败: %v", err)
	}
	if resp.PointsAwarded != 80 || resp.Points != 80 {
		t.Errorf("期望奖励 80，实际 awarded=%d points=%d", resp.PointsAwarded, resp.Points)
	}
	if n := e.pub.count(notify.KindLeaderboardChanged); n != 1 {
		t.Errorf("期望 1 条 LeaderboardChanged，实际=%d", n)
	}
	if len(e.pub.all()) != 1 {
		t.Errorf("未升级时不应发布其他通知，实际=%d", len(e.pub.all()))
	}

	p, err := e.repo.Purchase.GetByOrderID(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("应写入结账记录: %v", err)
	}
	if p.Amount != "100.00" || p.PointsAwarded != 80 {
		t.Errorf("结账记录不符: %+v", p)
	}
}

func TestCompletePurchase_DuplicateOrder(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(0)
	req := &dto.CompletePurchaseRequest{UserID: uid, OrderID: "order-dup", Amount: "50.00"}

	if _, err := e.svc.Ledger.CompletePurchase(context.Background(), req); err != nil {
		t.Fatalf("首次回调应成功: %v", err)
	}
	_, err := e.svc.Ledger.CompletePurchase(context.Background(), req)
	if !errors.Is(err, ErrPurchaseDuplicate) {
		t.Errorf("期望 ErrPurchaseDuplicate，实际: %v", err)
	}
	if u := e.user(t, uid); u.Points != 40 {
		t.Errorf("重复订单不应重复入账，期望 40，实际=%d", u.Points)
	}
	if n := e.pub.count(notify.KindLeaderboardChanged); n != 1 {
		t.Errorf("重复订单不应再次广播，实际=%d", n)
	}
}

func TestCompletePurchase_DuplicateBackfillsMissingRecord(t *testing.T) {
	e := setupTestEngineWith(testConfig(), func(r *repository.Repository) {
		r.Purchase = &flakyPurchaseRepo{PurchaseRepository: r.Purchase, failures: 1}
	})
	uid := e.addUser(0)
	req := &dto.CompletePurchaseRequest{UserID: uid, OrderID: "order-gap", Amount: "25.00"}

	// 首次回调：积分已入账，结账记录写入失败
	if _, err := e.svc.Ledger.CompletePurchase(context.Background(), req); err != nil {
		t.Fatalf("结账记录写入失败不应影响入账: %v", err)
	}
	if _, err := e.repo.Purchase.GetByOrderID(context.Background(), "order-gap"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("期望暂无结账记录，实际: %v", err)
	}

	// 重投：仍返回重复，但补写缺失的结账记录且不重复入账
	_, err := e.svc.Ledger.CompletePurchase(context.Background(), req)
	if !errors.Is(err, ErrPurchaseDuplicate) {
		t.Errorf("期望 ErrPurchaseDuplicate，实际: %v", err)
	}
	p, err := e.repo.Purchase.GetByOrderID(context.Background(), "order-gap")
	if err != nil {
		t.Fatalf("重投后应补写结账记录: %v", err)
	}
	if p.Amount != "25.00" || p.PointsAwarded != 20 {
		t.Errorf("补写记录不符: %+v", p)
	}
	if u := e.user(t, uid); u.Points != 20 {
		t.Errorf("不应重复入账，期望 20，实际=%d", u.Points)
	}
}

func TestCompletePurchase_TierUpgradeMessage(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(6950)

	resp, err := e.svc.Ledger.CompletePurchase(context.Background(), &dto.CompletePurchaseRequest{
		UserID: uid, OrderID: "order-up", Amount: "100.00",
	})
	if err != nil {
		t.Fatalf("CompletePurchase 失败: %v", err)
	}
	if !resp.TierUpgraded || resp.Tier != tier.Lovers {
		t.Errorf("期望升级为 Lovers，实际=%+v", resp)
	}
	if n := e.pub.count(notify.KindUserMessage); n != 1 {
		t.Fatalf("期望 1 条升级通知，实际=%d", n)
	}
	for _, ev := range e.pub.all() {
		if ev.Kind == notify.KindUserMessage &&
			(ev.UserID != uid || ev.NotificationType != model.NotificationTypeTierUpgrade) {
			t.Errorf("升级通知内容不符: %+v", ev)
		}
	}
}

func TestCompletePurchase_ProvisionsUnknownUser(t *testing.T) {
	e := setupTestEngine()
	uid := newUserID()

	resp, err := e.svc.Ledger.CompletePurchase(context.Background(), &dto.CompletePurchaseRequest{
		UserID: uid, OrderID: "order-new", Amount: "10",
	})
	if err != nil {
		t.Fatalf("未开户用户的结账应自动开户: %v", err)
	}
	if resp.Points != 8 || resp.Tier != tier.Solace {
		t.Errorf("期望 8/Solace，实际=%d/%s", resp.Points, resp.Tier)
	}
}

func TestCompletePurchase_Invalid(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(0)

	tests := []struct {
		name string
		req  dto.CompletePurchaseRequest
	}{
		{"用户ID格式错误", dto.CompletePurchaseRequest{UserID: "u-1", OrderID: "o", Amount: "1"}},
		{"订单号为空", dto.CompletePurchaseRequest{UserID: uid, OrderID: "", Amount: "1"}},
		{"负数金额", dto.CompletePurchaseRequest{UserID: uid, OrderID: "o", Amount: "-1"}},
		{"三位小数", dto.CompletePurchaseRequest{UserID: uid, OrderID: "o", Amount: "1.005"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Ledger.CompletePurchase(context.Background(), &tt.req)
			if !errors.Is(err, ErrPurchaseInvalid) {
				t.Errorf("期望 ErrPurchaseInvalid，实际: %v", err)
			}
		})
	}
	if len(e.pub.all()) != 0 {
		t.Error("参数错误不应发布通知")
	}
}

// ── 查询 ──

func TestLedger_GetLedger(t *testing.T) {
	e := setupTestEngine()
	uid := e.addUser(10000)

	resp, err := e.svc.Ledger.GetLedger(context.Background(), uid)
	if err != nil {
		t.Fatalf("GetLedger 失败: %v", err)
	}
	if resp.Tier != tier.Lovers || resp.NextTier != tier.Loyal || resp.PointsToNext != 5000 {
		t.Errorf("账本信息不符: %+v", resp)
	}

	top := e.addUser(200000)
	resp, _ = e.svc.Ledger.GetLedger(context.Background(), top)
	if resp.NextTier != "" || resp.PointsToNext != 0 {
		t.Errorf("最高等级不应有下一级: %+v", resp)
	}

	if _, err := e.svc.Ledger.GetLedger(context.Background(), newUserID()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestLedger_Leaderboard(t *testing.T) {
	e := setupTestEngine()
	low := e.addUser(100)
	high := e.addUser(9000)
	mid := e.addUser(500)

	entries, err := e.svc.Ledger.Leaderboard(context.Background(), 2)
	if err != nil {
		t.Fatalf("Leaderboard 失败: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条，实际=%d", len(entries))
	}
	if entries[0].UserID != high || entries[1].UserID != mid || entries[0].Rank != 1 {
		t.Errorf("排序不符: %+v", entries)
	}
	for _, en := range entries {
		if en.UserID == low {
			t.Error("超出 limit 的用户不应出现")
		}
	}
}

func TestLedger_EnsureAccountCached(t *testing.T) {
	var counter *countingUserRepo
	e := setupTestEngineWith(testConfig(), func(r *repository.Repository) {
		counter = &countingUserRepo{UserRepository: r.User}
		r.User = counter
	})
	uid := newUserID()

	for i := 0; i < 3; i++ {
		if err := e.svc.Ledger.EnsureAccount(context.Background(), uid, "alice"); err != nil {
			t.Fatalf("EnsureAccount 失败: %v", err)
		}
	}
	if counter.ensure != 1 {
		t.Errorf("开户后应命中缓存，期望仓储调用 1 次，实际=%d", counter.ensure)
	}
	if u := e.user(t, uid); u.Points != 0 || u.Tier != tier.Solace || u.Username != "alice" {
		t.Errorf("新账户不符: %+v", u)
	}
}
