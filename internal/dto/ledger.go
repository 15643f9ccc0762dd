package dto

import "encoding/json"

// ── 积分账本 DTO ──

// CompletePurchaseRequest 外部电商结账完成回调
type CompletePurchaseRequest struct {
	UserID  string `json:"user_id"  binding:"required,uuid"`
	OrderID string `json:"order_id" binding:"required,max=100"`
	// Amount 十进制金额，最多两位小数；JSON 数字 100.5 与字符串 "100.50" 均可
	Amount json.Number `json:"amount" binding:"required"`
}

// PurchaseResponse 结账入账结果
type PurchaseResponse struct {
	PurchaseID    string `json:"purchase_id"`
	OrderID       string `json:"order_id"`
	PointsAwarded int64  `json:"points_awarded"`
	Points        int64  `json:"points"`
	Tier          string `json:"tier"`
	TierUpgraded  bool   `json:"tier_upgraded"`
}

// LedgerResponse 用户积分与等级
type LedgerResponse struct {
	UserID       string `json:"user_id"`
	Points       int64  `json:"points"`
	Tier         string `json:"tier"`
	NextTier     string `json:"next_tier,omitempty"`
	PointsToNext int64  `json:"points_to_next,omitempty"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Points   int64  `json:"points"`
	Tier     string `json:"tier"`
}
